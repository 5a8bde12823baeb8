package ssf

import (
	"gonum.org/v1/gonum/mat"
)

// work holds the scratch buffers of one filter or smoother call.
type work struct {
	w   *mat.Dense
	col []float64
}

func newWork(dim int) *work {
	return &work{w: mat.NewDense(dim, dim, nil), col: make([]float64, dim)}
}

// tvt replaces p by T_pos p T_posᵀ.
func (wk *work) tvt(dyn Dynamics, pos int, p *mat.SymDense) {
	wk.sandwich(dyn.TX, pos, p)
}

// xtvt replaces p by T_posᵀ p T_pos.
func (wk *work) xtvt(dyn Dynamics, pos int, p *mat.SymDense) {
	wk.sandwich(dyn.XT, pos, p)
}

// sandwich applies op to the columns then to the rows of p, and writes the
// symmetric part back.
func (wk *work) sandwich(op func(int, []float64), pos int, p *mat.SymDense) {
	n := p.SymmetricDim()
	wk.w.Copy(p)
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			wk.col[i] = wk.w.At(i, j)
		}
		op(pos, wk.col)
		wk.w.SetCol(j, wk.col)
	}
	for i := 0; i < n; i++ {
		op(pos, wk.w.RawRowView(i))
	}
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			p.SetSym(i, j, 0.5*(wk.w.At(i, j)+wk.w.At(j, i)))
		}
	}
}

// symMulVec writes p x into dst.
func symMulVec(dst []float64, p mat.Symmetric, x []float64) {
	n := len(x)
	for i := 0; i < n; i++ {
		s := 0.0
		for j := 0; j < n; j++ {
			if x[j] != 0 {
				s += p.At(i, j) * x[j]
			}
		}
		dst[i] = s
	}
}

func cloneVec(x []float64) []float64 {
	c := make([]float64, len(x))
	copy(c, x)
	return c
}
