package disagg

import (
	"gonum.org/v1/gonum/mat"

	"tsbench/ssf"
)

// regression is the state-space form of the disaggregation model.
//
// State: [c_t, u_t, β_1 .. β_k], c_t being coef·y cumulated since the start
// of the window of t.
type regression struct {
	rho float64
	// regressors, n × k, nil when k = 0
	x     *mat.Dense
	k     int
	coef  []float64
	reset []bool
}

func (r *regression) dim() int { return 2 + r.k }

func (r *regression) keep(t int) float64 {
	if r.reset[t] {
		return 0
	}
	return 1
}

// xb returns X_t β for the state x.
func (r *regression) xb(t int, x []float64) float64 {
	v := 0.0
	for j := 0; j < r.k; j++ {
		v += r.x.At(t, j) * x[2+j]
	}
	return v
}

func (r *regression) TX(pos int, x []float64) {
	next := pos + 1
	u := r.rho * x[1]
	x[0] = r.keep(next)*x[0] + r.coef[next]*(r.xb(next, x)+u)
	x[1] = u
}

func (r *regression) XT(pos int, x []float64) {
	next := pos + 1
	yc, cn := x[0], r.coef[next]
	x[0] = r.keep(next) * yc
	x[1] = r.rho * (cn*yc + x[1])
	for j := 0; j < r.k; j++ {
		x[2+j] += cn * r.x.At(next, j) * yc
	}
}

func (r *regression) InnovationDim() int { return 1 }

func (r *regression) Loading(pos int, s *mat.Dense) {
	s.Set(0, 0, r.coef[pos+1])
	s.Set(1, 0, 1)
}

// initial makes β diffuse. u_0 is diffuse for a random walk, stationary
// otherwise. c_0 = coef_0 (X_0 β + u_0).
func (r *regression) initial() ssf.Initial {
	dim, c0 := r.dim(), r.coef[0]
	rw := r.rho == 1
	nd := r.k
	if rw {
		nd++
	}
	var (
		b   *mat.Dense
		col int
	)
	if nd > 0 {
		b = mat.NewDense(dim, nd, nil)
	}
	if rw {
		b.Set(0, 0, c0)
		b.Set(1, 0, 1)
		col++
	}
	for j := 0; j < r.k; j++ {
		b.Set(0, col, c0*r.x.At(0, j))
		b.Set(2+j, col, 1)
		col++
	}
	init := ssf.Initial{Diffuse: b}
	if !rw {
		v := 1 / (1 - r.rho*r.rho)
		p0 := mat.NewSymDense(dim, nil)
		p0.SetSym(0, 0, c0*c0*v)
		p0.SetSym(0, 1, c0*v)
		p0.SetSym(1, 1, v)
		init.Pf0 = p0
	}
	return init
}
