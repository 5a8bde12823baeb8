package multivariate

import (
	"gonum.org/v1/gonum/mat"

	"tsbench/ssf"
)

// blocks is the transition of a group. Each adjusted series owns a block
// [u_t, u_{t-1}, ..., u_{t-L+1}] of the state, L being the length of its
// temporal window (1 without temporal constraint):
//
//	u_{t+1} = ρ u_t + ε_t
type blocks struct {
	rho float64
	// offset and length per adjusted series
	off, size []int
	dim       int
}

func newBlocks(rho float64, size []int) *blocks {
	b := &blocks{rho: rho, off: make([]int, len(size)), size: size}
	for i, l := range size {
		b.off[i] = b.dim
		b.dim += l
	}
	return b
}

func (b *blocks) TX(pos int, x []float64) {
	for i, o := range b.off {
		for k := b.size[i] - 1; k > 0; k-- {
			x[o+k] = x[o+k-1]
		}
		x[o] *= b.rho
	}
}

func (b *blocks) XT(pos int, x []float64) {
	for i, o := range b.off {
		l := b.size[i]
		x0 := x[o]
		for k := 0; k < l-1; k++ {
			x[o+k] = x[o+k+1]
		}
		x[o+l-1] = 0
		x[o] += b.rho * x0
	}
}

func (b *blocks) InnovationDim() int { return len(b.off) }

func (b *blocks) Loading(pos int, s *mat.Dense) {
	for i, o := range b.off {
		s.Set(o, i, 1)
	}
}

// initial returns a diffuse u_0 per series when rho = 1, its stationary
// distribution otherwise. Lags before the first period are zero; no
// complete window reaches them.
func (b *blocks) initial() ssf.Initial {
	if b.rho == 1 {
		d := mat.NewDense(b.dim, len(b.off), nil)
		for i, o := range b.off {
			d.Set(o, i, 1)
		}
		return ssf.Initial{Diffuse: d}
	}
	p0 := mat.NewSymDense(b.dim, nil)
	v := 1 / (1 - b.rho*b.rho)
	for _, o := range b.off {
		p0.SetSym(o, o, v)
	}
	return ssf.Initial{Pf0: p0}
}

// constraints observes the state through the constraints of a group, all
// exact.
type constraints struct {
	b *blocks
	// weight per adjusted series and period
	w    [][]float64
	rows []row
}

// row is one constraint. A contemporaneous row observes Σ coef·w·u at every
// period. A temporal row observes Σ coef_l·w·u over the window ending at t,
// only where end[t] is set.
type row struct {
	terms []rowTerm
	// temporal only
	temporal bool
	slot     int
	coef     []float64
	end      []bool
}

type rowTerm struct {
	slot int
	coef float64
}

func (c *constraints) MaxObservations() int { return len(c.rows) }

func (c *constraints) Loading(pos, j int, z []float64) bool {
	r := &c.rows[j]
	if !r.temporal {
		for _, t := range r.terms {
			z[c.b.off[t.slot]] += t.coef * c.w[t.slot][pos]
		}
		return true
	}
	if !r.end[pos] {
		return false
	}
	o, w, l := c.b.off[r.slot], c.w[r.slot], len(r.coef)
	for k := 0; k < l; k++ {
		z[o+k] = r.coef[l-1-k] * w[pos-k]
	}
	return true
}

func (c *constraints) ErrorVariance(pos, j int) float64 { return 0 }

// smooth returns the smoothed corrections u, per adjusted series and
// period. data holds one column per row, NaN where unobserved.
func (c *constraints) smooth(data *mat.Dense) ([][]float64, error) {
	model, y, err := ssf.Stack(c.b.dim, c.b, c, c.b.initial(), data)
	if err != nil {
		return nil, err
	}
	states, err := ssf.FastStateSmoother{}.Process(model, y)
	if err != nil {
		return nil, err
	}
	states = ssf.Unstack(states, len(c.rows))
	n, _ := states.Dims()
	u := make([][]float64, len(c.b.off))
	for i, o := range c.b.off {
		u[i] = make([]float64, n)
		for t := 0; t < n; t++ {
			u[i][t] = states.At(t, o)
		}
	}
	return u, nil
}
