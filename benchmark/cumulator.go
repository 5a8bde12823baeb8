package benchmark

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"tsbench/ssf"
)

// cumulator is the state-space form of x_t = base_t + w_t u_t, where the
// correction follows u_t = Σ φ_k u_{t-k} + ε_t and is observed only through
// the aggregate of each complete window.
//
// State: [c_t, u_t, u_{t-1}, ..., u_{t-d+1}] where c_t accumulates
// coef·w·u since the start of the current window.
type cumulator struct {
	phi []float64
	// aggregation coefficient times weight, per period
	mw []float64
	// period starts a window
	reset []bool
}

func newCumulator(pb *problem, w, phi []float64) *cumulator {
	n := pb.n()
	c := &cumulator{
		phi:   phi,
		mw:    make([]float64, n),
		reset: make([]bool, n),
	}
	for t := 0; t < n; t++ {
		pos := pb.phase(t)
		c.mw[t] = pb.coef[pos] * w[t]
		c.reset[t] = pos == 0
	}
	return c
}

func (c *cumulator) dim() int { return len(c.phi) + 1 }

func (c *cumulator) keep(next int) float64 {
	if c.reset[next] {
		return 0
	}
	return 1
}

func (c *cumulator) TX(pos int, x []float64) {
	d := len(c.phi)
	nu := 0.0
	for k, f := range c.phi {
		nu += f * x[k+1]
	}
	x[0] = c.keep(pos+1)*x[0] + c.mw[pos+1]*nu
	for k := d; k > 1; k-- {
		x[k] = x[k-1]
	}
	x[1] = nu
}

func (c *cumulator) XT(pos int, x []float64) {
	d := len(c.phi)
	y0, y1 := x[0], x[1]
	mw := c.mw[pos+1]
	x[0] = c.keep(pos+1) * y0
	for j := 1; j <= d; j++ {
		v := c.phi[j-1] * (mw*y0 + y1)
		if j < d {
			v += x[j+1]
		}
		x[j] = v
	}
}

func (c *cumulator) InnovationDim() int { return 1 }

func (c *cumulator) Loading(pos int, s *mat.Dense) {
	s.Set(0, 0, c.mw[pos+1])
	s.Set(1, 0, 1)
}

// initial returns the distribution of the first state. With diffuse, the
// correction and its d-1 lags are diffuse. Otherwise u_0 has the given mean
// and variance and the lags are fixed to the mean.
func (c *cumulator) initial(diffuse bool, mean, variance float64) ssf.Initial {
	dim, d := c.dim(), len(c.phi)
	if diffuse {
		b := mat.NewDense(dim, d, nil)
		for j := 0; j < d; j++ {
			b.Set(j+1, j, 1)
		}
		b.Set(0, 0, c.mw[0])
		return ssf.Initial{Diffuse: b}
	}
	a0 := make([]float64, dim)
	a0[0] = c.mw[0] * mean
	for j := 1; j < dim; j++ {
		a0[j] = mean
	}
	p0 := mat.NewSymDense(dim, nil)
	p0.SetSym(0, 0, c.mw[0]*c.mw[0]*variance)
	p0.SetSym(0, 1, c.mw[0]*variance)
	p0.SetSym(1, 1, variance)
	return ssf.Initial{A0: a0, Pf0: p0}
}

// observations returns, per period, the benchmark minus the aggregate of
// base at window ends, NaN elsewhere.
func (pb *problem) observations(base []float64) []float64 {
	y := make([]float64, pb.n())
	for i := range y {
		y[i] = math.NaN()
	}
	for j, sp := range pb.spans {
		y[sp.End-1] = pb.values[j] - pb.aggregate(base, sp)
	}
	return y
}

// smoothCorrection runs the fast state smoother on the cumulator model and
// returns the smoothed correction u_t.
func smoothCorrection(c *cumulator, init ssf.Initial, y []float64) ([]float64, error) {
	m := &ssf.Model{
		Dim:         c.dim(),
		Dynamics:    c,
		Measurement: ssf.ExactFirst{},
		Initial:     init,
	}
	states, err := ssf.FastStateSmoother{}.Process(m, y)
	if err != nil {
		return nil, err
	}
	u := make([]float64, len(y))
	for t := range u {
		u[t] = states.At(t, 1)
	}
	return u, nil
}

// differences returns the coefficients of (1-L)^d: δ_0 = 1, δ_k = (-1)^k C(d,k).
func differences(d int) []float64 {
	delta := make([]float64, d+1)
	delta[0] = 1
	for k := 1; k <= d; k++ {
		delta[k] = -delta[k-1] * float64(d-k+1) / float64(k)
	}
	return delta
}

// arDifferences returns the AR coefficients φ of (1-L)^d u_t = ε_t.
func arDifferences(d int) []float64 {
	delta := differences(d)
	phi := make([]float64, d)
	for k := 1; k <= d; k++ {
		phi[k-1] = -delta[k]
	}
	return phi
}
