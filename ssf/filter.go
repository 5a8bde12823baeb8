package ssf

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// DefaultEpsilon is the relative tolerance below which prediction
// variances and residuals are considered zero.
const DefaultEpsilon = 1e-9

// OrdinaryFilter is the Kalman filter for models with a proper initial state.
type OrdinaryFilter struct {
	// Relative zero tolerance, DefaultEpsilon when 0
	Epsilon float64
	// Keep predicted and filtered states and covariances
	Full bool
}

// Process filters y with m. NaN values of y are missing. Models with a
// diffuse initial state are rejected, see DiffuseFilter.
func (f OrdinaryFilter) Process(m *Model, y []float64) (*FilteringResult, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if m.Initial.IsDiffuse() {
		return nil, fmt.Errorf("%w: diffuse initial state needs the diffuse filter", ErrInvalidModel)
	}
	return runFilter(m, y, f.Epsilon, f.Full)
}

// Filter runs the ordinary filter, or the diffuse filter when the initial
// state of m has a diffuse part.
func Filter(m *Model, y []float64) (*FilteringResult, error) {
	if m != nil && m.Initial.IsDiffuse() {
		return DiffuseFilter{}.Process(m, y)
	}
	return OrdinaryFilter{}.Process(m, y)
}

// filterState is the running state of one filter call.
type filterState struct {
	m  *Model
	wk *work

	a  []float64
	p  *mat.SymDense
	pi *mat.SymDense
	// number of diffuse directions not yet resolved
	rank   int
	pinorm float64

	z, mf, mi []float64
	s         *mat.Dense
	ss        *mat.SymDense
}

func newFilterState(m *Model) *filterState {
	st := &filterState{
		m:  m,
		wk: newWork(m.Dim),
		a:  m.initialMean(),
		p:  m.initialCovariance(),
		pi: m.diffuseCovariance(),
		z:  make([]float64, m.Dim),
		mf: make([]float64, m.Dim),
		mi: make([]float64, m.Dim),
	}
	if st.pi != nil {
		_, st.rank = m.Initial.Diffuse.Dims()
		st.pinorm = mat.Norm(st.pi, 2)
	}
	if q := m.Dynamics.InnovationDim(); q > 0 {
		st.s = mat.NewDense(m.Dim, q, nil)
		st.ss = mat.NewSymDense(m.Dim, nil)
	}
	return st
}

func runFilter(m *Model, y []float64, epsilon float64, full bool) (*FilteringResult, error) {
	n := len(y)
	if n == 0 {
		return nil, fmt.Errorf("%w: no data", ErrInvalidModel)
	}
	if epsilon <= 0 {
		epsilon = DefaultEpsilon
	}

	// 1. Initial state and reference scale
	st := newFilterState(m)
	res := newFilteringResult(m, y, full)
	res.Epsilon = epsilon
	res.Scale = referenceScale(st.p, st.pi, y)
	tol := epsilon * res.Scale
	if st.pi != nil {
		res.DiffuseEnd = n
	}

	// 2. Forward recursion
	for t := 0; t < n; t++ {
		if full {
			res.A.SetRow(t, st.a)
			res.P[t] = mat.NewSymDense(m.Dim, nil)
			res.P[t].CopySym(st.p)
		}
		if err := st.update(t, y[t], tol, res); err != nil {
			return nil, err
		}
		if full {
			res.Af.SetRow(t, st.a)
		}
		if t < n-1 {
			st.predict(t)
		}
	}
	return res, nil
}

// update applies the measurement of period t.
func (st *filterState) update(t int, y, tol float64, res *FilteringResult) error {
	clear(st.z)
	if math.IsNaN(y) || !st.m.Measurement.Loading(t, st.z) {
		res.Kind[t] = Missing
		return nil
	}
	h := st.m.Measurement.ErrorVariance(t)
	if !(h >= 0) {
		return fmt.Errorf("%w: period %d, measurement error variance %g", ErrInvalidModel, t, h)
	}
	v := y - floats.Dot(st.z, st.a)
	symMulVec(st.mf, st.p, st.z)
	f := floats.Dot(st.z, st.mf) + h

	if st.pi != nil {
		symMulVec(st.mi, st.pi, st.z)
		if fi := floats.Dot(st.z, st.mi); fi > tol {
			st.diffuseUpdate(t, v, f, fi, res)
			return nil
		}
	}

	if math.Abs(v) < tol {
		v = 0
	}
	if f < tol {
		if v != 0 {
			return fmt.Errorf("%w: period %d, residual %g with variance %g", ErrInconsistentObservation, t, v, f)
		}
		res.Kind[t] = Exact
		return nil
	}

	res.Kind[t] = Ordinary
	res.V[t], res.F[t], res.M[t] = v, f, cloneVec(st.mf)
	res.nobs++
	res.sumLogF += math.Log(f)
	res.sumV2F += v * v / f

	floats.AddScaled(st.a, v/f, st.mf)
	st.p.SymRankOne(st.p, -1/f, mat.NewVecDense(len(st.mf), st.mf))
	return nil
}

// predict moves the state from t to t+1.
func (st *filterState) predict(t int) {
	dyn := st.m.Dynamics
	dyn.TX(t, st.a)
	st.wk.tvt(dyn, t, st.p)
	if st.s != nil {
		st.s.Zero()
		dyn.Loading(t, st.s)
		st.ss.SymOuterK(1, st.s)
		st.p.AddSym(st.p, st.ss)
	}
	if st.pi != nil {
		st.wk.tvt(dyn, t, st.pi)
	}
}

// referenceScale is ‖P0‖_F times the standard deviation of the observed data.
// Each factor falls back to 1 when it is zero or undefined.
func referenceScale(p, pi *mat.SymDense, y []float64) float64 {
	norm := mat.Norm(p, 2)
	if pi != nil {
		norm += mat.Norm(pi, 2)
	}
	if norm == 0 || math.IsNaN(norm) {
		norm = 1
	}
	obs := make([]float64, 0, len(y))
	for _, v := range y {
		if !math.IsNaN(v) {
			obs = append(obs, v)
		}
	}
	sd := 1.0
	if len(obs) > 1 {
		if s := stat.StdDev(obs, nil); s > 0 && !math.IsNaN(s) {
			sd = s
		}
	}
	return norm * sd
}
