package ssf

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// ============================================================================
// HELPER FUNCTIONS
// ============================================================================

// almostEqual compares floats with tolerance
func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// localLevel is the random walk plus noise model
type localLevel struct {
	sigma float64 // std of the level innovation
}

func (m localLevel) TX(pos int, x []float64) {}
func (m localLevel) XT(pos int, x []float64) {}
func (m localLevel) InnovationDim() int      { return 1 }
func (m localLevel) Loading(pos int, s *mat.Dense) {
	s.Set(0, 0, m.sigma)
}

type levelMeasurement struct {
	h    float64 // measurement error variance
	skip int     // period without observation, -1 for none
}

func (m levelMeasurement) Loading(pos int, z []float64) bool {
	if pos == m.skip {
		return false
	}
	z[0] = 1
	return true
}

func (m levelMeasurement) ErrorVariance(pos int) float64 { return m.h }

func newLocalLevel(sigma, h float64, skip int) *Model {
	return &Model{
		Dim:         1,
		Dynamics:    localLevel{sigma: sigma},
		Measurement: levelMeasurement{h: h, skip: skip},
		Initial:     Initial{Diffuse: mat.NewDense(1, 1, []float64{1})},
	}
}

// ar1 is a stationary AR(1) observed without error
type ar1 struct{ phi float64 }

func (m ar1) TX(pos int, x []float64)       { x[0] *= m.phi }
func (m ar1) XT(pos int, x []float64)       { x[0] *= m.phi }
func (m ar1) InnovationDim() int            { return 1 }
func (m ar1) Loading(pos int, s *mat.Dense) { s.Set(0, 0, 1) }

// levelGLS solves the penalized least squares problem whose solution is the
// smoothed level: sum_k sum_t (y_kt - a_t)^2 / h_k + sum_t (a_t+1 - a_t)^2 / q
func levelGLS(t *testing.T, ys [][]float64, hs []float64, q float64) []float64 {
	n := len(ys[0])
	A := mat.NewDense(n, n, nil)
	b := mat.NewVecDense(n, nil)
	for k, y := range ys {
		for i := 0; i < n; i++ {
			if math.IsNaN(y[i]) {
				continue
			}
			A.Set(i, i, A.At(i, i)+1/hs[k])
			b.SetVec(i, b.AtVec(i)+y[i]/hs[k])
		}
	}
	for i := 0; i+1 < n; i++ {
		A.Set(i, i, A.At(i, i)+1/q)
		A.Set(i+1, i+1, A.At(i+1, i+1)+1/q)
		A.Set(i, i+1, A.At(i, i+1)-1/q)
		A.Set(i+1, i, A.At(i+1, i)-1/q)
	}
	var x mat.VecDense
	require.NoError(t, x.SolveVec(A, b))
	return x.RawVector().Data
}

var levelData = []float64{4.4, 4.0, 3.5, 4.6, 5.3, 5.1, 6.2, 5.8, 6.5, 7.1, 6.9, 7.4}

// ============================================================================
// FILTER TESTS
// ============================================================================

func TestDiffuseFilterLocalLevelFirstStep(t *testing.T) {
	m := newLocalLevel(0.5, 2, -1)
	fr, err := DiffuseFilter{Full: true}.Process(m, levelData)
	require.NoError(t, err)

	assert.Equal(t, Diffuse, fr.Kind[0])
	assert.Equal(t, 1, fr.DiffuseEnd)
	// exact initialisation: a_1 = y_0, P_1 = h + q
	assert.InDelta(t, levelData[0], fr.A.At(1, 0), 1e-12)
	assert.InDelta(t, 2.25, fr.P[1].At(0, 0), 1e-12)
	for i := 1; i < len(levelData); i++ {
		assert.Equal(t, Ordinary, fr.Kind[i], "period %d", i)
	}
	assert.Equal(t, len(levelData)-1, fr.Observations())
	assert.False(t, math.IsNaN(fr.LogLikelihood()))
}

func TestOrdinaryFilterStationaryStart(t *testing.T) {
	phi := 0.6
	v := 1 / (1 - phi*phi)
	m := &Model{
		Dim:         1,
		Dynamics:    ar1{phi: phi},
		Measurement: levelMeasurement{skip: -1},
		Initial:     Initial{Pf0: mat.NewSymDense(1, []float64{v})},
	}
	y := []float64{1, 0.2, -0.5, 0.7}
	fr, err := OrdinaryFilter{Full: true}.Process(m, y)
	require.NoError(t, err)

	assert.InDelta(t, v, fr.F[0], 1e-12)
	// exact observations: the next prediction is phi*y with unit variance
	for i := 1; i < len(y); i++ {
		assert.InDelta(t, phi*y[i-1], fr.A.At(i, 0), 1e-12)
		assert.InDelta(t, 1, fr.F[i], 1e-12)
	}
}

func TestFilterDispatch(t *testing.T) {
	m := newLocalLevel(1, 1, -1)
	_, err := OrdinaryFilter{}.Process(m, levelData)
	assert.True(t, errors.Is(err, ErrInvalidModel))

	fr, err := Filter(m, levelData)
	require.NoError(t, err)
	assert.Equal(t, 1, fr.DiffuseEnd)
}

func TestMissingPassThrough(t *testing.T) {
	y := append([]float64(nil), levelData...)
	y[5] = math.NaN()

	withNaN, err := DiffuseFilter{Full: true}.Process(newLocalLevel(0.7, 1.5, -1), y)
	require.NoError(t, err)
	absent, err := DiffuseFilter{Full: true}.Process(newLocalLevel(0.7, 1.5, 5), levelData)
	require.NoError(t, err)

	assert.Equal(t, Missing, withNaN.Kind[5])
	assert.Equal(t, Missing, absent.Kind[5])
	for i := range y {
		assert.Equal(t, withNaN.A.At(i, 0), absent.A.At(i, 0), "period %d", i)
		assert.Equal(t, withNaN.P[i].At(0, 0), absent.P[i].At(0, 0), "period %d", i)
	}
	// the state still moves: the variance grows over the gap
	assert.Greater(t, withNaN.P[6].At(0, 0), withNaN.P[5].At(0, 0))
}

func TestInconsistentExactObservation(t *testing.T) {
	m := newLocalLevel(0, 0, -1)
	_, err := Filter(m, []float64{1, 2})
	assert.True(t, errors.Is(err, ErrInconsistentObservation))

	fr, err := Filter(m, []float64{1, 1, 1})
	require.NoError(t, err)
	assert.Equal(t, Diffuse, fr.Kind[0])
	assert.Equal(t, Exact, fr.Kind[1])
	assert.Equal(t, Exact, fr.Kind[2])
}

func TestInvalidErrorVariance(t *testing.T) {
	_, err := Filter(newLocalLevel(1, -1, -1), levelData)
	assert.True(t, errors.Is(err, ErrInvalidModel))

	_, err = Filter(newLocalLevel(1, math.NaN(), 3), levelData)
	assert.True(t, errors.Is(err, ErrInvalidModel))

	// a NaN variance of one stacked reading is not turned into an exact one
	n := len(levelData)
	data := mat.NewDense(n, 2, nil)
	for i, v := range levelData {
		data.Set(i, 0, v)
		data.Set(i, 1, v+0.1)
	}
	m, y, err := Stack(1, localLevel{sigma: 1}, twoReadings{h: [2]float64{1, math.NaN()}},
		Initial{Diffuse: mat.NewDense(1, 1, []float64{1})}, data)
	require.NoError(t, err)
	_, err = FastStateSmoother{}.Process(m, y)
	assert.True(t, errors.Is(err, ErrInvalidModel))
}

func TestExactFirstInterpolates(t *testing.T) {
	phi := 0.5
	m := &Model{
		Dim:         1,
		Dynamics:    ar1{phi: phi},
		Measurement: ExactFirst{},
		Initial:     Initial{Pf0: mat.NewSymDense(1, []float64{1 / (1 - phi*phi)})},
	}
	y := []float64{1.0, math.NaN(), 2.0, 0.5}
	states, err := FastStateSmoother{}.Process(m, y)
	require.NoError(t, err)

	// observed periods are reproduced; the gap is the AR(1) bridge
	// phi (y0 + y2) / (1 + phi^2)
	assert.InDelta(t, 1.0, states.At(0, 0), 1e-12)
	assert.InDelta(t, 2.0, states.At(2, 0), 1e-12)
	assert.InDelta(t, 0.5, states.At(3, 0), 1e-12)
	assert.InDelta(t, phi*(1.0+2.0)/(1+phi*phi), states.At(1, 0), 1e-12)
}

func TestInvalidModel(t *testing.T) {
	m := newLocalLevel(1, 1, -1)
	m.Initial.A0 = []float64{1, 2}
	_, err := Filter(m, levelData)
	assert.True(t, errors.Is(err, ErrInvalidModel))

	_, err = Filter(newLocalLevel(1, 1, -1), nil)
	assert.True(t, errors.Is(err, ErrInvalidModel))
}

// ============================================================================
// SMOOTHER TESTS
// ============================================================================

func TestFastStateSmootherMatchesGLS(t *testing.T) {
	q, h := 0.8, 1.7
	y := append([]float64(nil), levelData...)
	y[3] = math.NaN()
	m := newLocalLevel(math.Sqrt(q), h, -1)

	states, err := FastStateSmoother{}.Process(m, y)
	require.NoError(t, err)
	expected := levelGLS(t, [][]float64{y}, []float64{h}, q)
	for i := range y {
		assert.InDelta(t, expected[i], states.At(i, 0), 1e-9, "period %d", i)
	}
}

func TestDisturbanceSmootherInnovations(t *testing.T) {
	q, h := 0.8, 1.7
	m := newLocalLevel(math.Sqrt(q), h, -1)
	fr, err := Filter(m, levelData)
	require.NoError(t, err)
	sr, err := DisturbanceSmoother{ComputeVariances: true}.Smooth(fr)
	require.NoError(t, err)

	expected := levelGLS(t, [][]float64{levelData}, []float64{h}, q)
	n := len(levelData)
	for i := 0; i < n-1; i++ {
		// smoothed level increment = sigma * smoothed innovation
		assert.InDelta(t, expected[i+1]-expected[i], math.Sqrt(q)*sr.Innovation(i)[0], 1e-9, "period %d", i)
		v := sr.UVar[i].At(0, 0)
		assert.True(t, v > 0 && v <= 1, "period %d variance %g", i, v)
	}
	for i := 0; i < n; i++ {
		assert.InDelta(t, levelData[i]-expected[i], sr.E[i], 1e-9, "period %d", i)
		assert.True(t, sr.EVar[i] > 0 && sr.EVar[i] <= h, "period %d", i)
	}
}

func TestSmoothRangeResume(t *testing.T) {
	m := newLocalLevel(0.9, 1.1, -1)
	fr, err := Filter(m, levelData)
	require.NoError(t, err)
	s := DisturbanceSmoother{ComputeVariances: true}
	full, err := s.Smooth(fr)
	require.NoError(t, err)

	n, k := len(levelData), 5
	tail, err := s.SmoothRange(fr, k, n, nil)
	require.NoError(t, err)
	head, err := s.SmoothRange(fr, 0, k, tail.Cumulant)
	require.NoError(t, err)

	for i := 0; i < n; i++ {
		part := head
		if i >= k {
			part = tail
		}
		assert.InDelta(t, full.Innovation(i)[0], part.Innovation(i)[0], 1e-12, "period %d", i)
		assert.InDelta(t, full.E[i], part.E[i-part.Start], 1e-12, "period %d", i)
		assert.InDelta(t, full.UVar[i].At(0, 0), part.UVar[i-part.Start].At(0, 0), 1e-12, "period %d", i)
	}
	assert.InDeltaSlice(t, full.Cumulant.R0, head.Cumulant.R0, 1e-12)

	_, err = s.SmoothRange(fr, 0, 4, tail.Cumulant)
	assert.True(t, errors.Is(err, ErrInvalidModel))
}

func TestRescaleVariances(t *testing.T) {
	m := newLocalLevel(0.9, 1.1, -1)
	fr, err := Filter(m, levelData)
	require.NoError(t, err)
	plain, err := DisturbanceSmoother{ComputeVariances: true}.Smooth(fr)
	require.NoError(t, err)
	scaled, err := DisturbanceSmoother{ComputeVariances: true, RescaleVariances: true}.Smooth(fr)
	require.NoError(t, err)

	s2 := fr.Sigma2()
	require.Greater(t, s2, 0.0)
	for i := 0; i < len(levelData)-1; i++ {
		assert.True(t, almostEqual(s2*plain.UVar[i].At(0, 0), scaled.UVar[i].At(0, 0), 1e-12))
		assert.True(t, almostEqual(s2*plain.EVar[i], scaled.EVar[i], 1e-12))
	}
}

// ============================================================================
// STACKING TESTS
// ============================================================================

// twoReadings observes the level twice per period, the second reading is
// missing every third period
type twoReadings struct{ h [2]float64 }

func (m twoReadings) MaxObservations() int { return 2 }

func (m twoReadings) Loading(pos, j int, z []float64) bool {
	if j == 1 && pos%3 == 2 {
		return false
	}
	z[0] = 1
	return true
}

func (m twoReadings) ErrorVariance(pos, j int) float64 { return m.h[j] }

func TestStackMatchesGLS(t *testing.T) {
	q := 0.5
	meas := twoReadings{h: [2]float64{1.2, 0.4}}
	n := len(levelData)
	second := make([]float64, n)
	data := mat.NewDense(n, 2, nil)
	for i, v := range levelData {
		second[i] = v + 0.3*math.Sin(float64(i))
		if i%3 == 2 {
			second[i] = math.NaN()
		}
		data.Set(i, 0, v)
		data.Set(i, 1, second[i])
	}

	m, y, err := Stack(1, localLevel{sigma: math.Sqrt(q)}, meas,
		Initial{Diffuse: mat.NewDense(1, 1, []float64{1})}, data)
	require.NoError(t, err)
	require.Len(t, y, 2*n)

	states, err := FastStateSmoother{}.Process(m, y)
	require.NoError(t, err)
	per := Unstack(states, 2)
	expected := levelGLS(t, [][]float64{levelData, second}, meas.h[:], q)
	for i := 0; i < n; i++ {
		assert.InDelta(t, expected[i], per.At(i, 0), 1e-9, "period %d", i)
	}
}

func TestFirstSmoothedStateNeedsStart(t *testing.T) {
	m := newLocalLevel(1, 1, -1)
	_, err := FirstSmoothedState(m, &Cumulant{Pos: 3})
	assert.True(t, errors.Is(err, ErrInvalidModel))
}
