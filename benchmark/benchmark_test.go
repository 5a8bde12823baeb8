package benchmark

import (
	"bytes"
	"errors"
	"log/slog"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tsbench/tsdata"
)

// ============================================================================
// HELPER FUNCTIONS
// ============================================================================

// almostEqual compares floats with tolerance
func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// relTol scales tol by the magnitude of v
func relTol(v, tol float64) float64 {
	return tol * math.Max(1, math.Abs(v))
}

// requireReaggregates checks every available benchmark against the
// aggregation of out
func requireReaggregates(t *testing.T, out, target *tsdata.Series, agg tsdata.Aggregation, tol float64) {
	t.Helper()
	a, err := tsdata.Aggregate(out, target.Unit(), agg)
	require.NoError(t, err)
	checked := 0
	for i, v := range a.Values {
		y := target.Get(a.Start.Plus(i))
		if math.IsNaN(y) || math.IsNaN(v) {
			continue
		}
		checked++
		require.True(t, almostEqual(y, v, relTol(y, tol)),
			"period %s: benchmark %.12g, aggregate %.12g", a.Start.Plus(i), y, v)
	}
	require.Greater(t, checked, 0)
}

// noisySeries returns a positive trending series with some noise
func noisySeries(n int, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	v := make([]float64, n)
	for i := range v {
		v[i] = 100 + 2*float64(i) + 10*math.Sin(float64(i)/2) + 5*rng.Float64()
	}
	return v
}

// perturbedTarget aggregates s and applies a random relative change per
// low-frequency period
func perturbedTarget(t *testing.T, s *tsdata.Series, unit tsdata.Unit, agg tsdata.Aggregation, seed int64) *tsdata.Series {
	a, err := tsdata.Aggregate(s, unit, agg)
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(seed))
	for i := range a.Values {
		a.Values[i] *= 1 + 0.1*(rng.Float64()-0.5)
	}
	return a
}

// ============================================================================
// SCENARIO A
// ============================================================================

func scenarioA() (*tsdata.Series, *tsdata.Series) {
	m := make([]float64, 230)
	for i := range m {
		m[i] = float64((i + 1) * (i + 1))
	}
	y := make([]float64, 20)
	for i := range y {
		y[i] = float64(i + 1)
	}
	return tsdata.NewSeries(tsdata.NewPeriod(tsdata.Monthly, 1980, 0), m),
		tsdata.NewSeries(tsdata.NewPeriod(tsdata.Yearly, 1980, 0), y)
}

func TestScenarioA(t *testing.T) {
	s, target := scenarioA()
	spec := DefaultDentonSpec()
	require.Equal(t, Multiplicative, spec.Movement)
	require.True(t, spec.Modified)
	require.Equal(t, 1, spec.Differencing)

	out, err := spec.Benchmark(s, target)
	require.NoError(t, err)
	require.Equal(t, 230, out.Len())

	a, err := tsdata.Aggregate(out, tsdata.Yearly, spec.Aggregation)
	require.NoError(t, err)
	require.Equal(t, 19, a.Len())
	for i, v := range a.Values {
		assert.InDelta(t, target.Values[i], v, 1e-9, "year %d", i)
	}
}

func TestInjectedLogger(t *testing.T) {
	s, target := scenarioA()
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	denton := DefaultDentonSpec()
	denton.Logger = log
	_, err := denton.Benchmark(s, target)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "msg=denton")

	buf.Reset()
	cholette := DefaultCholetteSpec()
	cholette.Logger = log
	_, err = cholette.Benchmark(s, target)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "msg=cholette")
}

func TestScenarioAStateSpaceAgrees(t *testing.T) {
	s, target := scenarioA()
	direct := DefaultDentonSpec()
	direct.Solver = Direct
	ssf := DefaultDentonSpec()
	ssf.Solver = StateSpace

	x1, err := direct.Benchmark(s, target)
	require.NoError(t, err)
	x2, err := ssf.Benchmark(s, target)
	require.NoError(t, err)

	requireReaggregates(t, x2, target, ssf.Aggregation, 1e-6)
	for i := range x1.Values {
		assert.True(t, almostEqual(x1.Values[i], x2.Values[i], 1e-6*math.Abs(x1.Values[i])+1e-9),
			"period %d: %g vs %g", i, x1.Values[i], x2.Values[i])
	}
}

// ============================================================================
// DENTON TESTS
// ============================================================================

func TestDentonDirectAndStateSpace(t *testing.T) {
	tests := []struct {
		movement Movement
		modified bool
		d        int
	}{
		{Additive, true, 1},
		{Additive, false, 1},
		{Additive, true, 2},
		{Additive, false, 2},
		{Multiplicative, true, 1},
		{Multiplicative, false, 1},
		{Multiplicative, false, 2},
	}
	// the series starts in Q3: the first half year is outside any window
	s := tsdata.NewSeries(tsdata.NewPeriod(tsdata.Quarterly, 2001, 2), noisySeries(42, 1))
	agg := tsdata.Aggregation{Type: tsdata.Sum}
	target := perturbedTarget(t, s, tsdata.Yearly, agg, 2)

	for i, test := range tests {
		spec := DentonSpec{Movement: test.movement, Modified: test.modified, Differencing: test.d, Aggregation: agg}
		spec.Solver = Direct
		x1, err := spec.Benchmark(s, target)
		require.NoError(t, err, "Test %d", i)
		spec.Solver = StateSpace
		x2, err := spec.Benchmark(s, target)
		require.NoError(t, err, "Test %d", i)

		requireReaggregates(t, x1, target, agg, 1e-9)
		requireReaggregates(t, x2, target, agg, 1e-6)
		assert.InDeltaSlice(t, x1.Values, x2.Values, 1e-6, "Test %d", i)
	}
}

func TestDentonAggregationTypes(t *testing.T) {
	s := tsdata.NewSeries(tsdata.NewPeriod(tsdata.Monthly, 2010, 0), noisySeries(60, 3))
	aggs := []tsdata.Aggregation{
		{Type: tsdata.Sum},
		{Type: tsdata.Average},
		{Type: tsdata.First},
		{Type: tsdata.Last},
		{Type: tsdata.UserDefined, Position: 1},
	}
	for i, agg := range aggs {
		target := perturbedTarget(t, s, tsdata.Quarterly, agg, int64(10+i))
		for _, solver := range []Solver{Direct, StateSpace} {
			spec := DentonSpec{Movement: Additive, Modified: true, Differencing: 1, Aggregation: agg, Solver: solver}
			out, err := spec.Benchmark(s, target)
			require.NoError(t, err, "Test %d %s", i, solver)
			requireReaggregates(t, out, target, agg, 1e-6)
		}
	}
}

func TestDentonAdditivePreservesConstantShift(t *testing.T) {
	// with a constant discrepancy the additive modified Denton shifts the
	// whole series
	p := noisySeries(24, 4)
	s := tsdata.NewSeries(tsdata.NewPeriod(tsdata.Quarterly, 2000, 0), p)
	agg := tsdata.Aggregation{Type: tsdata.Sum}
	a, err := tsdata.Aggregate(s, tsdata.Yearly, agg)
	require.NoError(t, err)
	for i := range a.Values {
		a.Values[i] += 8
	}
	spec := DentonSpec{Movement: Additive, Modified: true, Differencing: 1, Aggregation: agg}
	out, err := spec.Benchmark(s, a)
	require.NoError(t, err)
	for i := range p {
		assert.InDelta(t, p[i]+2, out.Values[i], 1e-9, "period %d", i)
	}
}

func TestDentonKeepsMissingEnds(t *testing.T) {
	p := noisySeries(14, 5)
	p[0], p[13] = math.NaN(), math.NaN()
	s := tsdata.NewSeries(tsdata.NewPeriod(tsdata.Quarterly, 2000, 3), p)
	target := tsdata.NewSeries(tsdata.NewPeriod(tsdata.Yearly, 2000, 0), []float64{0, 450, 500, 520, 600})

	out, err := DefaultDentonSpec().Benchmark(s, target)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(out.Values[0]))
	assert.True(t, math.IsNaN(out.Values[13]))
	requireReaggregates(t, out, target, tsdata.Aggregation{Type: tsdata.Sum}, 1e-9)
}

func TestDentonErrors(t *testing.T) {
	s := tsdata.NewSeries(tsdata.NewPeriod(tsdata.Quarterly, 2000, 0), noisySeries(12, 6))
	target := tsdata.NewSeries(tsdata.NewPeriod(tsdata.Yearly, 2000, 0), []float64{400, 420, 440})

	bad := DefaultDentonSpec()
	bad.Differencing = 0
	_, err := bad.Benchmark(s, target)
	assert.True(t, errors.Is(err, ErrInvalidSpec))

	monthly := tsdata.NewSeries(tsdata.NewPeriod(tsdata.Monthly, 2000, 0), []float64{1, 2, 3})
	_, err = DefaultDentonSpec().Benchmark(s, monthly)
	assert.True(t, errors.Is(err, tsdata.ErrInvalidRatio))

	holes := s.Clone()
	holes.Values[5] = math.NaN()
	_, err = DefaultDentonSpec().Benchmark(holes, target)
	assert.True(t, errors.Is(err, tsdata.ErrMissingData))

	zeros := s.Clone()
	zeros.Values[2] = 0
	_, err = DefaultDentonSpec().Benchmark(zeros, target)
	assert.True(t, errors.Is(err, ErrZeroValue))

	user := DefaultDentonSpec()
	user.Aggregation = tsdata.Aggregation{Type: tsdata.UserDefined, Position: 4}
	_, err = user.Benchmark(s, target)
	assert.True(t, errors.Is(err, tsdata.ErrInvalidAggregation))
}

// ============================================================================
// CHOLETTE TESTS
// ============================================================================

func TestCholetteRhoOneMatchesModifiedDenton(t *testing.T) {
	s := tsdata.NewSeries(tsdata.NewPeriod(tsdata.Monthly, 2005, 0), noisySeries(48, 7))
	agg := tsdata.Aggregation{Type: tsdata.Sum}
	target := perturbedTarget(t, s, tsdata.Quarterly, agg, 8)

	tests := []struct {
		lambda   float64
		movement Movement
	}{
		{0, Additive},
		{1, Multiplicative},
	}
	for i, test := range tests {
		c, err := CholetteSpec{Rho: 1, Lambda: test.lambda, Aggregation: agg}.Benchmark(s, target)
		require.NoError(t, err, "Test %d", i)
		d, err := DentonSpec{Movement: test.movement, Modified: true, Differencing: 1, Aggregation: agg}.Benchmark(s, target)
		require.NoError(t, err, "Test %d", i)
		for k := range c.Values {
			assert.True(t, almostEqual(d.Values[k], c.Values[k], relTol(d.Values[k], 1e-6)),
				"Test %d period %d: %g vs %g", i, k, d.Values[k], c.Values[k])
		}
	}
}

func TestCholetteRhoZeroClosedForm(t *testing.T) {
	// independent corrections: x = p + w² disc / Σ w² inside each window
	p := noisySeries(20, 9)
	s := tsdata.NewSeries(tsdata.NewPeriod(tsdata.Quarterly, 2000, 1), p)
	agg := tsdata.Aggregation{Type: tsdata.Sum}
	target := tsdata.NewSeries(tsdata.NewPeriod(tsdata.Yearly, 2001, 0), []float64{500, 540, 560, 610})
	lambda := 0.5

	out, err := CholetteSpec{Rho: 0, Lambda: lambda, Aggregation: agg}.Benchmark(s, target)
	require.NoError(t, err)

	w := Weights(p, lambda)
	expected := append([]float64(nil), p...)
	spans, values, err := tsdata.Benchmarks(s.Domain(), target)
	require.NoError(t, err)
	require.Len(t, spans, 4)
	for j, sp := range spans {
		disc, sw := values[j], 0.0
		for k := sp.Begin; k < sp.End; k++ {
			disc -= p[k]
			sw += w[k] * w[k]
		}
		for k := sp.Begin; k < sp.End; k++ {
			expected[k] += w[k] * w[k] * disc / sw
		}
	}
	assert.InDeltaSlice(t, expected, out.Values, 1e-8)
}

func TestCholetteReconciles(t *testing.T) {
	s := tsdata.NewSeries(tsdata.NewPeriod(tsdata.Monthly, 2000, 4), noisySeries(70, 11))
	agg := tsdata.Aggregation{Type: tsdata.Sum}
	target := perturbedTarget(t, s, tsdata.Quarterly, agg, 12)
	for i, bias := range []BiasCorrection{BiasNone, BiasAdditive, BiasMultiplicative} {
		for _, rho := range []float64{-0.5, 0.3, 0.9, 1} {
			out, err := CholetteSpec{Rho: rho, Lambda: 0.8, Bias: bias, Aggregation: agg}.Benchmark(s, target)
			require.NoError(t, err, "Test %d rho %g", i, rho)
			requireReaggregates(t, out, target, agg, 1e-6)
		}
	}
}

func TestCholetteBiasExtrapolation(t *testing.T) {
	// periods after the last benchmark keep the bias correction
	p := noisySeries(14, 13)
	s := tsdata.NewSeries(tsdata.NewPeriod(tsdata.Quarterly, 2000, 0), p)
	agg := tsdata.Aggregation{Type: tsdata.Sum}
	a, err := tsdata.Aggregate(s, tsdata.Yearly, agg)
	require.NoError(t, err)
	for i := range a.Values {
		a.Values[i] *= 1.1
	}
	out, err := CholetteSpec{Rho: 0, Lambda: 1, Bias: BiasMultiplicative, Aggregation: agg}.Benchmark(s, a)
	require.NoError(t, err)
	// the multiplicative bias explains everything, no further correction
	for i := range p {
		assert.InDelta(t, 1.1*p[i], out.Values[i], 1e-8, "period %d", i)
	}
}

func TestCholetteValidate(t *testing.T) {
	tests := []CholetteSpec{
		{Rho: 1.2, Lambda: 1},
		{Rho: -1, Lambda: 1},
		{Rho: 0.5, Lambda: -1},
		{Rho: math.NaN(), Lambda: 1},
		{Rho: 0.5, Lambda: 1, Bias: BiasCorrection(7)},
	}
	for i, spec := range tests {
		assert.True(t, errors.Is(spec.Validate(), ErrInvalidSpec), "Test %d", i)
	}
	assert.NoError(t, DefaultCholetteSpec().Validate())
}

// ============================================================================
// WEIGHTS
// ============================================================================

func TestWeights(t *testing.T) {
	v := []float64{-4, 0, 9}
	assert.Equal(t, []float64{1, 1, 1}, Weights(v, 0))
	assert.Equal(t, []float64{4, 0, 9}, Weights(v, 1))
	assert.InDeltaSlice(t, []float64{2, 0, 3}, Weights(v, 0.5), 1e-12)
}

func TestDifferences(t *testing.T) {
	assert.Equal(t, []float64{1, -1}, differences(1))
	assert.Equal(t, []float64{1, -2, 1}, differences(2))
	assert.Equal(t, []float64{1, -3, 3, -1}, differences(3))
	assert.Equal(t, []float64{3, -3, 1}, arDifferences(3))
}
