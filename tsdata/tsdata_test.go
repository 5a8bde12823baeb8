package tsdata

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// PERIOD TESTS
// ============================================================================

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		unit  Unit
		label string
		year  int
		pos   int
	}{
		{Monthly, "2020-03", 2020, 2},
		{Monthly, "1999M12", 1999, 11},
		{Quarterly, "2020-Q1", 2020, 0},
		{Quarterly, "2021Q4", 2021, 3},
		{Yearly, "1980", 1980, 0},
		{HalfYearly, "2001-H2", 2001, 1},
	}
	for i, test := range tests {
		p, err := ParsePeriod(test.unit, test.label)
		require.NoError(t, err, "Test %d", i)
		assert.Equal(t, test.year, p.Year(), "Test %d", i)
		assert.Equal(t, test.pos, p.Position(), "Test %d", i)
	}

	_, err := ParsePeriod(Quarterly, "2020-Q5")
	assert.True(t, errors.Is(err, ErrInvalidPeriod))
	_, err = ParsePeriod(Monthly, "abc")
	assert.True(t, errors.Is(err, ErrInvalidPeriod))
}

func TestPeriodStringRoundTrip(t *testing.T) {
	for _, u := range []Unit{Yearly, HalfYearly, QuadriMonthly, Quarterly, Bimonthly, Monthly} {
		p := NewPeriod(u, 2010, int(u)-1)
		q, err := ParsePeriod(u, p.String())
		require.NoError(t, err, u.String())
		assert.Equal(t, p, q, u.String())
	}
}

func TestPeriodConvert(t *testing.T) {
	p := NewPeriod(Monthly, 2020, 7) // August
	assert.Equal(t, NewPeriod(Quarterly, 2020, 2), p.Convert(Quarterly))
	assert.Equal(t, NewPeriod(Yearly, 2020, 0), p.Convert(Yearly))
}

func TestRatio(t *testing.T) {
	c, err := Ratio(Monthly, Quarterly)
	require.NoError(t, err)
	assert.Equal(t, 3, c)

	_, err = Ratio(Quarterly, Monthly)
	assert.True(t, errors.Is(err, ErrInvalidRatio))
	_, err = Ratio(Bimonthly, Quarterly)
	assert.True(t, errors.Is(err, ErrInvalidRatio))
	_, err = Ratio(Unit(5), Yearly)
	assert.True(t, errors.Is(err, ErrInvalidUnit))
}

func TestDomainIntersect(t *testing.T) {
	a := Domain{Start: NewPeriod(Quarterly, 2000, 0), Length: 12}
	b := Domain{Start: NewPeriod(Quarterly, 2001, 2), Length: 20}
	d, err := a.Intersect(b)
	require.NoError(t, err)
	assert.Equal(t, NewPeriod(Quarterly, 2001, 2), d.Start)
	assert.Equal(t, 6, d.Length)

	far := Domain{Start: NewPeriod(Quarterly, 2010, 0), Length: 4}
	d, err = a.Intersect(far)
	require.NoError(t, err)
	assert.True(t, d.IsEmpty())

	_, err = a.Intersect(Domain{Start: NewPeriod(Monthly, 2000, 0), Length: 4})
	assert.True(t, errors.Is(err, ErrIncompatibleUnit))
}

// ============================================================================
// SERIES AND AGGREGATION TESTS
// ============================================================================

func TestNewSeriesCopies(t *testing.T) {
	v := []float64{1, 2, 3}
	s := NewSeries(NewPeriod(Yearly, 2000, 0), v)
	v[0] = 100
	assert.Equal(t, 1.0, s.At(0))
}

func TestClean(t *testing.T) {
	nan := math.NaN()
	s := NewSeries(NewPeriod(Monthly, 2000, 0), []float64{nan, nan, 1, nan, 2, nan})
	d := s.Clean()
	assert.Equal(t, NewPeriod(Monthly, 2000, 2), d.Start)
	assert.Equal(t, 3, d.Length)

	all := NewSeries(NewPeriod(Monthly, 2000, 0), []float64{nan, nan})
	assert.True(t, all.Clean().IsEmpty())
}

func TestSpansWithOffset(t *testing.T) {
	// starts in May, so the first complete quarter is Q3
	d := Domain{Start: NewPeriod(Monthly, 2000, 4), Length: 12}
	spans, err := Spans(d, Quarterly)
	require.NoError(t, err)
	require.Len(t, spans, 3)
	assert.Equal(t, 2, spans[0].Begin)
	assert.Equal(t, 5, spans[0].End)
	assert.Equal(t, NewPeriod(Quarterly, 2000, 2), spans[0].Target)
	assert.Equal(t, 8, spans[2].Begin)
}

func TestAggregate(t *testing.T) {
	s := NewSeries(NewPeriod(Quarterly, 2000, 0), []float64{1, 2, 3, 4, 5, 6, 7, 8, 9})
	tests := []struct {
		agg    Aggregation
		expect []float64
	}{
		{Aggregation{Type: Sum}, []float64{10, 26}},
		{Aggregation{Type: Average}, []float64{2.5, 6.5}},
		{Aggregation{Type: First}, []float64{1, 5}},
		{Aggregation{Type: Last}, []float64{4, 8}},
		{Aggregation{Type: UserDefined, Position: 1}, []float64{2, 6}},
	}
	for i, test := range tests {
		a, err := Aggregate(s, Yearly, test.agg)
		require.NoError(t, err, "Test %d", i)
		assert.Equal(t, NewPeriod(Yearly, 2000, 0), a.Start)
		assert.InDeltaSlice(t, test.expect, a.Values, 1e-12, "Test %d", i)
	}

	_, err := Aggregate(s, Yearly, Aggregation{Type: UserDefined, Position: 4})
	assert.True(t, errors.Is(err, ErrInvalidAggregation))
}

func TestBenchmarksDropsMissing(t *testing.T) {
	d := Domain{Start: NewPeriod(Quarterly, 2000, 0), Length: 12}
	target := NewSeries(NewPeriod(Yearly, 2000, 0), []float64{10, math.NaN(), 30, 40})
	spans, values, err := Benchmarks(d, target)
	require.NoError(t, err)
	require.Len(t, spans, 2)
	assert.Equal(t, []float64{10, 30}, values)
	assert.Equal(t, 8, spans[1].Begin)
}
