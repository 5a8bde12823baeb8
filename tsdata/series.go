package tsdata

import (
	"fmt"
	"math"
)

// Series is a regular time series. A NaN value marks a missing observation.
type Series struct {
	// First period of the series
	Start Period
	// One value per period, starting at Start
	Values []float64
}

// NewSeries copies values into a new series starting at start.
func NewSeries(start Period, values []float64) *Series {
	v := make([]float64, len(values))
	copy(v, values)
	return &Series{Start: start, Values: v}
}

// Unit of the series.
func (s *Series) Unit() Unit { return s.Start.Unit }

// Len returns the number of periods.
func (s *Series) Len() int { return len(s.Values) }

// Domain returns the periods covered by the series.
func (s *Series) Domain() Domain {
	return Domain{Start: s.Start, Length: len(s.Values)}
}

// At returns the value at offset i.
func (s *Series) At(i int) float64 { return s.Values[i] }

// Get returns the value at period p, NaN when p is outside the series.
func (s *Series) Get(p Period) float64 {
	i := s.Domain().IndexOf(p)
	if i < 0 {
		return math.NaN()
	}
	return s.Values[i]
}

// Clone returns a deep copy.
func (s *Series) Clone() *Series {
	return NewSeries(s.Start, s.Values)
}

// HasMissing reports whether any value is NaN.
func (s *Series) HasMissing() bool {
	for _, v := range s.Values {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

// Window returns a new series over d. Periods of d outside s are missing.
func (s *Series) Window(d Domain) (*Series, error) {
	if d.Start.Unit != s.Unit() {
		return nil, fmt.Errorf("%w: %s window on %s series", ErrIncompatibleUnit, d.Start.Unit, s.Unit())
	}
	out := &Series{Start: d.Start, Values: make([]float64, d.Length)}
	for i := range out.Values {
		out.Values[i] = s.Get(d.Get(i))
	}
	return out, nil
}

// Clean returns the domain that remains after dropping leading and trailing
// missing values. The domain is empty when every value is missing.
func (s *Series) Clean() Domain {
	first, last := 0, len(s.Values)-1
	for first <= last && math.IsNaN(s.Values[first]) {
		first++
	}
	for last >= first && math.IsNaN(s.Values[last]) {
		last--
	}
	return Domain{Start: s.Start.Plus(first), Length: last - first + 1}
}

func (s *Series) String() string {
	return fmt.Sprintf("%s %v", s.Domain(), s.Values)
}
