package tsdata

import (
	"fmt"
	"math"
	"strings"
)

// AggregationType says how the high-frequency periods of one window combine
// into the low-frequency value.
type AggregationType int

const (
	Sum AggregationType = iota
	Average
	First
	Last
	// UserDefined picks the value at Aggregation.Position inside the window.
	UserDefined
)

func (t AggregationType) String() string {
	switch t {
	case Sum:
		return "sum"
	case Average:
		return "average"
	case First:
		return "first"
	case Last:
		return "last"
	case UserDefined:
		return "userdefined"
	}
	return fmt.Sprintf("aggregation(%d)", int(t))
}

// ParseAggregationType is the inverse of AggregationType.String.
func ParseAggregationType(s string) (AggregationType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sum", "":
		return Sum, nil
	case "average", "avg", "mean":
		return Average, nil
	case "first":
		return First, nil
	case "last":
		return Last, nil
	case "userdefined", "user", "position":
		return UserDefined, nil
	}
	return 0, fmt.Errorf("%w: unknown type %q", ErrInvalidAggregation, s)
}

// Aggregation is a temporal aggregation rule.
type Aggregation struct {
	Type AggregationType
	// 0-based position inside the window, UserDefined only
	Position int
}

// Validate checks the rule against a window length.
func (a Aggregation) Validate(ratio int) error {
	if ratio <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidRatio, ratio)
	}
	switch a.Type {
	case Sum, Average, First, Last:
		return nil
	case UserDefined:
		if a.Position < 0 || a.Position >= ratio {
			return fmt.Errorf("%w: position %d outside window of %d", ErrInvalidAggregation, a.Position, ratio)
		}
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidAggregation, a.Type)
}

// Coefficients returns the weight of each window position in the
// low-frequency value.
func (a Aggregation) Coefficients(ratio int) []float64 {
	c := make([]float64, ratio)
	switch a.Type {
	case Sum:
		for i := range c {
			c[i] = 1
		}
	case Average:
		for i := range c {
			c[i] = 1 / float64(ratio)
		}
	case First:
		c[0] = 1
	case Last:
		c[ratio-1] = 1
	case UserDefined:
		c[a.Position] = 1
	}
	return c
}

// Span is one complete aggregation window inside a high-frequency domain.
type Span struct {
	// Offsets in the high-frequency domain, End excluded
	Begin, End int
	// Low-frequency period the window aggregates to
	Target Period
}

// Spans lists the complete windows of unit low inside d, in order. Periods
// before the first window boundary (start offset) and after the last complete
// window are not covered.
func Spans(d Domain, low Unit) ([]Span, error) {
	c, err := Ratio(d.Start.Unit, low)
	if err != nil {
		return nil, err
	}
	pos := d.Start.Index - floorDiv(d.Start.Index, c)*c
	offset := (c - pos) % c
	var spans []Span
	for b := offset; b+c <= d.Length; b += c {
		spans = append(spans, Span{Begin: b, End: b + c, Target: d.Get(b).Convert(low)})
	}
	return spans, nil
}

// Aggregate converts s to unit low using only complete windows. A window
// with a missing value that enters the aggregation is missing.
func Aggregate(s *Series, low Unit, a Aggregation) (*Series, error) {
	spans, err := Spans(s.Domain(), low)
	if err != nil {
		return nil, err
	}
	if len(spans) == 0 {
		return nil, fmt.Errorf("%w: no complete %s period in %s", ErrEmptyDomain, low, s.Domain())
	}
	c := spans[0].End - spans[0].Begin
	if err := a.Validate(c); err != nil {
		return nil, err
	}
	coef := a.Coefficients(c)
	out := &Series{Start: spans[0].Target, Values: make([]float64, len(spans))}
	for j, sp := range spans {
		v := 0.0
		for i := sp.Begin; i < sp.End; i++ {
			if w := coef[i-sp.Begin]; w != 0 {
				v += w * s.Values[i]
			}
		}
		out.Values[j] = v
	}
	return out, nil
}

// Benchmarks pairs each complete window of the high-frequency domain d with
// the value of target for that window. Windows whose target value is missing
// or outside target are dropped.
func Benchmarks(d Domain, target *Series) ([]Span, []float64, error) {
	spans, err := Spans(d, target.Unit())
	if err != nil {
		return nil, nil, err
	}
	var (
		kept   []Span
		values []float64
	)
	for _, sp := range spans {
		v := target.Get(sp.Target)
		if math.IsNaN(v) {
			continue
		}
		kept = append(kept, sp)
		values = append(values, v)
	}
	return kept, values, nil
}
