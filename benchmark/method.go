package benchmark

import (
	"fmt"
	"math"

	"tsbench/tsdata"
)

// Method benchmarks a high-frequency series to a low-frequency target.
type Method interface {
	Benchmark(s, target *tsdata.Series) (*tsdata.Series, error)
}

var (
	_ Method = DentonSpec{}
	_ Method = CholetteSpec{}
)

// Weights returns |v|^lambda for each value. lambda = 0 gives unit weights,
// zero values included.
func Weights(values []float64, lambda float64) []float64 {
	w := make([]float64, len(values))
	for i, v := range values {
		switch lambda {
		case 0:
			w[i] = 1
		case 1:
			w[i] = math.Abs(v)
		default:
			w[i] = math.Pow(math.Abs(v), lambda)
		}
	}
	return w
}

// problem is a benchmarking problem reduced to the clean part of the series.
type problem struct {
	// series being benchmarked and its domain without leading and trailing
	// missing values
	source *tsdata.Series
	domain tsdata.Domain
	p      []float64

	ratio int
	coef  []float64
	// complete windows with a benchmark, offsets relative to domain
	spans  []tsdata.Span
	values []float64
}

func newProblem(s, target *tsdata.Series, agg tsdata.Aggregation) (*problem, error) {
	if s == nil || target == nil {
		return nil, fmt.Errorf("%w: nil series", ErrInvalidSpec)
	}
	ratio, err := tsdata.Ratio(s.Unit(), target.Unit())
	if err != nil {
		return nil, err
	}
	if err := agg.Validate(ratio); err != nil {
		return nil, err
	}
	d := s.Clean()
	if d.IsEmpty() {
		return nil, fmt.Errorf("%w: series has no value", tsdata.ErrEmptyDomain)
	}
	w, err := s.Window(d)
	if err != nil {
		return nil, err
	}
	if w.HasMissing() {
		return nil, fmt.Errorf("%w: series has missing values inside %s", tsdata.ErrMissingData, d)
	}
	spans, values, err := tsdata.Benchmarks(d, target)
	if err != nil {
		return nil, err
	}
	return &problem{
		source: s,
		domain: d,
		p:      w.Values,
		ratio:  ratio,
		coef:   agg.Coefficients(ratio),
		spans:  spans,
		values: values,
	}, nil
}

// n is the number of periods of the clean domain.
func (pb *problem) n() int { return len(pb.p) }

// phase returns the position of period t inside its window.
func (pb *problem) phase(t int) int {
	idx := pb.domain.Get(t).Index
	pos := idx % pb.ratio
	if pos < 0 {
		pos += pb.ratio
	}
	return pos
}

// aggregate returns the aggregation of x over span sp.
func (pb *problem) aggregate(x []float64, sp tsdata.Span) float64 {
	v := 0.0
	for t := sp.Begin; t < sp.End; t++ {
		v += pb.coef[t-sp.Begin] * x[t]
	}
	return v
}

// result puts the solution of the clean domain back on the domain of the
// source series.
func (pb *problem) result(x []float64) *tsdata.Series {
	out := pb.source.Clone()
	off := pb.domain.Start.Minus(pb.source.Start)
	copy(out.Values[off:], x)
	return out
}
