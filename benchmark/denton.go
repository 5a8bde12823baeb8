package benchmark

import (
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/mat"

	"tsbench/tsdata"
)

// Movement is the kind of movement preserved by Denton.
type Movement int

const (
	// Additive preserves the period to period differences x_t - p_t
	Additive Movement = iota
	// Multiplicative preserves the ratios x_t / p_t
	Multiplicative
)

func (m Movement) String() string {
	if m == Multiplicative {
		return "multiplicative"
	}
	return "additive"
}

// Solver selects how Denton is solved.
type Solver int

const (
	// Auto uses Direct up to DirectSolveLimit periods, StateSpace beyond
	Auto Solver = iota
	Direct
	StateSpace
)

func (s Solver) String() string {
	switch s {
	case Direct:
		return "direct"
	case StateSpace:
		return "statespace"
	}
	return "auto"
}

// DirectSolveLimit is the longest series solved by the dense normal
// equations when the solver is Auto.
const DirectSolveLimit = 360

// DentonSpec configures Denton benchmarking.
type DentonSpec struct {
	Movement Movement
	// Drop the presample terms of the penalty (Cholette's modification)
	Modified bool
	// Order of the differences in the penalty, >= 1
	Differencing int
	Aggregation  tsdata.Aggregation
	Solver       Solver
	// Logger, slog.Default() when nil
	Logger *slog.Logger
}

// DefaultDentonSpec is the modified multiplicative Denton on first
// differences, benchmarked to sums.
func DefaultDentonSpec() DentonSpec {
	return DentonSpec{
		Movement:     Multiplicative,
		Modified:     true,
		Differencing: 1,
		Aggregation:  tsdata.Aggregation{Type: tsdata.Sum},
	}
}

func (s DentonSpec) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Validate checks the settings that do not depend on the data.
func (s DentonSpec) Validate() error {
	if s.Differencing < 1 {
		return fmt.Errorf("%w: differencing order %d, must be >= 1", ErrInvalidSpec, s.Differencing)
	}
	if s.Movement != Additive && s.Movement != Multiplicative {
		return fmt.Errorf("%w: unknown movement %d", ErrInvalidSpec, s.Movement)
	}
	if s.Solver < Auto || s.Solver > StateSpace {
		return fmt.Errorf("%w: unknown solver %d", ErrInvalidSpec, s.Solver)
	}
	return nil
}

// Benchmark returns s adjusted to target. Leading and trailing missing
// values of s are kept; missing values inside s are an error.
func (s DentonSpec) Benchmark(series, target *tsdata.Series) (*tsdata.Series, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	pb, err := newProblem(series, target, s.Aggregation)
	if err != nil {
		return nil, err
	}
	if len(pb.spans) == 0 {
		return series.Clone(), nil
	}
	if s.Movement == Multiplicative {
		for t, v := range pb.p {
			if v == 0 {
				return nil, fmt.Errorf("%w: period %s", ErrZeroValue, pb.domain.Get(t))
			}
		}
	}

	useDirect := s.Solver == Direct || (s.Solver == Auto && pb.n() <= DirectSolveLimit)
	s.logger().Debug("denton", "movement", s.Movement, "modified", s.Modified, "d", s.Differencing,
		"periods", pb.n(), "benchmarks", len(pb.spans), "direct", useDirect)

	var x []float64
	if useDirect {
		x, err = s.direct(pb)
	} else {
		x, err = s.stateSpace(pb)
	}
	if err != nil {
		return nil, err
	}
	return pb.result(x), nil
}

// The problem is written x_t = base_t + w_t u_t with prior mean of u equal
// to mean: base = p, w = 1, mean = 0 for additive; base = 0, w = p, mean = 1
// for multiplicative, u being the benchmark to preliminary ratio.
func (s DentonSpec) form(pb *problem) (base, w []float64, mean float64) {
	n := pb.n()
	base = make([]float64, n)
	w = make([]float64, n)
	if s.Movement == Multiplicative {
		copy(w, pb.p)
		return base, w, 1
	}
	copy(base, pb.p)
	for i := range w {
		w[i] = 1
	}
	return base, w, 0
}

func (s DentonSpec) direct(pb *problem) ([]float64, error) {
	n := pb.n()
	base, w, mean := s.form(pb)
	if s.Modified && n <= s.Differencing {
		return nil, fmt.Errorf("%w: %d periods for differencing order %d", ErrInvalidSpec, n, s.Differencing)
	}
	D, h := differenceMatrix(n, s.Differencing, s.Modified, mean)

	// one constraint per benchmark: Σ coef·w·u = Y - Σ coef·base
	A := mat.NewDense(len(pb.spans), n, nil)
	b := make([]float64, len(pb.spans))
	for j, sp := range pb.spans {
		for t := sp.Begin; t < sp.End; t++ {
			A.Set(j, t, pb.coef[t-sp.Begin]*w[t])
		}
		b[j] = pb.values[j] - pb.aggregate(base, sp)
	}

	u, err := solveConstrained(s.logger(), D, h, A, b)
	if err != nil {
		return nil, err
	}
	x := make([]float64, n)
	for t := range x {
		x[t] = base[t] + w[t]*u[t]
	}
	return x, nil
}

func (s DentonSpec) stateSpace(pb *problem) ([]float64, error) {
	base, w, mean := s.form(pb)
	c := newCumulator(pb, w, arDifferences(s.Differencing))
	init := c.initial(s.Modified, mean, 1)
	u, err := smoothCorrection(c, init, pb.observations(base))
	if err != nil {
		return nil, err
	}
	x := make([]float64, len(u))
	for t := range x {
		x[t] = base[t] + w[t]*u[t]
	}
	return x, nil
}
