package grp

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"tsbench/benchmark"
	"tsbench/tsdata"
)

// Default budget of the solver.
const (
	DefaultMaxIterations = 500
	DefaultPrecision     = 1e-8
)

// Solver benchmarks a series by minimizing the distortion of its growth
// rates. It only holds configuration and can be shared between goroutines.
type Solver struct {
	Objective Objective
	// Maximum number of L-BFGS iterations, DefaultMaxIterations when 0
	MaxIterations int
	// Convergence threshold on the largest component of the gradient, on
	// a series normalized to a mean absolute value of 1. DefaultPrecision
	// when 0.
	Precision   float64
	Aggregation tsdata.Aggregation
	// Logger, slog.Default() when nil
	Logger *slog.Logger
}

var _ benchmark.Method = Solver{}

// NewSolver returns a solver with the default budget and sum aggregation.
func NewSolver(o Objective) Solver {
	return Solver{
		Objective:     o,
		MaxIterations: DefaultMaxIterations,
		Precision:     DefaultPrecision,
		Aggregation:   tsdata.Aggregation{Type: tsdata.Sum},
	}
}

// Result is the outcome of Solve.
type Result struct {
	Series *tsdata.Series
	// Objective at the solution
	Value      float64
	Iterations int
	Converged  bool
	Status     optimize.Status
}

func (s Solver) withDefaults() Solver {
	if s.MaxIterations == 0 {
		s.MaxIterations = DefaultMaxIterations
	}
	if s.Precision == 0 {
		s.Precision = DefaultPrecision
	}
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	return s
}

// Validate checks the settings.
func (s Solver) Validate() error {
	if s.Objective < Forward || s.Objective > Log {
		return fmt.Errorf("%w: unknown objective %d", ErrInvalidInput, s.Objective)
	}
	if s.MaxIterations < 0 {
		return fmt.Errorf("%w: max iterations %d", ErrInvalidInput, s.MaxIterations)
	}
	if !(s.Precision >= 0) {
		return fmt.Errorf("%w: precision %g", ErrInvalidInput, s.Precision)
	}
	return nil
}

// Benchmark seeds the solver with the multiplicative modified Denton
// solution and returns the series. A non converged solution is returned
// with an error wrapping ErrNotConverged.
func (s Solver) Benchmark(series, target *tsdata.Series) (*tsdata.Series, error) {
	denton := benchmark.DefaultDentonSpec()
	denton.Aggregation = s.Aggregation
	denton.Logger = s.Logger
	seed, err := denton.Benchmark(series, target)
	if err != nil {
		return nil, fmt.Errorf("grp: seed: %w", err)
	}
	res, err := s.Solve(series, seed, target)
	if res == nil {
		return nil, err
	}
	return res.Series, err
}

// Solve searches the series closest to the growth rates of preliminary
// that satisfies the target, starting from seed. seed must cover the same
// periods as preliminary; it is first projected on the constraints.
//
// When the budget is exhausted, Solve returns the best iterate with
// Converged false and an error wrapping ErrNotConverged.
func (s Solver) Solve(preliminary, seed, target *tsdata.Series) (*Result, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	s = s.withDefaults()
	if preliminary == nil || seed == nil || target == nil {
		return nil, fmt.Errorf("%w: nil series", ErrInvalidInput)
	}
	if seed.Domain() != preliminary.Domain() {
		return nil, fmt.Errorf("%w: seed on %s, preliminary on %s", ErrInvalidInput, seed.Domain(), preliminary.Domain())
	}
	ratio, err := tsdata.Ratio(preliminary.Unit(), target.Unit())
	if err != nil {
		return nil, err
	}
	if err := s.Aggregation.Validate(ratio); err != nil {
		return nil, err
	}

	d := preliminary.Clean()
	if d.IsEmpty() {
		return nil, fmt.Errorf("%w: preliminary series has no value", tsdata.ErrEmptyDomain)
	}
	pw, err := preliminary.Window(d)
	if err != nil {
		return nil, err
	}
	xw, err := seed.Window(d)
	if err != nil {
		return nil, err
	}
	if pw.HasMissing() || xw.HasMissing() {
		return nil, fmt.Errorf("%w: missing values inside %s", tsdata.ErrMissingData, d)
	}
	if err := s.Objective.check(pw.Values); err != nil {
		return nil, err
	}
	spans, values, err := tsdata.Benchmarks(d, target)
	if err != nil {
		return nil, err
	}
	coef := s.Aggregation.Coefficients(ratio)

	p := pw.Values
	x0 := xw.Values
	project(x0, spans, values, coef)

	scale := 0.0
	for _, v := range x0 {
		scale += math.Abs(v)
	}
	scale /= float64(len(x0))
	if scale == 0 {
		return nil, fmt.Errorf("%w: seed is zero", ErrInvalidInput)
	}
	floats.Scale(1/scale, x0)

	out := func(x []float64) *tsdata.Series {
		r := seed.Clone()
		off := d.Start.Minus(seed.Start)
		for i, v := range x {
			r.Values[off+i] = v * scale
		}
		return r
	}

	K := kernelBasis(len(x0), spans, coef)
	if K == nil {
		return &Result{Series: out(x0), Value: s.Objective.Value(p, x0), Converged: true}, nil
	}
	_, m := K.Dims()

	var (
		x  = mat.NewVecDense(len(x0), nil)
		gx = make([]float64, len(x0))
	)
	at := func(z []float64) []float64 {
		x.MulVec(K, mat.NewVecDense(m, z))
		xs := x.RawVector().Data
		floats.Add(xs, x0)
		return xs
	}
	problem := optimize.Problem{
		Func: func(z []float64) float64 {
			return s.Objective.Value(p, at(z))
		},
		Grad: func(grad, z []float64) {
			s.Objective.Gradient(p, at(z), gx)
			mat.NewVecDense(m, grad).MulVec(K.T(), mat.NewVecDense(len(gx), gx))
		},
	}
	settings := &optimize.Settings{
		GradientThreshold: s.Precision,
		MajorIterations:   s.MaxIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-16,
			Relative:   1e-14,
			Iterations: 25,
		},
	}
	res, err := optimize.Minimize(problem, make([]float64, m), settings, &optimize.LBFGS{})
	if res == nil {
		return nil, fmt.Errorf("grp: %w", err)
	}

	xs := append([]float64(nil), at(res.X)...)
	gradNorm := math.Inf(1)
	if res.Gradient != nil {
		gradNorm = floats.Norm(res.Gradient, math.Inf(1))
	}
	converged := gradNorm <= s.Precision
	switch {
	case err == nil:
		converged = converged || res.Status == optimize.GradientThreshold || res.Status == optimize.FunctionConvergence
	case errors.Is(err, optimize.ErrNoProgress), errors.Is(err, optimize.ErrLinesearcherFailure):
		// the linesearch cannot improve in floating point
		converged = converged || gradNorm <= math.Sqrt(s.Precision)
	}
	result := &Result{
		Series:     out(xs),
		Value:      res.F,
		Iterations: res.MajorIterations,
		Converged:  converged,
		Status:     res.Status,
	}
	s.Logger.Debug("grp", "objective", s.Objective, "periods", len(xs), "free", m,
		"iterations", res.MajorIterations, "status", res.Status, "gradient", gradNorm, "converged", converged)
	if !converged {
		if err != nil {
			return result, fmt.Errorf("%w after %d iterations: %w", ErrNotConverged, res.MajorIterations, err)
		}
		return result, fmt.Errorf("%w after %d iterations (%s)", ErrNotConverged, res.MajorIterations, res.Status)
	}
	return result, nil
}
