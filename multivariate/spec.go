package multivariate

import (
	"fmt"
	"log/slog"
	"time"
)

// Spec configures a multivariate benchmarking run.
type Spec struct {
	// AR(1) coefficient of the corrections, in (-1, 1]. 1 is a random walk
	// with a diffuse start.
	Rho float64
	// Corrections are weighted by |value|^Lambda
	Lambda float64

	// Contemporaneous constraints, "target = [coef*]name +|- ..."
	Contemporaneous []string
	// Temporal constraints, "aggregate = sum|average|first|last(detail)"
	Temporal []string

	// Maximum number of groups solved at the same time, GOMAXPROCS when 0
	Concurrency int
	// Logger receives the progress of the groups, slog.Default() when nil
	Logger *slog.Logger
	// Observer, when set, is called once per group after it was solved or
	// failed. Calls come from concurrent goroutines.
	Observer func(GroupReport)
}

// GroupReport is the outcome of one group.
type GroupReport struct {
	Group       int
	Series      []string
	Constraints int
	Elapsed     time.Duration
	Err         error
}

// DefaultSpec returns rho = 1 and lambda = 1, without constraints.
func DefaultSpec() Spec {
	return Spec{Rho: 1, Lambda: 1}
}

// Validate checks the numeric settings. Constraints are checked by Compile.
func (s Spec) Validate() error {
	if !(s.Rho > -1 && s.Rho <= 1) {
		return fmt.Errorf("%w: rho %g outside (-1, 1]", ErrInvalidSpec, s.Rho)
	}
	if !(s.Lambda >= 0) {
		return fmt.Errorf("%w: lambda %g, must be >= 0", ErrInvalidSpec, s.Lambda)
	}
	if s.Concurrency < 0 {
		return fmt.Errorf("%w: concurrency %d", ErrInvalidSpec, s.Concurrency)
	}
	return nil
}

func (s Spec) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
