package disagg

import "errors"

var (
	// ErrInvalidSpec is returned for inconsistent settings.
	ErrInvalidSpec = errors.New("disagg: invalid specification")

	// ErrInsufficientData is returned when there are not more benchmarks
	// than regression coefficients.
	ErrInsufficientData = errors.New("disagg: not enough benchmarks")
)
