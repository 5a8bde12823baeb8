package benchmark

import "errors"

var (
	// ErrInvalidSpec is returned by Validate for an out of range setting.
	ErrInvalidSpec = errors.New("benchmark: invalid specification")

	// ErrZeroValue is returned by multiplicative methods when the
	// preliminary series has a zero value or a zero window aggregate.
	ErrZeroValue = errors.New("benchmark: zero value in multiplicative benchmarking")

	// ErrSolve is returned when the direct solver finds no solution.
	ErrSolve = errors.New("benchmark: linear system could not be solved")
)
