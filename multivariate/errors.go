package multivariate

import "errors"

var (
	// ErrSyntax is returned for a constraint that cannot be parsed.
	ErrSyntax = errors.New("multivariate: syntax error in constraint")

	// ErrUnknownSeries is returned when a constraint names a series that is
	// not provided, or a wildcard that matches none.
	ErrUnknownSeries = errors.New("multivariate: unknown series")

	// ErrBoundSeriesReused is returned when a fixed series (the target of a
	// contemporaneous constraint or a temporal aggregate) is also adjusted
	// by another constraint.
	ErrBoundSeriesReused = errors.New("multivariate: bound series reused in another constraint")

	// ErrDuplicateTemporal is returned when a series is the detail of more
	// than one temporal constraint.
	ErrDuplicateTemporal = errors.New("multivariate: series has several temporal constraints")

	// ErrInvalidSpec is returned for out of range settings.
	ErrInvalidSpec = errors.New("multivariate: invalid specification")
)
