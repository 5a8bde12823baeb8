package grp

import "errors"

var (
	// ErrNotConverged is returned, together with the best iterate, when the
	// iteration budget is exhausted before the requested precision.
	ErrNotConverged = errors.New("grp: solver did not converge")

	// ErrInvalidInput is returned for inconsistent series or settings.
	ErrInvalidInput = errors.New("grp: invalid input")
)
