package tsdata

import "errors"

// Sentinel errors. Callers match them with errors.Is; functions wrap them
// with the offending values.
var (
	// ErrInvalidUnit is returned for a unit that does not divide the year.
	ErrInvalidUnit = errors.New("tsdata: invalid period unit")

	// ErrInvalidPeriod is returned when a period label cannot be parsed.
	ErrInvalidPeriod = errors.New("tsdata: invalid period")

	// ErrIncompatibleUnit is returned when series that must share a unit do
	// not, or when a low-frequency unit does not divide a high-frequency one.
	ErrIncompatibleUnit = errors.New("tsdata: incompatible period units")

	// ErrInvalidRatio is returned when the detail/aggregate ratio is not a
	// positive integer.
	ErrInvalidRatio = errors.New("tsdata: invalid aggregation ratio")

	// ErrInvalidAggregation is returned for an aggregation position outside
	// the window.
	ErrInvalidAggregation = errors.New("tsdata: invalid aggregation")

	// ErrEmptyDomain is returned when the usable domain has no period.
	ErrEmptyDomain = errors.New("tsdata: empty domain")

	// ErrMissingData is returned when a value required by a constraint is missing.
	ErrMissingData = errors.New("tsdata: missing data")
)
