package ssf

import "errors"

var (
	// ErrInvalidModel is returned when the capabilities of a model do not
	// agree on the state dimension, or the data does not fit the model.
	ErrInvalidModel = errors.New("ssf: invalid model")

	// ErrInconsistentObservation is returned when an observation has a zero
	// prediction variance but disagrees with its prediction. It signals a
	// malformed model/data pairing.
	ErrInconsistentObservation = errors.New("ssf: inconsistent exact observation")
)
