package strategy

import "errors"

var (
	// ErrDeviationInvalid indicates a deviation threshold outside (0, 10000) basis points.
	ErrDeviationInvalid = errors.New("deviation must be between 1 and 9999 bps")
	// ErrSensitivityInvalid indicates a negative adaptive sensitivity.
	ErrSensitivityInvalid = errors.New("sensitivity must be positive")
	// ErrUnknownMode indicates that the adaptive final mode is unknown.
	ErrUnknownMode = errors.New("unknown aggregation mode")
)
