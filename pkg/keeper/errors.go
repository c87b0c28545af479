// Package keeper periodically stores price observations for every moving-average asset.
package keeper

import "errors"

// Keeper errors.
var (
	ErrEngineRequired  = errors.New("engine is required")
	ErrIntervalInvalid = errors.New("interval must be at least one second")
	ErrAlreadyStarted  = errors.New("keeper already started")
	ErrStoreFailed     = errors.New("store observations failed")
)
