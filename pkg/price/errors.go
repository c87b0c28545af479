package price

import (
	"errors"
	"fmt"

	errorsmod "cosmossdk.io/errors"
)

// Codespace is the error codespace of the price engine.
const Codespace = "price"

// Registry-state errors.
var (
	ErrAssetNotApproved     = errorsmod.Register(Codespace, 2, "asset not approved")
	ErrAssetAlreadyApproved = errorsmod.Register(Codespace, 3, "asset already approved")
	ErrAssetNotContract     = errorsmod.Register(Codespace, 4, "asset is not a contract")
)

// Aggregation and query errors.
var (
	ErrPriceZero               = errorsmod.Register(Codespace, 5, "price resolved to zero")
	ErrStrategyExecutionFailed = errorsmod.Register(Codespace, 6, "strategy execution failed")
	ErrSubmoduleNotInstalled   = errorsmod.Register(Codespace, 7, "submodule not installed")
	ErrMovingAverageNotStored  = errorsmod.Register(Codespace, 8, "moving average not stored")
	ErrMovingAverageStale      = errorsmod.Register(Codespace, 9, "moving average stale")
	ErrMaxAgeInvalid           = errorsmod.Register(Codespace, 10, "max age invalid")
	ErrInvalidVariant          = errorsmod.Register(Codespace, 11, "invalid price variant")
	ErrPriceOverflow           = errorsmod.Register(Codespace, 12, "price exceeds 256 bits")
)

// Configuration errors. IsInvalidConfiguration reports membership in this family.
var (
	ErrStrategyInsufficient         = errorsmod.Register(Codespace, 20, "strategy required for more than one price input")
	ErrMovingAverageDurationInvalid = errorsmod.Register(Codespace, 21, "moving average duration invalid")
	ErrObservationCountInvalid      = errorsmod.Register(Codespace, 22, "observation count invalid")
	ErrObservationZero              = errorsmod.Register(Codespace, 23, "observation is zero")
	ErrLastObservationTimeInvalid   = errorsmod.Register(Codespace, 24, "last observation time in the future")
	ErrDuplicateFeed                = errorsmod.Register(Codespace, 25, "duplicate price feed")
	ErrFeedsInsufficient            = errorsmod.Register(Codespace, 26, "at least one price feed is required")
	ErrStoreMovingAverageRequired   = errorsmod.Register(Codespace, 27, "moving average must be stored to be used")
	ErrObservationFrequencyInvalid  = errorsmod.Register(Codespace, 28, "observation frequency invalid")
	ErrDecimalsInvalid              = errorsmod.Register(Codespace, 29, "price decimals invalid")
)

// Engine errors.
var (
	ErrNotPermitted   = errorsmod.Register(Codespace, 40, "caller not permitted")
	ErrStateCorrupted = errorsmod.Register(Codespace, 41, "engine state corrupted")
	ErrStore          = errorsmod.Register(Codespace, 42, "state store failure")
	ErrInvalidOptions = errorsmod.Register(Codespace, 43, "invalid engine options")
)

var configurationErrors = []error{
	ErrStrategyInsufficient,
	ErrMovingAverageDurationInvalid,
	ErrObservationCountInvalid,
	ErrObservationZero,
	ErrLastObservationTimeInvalid,
	ErrDuplicateFeed,
	ErrFeedsInsufficient,
	ErrStoreMovingAverageRequired,
	ErrObservationFrequencyInvalid,
	ErrDecimalsInvalid,
}

// IsInvalidConfiguration reports whether err is one of the configuration errors.
func IsInvalidConfiguration(err error) bool {
	for _, target := range configurationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// ErrorCode renders the registered code of err as "codespace:code".
func ErrorCode(err error) string {
	codespace, code, _ := errorsmod.ABCIInfo(err, false)
	return fmt.Sprintf("%s:%d", codespace, code)
}
