package chainlink

import "errors"

var (
	// ErrRPCURLRequired indicates that neither rpc_url nor a client was configured.
	ErrRPCURLRequired = errors.New("rpc_url is required")
	// ErrFeedAddressRequired indicates a zero feed address in params.
	ErrFeedAddressRequired = errors.New("feed address is required")
	// ErrFeedCallFailed indicates that a call to the aggregator contract failed.
	ErrFeedCallFailed = errors.New("aggregator call failed")
	// ErrFeedInvalidAnswer indicates a non-positive answer.
	ErrFeedInvalidAnswer = errors.New("aggregator answer is not positive")
	// ErrFeedRoundIncomplete indicates that the answer was carried over from an earlier round.
	ErrFeedRoundIncomplete = errors.New("aggregator round incomplete")
	// ErrFeedStale indicates that the last update is older than the update threshold.
	ErrFeedStale = errors.New("aggregator answer is stale")
	// ErrDivideByZero indicates that the divisor feed resolved to zero.
	ErrDivideByZero = errors.New("divisor feed price is zero")
)
