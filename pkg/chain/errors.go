package chain

import "errors"

var (
	// ErrRPCURLRequired indicates that no RPC endpoint was configured.
	ErrRPCURLRequired = errors.New("rpc url is required")
	// ErrCodeLookupFailed indicates that the node could not return the code at an address.
	ErrCodeLookupFailed = errors.New("code lookup failed")
)
