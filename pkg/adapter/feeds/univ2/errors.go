package univ2

import "errors"

var (
	// ErrRPCURLRequired indicates that neither rpc_url nor a client was configured.
	ErrRPCURLRequired = errors.New("rpc_url is required")
	// ErrPoolAddressRequired indicates a zero pool address in params.
	ErrPoolAddressRequired = errors.New("pool address is required")
	// ErrPoolCallFailed indicates that a call to the pool or one of its tokens failed.
	ErrPoolCallFailed = errors.New("pool call failed")
	// ErrAssetNotInPool indicates that the requested asset is neither token of the pool.
	ErrAssetNotInPool = errors.New("asset is not a pool token")
	// ErrEmptyReserves indicates a pool with a zero reserve.
	ErrEmptyReserves = errors.New("pool reserve is zero")
	// ErrTokenDecimalsInvalid indicates a token reporting more decimals than supported.
	ErrTokenDecimalsInvalid = errors.New("token decimals out of range")
)
