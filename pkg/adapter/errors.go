// Package adapter defines the feed and strategy submodules the price engine dispatches to.
package adapter

import "errors"

var (
	// ErrUnknownSubmodule indicates that no factory is registered for a keycode.
	ErrUnknownSubmodule = errors.New("unknown submodule")
	// ErrNotInstalled indicates that the keycode does not resolve to an installed submodule.
	ErrNotInstalled = errors.New("submodule not installed")
	// ErrAlreadyInstalled indicates that a submodule with the same keycode is already installed.
	ErrAlreadyInstalled = errors.New("submodule already installed")
	// ErrInvalidKeycode indicates a malformed keycode.
	ErrInvalidKeycode = errors.New("invalid keycode")
	// ErrNotAFeed indicates that the target submodule does not provide feeds.
	ErrNotAFeed = errors.New("submodule is not a price feed")
	// ErrNotAStrategy indicates that the target submodule does not provide strategies.
	ErrNotAStrategy = errors.New("submodule is not a price strategy")
	// ErrUnknownSelector indicates that the submodule has no method with the requested selector.
	ErrUnknownSelector = errors.New("unknown selector")
	// ErrInvalidParams indicates that the parameter blob could not be decoded or failed validation.
	ErrInvalidParams = errors.New("invalid params")
	// ErrPriceCountInvalid indicates that a strategy received too few prices.
	ErrPriceCountInvalid = errors.New("invalid price count")
	// ErrSubmodulePanic indicates that the submodule panicked while serving a call.
	ErrSubmodulePanic = errors.New("submodule panicked")
	// ErrPriceOutOfRange indicates that a computed price is negative or exceeds 256 bits.
	ErrPriceOutOfRange = errors.New("price out of range")
)
