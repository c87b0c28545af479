// Package config provides configuration loading and validation for the price engine.
package config

import "errors"

var (
	// ErrNotWholeSeconds indicates a duration that cannot be expressed in whole seconds.
	ErrNotWholeSeconds = errors.New("duration must be a non-negative whole number of seconds")
	// ErrInvalidDecimals indicates that engine.decimals is out of range.
	ErrInvalidDecimals = errors.New("invalid decimals")
	// ErrInvalidObservationFrequency indicates that engine.observation_frequency is not positive.
	ErrInvalidObservationFrequency = errors.New("observation_frequency must be at least 1s")
	// ErrInvalidStoreBackend indicates an unsupported store backend.
	ErrInvalidStoreBackend = errors.New("invalid store backend")
	// ErrStoreDirRequired indicates that a persistent backend has no directory.
	ErrStoreDirRequired = errors.New("store dir is required for persistent backends")
	// ErrInvalidAddress indicates a malformed hex address.
	ErrInvalidAddress = errors.New("invalid address")
	// ErrNoAdmins indicates that no admin address is configured.
	ErrNoAdmins = errors.New("at least one admin must be specified")
	// ErrKeeperAddressRequired indicates an enabled keeper without a caller address.
	ErrKeeperAddressRequired = errors.New("keeper address is required when the keeper is enabled")
	// ErrKeeperNotPermitted indicates a keeper address that is neither keeper nor admin.
	ErrKeeperNotPermitted = errors.New("keeper address must be listed as keeper or admin")
	// ErrSubmoduleKeycodeRequired indicates a submodule without a keycode.
	ErrSubmoduleKeycodeRequired = errors.New("submodule keycode is required")
	// ErrDuplicateSubmodule indicates a keycode configured twice.
	ErrDuplicateSubmodule = errors.New("duplicate submodule")
	// ErrAssetFeedsRequired indicates a bootstrap asset without feeds.
	ErrAssetFeedsRequired = errors.New("at least one feed must be specified")
	// ErrComponentIncomplete indicates a component without target or selector.
	ErrComponentIncomplete = errors.New("component target and selector are required")
	// ErrInvalidObservation indicates a seed observation that is not an unsigned integer.
	ErrInvalidObservation = errors.New("invalid observation")
	// ErrHTTPAddrRequired indicates that the HTTP server has no listen address.
	ErrHTTPAddrRequired = errors.New("http addr is required")
	// ErrTLSConfigIncomplete indicates that TLS config is incomplete.
	ErrTLSConfigIncomplete = errors.New("TLS cert and key must be specified when TLS is enabled")
	// ErrTLSCertNotFound indicates that the TLS cert file was not found.
	ErrTLSCertNotFound = errors.New("TLS cert file not found")
	// ErrTLSKeyNotFound indicates that the TLS key file was not found.
	ErrTLSKeyNotFound = errors.New("TLS key file not found")
	// ErrWebSocketRequiresHTTP indicates a WebSocket stream without the HTTP server it mounts on.
	ErrWebSocketRequiresHTTP = errors.New("websocket requires the http server")
	// ErrInvalidLogLevel indicates that the log level is invalid.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidLogFormat indicates that the log format is invalid.
	ErrInvalidLogFormat = errors.New("invalid log format")
)
