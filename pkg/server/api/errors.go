package api

import "errors"

// API errors.
var (
	ErrInvalidAddress   = errors.New("invalid asset address")
	ErrInvalidMaxAge    = errors.New("invalid max_age")
	ErrConflictingQuery = errors.New("variant and max_age are mutually exclusive")
)
