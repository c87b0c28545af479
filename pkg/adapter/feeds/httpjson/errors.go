package httpjson

import "errors"

var (
	// ErrURLRequired indicates that params carry no url.
	ErrURLRequired = errors.New("url is required")
	// ErrPathRequired indicates that params carry no gjson path.
	ErrPathRequired = errors.New("path is required")
	// ErrUnsupportedScheme indicates a url that is neither http nor https.
	ErrUnsupportedScheme = errors.New("url scheme must be http or https")
	// ErrUnexpectedStatus indicates a non-200 response.
	ErrUnexpectedStatus = errors.New("unexpected status code")
	// ErrRateLimitExceeded indicates that the local limiter or the upstream refused the request.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrValueNotFound indicates that the path matched nothing in the response.
	ErrValueNotFound = errors.New("value not found at path")
	// ErrInvalidValue indicates that the matched value is not a decimal number.
	ErrInvalidValue = errors.New("value is not a decimal number")
	// ErrNegativeValue indicates a negative quote.
	ErrNegativeValue = errors.New("value is negative")
)
