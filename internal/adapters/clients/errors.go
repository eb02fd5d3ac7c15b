// Package clients provides the instrumented HTTP client used to reach the
// remote quote source.
package clients

import (
	"errors"
	"fmt"
)

var (
	// ErrCircuitOpen is returned without contacting the remote while the
	// circuit breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker open")

	// ErrMaxRetriesExceeded wraps the last failure once every attempt is used up.
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)

// StatusError reports a response whose status kept the request from succeeding.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d", e.Code)
}

// IsStatusError reports whether err carries a StatusError and returns it.
func IsStatusError(err error) (*StatusError, bool) {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr, true
	}

	return nil, false
}
