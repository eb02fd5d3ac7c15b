package acl

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jsamuelsen/quotes/internal/adapters/clients"
	"github.com/jsamuelsen/quotes/internal/domain"
)

// MapClientError translates a failure from clients.Client into a domain error.
// Cancellation is passed through untouched so callers can tell a stop
// request from a remote failure.
func MapClientError(serviceName, url string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) {
		return err
	}

	if statusErr, ok := clients.IsStatusError(err); ok {
		return MapStatus(url, statusErr.Code)
	}

	if errors.Is(err, clients.ErrCircuitOpen) {
		return domain.NewUnavailableError(serviceName, "circuit breaker open")
	}

	return domain.NewUnavailableError(serviceName, err.Error())
}

// MapStatus reports a non-success response from url as a bad request.
func MapStatus(url string, status int) error {
	reason := fmt.Sprintf("status %d", status)
	if text := http.StatusText(status); text != "" {
		reason += " " + text
	}

	return domain.NewBadRequestError(url, reason)
}

// malformed reports a response body that could not be understood.
func malformed(url string, err error) error {
	return domain.NewBadRequestError(url, "malformed payload: "+err.Error())
}
