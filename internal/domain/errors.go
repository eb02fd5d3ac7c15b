// Package domain contains business logic types and errors.
// Domain errors represent business-level failures, NOT storage or transport errors.
// Adapters translate them into exit codes, HTTP statuses or log lines.
package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for use with errors.Is().
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates business rule validation failed.
	ErrValidation = errors.New("validation failed")

	// ErrUnavailable indicates a required dependency is unavailable.
	ErrUnavailable = errors.New("unavailable")

	// ErrBadRequest indicates a remote source answered with an unusable response.
	ErrBadRequest = errors.New("bad request")

	// ErrMissingText indicates a quote was submitted without text.
	ErrMissingText = fmt.Errorf("%w: quote text is required", ErrValidation)

	// ErrInvalidQuoteID indicates no quote exists under the given id.
	ErrInvalidQuoteID = fmt.Errorf("%w: invalid quote id", ErrNotFound)
)

// InvalidQuoteIDError carries the id that did not resolve to a quote.
type InvalidQuoteIDError struct {
	ID int64
}

// Error implements the error interface.
func (e *InvalidQuoteIDError) Error() string {
	return fmt.Sprintf("invalid quote id: %d", e.ID)
}

// Unwrap returns the sentinel error for errors.Is() support.
func (e *InvalidQuoteIDError) Unwrap() error {
	return ErrInvalidQuoteID
}

// NewInvalidQuoteIDError creates an invalid id error for the given id.
func NewInvalidQuoteIDError(id int64) error {
	return &InvalidQuoteIDError{ID: id}
}

// BadRequestError provides context for unusable remote responses.
type BadRequestError struct {
	Source string
	Reason string
}

// Error implements the error interface.
func (e *BadRequestError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("bad request to %s: %s", e.Source, e.Reason)
	}

	return "bad request: " + e.Reason
}

// Unwrap returns the sentinel error for errors.Is() support.
func (e *BadRequestError) Unwrap() error {
	return ErrBadRequest
}

// NewBadRequestError creates a bad request error with context.
func NewBadRequestError(source, reason string) error {
	return &BadRequestError{Source: source, Reason: reason}
}

// ValidationError provides context for validation errors.
type ValidationError struct {
	Field   string
	Message string
	Value   any
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}

	return "validation failed: " + e.Message
}

// Unwrap returns the sentinel error for errors.Is() support.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NewValidationError creates a validation error with context.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// NewValidationErrorWithValue creates a validation error including the invalid value.
func NewValidationErrorWithValue(field, message string, value any) error {
	return &ValidationError{Field: field, Message: message, Value: value}
}

// UnavailableError provides context for unavailable errors.
type UnavailableError struct {
	Service string
	Reason  string
}

// Error implements the error interface.
func (e *UnavailableError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("service %q unavailable: %s", e.Service, e.Reason)
	}

	return fmt.Sprintf("service %q unavailable", e.Service)
}

// Unwrap returns the sentinel error for errors.Is() support.
func (e *UnavailableError) Unwrap() error {
	return ErrUnavailable
}

// NewUnavailableError creates an unavailable error with context.
func NewUnavailableError(service, reason string) error {
	return &UnavailableError{Service: service, Reason: reason}
}

// IsNotFound checks if an error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidQuoteID checks if an error reports an unknown quote id.
func IsInvalidQuoteID(err error) bool {
	return errors.Is(err, ErrInvalidQuoteID)
}

// IsMissingText checks if an error reports a quote without text.
func IsMissingText(err error) bool {
	return errors.Is(err, ErrMissingText)
}

// IsBadRequest checks if an error is a bad request error.
func IsBadRequest(err error) bool {
	return errors.Is(err, ErrBadRequest)
}

// IsValidation checks if an error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsUnavailable checks if an error is an unavailable error.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// IsDomain reports whether err belongs to any of the domain error kinds.
func IsDomain(err error) bool {
	return IsNotFound(err) || IsValidation(err) || IsBadRequest(err) || IsUnavailable(err)
}
