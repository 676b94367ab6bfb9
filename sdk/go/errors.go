package track

import (
	"errors"
	"fmt"
	"net/http"
)

// Common errors returned by the client.
var (
	// ErrUnauthorized is returned when the token is invalid, expired, or
	// bound to a different delivery or role.
	ErrUnauthorized = errors.New("unauthorized: invalid or missing token")

	// ErrNotFound is returned when the delivery or its position is unknown.
	ErrNotFound = errors.New("not found")

	// ErrTerminal is returned when the delivery has reached a terminal
	// state and no longer accepts tracking.
	ErrTerminal = errors.New("delivery terminal")

	// ErrBadRequest is returned for invalid request parameters.
	ErrBadRequest = errors.New("bad request: invalid parameters")

	// ErrServerError is returned for internal server errors.
	ErrServerError = errors.New("server error")

	// ErrSuperseded is returned when a newer session took over as the
	// authoritative driver for the delivery.
	ErrSuperseded = errors.New("superseded by a newer driver session")

	// ErrClosed is returned when the connection has been closed.
	ErrClosed = errors.New("connection closed")
)

// APIError represents an error response from the tracking API.
type APIError struct {
	// StatusCode is the HTTP status code.
	StatusCode int `json:"-"`

	// Message is the error message.
	Message string `json:"error"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("track: %s (HTTP %d)", e.Message, e.StatusCode)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrTerminal
	case http.StatusBadRequest:
		return ErrBadRequest
	default:
		if e.StatusCode >= 500 {
			return ErrServerError
		}
		return nil
	}
}

// IsUnauthorized returns true if the error is an authorization error.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsTerminal returns true if the error means the delivery is terminal.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrTerminal)
}

// IsSuperseded returns true if a newer driver session took over.
func IsSuperseded(err error) bool {
	return errors.Is(err, ErrSuperseded)
}
