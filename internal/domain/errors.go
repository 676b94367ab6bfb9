package domain

import "errors"

// Domain errors for the tracking relay.
var (
	// ErrUnauthorized is returned when a principal is not allowed to publish
	// or subscribe to a delivery.
	ErrUnauthorized = errors.New("principal not authorized for delivery")

	// ErrDeliveryNotFound is returned when a delivery is unknown to the
	// external delivery lifecycle.
	ErrDeliveryNotFound = errors.New("delivery not found")

	// ErrDeliveryTerminal is returned when a delivery has reached a terminal
	// status and no longer accepts connections or samples.
	ErrDeliveryTerminal = errors.New("delivery is in a terminal state")

	// ErrStreamClosed is returned when appending to a closed location stream.
	ErrStreamClosed = errors.New("location stream is closed")

	// ErrNotAuthorizedDriver is returned when a position report arrives on a
	// connection that is not the authoritative driver for its delivery.
	ErrNotAuthorizedDriver = errors.New("connection is not the authoritative driver")

	// ErrSupersededConnection is returned to a driver connection that lost
	// authority to a newer authenticated session for the same delivery.
	ErrSupersededConnection = errors.New("driver connection superseded by a newer session")

	// ErrConnectionNotFound is returned when a connection ID is unknown to
	// the session registry.
	ErrConnectionNotFound = errors.New("connection not found")

	// ErrConnectionClosed is returned when operating on a closed connection.
	ErrConnectionClosed = errors.New("connection is closed")

	// ErrInvalidSample is returned when a position sample fails geometry or
	// range validation. A single invalid sample is dropped; the connection
	// stays open.
	ErrInvalidSample = errors.New("invalid position sample")

	// ErrSampleThrottled is returned when a sample arrives faster than the
	// configured minimum report interval and is dropped without an append.
	ErrSampleThrottled = errors.New("position sample throttled")

	// ErrInvalidToken is returned when a tracking token fails verification.
	ErrInvalidToken = errors.New("invalid tracking token")

	// ErrTokenExpired is returned when a tracking token is past its expiry.
	ErrTokenExpired = errors.New("tracking token expired")
)

// ValidationError describes a field-level validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

func (e ValidationError) Unwrap() error {
	return ErrInvalidSample
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) ValidationError {
	return ValidationError{
		Field:   field,
		Message: message,
	}
}
