package mailsync

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a message or page does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNoActiveConnection is returned by sync and webhook ingestion before
	// the user's account is linked.
	ErrNoActiveConnection = errors.New("no active connection found")
	// ErrValidation marks malformed payloads and request fields.
	ErrValidation = errors.New("validation error")
	// ErrInvalidTransition is returned when a connection cannot move to the
	// requested state.
	ErrInvalidTransition = errors.New("invalid connection state transition")
)

// ConnectorError wraps a failed call to the external mail connector.
type ConnectorError struct {
	Op  string
	Err error
}

func (e *ConnectorError) Error() string {
	return fmt.Sprintf("connector %s failed: %v", e.Op, e.Err)
}

func (e *ConnectorError) Unwrap() error {
	return e.Err
}

func connectorError(op string, err error) error {
	return &ConnectorError{Op: op, Err: err}
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
