package projector

import (
	"errors"
	"fmt"
)

// ErrorKind classifies transient device errors carried inside a CommandResult.
type ErrorKind string

const (
	ErrorUnreachable       ErrorKind = "unreachable"
	ErrorDeviceRejected    ErrorKind = "device_rejected"
	ErrorMalformedResponse ErrorKind = "malformed_response"
)

// Error is a transient device error: the exchange was attempted but the
// device could not be reached, rejected the request, or answered garbage.
type Error struct {
	Kind  ErrorKind
	Op    string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.cause
}

func newError(kind ErrorKind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, cause: cause}
}

// ErrorKindOf extracts the ErrorKind from err, or "" if err is not a
// device error.
func ErrorKindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// ConfigError means a profile violates an invariant. It is a programming or
// configuration mistake, never retried.
type ConfigError struct {
	Profile string
	Reason  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("profile %q: %s", e.Profile, e.Reason)
}

// UnknownProfileError is returned by the registry for a type name that was
// never registered.
type UnknownProfileError struct {
	Type string
}

func (e *UnknownProfileError) Error() string {
	return fmt.Sprintf("unknown projector profile %q", e.Type)
}

// UnknownCommandError is returned when a command name is absent from a
// profile's command table.
type UnknownCommandError struct {
	Profile string
	Command string
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("profile %q has no command %q", e.Profile, e.Command)
}
