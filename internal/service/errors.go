package service

import (
	"errors"
	"fmt"
)

// ErrMissingLocationXML is returned by providers that need the raw device
// description and got a sighting without one.
var ErrMissingLocationXML = errors.New("service description has no location XML")

// Error codes used by CommandError besides HTTP status codes.
const (
	CodeGeneric      = 0
	CodeNotSupported = 503
)

// CommandError is the error surfaced to applications for failed service
// commands and connections. It carries a numeric code (usually the HTTP
// status of the failed request) and an optional payload.
type CommandError struct {
	Code    int
	Message string
	Payload any
	Err     error
}

// Error implements the error interface
func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("service command error %d: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("service command error %d: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for error chain inspection
func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewCommandError creates a CommandError with a message and payload.
func NewCommandError(code int, message string, payload any) *CommandError {
	return &CommandError{Code: code, Message: message, Payload: payload}
}

// ErrorForStatus maps an HTTP status code to a CommandError.
func ErrorForStatus(code int, payload any) *CommandError {
	var msg string
	switch code {
	case 400:
		msg = "Bad Request"
	case 401:
		msg = "Unauthorized"
	case 500:
		msg = "Internal Server Error"
	case 503:
		msg = "Service Unavailable"
	default:
		msg = "Unknown Error"
	}
	return &CommandError{Code: code, Message: msg, Payload: payload}
}

// NotSupported is returned for commands a service does not implement.
func NotSupported() *CommandError {
	return &CommandError{Code: CodeNotSupported, Message: "not supported"}
}

// IsNotSupported checks if an error is a not-supported CommandError.
func IsNotSupported(err error) bool {
	var ce *CommandError
	if errors.As(err, &ce) {
		return ce.Code == CodeNotSupported && ce.Message == "not supported"
	}
	return false
}
