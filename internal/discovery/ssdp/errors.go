package ssdp

import (
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
)

// FetchErrorType is the category of a description fetch failure
type FetchErrorType int

const (
	// FetchErrNetwork indicates a network-level failure
	FetchErrNetwork FetchErrorType = iota
	// FetchErrTimeout indicates the request did not finish within FetchTimeout
	FetchErrTimeout
	// FetchErrConnectionRefused indicates the device refused the connection
	FetchErrConnectionRefused
	// FetchErrHTTP indicates a non-200 response
	FetchErrHTTP
	// FetchErrParse indicates a malformed description document
	FetchErrParse
	// FetchErrInvalidURL indicates a LOCATION that is not an http(s) URL
	FetchErrInvalidURL
)

// String returns a human-readable name for the error type
func (t FetchErrorType) String() string {
	switch t {
	case FetchErrNetwork:
		return "network"
	case FetchErrTimeout:
		return "timeout"
	case FetchErrConnectionRefused:
		return "connection refused"
	case FetchErrHTTP:
		return "http"
	case FetchErrParse:
		return "parse"
	case FetchErrInvalidURL:
		return "invalid url"
	default:
		return fmt.Sprintf("FetchErrorType(%d)", int(t))
	}
}

// FetchError is returned when a description could not be retrieved or
// parsed. StatusCode is set for HTTP failures.
type FetchError struct {
	Type       FetchErrorType
	Location   string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Type == FetchErrHTTP {
		return fmt.Sprintf("fetch %s: HTTP %d", e.Location, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.Location, e.Type, e.Err)
}

// Unwrap returns the underlying error
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retryable reports whether a later sighting may succeed where this fetch
// failed. Parse and URL failures repeat until the device changes.
func (e *FetchError) Retryable() bool {
	switch e.Type {
	case FetchErrParse, FetchErrInvalidURL:
		return false
	case FetchErrHTTP:
		return e.StatusCode >= 500
	default:
		return true
	}
}

// ClassifyFetchError wraps a transport error from fetching location
func ClassifyFetchError(err error, location string) *FetchError {
	if err == nil {
		return nil
	}

	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}

	if os.IsTimeout(err) || errors.Is(err, os.ErrDeadlineExceeded) {
		return &FetchError{Type: FetchErrTimeout, Location: location, Err: err}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && errors.Is(opErr.Err, syscall.ECONNREFUSED) {
		return &FetchError{Type: FetchErrConnectionRefused, Location: location, Err: err}
	}

	return &FetchError{Type: FetchErrNetwork, Location: location, Err: err}
}
