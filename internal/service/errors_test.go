package service

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestErrorForStatus(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{400, "Bad Request"},
		{401, "Unauthorized"},
		{500, "Internal Server Error"},
		{503, "Service Unavailable"},
		{418, "Unknown Error"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.code), func(t *testing.T) {
			err := ErrorForStatus(tt.code, nil)
			if err.Code != tt.code {
				t.Errorf("Code = %d, want %d", err.Code, tt.code)
			}
			if err.Message != tt.want {
				t.Errorf("Message = %q, want %q", err.Message, tt.want)
			}
		})
	}
}

func TestCommandErrorUnwrap(t *testing.T) {
	err := &CommandError{Code: 0, Message: "Problem launching app", Err: io.ErrUnexpectedEOF}
	wrapped := fmt.Errorf("launch: %w", err)

	if !errors.Is(wrapped, io.ErrUnexpectedEOF) {
		t.Error("errors.Is should find the underlying error")
	}

	var ce *CommandError
	if !errors.As(wrapped, &ce) || ce.Message != "Problem launching app" {
		t.Errorf("errors.As() = %v, want CommandError", ce)
	}
}

func TestIsNotSupported(t *testing.T) {
	if !IsNotSupported(NotSupported()) {
		t.Error("IsNotSupported(NotSupported()) = false")
	}
	if IsNotSupported(ErrorForStatus(503, nil)) {
		t.Error("plain 503 should not count as not supported")
	}
	if IsNotSupported(errors.New("x")) {
		t.Error("IsNotSupported(plain error) = true")
	}
}
