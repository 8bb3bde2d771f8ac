package api

import (
	"errors"
	"fmt"
)

var (
	// ErrNetwork wraps every transport failure (DNS, refused, timeout, TLS)
	ErrNetwork = errors.New("network error")
	// ErrInvalidResponse is returned when a payload does not match its schema
	ErrInvalidResponse = errors.New("invalid response")
	// ErrRejected is returned when a 2xx body carries success=false
	ErrRejected = errors.New("request rejected")
)

// StatusError is a non-2xx answer from the partner API
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("partner api returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("partner api returned status %d: %s", e.StatusCode, e.Message)
}

// RejectedError is a 2xx answer whose body reports failure
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string {
	return e.Message
}

func (e *RejectedError) Unwrap() error {
	return ErrRejected
}

// IsNetwork reports whether err came from the transport rather than the server
func IsNetwork(err error) bool {
	return errors.Is(err, ErrNetwork)
}

// Message returns the text a user should see for err, or fallback when the
// server gave nothing usable
func Message(err error, fallback string) string {
	var se *StatusError
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	var re *RejectedError
	if errors.As(err, &re) && re.Message != "" {
		return re.Message
	}
	return fallback
}
