package client

import (
	"errors"
	"fmt"
)

// Sentinel kinds for transport errors.
var (
	ErrClientClosed      = errors.New("transport client closed")
	ErrUnexpectedStatus  = errors.New("unexpected status")
	ErrShutdownTimeout   = errors.New("in-flight requests outlived the grace period")
	ErrInvalidBaseURL    = errors.New("invalid base url")
	ErrEncodeRequestBody = errors.New("encode request body")
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Code int
	Body []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// Is lets errors.Is match ErrUnexpectedStatus.
func (e *StatusError) Is(target error) bool { return target == ErrUnexpectedStatus }

// StatusCode extracts the HTTP status from err, or 0 when err carries none.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}
