package api

import (
	"errors"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest = errors.New("bad request")
	ErrPublish    = errors.New("publish failed")
)

// KindError tags a cause with the operation that failed and a sentinel kind.
type KindError struct {
	Op   string
	Kind error
	Err  error
}

// WrapKind builds a KindError around cause.
func WrapKind(op string, kind, cause error) error {
	return &KindError{Op: op, Kind: kind, Err: cause}
}

// NewKind builds a KindError without a cause.
func NewKind(op string, kind error) error {
	return &KindError{Op: op, Kind: kind}
}

func (e *KindError) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.Error()
	}
	return e.Op + ": " + e.Kind.Error() + ": " + e.Err.Error()
}

func (e *KindError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
