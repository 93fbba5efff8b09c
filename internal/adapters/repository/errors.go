package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound       = errors.New("lift ride not found")
	ErrStoreClosed    = errors.New("store closed")
	ErrInvalidRecord  = errors.New("record has no day/season key")
	ErrUnknownBackend = errors.New("unknown store backend")
	ErrCorruptRecord  = errors.New("stored record is malformed")
)
