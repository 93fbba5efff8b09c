package pool

import "errors"

// Sentinel kinds for pool errors.
var (
	ErrPoolClosed  = errors.New("channel pool closed")
	ErrInvalidSize = errors.New("channel pool size must be positive")
)
