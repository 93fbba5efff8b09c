package worker

import "errors"

// Sentinel kinds for consumer errors.
var (
	ErrAlreadyStarted    = errors.New("consumer pool already started")
	ErrNotStarted        = errors.New("consumer pool not started")
	ErrDeliveriesStopped = errors.New("broker stopped delivering")
)
