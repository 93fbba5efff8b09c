package broker

import "errors"

// Sentinel kinds for broker errors.
var (
	ErrConnectionClosed = errors.New("broker connection closed")
	ErrChannelClosed    = errors.New("broker channel closed")
	ErrUnknownQueue     = errors.New("queue not declared")
	ErrUnknownTag       = errors.New("unknown delivery tag")
	ErrNoAcknowledger   = errors.New("delivery has no acknowledger")
	ErrDial             = errors.New("dial broker")
)
