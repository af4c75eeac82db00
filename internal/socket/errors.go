package socket

import "errors"

var (
	ErrNotConnected = errors.New("socket: not connected")
	ErrClosed       = errors.New("socket: manager closed")
	ErrJoinRejected = errors.New("socket: join rejected by server")
)

// Terminal error codes delivered through an event's ack callback.
const (
	AckErrMaxRetries     = "max_retries_exceeded"
	AckErrStale          = "stale_discarded"
	AckErrConnectionLost = "connection_lost"
)
