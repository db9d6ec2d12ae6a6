package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectionLost is returned when reconnection attempts are exhausted.
	// It is fatal to the session.
	ErrConnectionLost = errors.New("connection lost: reconnection attempts exhausted")

	// ErrSendBufferFull is returned when the bounded outbound buffer overflows.
	ErrSendBufferFull = errors.New("outbound buffer full")

	// ErrChannelClosed is returned when sending on a closed channel.
	ErrChannelClosed = errors.New("transport channel is closed")
)

// ConnectionError wraps a transient connection failure.
type ConnectionError struct {
	Endpoint string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to %s: %v", e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}
