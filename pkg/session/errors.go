package session

import "errors"

var (
	// ErrBusy is returned when a turn is active and the single queued slot is
	// already taken.
	ErrBusy = errors.New("session is busy")

	// ErrNotStarted is returned for operations that need a live connection.
	ErrNotStarted = errors.New("session not started")

	// ErrEnded is returned once the session has been torn down.
	ErrEnded = errors.New("session ended")
)
