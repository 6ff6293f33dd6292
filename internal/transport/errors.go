package transport

import (
	"errors"
	"fmt"
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrNotStarted       = errors.New("transport not started")
	ErrAlreadyStarted   = errors.New("transport already started")
)

// SpawnError reports that the child process could not be launched.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to start %s: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// ProtocolError reports a line that could not be decoded as a JSON-RPC
// message. The offending line is dropped; the stream itself stays usable.
type ProtocolError struct {
	Line []byte
	Err  error
}

func (e *ProtocolError) Error() string {
	const maxShown = 120
	line := string(e.Line)
	if len(line) > maxShown {
		line = line[:maxShown] + "..."
	}
	return fmt.Sprintf("malformed message %q: %v", line, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}
