package rpc

import (
	"errors"
	"fmt"
)

var (
	ErrNotReady        = errors.New("session is not ready")
	ErrClosed          = errors.New("session is closed")
	ErrTimeout         = errors.New("no matching response")
	ErrHandshakeFailed = errors.New("handshake failed")
)

// RemoteError is an explicit error response from the server for one request.
type RemoteError struct {
	Code    int64
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error %d: %s", e.Code, e.Message)
}
