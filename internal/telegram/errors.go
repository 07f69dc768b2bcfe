package telegram

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means Telegram no longer resolves the requested content.
	ErrNotFound = errors.New("file not found on telegram")

	// ErrTimeout means the transfer deadline expired before the transport
	// finished. Distinct from TransportError so callers can map it to a
	// retry-with-a-bigger-budget response.
	ErrTimeout = errors.New("telegram transfer timed out")

	// ErrResolution means no resolution strategy produced a confirmed peer.
	ErrResolution = errors.New("cannot resolve destination chat")
)

// TransportError carries the remote platform's diagnostic text for a
// rejected or failed operation. Never retried internally.
type TransportError struct {
	Op     string // "sendDocument", "getFile", ...
	Detail string // remote description, if any
	Err    error
}

func (e *TransportError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("telegram %s failed: %s", e.Op, e.Detail)
	}
	return fmt.Sprintf("telegram %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func transportErr(op string, err error) *TransportError {
	return &TransportError{Op: op, Detail: remoteDetail(err), Err: err}
}

// remoteDetail extracts human-readable diagnostic text from a wrapped error.
func remoteDetail(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
