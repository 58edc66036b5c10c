package gateway

import (
	"errors"
	"fmt"
)

// ConflictError is returned when the server rejects an operation the
// client thought valid: a failed cycle check, a target folder deleted
// concurrently, a node that no longer exists.
type ConflictError struct {
	Op     string
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s rejected: %s", e.Op, e.Reason)
}

// AsConflict checks if an error is a ConflictError and returns it.
func AsConflict(err error) (*ConflictError, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// RemoteError wraps a transport failure or server-side exception.
type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// AsRemote checks if an error is a RemoteError and returns it.
func AsRemote(err error) (*RemoteError, bool) {
	var re *RemoteError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
