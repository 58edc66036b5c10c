package drive

import (
	"errors"
	"fmt"
)

// ErrBusy rejects an operation because a conflicting one is still in
// flight. It is transient: the caller may retry immediately once the
// pending operation settles.
var ErrBusy = errors.New("operation already in flight")

// ValidationError is a client-detected failure found before any remote
// call is issued. It is never sent to the network.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid operation: %s", e.Reason)
}

// AsValidation checks if an error is a ValidationError and returns it.
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

func validationf(format string, args ...interface{}) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}
