package tracker

import (
	"errors"
	"fmt"
)

// Validation errors, surfaced synchronously before any side effect.
var (
	// ErrTrackerStopped indicates the tracker's event loop is not running.
	ErrTrackerStopped = errors.New("tracker stopped")

	// ErrTooManyCalls indicates foreground and background are both occupied.
	ErrTooManyCalls = errors.New("too many calls")

	// ErrAlreadyDialing indicates another outgoing dial is pending.
	ErrAlreadyDialing = errors.New("dial already pending")

	// ErrRingingActive indicates an unanswered incoming call exists.
	ErrRingingActive = errors.New("incoming call is ringing")

	// ErrNotRinging indicates there is no incoming call to answer or reject.
	ErrNotRinging = errors.New("no ringing call")

	// ErrNoActiveCall indicates there is no active foreground call.
	ErrNoActiveCall = errors.New("no active call")

	// ErrNoHeldCall indicates there is no held background call.
	ErrNoHeldCall = errors.New("no held call")

	// ErrHoldInProgress indicates a hold, resume or answer request is
	// already outstanding. One at a time.
	ErrHoldInProgress = errors.New("hold or resume already in progress")

	// ErrConnectionNotFound indicates the connection ID is unknown.
	ErrConnectionNotFound = errors.New("connection not found")

	// ErrInvalidAddress indicates an empty or malformed dial address.
	ErrInvalidAddress = errors.New("invalid address")
)

// CallError wraps a call-control failure with the operation and address
// it applied to.
type CallError struct {
	Op      string
	Address string
	Err     error
}

// Error returns the error message.
func (e *CallError) Error() string {
	if e.Address != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Address, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *CallError) Unwrap() error {
	return e.Err
}

func callErr(op, address string, err error) error {
	return &CallError{Op: op, Address: address, Err: err}
}
