package call

import (
	"errors"
	"fmt"
)

// Sentinel errors for use with errors.Is.
var (
	// ErrAlreadyAttached indicates the connection belongs to a slot.
	ErrAlreadyAttached = errors.New("connection already attached")

	// ErrNotAttached indicates the connection does not belong to this slot.
	ErrNotAttached = errors.New("connection not attached to slot")
)

// SlotError wraps a slot operation failure with the slot's role.
type SlotError struct {
	Role Role
	Op   string
	Err  error
}

// Error returns the error message.
func (e *SlotError) Error() string {
	return fmt.Sprintf("%s slot: %s: %v", e.Role, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *SlotError) Unwrap() error {
	return e.Err
}
