package danmaku

import "errors"

var (
	// ErrInvalidInput marks comments that must never reach the timeline or the store.
	ErrInvalidInput = errors.New("invalid input")
	// ErrTransientIO marks fetch, submit and subscribe failures. Callers may retry.
	ErrTransientIO = errors.New("transient io failure")
	// ErrStateViolation marks calls made in a state that does not allow them.
	ErrStateViolation = errors.New("state violation")
)

// InputError carries a user-facing reason and matches ErrInvalidInput.
type InputError struct {
	Reason string
}

func (e *InputError) Error() string { return e.Reason }

func (e *InputError) Unwrap() error { return ErrInvalidInput }

func invalid(reason string) error {
	return &InputError{Reason: reason}
}
