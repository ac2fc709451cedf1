package lockmgr

import (
	"errors"
	"fmt"
	"strings"
)

// Lock manager errors
var (
	// ErrInvalidArgument is returned when the configuration or the arguments of
	// a call are malformed. Nothing is changed when it is returned.
	ErrInvalidArgument = errors.New("lockmgr: invalid argument")

	// ErrConflict is returned (wrapped by the error built with
	// Config.AcquireError) when requested locks cannot be granted in any of the
	// requested modes.
	ErrConflict = errors.New("lockmgr: some requested locks cannot be acquired")
)

// invalidArgument builds a validation error for the named argument
func invalidArgument(name, expected string, value any) error {
	return fmt.Errorf("%w: argument %q should be %s, got %v", ErrInvalidArgument, name, expected, value)
}

// --------------------------------------------------------------------------
// Acquire Error
// --------------------------------------------------------------------------

// Conflict pairs a lock request that could not be granted with the held lock
// it collided with. The holder may sit on an ancestor of the requested key,
// it is nil if it could not be determined.
type Conflict struct {
	Request Item
	Holder  *Lock
}

// String returns a short human-readable form of the conflict
func (c Conflict) String() string {
	req := fmt.Sprintf("%s on %q", c.Request.Mode, c.Request.Key)
	if c.Request.Owner != nil {
		req += fmt.Sprintf(" by %q", fmt.Sprint(c.Request.Owner))
	}
	if c.Holder == nil {
		return req
	}
	return req + " conflicts with " + c.Holder.String()
}

// AcquireError is the default error returned when an acquire fails because of
// conflicting locks. It matches ErrConflict with errors.Is.
type AcquireError struct {
	Conflicts []Conflict
}

// NewAcquireError is the default Config.AcquireError constructor.
func NewAcquireError(conflicts []Conflict) error {
	return &AcquireError{Conflicts: conflicts}
}

// Error implements the error interface.
func (e *AcquireError) Error() string {
	if len(e.Conflicts) == 0 {
		return ErrConflict.Error()
	}
	parts := make([]string, len(e.Conflicts))
	for i, c := range e.Conflicts {
		parts[i] = c.String()
	}
	return fmt.Sprintf("%s: %s", ErrConflict, strings.Join(parts, "; "))
}

// Unwrap returns ErrConflict.
func (e *AcquireError) Unwrap() error {
	return ErrConflict
}
