package activitypub

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound reports an absent local account or post.
	ErrNotFound = errors.New("not found")
	// ErrMalformed marks inbound input that lacks a required field.
	ErrMalformed = errors.New("malformed activity")
	// ErrActorRejected is returned by PersistActor for unusable actor data.
	ErrActorRejected = errors.New("actor rejected")
	// ErrNotActor is returned by lookups that resolve to something other
	// than an actor.
	ErrNotActor = errors.New("not an actor")
	// ErrAccountExists is returned when setup runs a second time.
	ErrAccountExists = errors.New("account already exists")
)

// ValidationError is a rejected local request. Reason is shown to the user.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func validationErrorf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

func malformedf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}
