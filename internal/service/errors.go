package service

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a lead, activity, product or user does not exist
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique constraint would be violated
	ErrConflict = errors.New("already exists")
	// ErrForbidden is returned when the actor lacks the privilege for an operation
	ErrForbidden = errors.New("access denied")
	// ErrInvalidCredentials is returned by Authenticate for any login failure
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// ValidationError is a caller mistake with a reason that can be shown as is.
// Nothing is written when an operation returns one.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func validationf(format string, args ...interface{}) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Actor is the staff user performing an operation
type Actor struct {
	UserID      uint
	IsSuperuser bool
}
