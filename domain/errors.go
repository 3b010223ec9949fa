package domain

import "errors"

var (
	ErrUnauthenticated    = errors.New("not authenticated")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrAlreadyShared      = errors.New("this task is already shared with this user")
	ErrShareWithSelf      = errors.New("you cannot share a task with yourself")
	ErrInvalidCredentials = errors.New("invalid login credentials")
	ErrEmailNotVerified   = errors.New("email not confirmed")
	ErrEmailTaken         = errors.New("an account with this email already exists")
)

// ValidationError is raised before any storage call and points at the
// offending input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
