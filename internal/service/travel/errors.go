package travel

import "errors"

// Validation errors block an action before the agent is called. They are
// shown to the user as warnings.
var (
	ErrEmptyQuery         = errors.New("please enter a travel query to get started")
	ErrMissingEmailFields = errors.New("please fill out all email fields")
	ErrInvalidEmail       = errors.New("receiver email address is invalid")
	ErrNoTravelInfo       = errors.New("no travel information to send; run a query first")
)

// IsValidation reports whether err is a validation error rather than a dispatch failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrEmptyQuery) ||
		errors.Is(err, ErrMissingEmailFields) ||
		errors.Is(err, ErrInvalidEmail) ||
		errors.Is(err, ErrNoTravelInfo)
}

// DispatchError wraps a failure raised while the agent was running.
type DispatchError struct {
	Op  string
	Err error
}

func (e *DispatchError) Error() string {
	return e.Err.Error()
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}
