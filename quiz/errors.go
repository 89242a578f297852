package quiz

import (
	"errors"
	"fmt"
)

// ErrSessionSubmitted is the state error for any interaction with a
// session that already reached its terminal state.
var ErrSessionSubmitted = errors.New("quiz has already been submitted")

// ValidationError is a user-correctable failure with a field-keyed
// message, translated by the HTTP boundary into a 4xx response.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func newValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}
