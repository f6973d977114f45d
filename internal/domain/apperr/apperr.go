// Package apperr defines the error taxonomy shared by the storefront domain
// packages. Handlers map these kinds to HTTP responses; domain code only
// produces them.
package apperr

import (
	"fmt"

	"github.com/go-faster/errors"
)

// ErrAuthRequired is returned when an operation needs a bound identity and
// the session is anonymous. Callers should redirect to authentication.
var ErrAuthRequired = errors.New("must authenticate")

// ValidationError reports invalid user input. The operation was aborted
// before any write.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validation returns a *ValidationError for field.
func Validation(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

// PersistenceError wraps a failed read or write against a backing store.
// Local state is left unchanged so the operation can be retried.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Persistence wraps err as a *PersistenceError for op. A nil err yields nil
// and an error that already is a PersistenceError is returned unchanged.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsPersistence reports whether err is a *PersistenceError.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
