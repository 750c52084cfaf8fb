package criteria

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the engine and the stores wraps exactly
// one of these, so callers can branch with errors.Is.
var (
	// ErrValidation marks malformed or incomplete rule, procedure or finding input.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks a reference to a procedure or rule that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a concurrent modification detected by the store.
	ErrConflict = errors.New("conflict")

	// ErrDependency marks an unavailable storage or library collaborator.
	ErrDependency = errors.New("dependency unavailable")
)

// Error carries the failing operation and an optional underlying cause
// alongside its kind.
type Error struct {
	// Kind is one of ErrValidation, ErrNotFound, ErrConflict, ErrDependency.
	Kind error

	// Op is the operation that failed, e.g. "CreateRule".
	Op string

	// Msg is a human-readable description.
	Msg string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.Error()
	}
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, msg, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// ValidationError builds an ErrValidation error.
func ValidationError(op, format string, args ...any) *Error {
	return &Error{Kind: ErrValidation, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError builds an ErrNotFound error for the named entity.
func NotFoundError(op, entity, id string) *Error {
	return &Error{Kind: ErrNotFound, Op: op, Msg: fmt.Sprintf("%s %q not found", entity, id)}
}

// ConflictError builds an ErrConflict error.
func ConflictError(op, format string, args ...any) *Error {
	return &Error{Kind: ErrConflict, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// DependencyError wraps a collaborator failure.
func DependencyError(op string, err error) *Error {
	return &Error{Kind: ErrDependency, Op: op, Err: err}
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict reports whether err is a conflict error.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsDependency reports whether err is a dependency error.
func IsDependency(err error) bool { return errors.Is(err, ErrDependency) }

// Retryable reports whether the caller may retry the operation: conflicts after
// a refetch, dependency failures with backoff. The engine itself never retries.
func Retryable(err error) bool {
	return IsConflict(err) || IsDependency(err)
}
