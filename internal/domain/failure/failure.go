// Package failure defines the structured error taxonomy shared by the domain
// packages. Anything that is not a *failure.Error is an unexpected error and
// is propagated as is.
package failure

import (
	"strings"

	"github.com/go-faster/errors"
)

// Kind classifies a domain failure.
type Kind int

const (
	// KindValidation reports one or more invalid input fields.
	KindValidation Kind = iota + 1
	// KindNotFound reports a missing entity.
	KindNotFound
	// KindConflict reports a violated business rule or illegal state change.
	KindConflict
	// KindUnauthorized reports a missing or unknown caller identity.
	KindUnauthorized
	// KindForbidden reports a caller without the required permission.
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

// FieldError describes a single invalid field.
type FieldError struct {
	Field   string
	Message string
}

// Error is a typed domain failure. Two errors are considered equal by
// errors.Is when their codes match, so package-level sentinels can be
// compared against failures built at runtime.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Fields  []FieldError
}

func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	var b strings.Builder
	b.WriteString(e.Message)
	b.WriteString(": ")
	for i, f := range e.Fields {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(f.Field)
		b.WriteString(": ")
		b.WriteString(f.Message)
	}
	return b.String()
}

// Is reports whether target is a failure with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NotFound returns a KindNotFound failure.
func NotFound(code, message string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: message}
}

// Conflict returns a KindConflict failure.
func Conflict(code, message string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: message}
}

// Unauthorized returns a KindUnauthorized failure.
func Unauthorized(code, message string) *Error {
	return &Error{Kind: KindUnauthorized, Code: code, Message: message}
}

// Forbidden returns a KindForbidden failure.
func Forbidden(code, message string) *Error {
	return &Error{Kind: KindForbidden, Code: code, Message: message}
}

// Validation returns a KindValidation failure carrying the given fields.
func Validation(code, message string, fields ...FieldError) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message, Fields: fields}
}

// As extracts the first *Error in the chain.
func As(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// KindOf returns the kind of the first *Error in the chain, or zero if err is
// not a domain failure.
func KindOf(err error) Kind {
	if fe, ok := As(err); ok {
		return fe.Kind
	}
	return 0
}

// Fields accumulates field errors so every violation is reported at once.
type Fields []FieldError

// Add records a field error.
func (f *Fields) Add(field, message string) {
	*f = append(*f, FieldError{Field: field, Message: message})
}

// Check records a field error when ok is false.
func (f *Fields) Check(ok bool, field, message string) {
	if !ok {
		f.Add(field, message)
	}
}

// Err returns nil when no field errors were recorded, otherwise a
// KindValidation failure with all of them.
func (f Fields) Err(code, message string) error {
	if len(f) == 0 {
		return nil
	}
	return Validation(code, message, f...)
}
