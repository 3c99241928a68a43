package compiler

import (
	"errors"
	"fmt"
)

// TemplateError reports a malformed query template: a value used in a
// position that cannot accept it, conflicting primary statement elements,
// an ambiguous object argument, or a fragment/value misalignment. Template
// errors are caller errors; the template must be rewritten.
type TemplateError struct {
	msg string
}

// NewTemplateError formats a new TemplateError.
func NewTemplateError(format string, args ...any) *TemplateError {
	return &TemplateError{msg: fmt.Sprintf(format, args...)}
}

func (e *TemplateError) Error() string {
	return "compiler: " + e.msg
}

// IsTemplateError reports whether err carries a TemplateError.
func IsTemplateError(err error) bool {
	if err == nil {
		return false
	}
	var e *TemplateError
	return errors.As(err, &e)
}

// ValueError reports a runtime value that cannot be bound: a null or
// default value in a primary-key or non-nullable foreign-key position, or
// an argument whose type does not fit the columns it resolves to.
type ValueError struct {
	typeName string
	field    string
	reason   string
}

// NewValueError returns a ValueError for the named type and field. The
// field may be empty when the whole argument is at fault.
func NewValueError(typeName, field, reason string) *ValueError {
	return &ValueError{typeName: typeName, field: field, reason: reason}
}

func (e *ValueError) Error() string {
	if e.field == "" {
		return fmt.Sprintf("compiler: %s: %s", e.typeName, e.reason)
	}
	return fmt.Sprintf("compiler: %s.%s: %s", e.typeName, e.field, e.reason)
}

// TypeName returns the record type the faulty value belongs to.
func (e *ValueError) TypeName() string { return e.typeName }

// Field returns the field at fault, if any.
func (e *ValueError) Field() string { return e.field }

// IsValueError reports whether err carries a ValueError.
func IsValueError(err error) bool {
	if err == nil {
		return false
	}
	var e *ValueError
	return errors.As(err, &e)
}
