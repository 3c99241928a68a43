package schema

import (
	"errors"
	"fmt"
	"strings"
)

// StructError reports an entity declaration that violates the structural
// rules: conflicting tag options, misplaced key roles, a foreign key on a
// non-record field, or an unresolvable column layout.
type StructError struct {
	Type   string // Go type name
	Field  string // offending field name, empty for type-level violations
	Reason string
}

// Error returns the error string.
func (e *StructError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("schema: invalid type %s: field %s: %s", e.Type, e.Field, e.Reason)
	}
	return fmt.Sprintf("schema: invalid type %s: %s", e.Type, e.Reason)
}

// NewStructError returns a new StructError for the given type and field.
func NewStructError(typ, field, reason string) *StructError {
	return &StructError{Type: typ, Field: field, Reason: reason}
}

// IsStructError returns true if the error is a StructError.
func IsStructError(err error) bool {
	if err == nil {
		return false
	}
	var e *StructError
	return errors.As(err, &e)
}

// CycleError reports a cyclic record graph. Path holds the ordered type-name
// chain from the validation root to the repeated type, repeated type last.
type CycleError struct {
	Path []string
}

// Error returns the error string.
func (e *CycleError) Error() string {
	return fmt.Sprintf("schema: cyclic record graph: %s", strings.Join(e.Path, " -> "))
}

// IsCycleError returns true if the error is a CycleError.
func IsCycleError(err error) bool {
	if err == nil {
		return false
	}
	var e *CycleError
	return errors.As(err, &e)
}
