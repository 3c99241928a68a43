package weft

import (
	"errors"
	"fmt"

	"github.com/syssam/weft/compiler"
	"github.com/syssam/weft/rowmap"
	"github.com/syssam/weft/schema"
)

// Standard sentinel errors for common operations.
var (
	// ErrNotFound is returned when a query expecting a row finds none.
	ErrNotFound = errors.New("weft: entity not found")

	// ErrNotSingular is returned when a query that expects exactly one
	// result returns more than one.
	ErrNotSingular = errors.New("weft: entity not singular")

	// ErrTxStarted is returned when starting a transaction on a handle
	// that is already transactional.
	ErrTxStarted = errors.New("weft: cannot start a transaction within a transaction")

	// ErrStaleVersion is returned when a version-pinned update or delete
	// affects zero rows: the row exists in the caller's snapshot but its
	// version column has moved on.
	ErrStaleVersion = errors.New("weft: stale version")
)

// Taxonomy aliases. Every error this module produces belongs to one of
// these families; the aliases let callers match all of them from the root
// package alone.
type (
	// TemplateError reports a malformed query template. Fixable only by
	// rewriting the query.
	TemplateError = compiler.TemplateError

	// ValueError reports a value that cannot be bound where the template
	// puts it.
	ValueError = compiler.ValueError

	// StructError reports an invalid entity declaration. Fixable only by
	// fixing the struct.
	StructError = schema.StructError

	// CycleError reports a record graph that loops without a lazy
	// reference breaking the cycle.
	CycleError = schema.CycleError

	// DataError reports a row that cannot be mapped onto its target type.
	DataError = rowmap.DataError
)

// IsTemplateError reports whether err is a template-shape error.
func IsTemplateError(err error) bool { return compiler.IsTemplateError(err) }

// IsValueError reports whether err is a value-binding error.
func IsValueError(err error) bool { return compiler.IsValueError(err) }

// IsStructError reports whether err is an entity-declaration error.
func IsStructError(err error) bool { return schema.IsStructError(err) }

// IsDataError reports whether err is a row-mapping error.
func IsDataError(err error) bool { return rowmap.IsDataError(err) }

// NotFoundError represents an error when an entity is not found.
type NotFoundError struct {
	label string
	id    any
}

// Error returns the error string.
func (e *NotFoundError) Error() string {
	if e.id != nil {
		return fmt.Sprintf("weft: %s not found (id=%v)", e.label, e.id)
	}
	return fmt.Sprintf("weft: %s not found", e.label)
}

// Is reports whether the target error matches NotFoundError, so that
// errors.Is(err, ErrNotFound) holds for every not-found failure.
func (e *NotFoundError) Is(err error) bool {
	return err == ErrNotFound
}

// Label returns the entity label.
func (e *NotFoundError) Label() string {
	return e.label
}

// ID returns the key that was searched for, if known.
func (e *NotFoundError) ID() any {
	return e.id
}

// NewNotFoundError returns a new NotFoundError for the given entity type.
func NewNotFoundError(label string) *NotFoundError {
	return &NotFoundError{label: label}
}

// NewNotFoundErrorWithID returns a new NotFoundError carrying the key that
// was searched for.
func NewNotFoundErrorWithID(label string, id any) *NotFoundError {
	return &NotFoundError{label: label, id: id}
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *NotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrNotFound)
}

// NotSingularError represents an error when a query expects a singular
// result but receives more than one.
type NotSingularError struct {
	label string
}

// Error returns the error string.
func (e *NotSingularError) Error() string {
	return fmt.Sprintf("weft: %s not singular", e.label)
}

// Is reports whether the target error matches NotSingularError.
func (e *NotSingularError) Is(err error) bool {
	return err == ErrNotSingular
}

// Label returns the entity label.
func (e *NotSingularError) Label() string {
	return e.label
}

// NewNotSingularError returns a new NotSingularError for the given entity
// type.
func NewNotSingularError(label string) *NotSingularError {
	return &NotSingularError{label: label}
}

// IsNotSingular returns true if the error is a NotSingularError.
func IsNotSingular(err error) bool {
	if err == nil {
		return false
	}
	var e *NotSingularError
	return errors.As(err, &e) || errors.Is(err, ErrNotSingular)
}

// VersionError reports an optimistic-lock conflict: a version-pinned write
// matched no rows because the stored version is no longer the one the
// caller read.
type VersionError struct {
	label string
}

// Error returns the error string.
func (e *VersionError) Error() string {
	if e.label == "" {
		return "weft: stale version"
	}
	return fmt.Sprintf("weft: stale %s version", e.label)
}

// Is reports whether the target error matches VersionError.
func (e *VersionError) Is(err error) bool {
	return err == ErrStaleVersion
}

// Label returns the entity label, if known.
func (e *VersionError) Label() string {
	return e.label
}

// NewVersionError returns a new VersionError for the given entity type.
func NewVersionError(label string) *VersionError {
	return &VersionError{label: label}
}

// IsVersionError returns true if the error is a VersionError.
func IsVersionError(err error) bool {
	if err == nil {
		return false
	}
	var e *VersionError
	return errors.As(err, &e) || errors.Is(err, ErrStaleVersion)
}

// ConstraintError represents a database constraint violation error.
type ConstraintError struct {
	msg  string
	wrap error
}

// Error returns the error string.
func (e ConstraintError) Error() string {
	return fmt.Sprintf("weft: constraint failed: %s", e.msg)
}

// Unwrap returns the underlying error.
func (e ConstraintError) Unwrap() error {
	return e.wrap
}

// NewConstraintError returns a new ConstraintError with the given message.
func NewConstraintError(msg string, wrap error) error {
	return ConstraintError{msg: msg, wrap: wrap}
}

// IsConstraintError returns true if the error is a ConstraintError.
func IsConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var e ConstraintError
	return errors.As(err, &e)
}

// RollbackError wraps an error that occurred while rolling a transaction
// back, preserving the error that triggered the rollback.
type RollbackError struct {
	Err error
}

// Error returns the error string.
func (e *RollbackError) Error() string {
	return fmt.Sprintf("weft: rollback failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *RollbackError) Unwrap() error {
	return e.Err
}
