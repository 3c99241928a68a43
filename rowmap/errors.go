package rowmap

import (
	"errors"
	"fmt"
)

// DataError reports a row whose values cannot populate the target record:
// a NULL in a non-nullable position, an ordinal enum that does not decode
// to a number, or a column value with no conversion to the field type.
// Data errors are per-row; the next row may scan cleanly.
type DataError struct {
	typeName string
	field    string
	reason   string
}

// NewDataError returns a DataError for the named type and field. The
// field may be empty when the whole row is at fault.
func NewDataError(typeName, field, reason string) *DataError {
	return &DataError{typeName: typeName, field: field, reason: reason}
}

func (e *DataError) Error() string {
	if e.field == "" {
		return fmt.Sprintf("rowmap: %s: %s", e.typeName, e.reason)
	}
	return fmt.Sprintf("rowmap: %s.%s: %s", e.typeName, e.field, e.reason)
}

// TypeName returns the record type that failed to scan.
func (e *DataError) TypeName() string { return e.typeName }

// Field returns the field at fault, if any.
func (e *DataError) Field() string { return e.field }

// IsDataError reports whether err carries a DataError.
func IsDataError(err error) bool {
	if err == nil {
		return false
	}
	var e *DataError
	return errors.As(err, &e)
}
