package schema

import "sync"

// Converter maps one field value to and from a fixed number of columns.
// Implementations must be safe for concurrent use; a converter is looked up
// by the name given in the field's `convert=` tag option.
type Converter interface {
	// Columns returns the number of columns the converter reads and writes.
	Columns() int
	// ToColumns decomposes a field value into its column values, in column
	// order.
	ToColumns(v any) ([]any, error)
	// FromColumns reassembles a field value from its column values.
	FromColumns(cols []any) (any, error)
}

var converters sync.Map // name -> Converter

// RegisterConverter registers a named converter, typically from an init
// function. It panics on an empty name, a nil converter, or a duplicate
// registration, following the database/sql driver registry convention.
func RegisterConverter(name string, c Converter) {
	if name == "" {
		panic("schema: converter name must not be empty")
	}
	if c == nil {
		panic("schema: RegisterConverter: nil converter " + name)
	}
	if _, dup := converters.LoadOrStore(name, c); dup {
		panic("schema: RegisterConverter called twice for " + name)
	}
}

// ConverterByName returns the converter registered under name.
func ConverterByName(name string) (Converter, bool) {
	c, ok := converters.Load(name)
	if !ok {
		return nil, false
	}
	return c.(Converter), true
}
