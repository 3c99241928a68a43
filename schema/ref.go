package schema

import (
	"fmt"
	"reflect"
)

// Ref is a lazy reference to a record of type T. It holds only the primary
// key of its target; the referenced row is materialized by the caller on
// explicit dereference, never by the mapping layer itself. This is what
// breaks reference cycles in the record graph: a Ref field maps to its key
// columns but is not traversed.
//
// The zero Ref holds no key and maps to SQL NULL.
type Ref[T any] struct {
	key any
}

// RefTo returns a Ref holding the given primary key.
func RefTo[T any](key any) Ref[T] {
	return Ref[T]{key: key}
}

// Key returns the held primary key, or nil for the zero Ref.
func (r Ref[T]) Key() any { return r.key }

// Valid reports whether the Ref holds a key.
func (r Ref[T]) Valid() bool { return r.key != nil }

// String implements fmt.Stringer.
func (r Ref[T]) String() string {
	var z T
	if r.key == nil {
		return fmt.Sprintf("Ref[%T](<nil>)", z)
	}
	return fmt.Sprintf("Ref[%T](%v)", z, r.key)
}

// refReader and refWriter bridge the generic Ref to reflection-driven code
// that only has a reflect.Type or reflect.Value in hand.
type refReader interface {
	refTarget() reflect.Type
	refKey() (any, bool)
}

type refWriter interface {
	setRefKey(any)
}

func (r Ref[T]) refTarget() reflect.Type {
	var z T
	return reflect.TypeOf(&z).Elem()
}

func (r Ref[T]) refKey() (any, bool) { return r.key, r.key != nil }

func (r *Ref[T]) setRefKey(key any) { r.key = key }

// IsRefType reports whether t is a Ref instantiation.
func IsRefType(t reflect.Type) bool {
	if t == nil || t.Kind() != reflect.Struct {
		return false
	}
	_, ok := reflect.Zero(t).Interface().(refReader)
	return ok
}

// RefTargetOf returns the referenced Go type of a Ref instantiation.
func RefTargetOf(t reflect.Type) (reflect.Type, bool) {
	if t == nil || t.Kind() != reflect.Struct {
		return nil, false
	}
	r, ok := reflect.Zero(t).Interface().(refReader)
	if !ok {
		return nil, false
	}
	return r.refTarget(), true
}

// RefKeyOf extracts the primary key held by a Ref value. The second return
// is false for the zero Ref or a non-Ref value.
func RefKeyOf(v reflect.Value) (any, bool) {
	if !v.IsValid() || !v.CanInterface() {
		return nil, false
	}
	r, ok := v.Interface().(refReader)
	if !ok {
		return nil, false
	}
	return r.refKey()
}

// NewRefValue constructs a value of the given Ref type holding key. A nil
// key yields the zero Ref.
func NewRefValue(t reflect.Type, key any) (reflect.Value, error) {
	pv := reflect.New(t)
	w, ok := pv.Interface().(refWriter)
	if !ok {
		return reflect.Value{}, NewStructError(typeName(t), "", "not a Ref type")
	}
	if key != nil {
		w.setRefKey(key)
	}
	return pv.Elem(), nil
}
