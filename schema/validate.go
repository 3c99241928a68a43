package schema

import (
	"fmt"
	"reflect"
	"sync"
)

// Mode selects which validation passes run.
type Mode uint8

const (
	// Structural checks tag-role combinations and key shape.
	Structural Mode = 1 << iota
	// Graph checks the record graph for cycles.
	Graph
	// All runs every pass.
	All = Structural | Graph
)

type validateKey struct {
	rtype reflect.Type
	mode  Mode
}

var validated sync.Map // validateKey -> error (nil on success)

// Validate checks t against the selected passes. Results, including
// failures, are memoized per (type, mode): a type that fails once fails
// identically on every later call without re-walking the graph.
func Validate(t *Type, mode Mode) error {
	key := validateKey{rtype: t.rtype, mode: mode}
	if v, ok := validated.Load(key); ok {
		if v == nil {
			return nil
		}
		return v.(error)
	}
	var err error
	if mode&Structural != 0 {
		err = validateStruct(t)
	}
	if err == nil && mode&Graph != 0 {
		err = validateGraph(t)
	}
	v, _ := validated.LoadOrStore(key, err)
	if v == nil {
		return nil
	}
	return v.(error)
}

func validateStruct(t *Type) error {
	if len(t.pks) > 1 {
		return NewStructError(t.name, "", "multiple primary keys")
	}
	if t.viewQueried {
		if t.viewQuery == "" {
			return NewStructError(t.name, "", "empty view query")
		}
		if len(t.pks) > 0 {
			return NewStructError(t.name, "", "view query declared on an entity type; only projections may be query-backed")
		}
	}
	for _, f := range t.fields {
		if err := validateField(t, f); err != nil {
			return err
		}
	}
	return nil
}

func validateField(t *Type, f *Field) error {
	if f.pk && f.auto && f.fk {
		return NewStructError(t.name, f.name, "auto-generated key cannot also be a foreign key")
	}
	if f.fk && f.inline {
		return NewStructError(t.name, f.name, "foreign-key field cannot be inline")
	}
	if f.inline {
		if f.record == nil {
			return NewStructError(t.name, f.name, "inline field must be a record type")
		}
		if f.record.PrimaryKey() != nil {
			return NewStructError(t.name, f.name, "inline record "+f.record.name+" must not declare a primary key")
		}
	}
	if f.refTarget != nil && !f.fk {
		return NewStructError(t.name, f.name, "Ref field must be tagged fk")
	}
	if f.record != nil && !f.fk && !f.inline && !f.pk {
		return NewStructError(t.name, f.name, "record field must be tagged fk or inline")
	}
	if f.pk {
		switch {
		case f.record != nil && !f.fk:
			// Compound key: every component must be primitive-compatible.
			for _, sub := range f.record.fields {
				if isFloatKind(sub.rtype.Kind()) {
					return NewStructError(t.name, f.name,
						fmt.Sprintf("compound key component %s.%s must not be floating point", f.record.name, sub.name))
				}
			}
		case isFloatKind(f.rtype.Kind()):
			return NewStructError(t.name, f.name, "invalid primary-key type "+f.rtype.String())
		}
	}
	switch f.enum {
	case EnumName:
		if f.rtype.Kind() != reflect.String {
			return NewStructError(t.name, f.name, "enum=name requires a string-kind type, got "+f.rtype.String())
		}
	case EnumOrdinal:
		if !isIntKind(f.rtype.Kind()) {
			return NewStructError(t.name, f.name, "enum=ordinal requires an integer-kind type, got "+f.rtype.String())
		}
	}
	return nil
}

// validateGraph runs a DFS over nested record fields with an ordered path,
// reporting a repeated type as the ordered chain from the root. Ref fields
// are not traversed; a lazy reference is what legally breaks a cycle.
func validateGraph(t *Type) error {
	return walkGraph(t, make([]*Type, 0, 8))
}

func walkGraph(t *Type, path []*Type) error {
	for _, on := range path {
		if on == t {
			names := make([]string, 0, len(path)+1)
			for _, p := range path {
				names = append(names, p.name)
			}
			names = append(names, t.name)
			return &CycleError{Path: names}
		}
	}
	path = append(path, t)
	for _, f := range t.fields {
		if f.record == nil {
			continue
		}
		if err := walkGraph(f.record, path); err != nil {
			return err
		}
	}
	return nil
}

func isFloatKind(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}

func isIntKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}
