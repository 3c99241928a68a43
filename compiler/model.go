package compiler

import (
	"fmt"
	"reflect"

	"github.com/syssam/weft/schema"
)

// assembly is the state shared by a statement and all its nested
// subqueries during one compilation. Placeholder numbering is global so
// dialects with positional markers ($1, $2) stay correct across scopes.
type assembly struct {
	cfg          Config
	n            int
	slots        []slot
	bindVars     *BindVarsSpec
	versionAware bool
}

type slot struct {
	name string // named parameter, empty for positional
}

func (a *assembly) placeholder(name string) string {
	a.n++
	a.slots = append(a.slots, slot{name: name})
	return a.cfg.Flavor.Placeholder(a.n)
}

// binder collects bound values in placeholder order. Named parameters are
// still emitted positionally; the registry only guards against one name
// being bound to two different values.
type binder struct {
	params         []Param
	named          map[string]any
	bindVarsOffset int
}

func (b *binder) add(v any) {
	b.params = append(b.params, Param{Value: v})
}

func (b *binder) addNamed(name string, v any) error {
	if name == "" {
		b.add(v)
		return nil
	}
	if prev, ok := b.named[name]; ok && !reflect.DeepEqual(prev, v) {
		return NewTemplateError("parameter %q bound to conflicting values", name)
	}
	if b.named == nil {
		b.named = make(map[string]any)
	}
	b.named[name] = v
	b.params = append(b.params, Param{Name: name, Value: v})
	return nil
}

// recordValue unwraps v to a record struct value, reporting whether v is a
// record instance at all. Pointers are dereferenced one level; Ref values
// and scalar structs such as time.Time do not count.
func recordValue(v any) (reflect.Value, bool) {
	if v == nil {
		return reflect.Value{}, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return reflect.Value{}, false
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct || !schema.IsRecordType(rv.Type()) {
		return reflect.Value{}, false
	}
	return rv, true
}

// flattenArgs expands slice and array arguments in place, so an IN list
// can be passed either variadically or as one slice. Byte slices stay
// whole; they are values, not lists.
func flattenArgs(args []any) []any {
	out := make([]any, 0, len(args))
	for _, a := range args {
		rv := reflect.ValueOf(a)
		if a != nil && (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) &&
			rv.Type().Elem().Kind() != reflect.Uint8 {
			for i := 0; i < rv.Len(); i++ {
				out = append(out, rv.Index(i).Interface())
			}
			continue
		}
		out = append(out, a)
	}
	return out
}

// columnCount returns how many columns a field flattens to, matching the
// width Names.Columns would report without consulting overrides.
func columnCount(f *schema.Field) int {
	switch {
	case f.ConverterName() != "":
		if c, ok := f.Converter(); ok {
			return c.Columns()
		}
		return 1
	case f.IsFK() && f.Target() != nil:
		return keyColumnCount(f.Target())
	case f.Record() != nil:
		n := 0
		for _, cf := range f.Record().Fields() {
			n += columnCount(cf)
		}
		return n
	default:
		return 1
	}
}

// keyColumnCount returns the column width of t's primary key.
func keyColumnCount(t *schema.Type) int {
	pk := t.PrimaryKey()
	if pk == nil {
		return 1
	}
	return columnCount(pk)
}

// keyValues extracts the primary-key component values of a record
// instance, in primary-key column order. Strict extraction rejects unset
// keys: binding a predicate or an insert against a default key is a caller
// bug, not a row whose key happens to be zero.
func keyValues(t *schema.Type, rv reflect.Value, strict bool) ([]any, error) {
	pk := t.PrimaryKey()
	if pk == nil {
		return nil, NewValueError(t.Name(), "", "no primary key")
	}
	return keyComponentValues(t, pk, rv, strict)
}

func keyComponentValues(owner *schema.Type, f *schema.Field, rv reflect.Value, strict bool) ([]any, error) {
	v := f.Value(rv)
	if rec := f.Record(); rec != nil && !f.IsFK() {
		if !v.IsValid() {
			if strict {
				return nil, NewValueError(owner.Name(), f.Name(), "compound key is unset")
			}
			return make([]any, columnCount(f)), nil
		}
		var out []any
		for _, cf := range rec.Fields() {
			vals, err := keyComponentValues(rec, cf, v, strict)
			if err != nil {
				return nil, err
			}
			out = append(out, vals...)
		}
		return out, nil
	}
	if f.IsFK() {
		// FK component of an identifying key: the referenced key's values.
		return fieldValues(f, rv, strict)
	}
	if !v.IsValid() {
		if strict {
			return nil, NewValueError(owner.Name(), f.Name(), "primary key is null")
		}
		return []any{nil}, nil
	}
	if strict && schema.IsDefault(v) {
		return nil, NewValueError(owner.Name(), f.Name(), "primary key is null or default")
	}
	return []any{v.Interface()}, nil
}

// fieldValues flattens one field of a record instance into its column
// values, in the exact order Names.Columns declares them. strictKeys
// applies the null rejection for primary keys and non-nullable foreign
// keys used by insert and predicate binding; template-substitution callers
// pass false and receive NULLs instead.
func fieldValues(f *schema.Field, owner reflect.Value, strictKeys bool) ([]any, error) {
	v := f.Value(owner)
	switch {
	case f.ConverterName() != "":
		conv, ok := f.Converter()
		if !ok {
			return nil, NewValueError(f.Owner().Name(), f.Name(),
				fmt.Sprintf("converter %q is not registered", f.ConverterName()))
		}
		if !v.IsValid() {
			return make([]any, conv.Columns()), nil
		}
		cols, err := conv.ToColumns(v.Interface())
		if err != nil {
			return nil, NewValueError(f.Owner().Name(), f.Name(), err.Error())
		}
		if len(cols) != conv.Columns() {
			return nil, NewValueError(f.Owner().Name(), f.Name(),
				fmt.Sprintf("converter produced %d values for %d columns", len(cols), conv.Columns()))
		}
		return cols, nil
	case f.RefTarget() != nil:
		key, ok := schema.RefKeyOf(v)
		if !ok {
			// An absent reference stores NULL; Ref fields are always nullable.
			return make([]any, columnCount(f)), nil
		}
		return refKeyValues(f, key, strictKeys)
	case f.IsFK() && f.Record() != nil:
		if !v.IsValid() {
			if strictKeys && !f.Nullable() {
				return nil, NewValueError(f.Owner().Name(), f.Name(), "non-nullable foreign key is null")
			}
			return make([]any, columnCount(f)), nil
		}
		// A present record must carry its key, nullable or not.
		return keyValues(f.Record(), v, strictKeys)
	case f.Record() != nil:
		if !v.IsValid() {
			// A nil inline pointer flattens to all NULL columns.
			return make([]any, columnCount(f)), nil
		}
		var out []any
		for _, cf := range f.Record().Fields() {
			vals, err := fieldValues(cf, v, strictKeys)
			if err != nil {
				return nil, err
			}
			out = append(out, vals...)
		}
		return out, nil
	case f.Enum() != schema.EnumNone:
		ev, err := enumValue(f, v)
		if err != nil {
			return nil, err
		}
		return []any{ev}, nil
	default:
		if !v.IsValid() {
			return []any{nil}, nil
		}
		if f.IsPK() && strictKeys && schema.IsDefault(v) {
			return nil, NewValueError(f.Owner().Name(), f.Name(), "primary key is null or default")
		}
		return []any{v.Interface()}, nil
	}
}

// refKeyValues widens a Ref key to the referenced key's column values. A
// compound key travels as a record instance inside the Ref.
func refKeyValues(f *schema.Field, key any, strict bool) ([]any, error) {
	target := f.Target()
	if target == nil {
		return []any{key}, nil
	}
	pk := target.PrimaryKey()
	if pk == nil || pk.Record() == nil || pk.IsFK() {
		return []any{key}, nil
	}
	rv, ok := recordValue(key)
	if !ok {
		return nil, NewValueError(f.Owner().Name(), f.Name(),
			fmt.Sprintf("compound key reference requires a %s key, got %T", pk.Record().Name(), key))
	}
	var out []any
	for _, cf := range pk.Record().Fields() {
		vals, err := fieldValues(cf, rv, strict)
		if err != nil {
			return nil, err
		}
		out = append(out, vals...)
	}
	return out, nil
}

func enumValue(f *schema.Field, v reflect.Value) (any, error) {
	if !v.IsValid() {
		return nil, nil
	}
	switch f.Enum() {
	case schema.EnumName:
		if s, ok := v.Interface().(fmt.Stringer); ok {
			return s.String(), nil
		}
		if v.Kind() == reflect.String {
			return v.String(), nil
		}
		return nil, NewValueError(f.Owner().Name(), f.Name(), "name-mode enum must be a string or implement fmt.Stringer")
	case schema.EnumOrdinal:
		switch {
		case v.CanInt():
			return v.Int(), nil
		case v.CanUint():
			return v.Uint(), nil
		}
		return nil, NewValueError(f.Owner().Name(), f.Name(), "ordinal-mode enum must have an integer kind")
	}
	return v.Interface(), nil
}

// versionValue locates the version field of t in an instance, descending
// through non-key records the same way Type.Version does.
func versionValue(t *schema.Type, rv reflect.Value) (any, error) {
	v, ok := findVersionValue(t, rv, make(map[*schema.Type]bool))
	if !ok {
		return nil, NewValueError(t.Name(), "", "no version field")
	}
	return v, nil
}

func findVersionValue(t *schema.Type, rv reflect.Value, seen map[*schema.Type]bool) (any, bool) {
	if seen[t] {
		return nil, false
	}
	seen[t] = true
	for _, f := range t.Fields() {
		if f.IsVersion() {
			fv := f.Value(rv)
			if !fv.IsValid() {
				return nil, true
			}
			return fv.Interface(), true
		}
		if rec := f.Record(); rec != nil && !f.IsFK() {
			if fv := f.Value(rv); fv.IsValid() {
				if v, ok := findVersionValue(rec, fv, seen); ok {
					return v, true
				}
			}
		}
	}
	return nil, false
}

// compatibleKeyType reports whether a bare scalar of type at can stand in
// for a key declared as type pt. Identical types always match; otherwise
// both must share a kind class, so an int works against an int64 key but a
// string never matches a numeric key by accident.
func compatibleKeyType(at, pt reflect.Type) bool {
	if at == nil || pt == nil {
		return false
	}
	if at == pt {
		return true
	}
	c := kindClass(at.Kind())
	return c != 0 && c == kindClass(pt.Kind())
}

func kindClass(k reflect.Kind) int {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return 1
	case reflect.String:
		return 2
	case reflect.Float32, reflect.Float64:
		return 3
	}
	return 0
}
