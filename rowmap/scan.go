package rowmap

import (
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/syssam/weft/schema"

	"github.com/google/uuid"
)

// rowCursor walks a flat column array left to right.
type rowCursor struct {
	cols []any
	pos  int
}

func (c *rowCursor) peek(off, n int) []any { return c.cols[c.pos+off : c.pos+off+n] }

func (c *rowCursor) take(n int) []any {
	s := c.cols[c.pos : c.pos+n]
	c.pos += n
	return s
}

func (c *rowCursor) skip(n int) { c.pos += n }

func allNull(vals []any) bool {
	for _, v := range vals {
		if v != nil {
			return false
		}
	}
	return true
}

// Scan builds one T from a flat row using T's compiled plan. T may be a
// record type or a pointer to one; pointer results share instances with
// the interner, value results copy out of it.
func Scan[T any](cols []any, in Interner) (T, error) {
	var zero T
	rt := reflect.TypeOf(&zero).Elem()
	p, err := PlanFor(rt)
	if err != nil {
		return zero, err
	}
	if !p.Applicable(len(cols)) {
		return zero, NewDataError(p.typ.Name(), "",
			fmt.Sprintf("row has %d columns, plan consumes %d", len(cols), p.arity))
	}
	cur := &rowCursor{cols: cols}
	ptr, err := p.scan(cur, in)
	if err != nil {
		return zero, err
	}
	if rt.Kind() == reflect.Pointer {
		return ptr.Interface().(T), nil
	}
	return ptr.Elem().Interface().(T), nil
}

// NewInstance builds one record value from a flat row. The interner may
// be nil, in which case every row constructs a fresh instance.
func (p *Plan) NewInstance(cols []any, in Interner) (any, error) {
	if !p.Applicable(len(cols)) {
		return nil, NewDataError(p.typ.Name(), "",
			fmt.Sprintf("row has %d columns, plan consumes %d", len(cols), p.arity))
	}
	cur := &rowCursor{cols: cols}
	ptr, err := p.scan(cur, in)
	if err != nil {
		return nil, err
	}
	return ptr.Elem().Interface(), nil
}

// scan consumes the plan's span from the cursor and returns a pointer to
// the populated record. Entities check the interner by primary key before
// construction: a hit skips the subtree and advances the cursor whole.
func (p *Plan) scan(cur *rowCursor, in Interner) (reflect.Value, error) {
	var key any
	interned := in != nil && p.typ.IsEntity() && p.pkSpan > 0
	if interned {
		pkVals := cur.peek(p.pkOffset, p.pkSpan)
		if allNull(pkVals) {
			interned = false
		} else {
			key = internKey(pkVals)
			if hit, ok := in.Lookup(p.typ.GoType(), key); ok {
				cur.skip(p.arity)
				return reflect.ValueOf(hit), nil
			}
		}
	}
	ptr := reflect.New(p.typ.GoType())
	rec := ptr.Elem()
	for i := range p.steps {
		if err := p.steps[i].scan(cur, rec, in); err != nil {
			return reflect.Value{}, err
		}
	}
	if interned {
		canonical := in.Intern(p.typ.GoType(), key, ptr.Interface())
		return reflect.ValueOf(canonical), nil
	}
	return ptr, nil
}

func (s *step) scan(cur *rowCursor, rec reflect.Value, in Interner) error {
	dst := rec.Field(s.field.StructField().Index[0])
	switch s.kind {
	case stepPlain:
		return scanLeaf(s.field, dst, cur.take(1)[0])
	case stepEnumName:
		return scanEnumName(s.field, dst, cur.take(1)[0])
	case stepEnumOrdinal:
		return scanEnumOrdinal(s.field, dst, cur.take(1)[0])
	case stepConverter:
		return s.scanConverter(dst, cur.take(s.span))
	case stepRef:
		return s.scanRef(cur, dst)
	case stepRecord:
		return s.scanRecord(cur, dst, in)
	}
	return nil
}

func (s *step) scanRecord(cur *rowCursor, dst reflect.Value, in Interner) error {
	f := s.field
	// A nullable record whose whole span is NULL collapses to nothing
	// rather than to an instance of all-null fields. Non-nullable records
	// scan through and let each leaf judge its own NULL.
	if f.Nullable() && allNull(cur.peek(0, s.span)) {
		cur.skip(s.span)
		return nil
	}
	ptr, err := s.sub.scan(cur, in)
	if err != nil {
		return err
	}
	if dst.Kind() == reflect.Pointer {
		dst.Set(ptr)
		return nil
	}
	dst.Set(ptr.Elem())
	return nil
}

func (s *step) scanRef(cur *rowCursor, dst reflect.Value) error {
	f := s.field
	if allNull(cur.peek(0, s.span)) {
		cur.skip(s.span)
		return nil
	}
	var key any
	if s.sub != nil {
		ptr, err := s.sub.scan(cur, nil)
		if err != nil {
			return err
		}
		key = ptr.Elem().Interface()
	} else {
		pk := f.RefTarget().PrimaryKey()
		kv := reflect.New(pk.BaseType()).Elem()
		if err := coerce(pk, kv, cur.take(1)[0]); err != nil {
			return err
		}
		key = kv.Interface()
	}
	base := deref(dst)
	rv, err := schema.NewRefValue(base.Type(), key)
	if err != nil {
		return NewDataError(f.Owner().Name(), f.Name(), err.Error())
	}
	base.Set(rv)
	return nil
}

func (s *step) scanConverter(dst reflect.Value, vals []any) error {
	f := s.field
	if allNull(vals) {
		return nullLeaf(f, dst)
	}
	out, err := s.conv.FromColumns(vals)
	if err != nil {
		return NewDataError(f.Owner().Name(), f.Name(), err.Error())
	}
	if out == nil {
		return nullLeaf(f, dst)
	}
	base := deref(dst)
	rv := reflect.ValueOf(out)
	if !rv.Type().AssignableTo(base.Type()) {
		return NewDataError(f.Owner().Name(), f.Name(),
			fmt.Sprintf("converter produced %T for field type %s", out, base.Type()))
	}
	base.Set(rv)
	return nil
}

func scanLeaf(f *schema.Field, dst reflect.Value, v any) error {
	if v == nil {
		return nullLeaf(f, dst)
	}
	return coerce(f, deref(dst), v)
}

func scanEnumName(f *schema.Field, dst reflect.Value, v any) error {
	if v == nil {
		return nullLeaf(f, dst)
	}
	var s string
	switch x := v.(type) {
	case string:
		s = x
	case []byte:
		s = string(x)
	default:
		return NewDataError(f.Owner().Name(), f.Name(),
			fmt.Sprintf("name-mode enum requires a string column, got %T", v))
	}
	base := deref(dst)
	if base.Kind() != reflect.String {
		return NewDataError(f.Owner().Name(), f.Name(), "name-mode enum requires a string field")
	}
	base.SetString(s)
	return nil
}

func scanEnumOrdinal(f *schema.Field, dst reflect.Value, v any) error {
	if v == nil {
		return nullLeaf(f, dst)
	}
	var n int64
	switch x := v.(type) {
	case string:
		p, err := strconv.ParseInt(x, 10, 64)
		if err != nil {
			return NewDataError(f.Owner().Name(), f.Name(),
				fmt.Sprintf("invalid ordinal-enum encoding %q", x))
		}
		n = p
	case []byte:
		p, err := strconv.ParseInt(string(x), 10, 64)
		if err != nil {
			return NewDataError(f.Owner().Name(), f.Name(),
				fmt.Sprintf("invalid ordinal-enum encoding %q", x))
		}
		n = p
	default:
		rv := reflect.ValueOf(v)
		switch {
		case rv.CanInt():
			n = rv.Int()
		case rv.CanUint():
			n = int64(rv.Uint())
		default:
			return NewDataError(f.Owner().Name(), f.Name(),
				fmt.Sprintf("ordinal-mode enum requires an integer column, got %T", v))
		}
	}
	base := deref(dst)
	if !base.CanInt() {
		return NewDataError(f.Owner().Name(), f.Name(), "ordinal-mode enum requires an integer field")
	}
	if base.OverflowInt(n) {
		return NewDataError(f.Owner().Name(), f.Name(),
			fmt.Sprintf("ordinal %d overflows %s", n, base.Type()))
	}
	base.SetInt(n)
	return nil
}

// nullLeaf accepts a NULL column for nullable destinations and rejects it
// for key and other non-nullable positions.
func nullLeaf(f *schema.Field, dst reflect.Value) error {
	if dst.Kind() == reflect.Pointer || f.Nullable() {
		return nil
	}
	reason := "null in a non-nullable column"
	if f.IsPK() || f.IsFK() {
		reason = "null in a key position"
	}
	return NewDataError(f.Owner().Name(), f.Name(), reason)
}

// deref allocates through pointers and returns the settable base value.
func deref(dst reflect.Value) reflect.Value {
	for dst.Kind() == reflect.Pointer {
		dst.Set(reflect.New(dst.Type().Elem()))
		dst = dst.Elem()
	}
	return dst
}

var (
	uuidType = reflect.TypeOf(uuid.UUID{})
	timeType = reflect.TypeOf(time.Time{})
)

// timeLayouts are tried in order for drivers that return temporal values
// as text, such as SQLite.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// coerce assigns a driver value to a field, converting between the narrow
// set of types drivers actually produce and the declared field type.
func coerce(f *schema.Field, dst reflect.Value, v any) error {
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(dst.Type()) {
		dst.Set(rv)
		return nil
	}
	if dst.Type() == uuidType {
		return coerceUUID(f, dst, v)
	}
	switch dst.Kind() {
	case reflect.Bool:
		switch {
		case rv.CanInt():
			dst.SetBool(rv.Int() != 0)
			return nil
		case rv.CanUint():
			dst.SetBool(rv.Uint() != 0)
			return nil
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		var (
			n  int64
			ok bool
		)
		switch {
		case rv.CanInt():
			n, ok = rv.Int(), true
		case rv.CanUint():
			n, ok = int64(rv.Uint()), true
		case rv.CanFloat():
			n, ok = int64(rv.Float()), true
		}
		if ok {
			if dst.OverflowInt(n) {
				return NewDataError(f.Owner().Name(), f.Name(),
					fmt.Sprintf("value %d overflows %s", n, dst.Type()))
			}
			dst.SetInt(n)
			return nil
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if rv.CanInt() && rv.Int() >= 0 {
			u := uint64(rv.Int())
			if !dst.OverflowUint(u) {
				dst.SetUint(u)
				return nil
			}
		}
		if rv.CanUint() && !dst.OverflowUint(rv.Uint()) {
			dst.SetUint(rv.Uint())
			return nil
		}
	case reflect.Float32, reflect.Float64:
		switch {
		case rv.CanFloat():
			dst.SetFloat(rv.Float())
			return nil
		case rv.CanInt():
			dst.SetFloat(float64(rv.Int()))
			return nil
		}
	case reflect.String:
		switch x := v.(type) {
		case []byte:
			dst.SetString(string(x))
			return nil
		case string:
			dst.SetString(x)
			return nil
		}
	case reflect.Slice:
		if dst.Type().Elem().Kind() == reflect.Uint8 {
			if s, ok := v.(string); ok {
				dst.SetBytes([]byte(s))
				return nil
			}
		}
	case reflect.Struct:
		if dst.Type() == timeType {
			var s string
			switch x := v.(type) {
			case string:
				s = x
			case []byte:
				s = string(x)
			}
			if s != "" {
				for _, layout := range timeLayouts {
					if ts, err := time.Parse(layout, s); err == nil {
						dst.Set(reflect.ValueOf(ts))
						return nil
					}
				}
			}
		}
	}
	return NewDataError(f.Owner().Name(), f.Name(),
		fmt.Sprintf("cannot scan %T into %s", v, dst.Type()))
}

func coerceUUID(f *schema.Field, dst reflect.Value, v any) error {
	var (
		id  uuid.UUID
		err error
	)
	switch x := v.(type) {
	case string:
		id, err = uuid.Parse(x)
	case []byte:
		if len(x) == 16 {
			id, err = uuid.FromBytes(x)
		} else {
			id, err = uuid.ParseBytes(x)
		}
	default:
		err = fmt.Errorf("cannot scan %T into uuid.UUID", v)
	}
	if err != nil {
		return NewDataError(f.Owner().Name(), f.Name(), err.Error())
	}
	dst.Set(reflect.ValueOf(id))
	return nil
}
