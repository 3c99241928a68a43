package schema

import (
	"database/sql"
	"database/sql/driver"
	"reflect"
	"sync"
	"time"
)

// TableNamer overrides the resolved table name of a record type. A name
// containing a dot is split into schema qualifier and table name.
type TableNamer interface {
	TableName() string
}

// SchemaNamer overrides the resolved schema qualifier of a record type.
type SchemaNamer interface {
	SchemaName() string
}

// ViewQuerier marks a projection backed by a query instead of a table. The
// returned query is substituted for the table source wherever the type
// appears in FROM position or as a derived join target.
type ViewQuerier interface {
	ViewQuery() string
}

// Type is the reflected descriptor of a record or entity type: its ordered
// mapped fields, key roles, and name overrides. Descriptors are built once
// per Go type, cached, and immutable afterwards.
type Type struct {
	rtype       reflect.Type
	name        string
	fields      []*Field
	pks         []*Field
	tableName   string
	schemaName  string
	viewQuery   string
	viewQueried bool
}

// Field is the descriptor of one mapped struct field.
type Field struct {
	owner     *Type
	index     int
	name      string
	sf        reflect.StructField
	rtype     reflect.Type // declared type with pointers stripped
	columns   []string     // explicit tag overrides
	escape    bool
	pk        bool
	fk        bool
	inline    bool
	version   bool
	auto      bool
	nullable  bool
	enum      EnumMode
	convert   string
	record    *Type // nested record type for fk/inline/compound fields
	refTarget *Type // referenced type for Ref fields
}

var (
	typeCache sync.Map // reflect.Type -> *Type
	buildMu   sync.Mutex
)

// TypeOf returns the descriptor for t, building and caching it on first
// use. Pointer types are dereferenced; t must reflect a named struct.
func TypeOf(t reflect.Type) (*Type, error) {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, NewStructError(typeName(t), "", "not a struct type")
	}
	if v, ok := typeCache.Load(t); ok {
		return v.(*Type), nil
	}
	// Serialized so that cross-references between descriptors built in the
	// same pass always point at the canonical cached instances.
	buildMu.Lock()
	defer buildMu.Unlock()
	if v, ok := typeCache.Load(t); ok {
		return v.(*Type), nil
	}
	b := &builder{built: make(map[reflect.Type]*Type)}
	tt, err := b.build(t)
	if err != nil {
		return nil, err
	}
	for rt, bt := range b.built {
		typeCache.Store(rt, bt)
	}
	return tt, nil
}

// TypeFor returns the descriptor for the struct type T.
func TypeFor[T any]() (*Type, error) {
	return TypeOf(reflect.TypeOf((*T)(nil)).Elem())
}

// builder constructs descriptors for a connected set of types. Shells are
// registered before their fields are populated so that mutually referencing
// declarations resolve to the same in-progress descriptor instead of
// recursing forever; cycle legality is the validator's concern, not ours.
type builder struct {
	built map[reflect.Type]*Type
}

func (b *builder) build(t reflect.Type) (*Type, error) {
	if v, ok := typeCache.Load(t); ok {
		return v.(*Type), nil
	}
	if tt, ok := b.built[t]; ok {
		return tt, nil
	}
	if t.Name() == "" {
		return nil, NewStructError(t.String(), "", "unnamed struct types are not supported")
	}
	tt := &Type{rtype: t, name: t.Name()}
	b.built[t] = tt
	pv := reflect.New(t).Interface()
	if v, ok := pv.(TableNamer); ok {
		tt.tableName = v.TableName()
	}
	if v, ok := pv.(SchemaNamer); ok {
		tt.schemaName = v.SchemaName()
	}
	if v, ok := pv.(ViewQuerier); ok {
		tt.viewQueried = true
		tt.viewQuery = v.ViewQuery()
	}
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		var info Tag
		if tag, ok := sf.Tag.Lookup(TagKey); ok {
			var err error
			info, err = ParseTag(tag)
			if err != nil {
				return nil, NewStructError(tt.name, sf.Name, err.Error())
			}
			if info.Skip {
				continue
			}
		}
		f, err := b.buildField(tt, len(tt.fields), sf, info)
		if err != nil {
			return nil, err
		}
		// Embedded records with no explicit role map inline, matching the
		// usual Go expectation for embedded struct fields.
		if sf.Anonymous && f.record != nil && !f.fk && !f.pk {
			f.inline = true
		}
		tt.fields = append(tt.fields, f)
		if f.pk {
			tt.pks = append(tt.pks, f)
		}
	}
	return tt, nil
}

func (b *builder) buildField(owner *Type, index int, sf reflect.StructField, info Tag) (*Field, error) {
	f := &Field{
		owner:   owner,
		index:   index,
		name:    sf.Name,
		sf:      sf,
		columns: info.Columns,
		escape:  info.Escape,
		pk:      info.PK,
		fk:      info.FK,
		inline:  info.Inline,
		version: info.Version,
		auto:    info.Auto,
		enum:    info.Enum,
		convert: info.Convert,
	}
	ft := sf.Type
	if ft.Kind() == reflect.Pointer {
		f.nullable = true
		ft = ft.Elem()
	}
	f.rtype = ft
	switch {
	case f.convert != "":
		// Converter-backed fields are scalar as far as the graph is
		// concerned, whatever their Go shape.
	case IsRefType(ft):
		f.nullable = true
		target, _ := RefTargetOf(ft)
		for target.Kind() == reflect.Pointer {
			target = target.Elem()
		}
		if target.Kind() != reflect.Struct || isScalarType(target) {
			return nil, NewStructError(owner.name, sf.Name, "Ref target "+target.String()+" is not a record type")
		}
		rt, err := b.build(target)
		if err != nil {
			return nil, err
		}
		if len(rt.pks) == 0 {
			return nil, NewStructError(owner.name, sf.Name, "Ref target "+rt.name+" has no primary key")
		}
		f.refTarget = rt
	case ft.Kind() == reflect.Struct && !isScalarType(ft):
		rt, err := b.build(ft)
		if err != nil {
			return nil, err
		}
		f.record = rt
	}
	if f.fk && f.record == nil && f.refTarget == nil {
		return nil, NewStructError(owner.name, sf.Name, "fk requires a record or Ref type, got "+sf.Type.String())
	}
	return f, nil
}

var (
	timeType    = reflect.TypeOf(time.Time{})
	scannerType = reflect.TypeOf((*sql.Scanner)(nil)).Elem()
	valuerType  = reflect.TypeOf((*driver.Valuer)(nil)).Elem()
)

// isScalarType reports whether a struct type maps to a single column rather
// than to a nested record: temporal types and anything speaking the
// database/sql Scanner/Valuer protocol (uuid.UUID, sql.Null*, custom
// wrappers).
func isScalarType(t reflect.Type) bool {
	if t == timeType {
		return true
	}
	return t.Implements(valuerType) || reflect.PointerTo(t).Implements(scannerType)
}

// IsRecordType reports whether t reflects as a record: a named struct that
// is neither a scalar column type nor a Ref.
func IsRecordType(t reflect.Type) bool {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct || t.Name() == "" {
		return false
	}
	return !isScalarType(t) && !IsRefType(t)
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}

// Name returns the Go type name.
func (t *Type) Name() string { return t.name }

// GoType returns the underlying reflect.Type.
func (t *Type) GoType() reflect.Type { return t.rtype }

// String implements fmt.Stringer.
func (t *Type) String() string { return t.name }

// Fields returns the ordered mapped fields. The returned slice is shared
// and must not be modified.
func (t *Type) Fields() []*Field { return t.fields }

// Field returns the mapped field with the given Go name, or nil.
func (t *Type) Field(name string) *Field {
	for _, f := range t.fields {
		if f.name == name {
			return f
		}
	}
	return nil
}

// PrimaryKey returns the top-level primary-key field, or nil for a
// projection. Keys inside inlined sub-records are not discovered here.
func (t *Type) PrimaryKey() *Field {
	if len(t.pks) == 0 {
		return nil
	}
	return t.pks[0]
}

// NestedPKFields returns the fields carrying the primary-key columns: the
// compound-key sub-record's fields for a record-typed key, or the key field
// itself (including a key that is also a foreign key).
func (t *Type) NestedPKFields() []*Field {
	pk := t.PrimaryKey()
	if pk == nil {
		return nil
	}
	if pk.record != nil && !pk.fk {
		return pk.record.fields
	}
	return []*Field{pk}
}

// ForeignKeys returns the foreign-key fields of the type, descending
// through nested non-FK records (inline fields and compound-key
// components). Foreign keys of referenced tables are not included.
func (t *Type) ForeignKeys() []*Field {
	var out []*Field
	t.appendForeignKeys(&out, map[*Type]bool{})
	return out
}

func (t *Type) appendForeignKeys(out *[]*Field, seen map[*Type]bool) {
	if seen[t] {
		return
	}
	seen[t] = true
	for _, f := range t.fields {
		switch {
		case f.fk:
			*out = append(*out, f)
		case f.record != nil:
			f.record.appendForeignKeys(out, seen)
		}
	}
}

// Version returns the optimistic-locking version field, searching nested
// non-FK records breadth-last, or nil when the type has none.
func (t *Type) Version() *Field {
	return t.findVersion(map[*Type]bool{})
}

func (t *Type) findVersion(seen map[*Type]bool) *Field {
	if seen[t] {
		return nil
	}
	seen[t] = true
	for _, f := range t.fields {
		if f.version {
			return f
		}
	}
	for _, f := range t.fields {
		if f.record != nil && !f.fk {
			if v := f.record.findVersion(seen); v != nil {
				return v
			}
		}
	}
	return nil
}

// IsEntity reports whether the type declares a primary key.
func (t *Type) IsEntity() bool { return len(t.pks) > 0 }

// IsProjection reports whether the type has no primary key of its own.
func (t *Type) IsProjection() bool { return len(t.pks) == 0 }

// ViewQuery returns the query backing a view projection, or "".
func (t *Type) ViewQuery() string { return t.viewQuery }

// Name returns the Go field name.
func (f *Field) Name() string { return f.name }

// Owner returns the declaring type.
func (f *Field) Owner() *Type { return f.owner }

// Index returns the field's position among its owner's mapped fields.
func (f *Field) Index() int { return f.index }

// GoType returns the declared Go type, pointers included.
func (f *Field) GoType() reflect.Type { return f.sf.Type }

// BaseType returns the declared Go type with pointers stripped.
func (f *Field) BaseType() reflect.Type { return f.rtype }

// StructField returns the underlying reflect.StructField.
func (f *Field) StructField() reflect.StructField { return f.sf }

// IsPK reports whether the field is the primary key.
func (f *Field) IsPK() bool { return f.pk }

// IsFK reports whether the field is a foreign key.
func (f *Field) IsFK() bool { return f.fk }

// IsInline reports whether the field is an inlined record.
func (f *Field) IsInline() bool { return f.inline }

// IsVersion reports whether the field is the optimistic-locking version.
func (f *Field) IsVersion() bool { return f.version }

// IsAuto reports whether the field's value is generated by the database.
func (f *Field) IsAuto() bool { return f.auto }

// Nullable reports whether the field admits SQL NULL: pointer-typed fields
// and Refs do, everything else is required.
func (f *Field) Nullable() bool { return f.nullable }

// Enum returns the field's enum encoding mode.
func (f *Field) Enum() EnumMode { return f.enum }

// ConverterName returns the name given in the convert= tag option, or "".
func (f *Field) ConverterName() string { return f.convert }

// Converter resolves the field's converter from the registry.
func (f *Field) Converter() (Converter, bool) {
	if f.convert == "" {
		return nil, false
	}
	return ConverterByName(f.convert)
}

// Record returns the nested record type for fk-to-record, inline and
// compound-key fields, or nil.
func (f *Field) Record() *Type { return f.record }

// RefTarget returns the referenced type of a Ref field, or nil.
func (f *Field) RefTarget() *Type { return f.refTarget }

// Target returns the record type the field points at, whether held
// directly or through a Ref, or nil for scalar fields.
func (f *Field) Target() *Type {
	if f.refTarget != nil {
		return f.refTarget
	}
	return f.record
}

// ColumnOverrides returns the explicit column names from the tag.
func (f *Field) ColumnOverrides() []string { return f.columns }

// Escape reports whether the tag requested identifier quoting.
func (f *Field) Escape() bool { return f.escape }

// Value extracts the field's value from an instance of its owner type.
// Pointers are dereferenced; a nil instance yields the zero Value.
func (f *Field) Value(v reflect.Value) reflect.Value {
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	if !v.IsValid() {
		return reflect.Value{}
	}
	return v.Field(f.sf.Index[0])
}

// IsDefault reports whether v is missing or the zero value of its type:
// nil pointers, zero scalars, the zero Ref.
func IsDefault(v reflect.Value) bool {
	if !v.IsValid() {
		return true
	}
	return v.IsZero()
}
