// Package load discovers record types in Go packages without executing
// them. It walks the exported struct types of the loaded packages through
// go/packages and derives the same field and column view the runtime
// reflector builds, so generated metamodels and reflected descriptors
// agree on names.
package load

import (
	"context"
	"fmt"
	"go/types"
	"reflect"
	"sort"
	"strings"

	"github.com/go-openapi/inflect"
	"golang.org/x/tools/go/packages"

	"github.com/syssam/weft/schema"
)

// loadMode requests full type information; syntax trees are not needed.
const loadMode = packages.NeedName |
	packages.NeedTypes |
	packages.NeedImports |
	packages.NeedDeps

// schemaPkgPath identifies Ref instantiations in loaded type information.
const schemaPkgPath = "github.com/syssam/weft/schema"

// Config controls package loading.
type Config struct {
	// Dir is the working directory for package resolution. Empty means
	// the process working directory.
	Dir string
	// BuildFlags are forwarded to the underlying build system.
	BuildFlags []string
}

// Package holds the record types discovered in one loaded Go package.
type Package struct {
	// Path is the package import path.
	Path string
	// Name is the package name.
	Name string
	// Entities lists the exported record types, sorted by name.
	Entities []*Entity
}

// Entity describes one record struct type.
type Entity struct {
	// Name is the declared type name.
	Name string
	// PkgPath is the import path of the declaring package.
	PkgPath string
	// Table is the table name under the default naming strategy.
	Table string
	// NamedTable reports that the type implements TableName(), in which
	// case Table holds the default the override replaces.
	NamedTable bool
	// HasKey reports whether the type declares a primary key.
	HasKey bool
	// Fields lists the mapped fields in declaration order.
	Fields []*Field
}

// Field describes one mapped struct field.
type Field struct {
	// Name is the Go field name.
	Name string
	// Type is the declared Go type with pointers stripped, e.g. "int64"
	// or "model.Customer".
	Type string
	// Columns holds the statically resolved column names. It is nil when
	// resolution needs runtime information (converter widths).
	Columns []string
	// Nullable reports a pointer-typed or Ref field.
	Nullable bool
	PK       bool
	Auto     bool
	Version  bool
	FK       bool
	Ref      bool
	Inline   bool
	// Converter names the registered converter, if any.
	Converter string
	// Target is the record type the field points at or embeds, nil for
	// scalar fields.
	Target *Entity

	// tag keeps the parsed tag for column resolution.
	tag schema.Tag
}

// PrimaryKey returns the entity's first primary-key field, or nil.
func (e *Entity) PrimaryKey() *Field {
	for _, f := range e.Fields {
		if f.PK {
			return f
		}
	}
	return nil
}

// Load loads the packages named by patterns and extracts their entity
// descriptors. Patterns follow the usual build-system forms ("./model",
// "github.com/org/app/model").
func (c Config) Load(ctx context.Context, patterns ...string) ([]*Package, error) {
	cfg := &packages.Config{
		Context:    ctx,
		Mode:       loadMode,
		Dir:        c.Dir,
		BuildFlags: c.BuildFlags,
	}
	pkgs, err := packages.Load(cfg, patterns...)
	if err != nil {
		return nil, fmt.Errorf("load packages: %w", err)
	}
	if len(pkgs) == 0 {
		return nil, fmt.Errorf("no packages matched %v", patterns)
	}
	for _, pkg := range pkgs {
		for _, e := range pkg.Errors {
			return nil, fmt.Errorf("load %s: %s", pkg.PkgPath, e.Msg)
		}
	}

	l := &loader{entities: make(map[*types.TypeName]*Entity)}
	out := make([]*Package, 0, len(pkgs))
	for _, pkg := range pkgs {
		p, err := l.loadPackage(pkg)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := l.resolveColumns(); err != nil {
		return nil, err
	}
	return out, nil
}

// loader accumulates entities across packages so cross-package references
// share one descriptor.
type loader struct {
	entities map[*types.TypeName]*Entity
	order    []*Entity
}

func (l *loader) loadPackage(pkg *packages.Package) (*Package, error) {
	p := &Package{Path: pkg.PkgPath, Name: pkg.Name}
	scope := pkg.Types.Scope()
	names := scope.Names()
	sort.Strings(names)
	for _, name := range names {
		tn, ok := scope.Lookup(name).(*types.TypeName)
		if !ok || !tn.Exported() || tn.IsAlias() {
			continue
		}
		named, ok := tn.Type().(*types.Named)
		if !ok || named.TypeParams().Len() > 0 {
			continue
		}
		if _, ok := named.Underlying().(*types.Struct); !ok {
			continue
		}
		if scalarType(named) || isRefType(named) {
			continue
		}
		e, err := l.entity(named)
		if err != nil {
			return nil, err
		}
		if len(e.Fields) == 0 {
			continue
		}
		p.Entities = append(p.Entities, e)
	}
	return p, nil
}

// entity returns the descriptor for a named struct type, building it on
// first use. Shells are registered before fields are walked so mutually
// referencing declarations terminate.
func (l *loader) entity(named *types.Named) (*Entity, error) {
	obj := named.Obj()
	if e, ok := l.entities[obj]; ok {
		return e, nil
	}
	pkgPath := ""
	if obj.Pkg() != nil {
		pkgPath = obj.Pkg().Path()
	}
	e := &Entity{
		Name:       obj.Name(),
		PkgPath:    pkgPath,
		Table:      inflect.Pluralize(inflect.Underscore(obj.Name())),
		NamedTable: hasValueMethod(named, "TableName"),
	}
	l.entities[obj] = e
	l.order = append(l.order, e)

	st := named.Underlying().(*types.Struct)
	for i := 0; i < st.NumFields(); i++ {
		v := st.Field(i)
		if !v.Exported() {
			continue
		}
		var info schema.Tag
		if tag, ok := reflect.StructTag(st.Tag(i)).Lookup(schema.TagKey); ok {
			parsed, err := schema.ParseTag(tag)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", e.Name, v.Name(), err)
			}
			if parsed.Skip {
				continue
			}
			info = parsed
		}
		f, err := l.field(e, v, info)
		if err != nil {
			return nil, err
		}
		// Embedded records with no explicit role map inline, matching
		// the runtime reflector.
		if v.Embedded() && f.Target != nil && !f.FK && !f.Ref && !f.PK {
			f.Inline = true
		}
		e.Fields = append(e.Fields, f)
		if f.PK {
			e.HasKey = true
		}
	}
	return e, nil
}

func (l *loader) field(owner *Entity, v *types.Var, info schema.Tag) (*Field, error) {
	f := &Field{
		Name:      v.Name(),
		PK:        info.PK,
		Auto:      info.Auto,
		Version:   info.Version,
		FK:        info.FK,
		Inline:    info.Inline,
		Converter: info.Convert,
		tag:       info,
	}
	ft := v.Type()
	if ptr, ok := ft.(*types.Pointer); ok {
		f.Nullable = true
		ft = ptr.Elem()
	}
	f.Type = typeLabel(ft)
	switch {
	case f.Converter != "":
		// Converter-backed fields are scalar whatever their Go shape.
	case isRefType(ft):
		f.Nullable = true
		f.Ref = true
		target := refTargetOf(ft)
		for {
			ptr, ok := target.(*types.Pointer)
			if !ok {
				break
			}
			target = ptr.Elem()
		}
		named, ok := target.(*types.Named)
		if !ok || scalarType(named) {
			return nil, fmt.Errorf("%s.%s: Ref target %s is not a record type", owner.Name, v.Name(), typeLabel(target))
		}
		if _, ok := named.Underlying().(*types.Struct); !ok {
			return nil, fmt.Errorf("%s.%s: Ref target %s is not a record type", owner.Name, v.Name(), typeLabel(target))
		}
		te, err := l.entity(named)
		if err != nil {
			return nil, err
		}
		f.Target = te
	default:
		named, ok := ft.(*types.Named)
		if !ok {
			break
		}
		if _, isStruct := named.Underlying().(*types.Struct); !isStruct || scalarType(named) {
			break
		}
		te, err := l.entity(named)
		if err != nil {
			return nil, err
		}
		f.Target = te
	}
	if f.FK && f.Target == nil {
		return nil, fmt.Errorf("%s.%s: fk requires a record or Ref type, got %s", owner.Name, v.Name(), f.Type)
	}
	return f, nil
}

// resolveColumns fills Field.Columns for every loaded entity, mirroring
// the runtime snake-case strategy: scalars use their own name, foreign
// keys join the field name with the referenced key column, inline records
// flatten their components.
func (l *loader) resolveColumns() error {
	r := &resolver{done: make(map[*Field][]string)}
	for _, e := range l.order {
		for _, f := range e.Fields {
			cols, err := r.columns(e, f, nil)
			if err != nil {
				return err
			}
			f.Columns = cols
		}
	}
	return nil
}

type resolver struct {
	done map[*Field][]string
}

func (r *resolver) columns(owner *Entity, f *Field, seen map[*Field]bool) ([]string, error) {
	if cols, ok := r.done[f]; ok {
		return cols, nil
	}
	if seen[f] {
		return nil, fmt.Errorf("%s.%s: cyclic key reference", owner.Name, f.Name)
	}
	if seen == nil {
		seen = make(map[*Field]bool)
	}
	seen[f] = true
	cols, err := r.resolve(owner, f, seen)
	delete(seen, f)
	if err != nil {
		return nil, err
	}
	r.done[f] = cols
	return cols, nil
}

func (r *resolver) resolve(owner *Entity, f *Field, seen map[*Field]bool) ([]string, error) {
	switch {
	case f.Converter != "":
		// Converter widths are registered at runtime; only declared
		// names are known here.
		return f.tag.Columns, nil

	case f.FK || f.Ref:
		pk := f.Target.PrimaryKey()
		if pk == nil {
			return nil, fmt.Errorf("%s.%s: referenced type %s has no primary key", owner.Name, f.Name, f.Target.Name)
		}
		pkCols, err := r.columns(f.Target, pk, seen)
		if err != nil {
			return nil, err
		}
		if len(f.tag.Columns) > 0 {
			if len(f.tag.Columns) != len(pkCols) {
				return nil, fmt.Errorf("%s.%s: %d column names declared for a %d-column key",
					owner.Name, f.Name, len(f.tag.Columns), len(pkCols))
			}
			return f.tag.Columns, nil
		}
		cols := make([]string, len(pkCols))
		for i, pc := range pkCols {
			cols[i] = inflect.Underscore(f.Name) + "_" + pc
		}
		return cols, nil

	case f.Target != nil:
		var cols []string
		for _, sub := range f.Target.Fields {
			sc, err := r.columns(f.Target, sub, seen)
			if err != nil {
				return nil, err
			}
			cols = append(cols, sc...)
		}
		if len(f.tag.Columns) > 0 {
			if len(f.tag.Columns) != len(cols) {
				return nil, fmt.Errorf("%s.%s: %d column names declared for %d columns",
					owner.Name, f.Name, len(f.tag.Columns), len(cols))
			}
			return f.tag.Columns, nil
		}
		return cols, nil

	default:
		if len(f.tag.Columns) > 1 {
			return nil, fmt.Errorf("%s.%s: multiple column names declared for a single-column field", owner.Name, f.Name)
		}
		if len(f.tag.Columns) == 1 {
			return f.tag.Columns, nil
		}
		return []string{inflect.Underscore(f.Name)}, nil
	}
}

// scalarType mirrors the runtime scalar test: temporal types and anything
// speaking the database/sql Scanner/Valuer protocol map to one column.
func scalarType(named *types.Named) bool {
	obj := named.Obj()
	if obj.Pkg() != nil && obj.Pkg().Path() == "time" && obj.Name() == "Time" {
		return true
	}
	if hasValueMethod(named, "Value") {
		return true
	}
	return types.NewMethodSet(types.NewPointer(named)).Lookup(nil, "Scan") != nil
}

// hasValueMethod reports whether name is in the value method set of t.
func hasValueMethod(t types.Type, name string) bool {
	return types.NewMethodSet(t).Lookup(nil, name) != nil
}

// isRefType reports whether t is a schema.Ref instantiation.
func isRefType(t types.Type) bool {
	named, ok := t.(*types.Named)
	if !ok || named.TypeArgs().Len() != 1 {
		return false
	}
	obj := named.Origin().Obj()
	return obj.Name() == "Ref" && obj.Pkg() != nil && obj.Pkg().Path() == schemaPkgPath
}

// refTargetOf returns the referenced type of a Ref instantiation.
func refTargetOf(t types.Type) types.Type {
	return t.(*types.Named).TypeArgs().At(0)
}

// typeLabel renders a type the way it reads at the declaration site,
// package-qualified without import paths.
func typeLabel(t types.Type) string {
	return types.TypeString(t, func(p *types.Package) string {
		if p == nil {
			return ""
		}
		return p.Name()
	})
}

// EntityNames returns the sorted entity names of a loaded package, mostly
// for log lines and error messages.
func (p *Package) EntityNames() []string {
	names := make([]string, len(p.Entities))
	for i, e := range p.Entities {
		names[i] = e.Name
	}
	return names
}

// Lookup returns the named entity, or nil.
func (p *Package) Lookup(name string) *Entity {
	for _, e := range p.Entities {
		if e.Name == name {
			return e
		}
	}
	return nil
}

// String implements fmt.Stringer.
func (e *Entity) String() string {
	var b strings.Builder
	b.WriteString(e.Name)
	b.WriteString(" (")
	b.WriteString(e.Table)
	b.WriteString(")")
	return b.String()
}
