package schema

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/go-openapi/inflect"
)

// ColumnName is a resolved physical column name. Escape requests dialect
// identifier quoting when the name is rendered.
type ColumnName struct {
	Name   string
	Escape bool
}

// Render returns the column name, quoted through quote when escaped.
func (c ColumnName) Render(quote func(string) string) string {
	if c.Escape && quote != nil {
		return quote(c.Name)
	}
	return c.Name
}

// TableName is a resolved physical table name with an optional schema
// qualifier.
type TableName struct {
	Schema string
	Name   string
	Escape bool
}

// Render returns the qualified table name, quoting the name part through
// quote when escaped.
func (t TableName) Render(quote func(string) string) string {
	name := t.Name
	if t.Escape && quote != nil {
		name = quote(name)
	}
	if t.Schema != "" {
		return t.Schema + "." + name
	}
	return name
}

// Name-resolution strategies are pure functions of descriptor metadata,
// pluggable per engine.
type (
	// TableNameFunc derives a table name from a type descriptor.
	TableNameFunc func(*Type) string
	// ColumnNameFunc derives a column name from a field descriptor.
	ColumnNameFunc func(*Field) string
	// ForeignKeyNameFunc derives a foreign-key column name from the field
	// and the referenced primary-key column it carries.
	ForeignKeyNameFunc func(f *Field, target ColumnName) string
)

// SnakeTables pluralizes and snake-cases the type name (OrderLine ->
// order_lines).
func SnakeTables(t *Type) string {
	return inflect.Pluralize(inflect.Underscore(t.Name()))
}

// SnakeColumns snake-cases the field name (CustomerName -> customer_name).
func SnakeColumns(f *Field) string {
	return inflect.Underscore(f.Name())
}

// JoinFKNames joins the snake-cased field name with the referenced column
// name (Customer + id -> customer_id).
func JoinFKNames(f *Field, target ColumnName) string {
	return inflect.Underscore(f.Name()) + "_" + target.Name
}

// Names resolves physical table and column names through pluggable
// strategies, caching every resolution per descriptor. The zero value is
// ready to use with the snake-case defaults.
type Names struct {
	TableFunc      TableNameFunc
	ColumnFunc     ColumnNameFunc
	ForeignKeyFunc ForeignKeyNameFunc

	tables  sync.Map // *Type -> TableName
	columns sync.Map // *Field -> columnEntry
}

type columnEntry struct {
	cols []ColumnName
	err  error
}

func (n *Names) table(t *Type) string {
	if n.TableFunc != nil {
		return n.TableFunc(t)
	}
	return SnakeTables(t)
}

func (n *Names) column(f *Field) string {
	if n.ColumnFunc != nil {
		return n.ColumnFunc(f)
	}
	return SnakeColumns(f)
}

func (n *Names) foreignKey(f *Field, target ColumnName) string {
	if n.ForeignKeyFunc != nil {
		return n.ForeignKeyFunc(f, target)
	}
	return JoinFKNames(f, target)
}

// Table returns the resolved physical table name for t. An explicit
// TableName override is split on its last dot into schema and name, and is
// quoted when it is not a plain lower-case identifier.
func (n *Names) Table(t *Type) TableName {
	if v, ok := n.tables.Load(t); ok {
		return v.(TableName)
	}
	name := TableName{Schema: t.schemaName}
	switch override := t.tableName; {
	case override != "":
		if i := strings.LastIndexByte(override, '.'); i >= 0 && name.Schema == "" {
			name.Schema, override = override[:i], override[i+1:]
		}
		name.Name = override
		name.Escape = !plainIdent(override)
	default:
		name.Name = n.table(t)
	}
	v, _ := n.tables.LoadOrStore(t, name)
	return v.(TableName)
}

// Columns returns the resolved column list for f: one column for a scalar
// field, the declared span for a converter-backed field, the referenced
// primary-key span for FK and Ref fields, and the flattened component span
// for nested records. Explicit tag overrides take positional priority over
// component-derived names.
func (n *Names) Columns(f *Field) ([]ColumnName, error) {
	return n.columnsFor(f, nil)
}

// Column resolves a field expected to span exactly one column.
func (n *Names) Column(f *Field) (ColumnName, error) {
	cols, err := n.Columns(f)
	if err != nil {
		return ColumnName{}, err
	}
	if len(cols) != 1 {
		return ColumnName{}, NewStructError(f.owner.name, f.name,
			fmt.Sprintf("expected a single column, field spans %d", len(cols)))
	}
	return cols[0], nil
}

// PrimaryKeyColumns resolves the primary-key columns of t, expanding a
// compound key. A top-level override on the key field takes positional
// priority over component names. A projection resolves to nil.
func (n *Names) PrimaryKeyColumns(t *Type) ([]ColumnName, error) {
	pk := t.PrimaryKey()
	if pk == nil {
		return nil, nil
	}
	return n.Columns(pk)
}

// ForeignKeyColumns resolves the columns carrying f's foreign key, one per
// referenced primary-key component.
func (n *Names) ForeignKeyColumns(f *Field) ([]ColumnName, error) {
	if f.Target() == nil || (!f.fk && f.refTarget == nil) {
		return nil, NewStructError(f.owner.name, f.name, "not a foreign-key field")
	}
	return n.Columns(f)
}

func (n *Names) columnsFor(f *Field, seen map[*Field]bool) ([]ColumnName, error) {
	if v, ok := n.columns.Load(f); ok {
		e := v.(columnEntry)
		return e.cols, e.err
	}
	if seen[f] {
		return nil, NewStructError(f.owner.name, f.name, "cyclic key reference")
	}
	if seen == nil {
		seen = make(map[*Field]bool)
	}
	seen[f] = true
	cols, err := n.resolve(f, seen)
	delete(seen, f)
	v, _ := n.columns.LoadOrStore(f, columnEntry{cols: cols, err: err})
	e := v.(columnEntry)
	return e.cols, e.err
}

func (n *Names) resolve(f *Field, seen map[*Field]bool) ([]ColumnName, error) {
	switch {
	case f.convert != "":
		c, ok := ConverterByName(f.convert)
		if !ok {
			return nil, NewStructError(f.owner.name, f.name, "unknown converter "+strconv.Quote(f.convert))
		}
		width := c.Columns()
		if width < 1 {
			return nil, NewStructError(f.owner.name, f.name, "converter "+f.convert+" declares no columns")
		}
		if len(f.columns) > 0 {
			if len(f.columns) != width {
				return nil, NewStructError(f.owner.name, f.name,
					fmt.Sprintf("%d column names declared for a %d-column converter", len(f.columns), width))
			}
			return overrideColumns(f), nil
		}
		base := n.column(f)
		if width == 1 {
			return []ColumnName{{Name: base, Escape: f.escape}}, nil
		}
		cols := make([]ColumnName, width)
		for i := range cols {
			cols[i] = ColumnName{Name: base + "_" + strconv.Itoa(i), Escape: f.escape}
		}
		return cols, nil

	case f.fk || f.refTarget != nil:
		target := f.Target()
		pk := target.PrimaryKey()
		if pk == nil {
			return nil, NewStructError(f.owner.name, f.name, "referenced type "+target.name+" has no primary key")
		}
		pkCols, err := n.columnsFor(pk, seen)
		if err != nil {
			return nil, err
		}
		if len(f.columns) > 0 {
			if len(f.columns) != len(pkCols) {
				return nil, NewStructError(f.owner.name, f.name,
					fmt.Sprintf("%d column names declared for a %d-column key", len(f.columns), len(pkCols)))
			}
			return overrideColumns(f), nil
		}
		cols := make([]ColumnName, len(pkCols))
		for i, pc := range pkCols {
			cols[i] = ColumnName{Name: n.foreignKey(f, pc), Escape: pc.Escape || f.escape}
		}
		return cols, nil

	case f.record != nil:
		// Inline field or compound key: flatten component columns.
		var cols []ColumnName
		for _, sub := range f.record.fields {
			sc, err := n.columnsFor(sub, seen)
			if err != nil {
				return nil, err
			}
			cols = append(cols, sc...)
		}
		if len(f.columns) > 0 {
			if len(f.columns) != len(cols) {
				return nil, NewStructError(f.owner.name, f.name,
					fmt.Sprintf("%d column names declared for %d columns", len(f.columns), len(cols)))
			}
			for i := range cols {
				cols[i] = ColumnName{Name: f.columns[i], Escape: f.escape}
			}
		}
		return cols, nil

	default:
		if len(f.columns) > 1 {
			return nil, NewStructError(f.owner.name, f.name, "multiple column names declared for a single-column field")
		}
		if len(f.columns) == 1 {
			return []ColumnName{{Name: f.columns[0], Escape: f.escape}}, nil
		}
		return []ColumnName{{Name: n.column(f), Escape: f.escape}}, nil
	}
}

func overrideColumns(f *Field) []ColumnName {
	cols := make([]ColumnName, len(f.columns))
	for i, c := range f.columns {
		cols[i] = ColumnName{Name: c, Escape: f.escape}
	}
	return cols
}

// plainIdent reports whether s needs no quoting: a lower-case identifier.
func plainIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r == '_':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
