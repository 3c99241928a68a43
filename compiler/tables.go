package compiler

import (
	"github.com/syssam/weft/schema"
)

// Mapping records how a value of some record type, used in a predicate,
// resolves to columns of the compiled statement: through the foreign key
// that references it, or through its own primary key when the table itself
// takes part in the statement.
type Mapping struct {
	Target  *schema.Type  // the value type being resolved
	Source  *schema.Type  // the table owning the resolved columns
	Alias   string        // alias of the owning table
	Field   *schema.Field // foreign-key field, or the primary-key field for primary mappings
	Root    *schema.Type  // root table of the registering statement
	Path    string        // metamodel path the mapping was registered under
	Primary bool          // primary-key mapping
}

// TableMapper registers which tables and foreign keys a statement makes
// reachable and resolves object arguments against them.
type TableMapper struct {
	mappings []Mapping
}

// NewTableMapper returns an empty registry.
func NewTableMapper() *TableMapper {
	return &TableMapper{}
}

// MapForeignKey records that values of field's target type resolve to the
// foreign-key columns owned by fromAlias.
func (m *TableMapper) MapForeignKey(from *schema.Type, fromAlias string, field *schema.Field, root *schema.Type, path string) {
	m.mappings = append(m.mappings, Mapping{
		Target: field.Target(),
		Source: from,
		Alias:  fromAlias,
		Field:  field,
		Root:   root,
		Path:   path,
	})
}

// MapPrimaryKey records that values of t resolve to its own primary-key
// columns under the given alias.
func (m *TableMapper) MapPrimaryKey(t *schema.Type, alias string, root *schema.Type, path string) {
	m.mappings = append(m.mappings, Mapping{
		Target:  t,
		Source:  t,
		Alias:   alias,
		Field:   t.PrimaryKey(),
		Root:    root,
		Path:    path,
		Primary: true,
	})
}

// Mapping returns the unique mapping for valueType, optionally narrowed by
// root and path. Foreign-key mappings win over primary-key mappings: a
// record value in a predicate compares against the referencing columns
// when such columns exist, which keeps the predicate valid whether or not
// the referenced table is joined. Zero or several surviving candidates is
// an error the caller fixes by spelling out a metamodel path.
func (m *TableMapper) Mapping(valueType, root *schema.Type, path string) (Mapping, error) {
	c := m.candidates(valueType, root, path)
	switch len(c) {
	case 1:
		return c[0], nil
	case 0:
		return Mapping{}, NewTemplateError("cannot resolve %s to any column mapping; specify a metamodel path", valueType.Name())
	default:
		return Mapping{}, NewTemplateError("%s is reachable through %d mappings; specify a metamodel path", valueType.Name(), len(c))
	}
}

// IsUnique reports whether exactly one mapping would resolve valueType, the
// precondition for inferring a target from a bare object argument.
func (m *TableMapper) IsUnique(valueType *schema.Type) bool {
	return len(m.candidates(valueType, nil, "")) == 1
}

func (m *TableMapper) candidates(valueType, root *schema.Type, path string) []Mapping {
	var fks, pks []Mapping
	for _, mm := range m.mappings {
		if mm.Target != valueType {
			continue
		}
		if root != nil && mm.Root != root {
			continue
		}
		if path != "" && mm.Path != path {
			continue
		}
		if mm.Primary {
			pks = append(pks, mm)
		} else {
			fks = append(fks, mm)
		}
	}
	if len(fks) > 0 {
		return fks
	}
	return pks
}
