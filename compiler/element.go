package compiler

import (
	"reflect"

	"github.com/syssam/weft/schema"
)

// ElementKind discriminates the variants of Element.
type ElementKind uint8

const (
	// KindNone is an empty placeholder. Swept elements are replaced with
	// it so fragment/value alignment survives.
	KindNone ElementKind = iota
	KindSelect
	KindInsert
	KindUpdate
	KindDelete
	KindFrom
	KindJoin
	KindTable
	KindWhere
	KindValues
	KindSet
	KindColumn
	KindAliasRef
	KindParam
	KindBindVars
	KindSubquery
	KindUnsafe
)

var kindNames = [...]string{
	"none", "select", "insert", "update", "delete", "from", "join", "table",
	"where", "values", "set", "column", "alias", "param", "bindvars",
	"subquery", "unsafe",
}

func (k ElementKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "none"
}

// JoinKind selects the join operator of an explicit join element.
type JoinKind uint8

const (
	InnerJoin JoinKind = iota
	LeftJoin
	RightJoin
	CrossJoin
)

var joinKeywords = [...]string{"INNER JOIN", "LEFT JOIN", "RIGHT JOIN", "CROSS JOIN"}

func (k JoinKind) String() string {
	if int(k) < len(joinKeywords) {
		return joinKeywords[k]
	}
	return joinKeywords[InnerJoin]
}

func (k JoinKind) outer() bool { return k == LeftJoin || k == RightJoin }

// JoinSpec is the payload of an explicit join element: the target type, an
// optional alias, and a template-based ON condition compiled in the
// statement's alias scope.
type JoinSpec struct {
	Kind  JoinKind
	Alias string
	On    Template
}

// Element is one resolved template value: a closed tagged union the
// compiler switches over exhaustively. Exactly one of the primary kinds
// (select, insert, update, delete) may appear per statement.
type Element struct {
	Kind    ElementKind
	Type    *schema.Type    // target of select/insert/update/delete/from/join/table/alias
	Alias   string          // explicit alias captured from the template text
	Join    JoinSpec        // join payload
	Expr    Expr            // where payload
	Records []reflect.Value // values/set payload
	Path    Path            // column payload
	Value   any             // param payload
	Name    string          // named param
	Text    string          // unsafe payload
	Sub     Template        // subquery payload

	genAlias string    // alias generated for this element's table reference
	prep     *preparer // lazily built subquery scope
}

func (e Element) isPrimary() bool {
	switch e.Kind {
	case KindSelect, KindInsert, KindUpdate, KindDelete:
		return true
	}
	return false
}

// NewJoin builds an explicit join element. Explicit joins are swept out of
// their written position and emitted after the derived joins, outer joins
// last.
func NewJoin(kind JoinKind, target TypeToken, alias string, on Template) Element {
	return Element{Kind: KindJoin, Join: JoinSpec{Kind: kind, Alias: alias, On: on}, Value: target}
}

// NewTable registers a table inside the statement without joining it
// automatically; its primary and foreign keys become resolvable mappings.
func NewTable(target TypeToken, alias string) Element {
	return Element{Kind: KindTable, Alias: alias, Value: target}
}

// NewUnsafe splices raw SQL into the statement verbatim. The text takes
// part in statement classification but is otherwise trusted as written.
func NewUnsafe(sql string) Element {
	return Element{Kind: KindUnsafe, Text: sql}
}

// NewNamed binds a named parameter. Binding the same name to two different
// values within one statement is an error.
func NewNamed(name string, v any) Element {
	return Element{Kind: KindParam, Name: name, Value: v}
}

// NewBindVars emits a reusable key predicate ("pk = ?" and, for versioned
// records, "AND version = ?") whose values are supplied per batch row at
// execution time rather than at compile time.
func NewBindVars() Element {
	return Element{Kind: KindBindVars}
}
