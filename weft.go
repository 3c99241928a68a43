// Package weft is a template-compiled data mapper for SQL databases.
//
// Queries are written as SQL templates with {} placeholders. The compiler
// classifies the statement, derives joins and aliases from the entity
// graph, and splits the work in two phases: compiling a template's shape
// produces byte-stable SQL with an ordered slot plan, and binding fills
// the slots with values. Result rows stream back through cached per-type
// scan plans that rebuild nested records, lazy references, enums and
// converter-backed values.
//
//	engine, err := weft.Open("sqlite", ":memory:")
//	orders, err := weft.All[Order](ctx, engine,
//		weft.SQL("SELECT {} FROM {} WHERE {}",
//			weft.TokenOf[Order](), weft.TokenOf[Order](),
//			weft.Gt(weft.PathOf[Order]("Amount"), 100)))
package weft

import (
	"reflect"

	"github.com/syssam/weft/compiler"
)

// Aliases for the compiler's public surface, so everyday use needs only
// this package.
type (
	// Template is a parsed query template.
	Template = compiler.Template
	// Element is a resolved template value.
	Element = compiler.Element
	// Path is a typed reference to a field reachable from a record type.
	Path = compiler.Path
	// TypeToken names a record type inside a template.
	TypeToken = compiler.TypeToken
	// Statement is a fully bound SQL statement.
	Statement = compiler.Statement
	// Compiled is a reusable statement shape.
	Compiled = compiler.Compiled
	// Op is the classified statement kind.
	Op = compiler.Op
	// Operator is a predicate comparison operator.
	Operator = compiler.Operator
	// ObjectExpr compares values against the columns they resolve to.
	ObjectExpr = compiler.ObjectExpr
	// TemplateExpr nests a template fragment in predicate position.
	TemplateExpr = compiler.TemplateExpr
	// JoinKind selects the join operator of an explicit join.
	JoinKind = compiler.JoinKind
)

// Statement kinds.
const (
	OpUndefined = compiler.OpUndefined
	OpSelect    = compiler.OpSelect
	OpInsert    = compiler.OpInsert
	OpUpdate    = compiler.OpUpdate
	OpDelete    = compiler.OpDelete
)

// Join kinds.
const (
	InnerJoin = compiler.InnerJoin
	LeftJoin  = compiler.LeftJoin
	RightJoin = compiler.RightJoin
	CrossJoin = compiler.CrossJoin
)

// SQL builds a query template. Each {} placeholder consumes one value:
// scalars and slices become parameters, record instances become key or
// values clauses depending on position, type tokens name tables, and
// expressions compile in place.
func SQL(format string, values ...any) Template {
	return compiler.New(format, values...)
}

// TokenOf returns the type token for T.
func TokenOf[T any]() TypeToken {
	return compiler.Token(reflect.TypeOf((*T)(nil)).Elem())
}

// PathOf returns a field path rooted at T, written as dot-separated field
// names ("Customer.Name").
func PathOf[T any](spec string) Path {
	return compiler.NewPath(reflect.TypeOf((*T)(nil)).Elem(), spec)
}

// Join builds an explicit join element with a template-based ON condition.
func Join(kind JoinKind, target TypeToken, alias string, on Template) Element {
	return compiler.NewJoin(kind, target, alias, on)
}

// Table registers a table in the statement without joining it
// automatically.
func Table(target TypeToken, alias string) Element {
	return compiler.NewTable(target, alias)
}

// Unsafe splices raw SQL into the statement verbatim.
func Unsafe(sql string) Element {
	return compiler.NewUnsafe(sql)
}

// Named binds a named parameter. One name, one value per statement.
func Named(name string, v any) Element {
	return compiler.NewNamed(name, v)
}

// BindVars emits a reusable key predicate whose values are supplied per
// batch row at execution time.
func BindVars() Element {
	return compiler.NewBindVars()
}

// Where builds a predicate comparing args against the columns path
// resolves to.
func Where(op Operator, path Path, args ...any) *ObjectExpr {
	return &ObjectExpr{Op: op, Path: path, Args: args}
}

// Eq compares a field for equality.
func Eq(path Path, arg any) *ObjectExpr { return Where(compiler.EQ, path, arg) }

// Neq compares a field for inequality.
func Neq(path Path, arg any) *ObjectExpr { return Where(compiler.NEQ, path, arg) }

// Gt compares a field with ">".
func Gt(path Path, arg any) *ObjectExpr { return Where(compiler.GT, path, arg) }

// Gte compares a field with ">=".
func Gte(path Path, arg any) *ObjectExpr { return Where(compiler.GTE, path, arg) }

// Lt compares a field with "<".
func Lt(path Path, arg any) *ObjectExpr { return Where(compiler.LT, path, arg) }

// Lte compares a field with "<=".
func Lte(path Path, arg any) *ObjectExpr { return Where(compiler.LTE, path, arg) }

// Like matches a field against a pattern.
func Like(path Path, arg any) *ObjectExpr { return Where(compiler.Like, path, arg) }

// In matches a field against a list of values.
func In(path Path, args ...any) *ObjectExpr { return Where(compiler.In, path, args...) }

// NotIn excludes a field from a list of values.
func NotIn(path Path, args ...any) *ObjectExpr { return Where(compiler.NotIn, path, args...) }

// Null tests a field for NULL.
func Null(path Path) *ObjectExpr { return Where(compiler.IsNull, path) }

// NotNull tests a field for NOT NULL.
func NotNull(path Path) *ObjectExpr { return Where(compiler.IsNotNull, path) }

// ByKey builds a key-equality predicate without an explicit path: record
// instances compare by primary key, Ref values by their referenced key,
// and bare scalars against the root table's primary key.
func ByKey(args ...any) *ObjectExpr {
	return &ObjectExpr{Op: compiler.EQ, Args: args}
}

// ByKeyVersioned is ByKey with the record's version column pinned
// alongside the key, for optimistic-lock reads.
func ByKeyVersioned(args ...any) *ObjectExpr {
	return &ObjectExpr{Op: compiler.EQ, Args: args, Versioned: true}
}

// Fragment nests a template in predicate position.
func Fragment(format string, values ...any) *TemplateExpr {
	return &TemplateExpr{Tmpl: compiler.New(format, values...)}
}
