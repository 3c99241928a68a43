package compiler

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/syssam/weft/schema"
)

// Operator is the comparison an object expression applies between its
// target columns and its arguments.
type Operator uint8

const (
	EQ Operator = iota
	NEQ
	GT
	GTE
	LT
	LTE
	Like
	NotLike
	In
	NotIn
	IsNull
	IsNotNull
)

var operatorText = [...]string{
	"=", "<>", ">", ">=", "<", "<=", "LIKE", "NOT LIKE",
	"IN", "NOT IN", "IS NULL", "IS NOT NULL",
}

func (o Operator) String() string {
	if int(o) < len(operatorText) {
		return operatorText[o]
	}
	return "="
}

// Expr is a predicate form the compiler knows how to emit in two phases:
// compile produces SQL text and placeholder order only, bind produces the
// values in exactly that order. The union is closed; both phases are
// deterministic, so a shape compiled twice is byte-identical.
type Expr interface {
	compile(p *preparer) (string, error)
	bind(p *preparer, b *binder) error
}

// ObjectExpr compares values against the columns they resolve to: through
// an explicit metamodel path, through the registered table mappings for
// record and Ref arguments, or against the root primary key for bare
// scalars of a compatible type.
type ObjectExpr struct {
	Op   Operator
	Path Path
	Args []any
	// Versioned pins the target's version column alongside the key
	// predicate. Update and delete statements pin automatically when the
	// root carries a version field.
	Versioned bool
}

// exprTarget is the resolved left-hand side of an object expression.
type exprTarget struct {
	alias string
	cols  []string      // qualified, render-ready
	leaf  *schema.Field // scalar leaf for path targets
	rec   *schema.Type  // record type the arguments belong to
	keyed bool          // arguments carry rec's key values
	pkey  bool          // target is a primary-key mapping
}

func (e *ObjectExpr) resolveTarget(p *preparer) (exprTarget, error) {
	if spec := e.Path.Spec(); spec != "" {
		if r := e.Path.Root(); r != nil && p.root != nil && r != p.root.GoType() {
			return exprTarget{}, NewTemplateError("path %s is rooted at %s, statement root is %s",
				spec, r.Name(), p.root.Name())
		}
		return e.pathTarget(p, spec)
	}
	flat := flattenArgs(e.Args)
	if len(flat) == 0 {
		return exprTarget{}, NewTemplateError("cannot infer a target for %s without arguments; specify a metamodel path", e.Op)
	}
	a0 := flat[0]
	if rv, ok := recordValue(a0); ok {
		t, err := schema.TypeOf(rv.Type())
		if err != nil {
			return exprTarget{}, err
		}
		return e.mappingTarget(p, t)
	}
	if rt := reflect.TypeOf(a0); rt != nil && schema.IsRefType(rt) {
		target, _ := schema.RefTargetOf(rt)
		t, err := schema.TypeOf(target)
		if err != nil {
			return exprTarget{}, err
		}
		return e.mappingTarget(p, t)
	}
	// Bare scalar: assume the root primary key, but only when the type fits.
	if p.root == nil {
		return exprTarget{}, NewTemplateError("cannot infer a target for a bare %T without a root table; specify a metamodel path", a0)
	}
	pk := p.root.PrimaryKey()
	if pk == nil {
		return exprTarget{}, NewTemplateError("%s has no primary key to match a bare %T against", p.root.Name(), a0)
	}
	if pk.Record() != nil {
		return exprTarget{}, NewTemplateError("%s has a compound primary key; specify a metamodel path", p.root.Name())
	}
	if a0 != nil && !compatibleKeyType(reflect.TypeOf(a0), pk.BaseType()) {
		return exprTarget{}, NewTemplateError("bare %T does not match the %s primary key (%s); specify a metamodel path",
			a0, p.root.Name(), pk.BaseType())
	}
	cols, err := p.names().PrimaryKeyColumns(p.root)
	if err != nil {
		return exprTarget{}, err
	}
	return exprTarget{
		alias: p.rootAlias,
		cols:  p.qualifyAll(p.rootAlias, cols),
		rec:   p.root,
		keyed: true,
		pkey:  true,
	}, nil
}

func (e *ObjectExpr) pathTarget(p *preparer, spec string) (exprTarget, error) {
	alias, f, err := p.walkPath(spec, false)
	if err != nil {
		return exprTarget{}, err
	}
	switch {
	case f.IsFK() || f.RefTarget() != nil:
		cols, err := p.names().ForeignKeyColumns(f)
		if err != nil {
			return exprTarget{}, err
		}
		return exprTarget{alias: alias, cols: p.qualifyAll(alias, cols), rec: f.Target(), keyed: true}, nil
	case f.Record() != nil:
		cols, err := p.names().Columns(f)
		if err != nil {
			return exprTarget{}, err
		}
		return exprTarget{alias: alias, cols: p.qualifyAll(alias, cols), rec: f.Record()}, nil
	default:
		cols, err := p.names().Columns(f)
		if err != nil {
			return exprTarget{}, err
		}
		return exprTarget{alias: alias, cols: p.qualifyAll(alias, cols), leaf: f}, nil
	}
}

func (e *ObjectExpr) mappingTarget(p *preparer, t *schema.Type) (exprTarget, error) {
	m, err := p.tables.Mapping(t, nil, "")
	if err != nil {
		return exprTarget{}, err
	}
	var cols []schema.ColumnName
	if m.Primary {
		cols, err = p.names().PrimaryKeyColumns(m.Target)
	} else {
		cols, err = p.names().ForeignKeyColumns(m.Field)
	}
	if err != nil {
		return exprTarget{}, err
	}
	return exprTarget{
		alias: m.Alias,
		cols:  p.qualifyAll(m.Alias, cols),
		rec:   m.Target,
		keyed: true,
		pkey:  m.Primary,
	}, nil
}

// checkShapes rejects argument lists that mix record, reference and scalar
// shapes in one expression.
func (e *ObjectExpr) checkShapes(flat []any) error {
	shape := func(a any) string {
		if _, ok := recordValue(a); ok {
			return fmt.Sprintf("record %T", a)
		}
		if rt := reflect.TypeOf(a); rt != nil && schema.IsRefType(rt) {
			return fmt.Sprintf("ref %T", a)
		}
		return "scalar"
	}
	first := shape(flat[0])
	for _, a := range flat[1:] {
		if s := shape(a); s != first {
			return NewTemplateError("cannot mix %s and %s arguments in one expression", first, s)
		}
	}
	return nil
}

func (e *ObjectExpr) compile(p *preparer) (string, error) {
	t, err := e.resolveTarget(p)
	if err != nil {
		return "", err
	}
	if e.Op == IsNull || e.Op == IsNotNull {
		if len(e.Args) != 0 {
			return "", NewTemplateError("operator %s takes no arguments", e.Op)
		}
		if e.Versioned {
			return "", NewTemplateError("a null check cannot be version-aware")
		}
		parts := make([]string, len(t.cols))
		for i, c := range t.cols {
			parts[i] = c + " " + e.Op.String()
		}
		if len(parts) == 1 {
			return parts[0], nil
		}
		return "(" + strings.Join(parts, " AND ") + ")", nil
	}
	flat := flattenArgs(e.Args)
	if len(flat) == 0 {
		return "", NewTemplateError("operator %s requires at least one argument", e.Op)
	}
	if err := e.checkShapes(flat); err != nil {
		return "", err
	}
	var sqlText string
	if len(t.cols) == 1 {
		sqlText, err = e.compileSingle(p, t.cols[0], len(flat))
	} else {
		sqlText, err = e.compileMulti(p, t.cols, len(flat))
	}
	if err != nil {
		return "", err
	}
	if e.pinsVersion(p, t) {
		pin, err := e.compileVersionPin(p, t)
		if err != nil {
			return "", err
		}
		sqlText += pin
	}
	return sqlText, nil
}

func (e *ObjectExpr) compileSingle(p *preparer, col string, args int) (string, error) {
	list := func(neg bool) string {
		kw := "IN"
		if neg {
			kw = "NOT IN"
		}
		return col + " " + kw + " (" + p.placeholderList(args) + ")"
	}
	switch e.Op {
	case In:
		return list(false), nil
	case NotIn:
		return list(true), nil
	case EQ:
		if args > 1 {
			return list(false), nil
		}
		return col + " = " + p.asm.placeholder(""), nil
	case NEQ:
		if args > 1 {
			return list(true), nil
		}
		return col + " <> " + p.asm.placeholder(""), nil
	default:
		if args > 1 {
			return "", NewTemplateError("operator %s takes exactly one argument, got %d", e.Op, args)
		}
		return col + " " + e.Op.String() + " " + p.asm.placeholder(""), nil
	}
}

func (e *ObjectExpr) compileMulti(p *preparer, cols []string, args int) (string, error) {
	negate := e.Op == NEQ || e.Op == NotIn
	switch e.Op {
	case EQ, NEQ:
		if args == 1 {
			parts := make([]string, len(cols))
			for i, c := range cols {
				parts[i] = c + " = " + p.asm.placeholder("")
			}
			inner := "(" + strings.Join(parts, " AND ") + ")"
			if negate {
				return "NOT " + inner, nil
			}
			return inner, nil
		}
	case In, NotIn:
	default:
		return "", NewTemplateError("operator %s requires a single-column target, got %d columns", e.Op, len(cols))
	}
	in, err := p.flavor().MultiValueIn(cols, args, func() string { return p.asm.placeholder("") })
	if err != nil {
		return "", NewTemplateError("%s", err)
	}
	if negate {
		return "NOT (" + in + ")", nil
	}
	return in, nil
}

// pinsVersion reports whether this expression appends an optimistic-lock
// predicate. Updates and deletes against a versioned root pin implicitly
// when the whole record is matched by key; Versioned forces it elsewhere.
func (e *ObjectExpr) pinsVersion(p *preparer, t exprTarget) bool {
	if t.rec == nil || t.rec.Version() == nil {
		return false
	}
	if e.Versioned {
		return true
	}
	return (p.op == OpUpdate || p.op == OpDelete) &&
		t.pkey && t.rec == p.root && e.Path.Spec() == "" && e.Op == EQ
}

func (e *ObjectExpr) compileVersionPin(p *preparer, t exprTarget) (string, error) {
	vf := t.rec.Version()
	if vf == nil {
		return "", NewTemplateError("%s has no version field for a version-aware expression", t.rec.Name())
	}
	vcol, err := p.names().Column(vf)
	if err != nil {
		return "", err
	}
	p.asm.versionAware = true
	return " AND " + p.qualify(t.alias, vcol) + " = " + p.asm.placeholder(""), nil
}

func (e *ObjectExpr) bind(p *preparer, b *binder) error {
	t, err := e.resolveTarget(p)
	if err != nil {
		return err
	}
	if e.Op == IsNull || e.Op == IsNotNull {
		return nil
	}
	flat := flattenArgs(e.Args)
	if err := e.checkShapes(flat); err != nil {
		return err
	}
	for i, a := range flat {
		vals, err := e.argValues(t, a)
		if err != nil {
			return err
		}
		if len(vals) != len(t.cols) {
			return NewValueError(targetName(t), "",
				fmt.Sprintf("argument %d flattens to %d values for %d columns", i, len(vals), len(t.cols)))
		}
		for _, v := range vals {
			b.add(v)
		}
	}
	if e.pinsVersion(p, t) {
		if len(flat) != 1 {
			return NewTemplateError("a version-aware expression takes exactly one record argument")
		}
		rv, ok := recordValue(flat[0])
		if !ok {
			return NewTemplateError("a version-aware expression takes a record argument, got %T", flat[0])
		}
		v, err := versionValue(t.rec, rv)
		if err != nil {
			return err
		}
		b.add(v)
	}
	return nil
}

func (e *ObjectExpr) argValues(t exprTarget, a any) ([]any, error) {
	switch {
	case t.rec != nil && t.keyed:
		if rv, ok := recordValue(a); ok {
			if rv.Type() != t.rec.GoType() {
				return nil, NewValueError(t.rec.Name(), "",
					fmt.Sprintf("argument %T does not match target %s", a, t.rec.Name()))
			}
			return keyValues(t.rec, rv, true)
		}
		if rt := reflect.TypeOf(a); rt != nil && schema.IsRefType(rt) {
			if target, _ := schema.RefTargetOf(rt); target != t.rec.GoType() {
				return nil, NewValueError(t.rec.Name(), "",
					fmt.Sprintf("argument %T does not reference %s", a, t.rec.Name()))
			}
			key, ok := schema.RefKeyOf(reflect.ValueOf(a))
			if !ok {
				return nil, NewValueError(t.rec.Name(), "", "null reference in predicate; use a null check instead")
			}
			return keyAnyValues(t.rec, key)
		}
		if a == nil {
			return nil, NewValueError(t.rec.Name(), "", "null key in predicate; use a null check instead")
		}
		if len(t.cols) > 1 {
			return nil, NewValueError(t.rec.Name(), "",
				fmt.Sprintf("compound key requires a record argument, got %T", a))
		}
		pk := t.rec.PrimaryKey()
		if pk != nil && !compatibleKeyType(reflect.TypeOf(a), pk.BaseType()) {
			return nil, NewValueError(t.rec.Name(), "",
				fmt.Sprintf("%T does not match the %s key type %s", a, t.rec.Name(), pk.BaseType()))
		}
		return []any{a}, nil
	case t.rec != nil:
		rv, ok := recordValue(a)
		if !ok {
			return nil, NewValueError(t.rec.Name(), "", fmt.Sprintf("expected a %s value, got %T", t.rec.Name(), a))
		}
		if rv.Type() != t.rec.GoType() {
			return nil, NewValueError(t.rec.Name(), "", fmt.Sprintf("argument %T is not a %s", a, t.rec.Name()))
		}
		var out []any
		for _, cf := range t.rec.Fields() {
			vals, err := fieldValues(cf, rv, false)
			if err != nil {
				return nil, err
			}
			out = append(out, vals...)
		}
		return out, nil
	default:
		if _, ok := recordValue(a); ok {
			return nil, NewValueError(leafName(t.leaf), "", fmt.Sprintf("record argument %T against a scalar column", a))
		}
		return leafValues(t.leaf, a)
	}
}

// keyAnyValues widens a raw key (typically out of a Ref) to the key column
// values of t, flattening compound key records.
func keyAnyValues(t *schema.Type, key any) ([]any, error) {
	pk := t.PrimaryKey()
	if pk == nil {
		return nil, NewValueError(t.Name(), "", "no primary key")
	}
	if rec := pk.Record(); rec != nil && !pk.IsFK() {
		rv, ok := recordValue(key)
		if !ok {
			return nil, NewValueError(t.Name(), pk.Name(),
				fmt.Sprintf("compound key requires a %s value, got %T", rec.Name(), key))
		}
		var out []any
		for _, cf := range rec.Fields() {
			vals, err := fieldValues(cf, rv, true)
			if err != nil {
				return nil, err
			}
			out = append(out, vals...)
		}
		return out, nil
	}
	return []any{key}, nil
}

// leafValues maps one scalar argument onto a leaf field's columns,
// applying the field's converter or enum mode.
func leafValues(f *schema.Field, a any) ([]any, error) {
	if f == nil {
		return []any{a}, nil
	}
	switch {
	case f.ConverterName() != "":
		conv, ok := f.Converter()
		if !ok {
			return nil, NewValueError(f.Owner().Name(), f.Name(),
				fmt.Sprintf("converter %q is not registered", f.ConverterName()))
		}
		if a == nil {
			return make([]any, conv.Columns()), nil
		}
		cols, err := conv.ToColumns(a)
		if err != nil {
			return nil, NewValueError(f.Owner().Name(), f.Name(), err.Error())
		}
		return cols, nil
	case f.Enum() != schema.EnumNone:
		if a == nil {
			return []any{nil}, nil
		}
		v, err := enumValue(f, reflect.ValueOf(a))
		if err != nil {
			return nil, err
		}
		return []any{v}, nil
	default:
		return []any{a}, nil
	}
}

func targetName(t exprTarget) string {
	if t.rec != nil {
		return t.rec.Name()
	}
	return leafName(t.leaf)
}

func leafName(f *schema.Field) string {
	if f == nil {
		return "expression"
	}
	return f.Owner().Name() + "." + f.Name()
}

// TemplateExpr is a free-form predicate: literal SQL with nested values
// resolved in expression context. Records become key predicates, paths
// become columns, templates become correlated subqueries, scalars become
// parameters.
type TemplateExpr struct {
	Tmpl Template
}

func (e *TemplateExpr) compile(p *preparer) (string, error) {
	elems, err := p.resolveExprTemplate(e.Tmpl)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for i, frag := range e.Tmpl.Fragments {
		b.WriteString(frag)
		if i < len(elems) {
			s, err := p.compileExprElement(&elems[i])
			if err != nil {
				return "", err
			}
			b.WriteString(s)
		}
	}
	return b.String(), nil
}

func (e *TemplateExpr) bind(p *preparer, b *binder) error {
	elems, err := p.resolveExprTemplate(e.Tmpl)
	if err != nil {
		return err
	}
	for i := range elems {
		if err := p.bindExprElement(&elems[i], b); err != nil {
			return err
		}
	}
	return nil
}
