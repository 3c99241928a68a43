package compiler

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/syssam/weft/schema"
)

// Param is one bound statement parameter. Name is set for named
// parameters; emission is positional either way.
type Param struct {
	Name  string
	Value any
}

// BindVarsSpec describes the per-row parameters of a batched statement:
// which record type supplies them, which columns they stand for, and where
// they sit in the parameter list.
type BindVarsSpec struct {
	// Type is the record type whose key fills the per-row slots.
	Type *schema.Type
	// Columns names the slots in emission order.
	Columns []string
	// VersionAware marks a trailing version slot.
	VersionAware bool
	// Offset is the index in Statement.Params where the per-row slots
	// begin; parameters before and after it are shared across the batch.
	Offset int
	// Arity is the number of per-row slots.
	Arity int
}

// BindRow extracts the per-row parameter values for one record of the
// batch: its primary key and, when the statement is version-aware, its
// current version.
func (s *BindVarsSpec) BindRow(record any) ([]any, error) {
	rv, ok := recordValue(record)
	if !ok || rv.Type() != s.Type.GoType() {
		return nil, NewValueError(s.Type.Name(), "", fmt.Sprintf("batch row must be a %s, got %T", s.Type.Name(), record))
	}
	vals, err := keyValues(s.Type, rv, true)
	if err != nil {
		return nil, err
	}
	if s.VersionAware {
		v, err := versionValue(s.Type, rv)
		if err != nil {
			return nil, err
		}
		vals = append(vals, v)
	}
	if len(vals) != s.Arity {
		return nil, NewValueError(s.Type.Name(), "",
			fmt.Sprintf("batch row yields %d values for %d slots", len(vals), s.Arity))
	}
	return vals, nil
}

// Statement is a fully bound SQL statement: text, ordered parameters and
// execution metadata.
type Statement struct {
	// SQL is the final statement text with dialect placeholders.
	SQL string
	// Op is the classified statement kind.
	Op Op
	// Params are the bound parameter values, in placeholder order.
	Params []Param
	// GeneratedKeys names the database-generated key columns an insert
	// should report back.
	GeneratedKeys []string
	// VersionAware marks statements carrying an optimistic-lock predicate
	// or bump; zero affected rows then means a stale read, not a miss.
	VersionAware bool
	// Unsafe carries the advisory for updates and deletes without a WHERE
	// clause; empty otherwise.
	Unsafe string
	// BindVars is set when the statement has a batched key predicate.
	BindVars *BindVarsSpec
}

// Args returns the parameter values alone, in order, for drivers.
func (s *Statement) Args() []any {
	args := make([]any, len(s.Params))
	for i, p := range s.Params {
		args[i] = p.Value
	}
	return args
}

// Compiled is a reusable statement shape: the SQL text and placeholder
// order are fixed at compile time, and values with the same shape can be
// bound against it any number of times, concurrently.
type Compiled struct {
	prep      *preparer
	sql       string
	sig       string
	unsafeMsg string
}

// Compile resolves and compiles the template into its SQL shape without
// binding parameter values. Compiling the same template twice yields
// byte-identical SQL.
func Compile(t Template, cfg Config) (*Compiled, error) {
	if cfg.Flavor == nil {
		return nil, NewTemplateError("no dialect flavor configured")
	}
	if cfg.Names == nil {
		cfg.Names = &schema.Names{}
	}
	asm := &assembly{cfg: cfg}
	p := newPreparer(t, asm, NewAliasMapper())
	if err := p.run(); err != nil {
		return nil, err
	}
	sqlText, err := p.compileSQL()
	if err != nil {
		return nil, err
	}
	c := &Compiled{prep: p, sql: sqlText, sig: signature(t.Values)}
	if p.op == OpUpdate || p.op == OpDelete {
		if !HasWhereClause(sqlText, cfg.Flavor) {
			c.unsafeMsg = fmt.Sprintf("%s without a WHERE clause affects every row", p.op)
			if cfg.SafeMode {
				return nil, NewTemplateError("unsafe statement: %s", c.unsafeMsg)
			}
		}
	}
	return c, nil
}

// SQL returns the compiled statement text.
func (c *Compiled) SQL() string { return c.sql }

// Op returns the classified statement kind.
func (c *Compiled) Op() Op { return c.prep.op }

// Signature identifies the value shape this compilation is valid for.
func (c *Compiled) Signature() string { return c.sig }

// Bind resolves values against the compiled shape and returns an
// executable statement. The values must match the shape the template was
// compiled with: same kinds, same record types, same slice lengths.
func (c *Compiled) Bind(values ...any) (*Statement, error) {
	if sig := signature(values); sig != c.sig {
		return nil, NewTemplateError("rebound values do not match the compiled shape")
	}
	elems, _, err := c.prep.resolveValues(values)
	if err != nil {
		return nil, err
	}
	b := &binder{bindVarsOffset: -1}
	if err := c.prep.bindAll(elems, b); err != nil {
		return nil, err
	}
	expect := len(c.prep.asm.slots)
	if bv := c.prep.asm.bindVars; bv != nil {
		expect -= bv.Arity
	}
	if len(b.params) != expect {
		return nil, NewTemplateError("bound %d values for %d placeholders", len(b.params), expect)
	}
	stmt := &Statement{
		SQL:           c.sql,
		Op:            c.prep.op,
		Params:        b.params,
		GeneratedKeys: c.prep.generated,
		VersionAware:  c.prep.asm.versionAware,
		Unsafe:        c.unsafeMsg,
	}
	if bv := c.prep.asm.bindVars; bv != nil {
		spec := *bv
		spec.Offset = b.bindVarsOffset
		stmt.BindVars = &spec
	}
	return stmt, nil
}

// Prepare compiles the template and binds its own values in one step.
func Prepare(t Template, cfg Config) (*Statement, error) {
	c, err := Compile(t, cfg)
	if err != nil {
		return nil, err
	}
	return c.Bind(t.Values...)
}

// signature encodes the shape of a value list: kinds, record types, slice
// lengths. Two lists with equal signatures compile to identical SQL, which
// is what makes compiled statements reusable and cacheable.
func signature(values []any) string {
	var b strings.Builder
	writeSignatures(&b, values)
	return b.String()
}

// Shape fingerprints a value list the same way Compile does. A template
// whose text and Shape both match a previously compiled statement can be
// bound against it without recompiling.
func Shape(values ...any) string {
	return signature(values)
}

func writeSignatures(b *strings.Builder, values []any) {
	for i, v := range values {
		if i > 0 {
			b.WriteByte(';')
		}
		writeSignature(b, v)
	}
}

func writeSignature(b *strings.Builder, v any) {
	switch x := v.(type) {
	case nil:
		b.WriteString("nil")
	case Element:
		fmt.Fprintf(b, "e:%s", x.Kind)
		switch x.Kind {
		case KindJoin:
			fmt.Fprintf(b, ":%d(", x.Join.Kind)
			writeSignatures(b, x.Join.On.Values)
			b.WriteByte(')')
		case KindParam:
			b.WriteByte(':')
			if x.Name != "" {
				b.WriteString(x.Name)
				b.WriteByte('=')
			}
			writeSignature(b, x.Value)
		case KindUnsafe:
			b.WriteByte(':')
			b.WriteString(x.Text)
		}
	case Template:
		b.WriteString("t(")
		writeSignatures(b, x.Values)
		b.WriteByte(')')
	case TypeToken:
		fmt.Fprintf(b, "T:%v", x.GoType())
	case reflect.Type:
		fmt.Fprintf(b, "T:%v", x)
	case Path:
		fmt.Fprintf(b, "p:%s", x.String())
	case *ObjectExpr:
		fmt.Fprintf(b, "x:%d:%s:%t(", x.Op, x.Path.String(), x.Versioned)
		writeSignatures(b, flattenArgs(x.Args))
		b.WriteByte(')')
	case *TemplateExpr:
		b.WriteString("xt(")
		writeSignatures(b, x.Tmpl.Values)
		b.WriteByte(')')
	default:
		rv := reflect.ValueOf(v)
		if (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) && rv.Type().Elem().Kind() != reflect.Uint8 {
			fmt.Fprintf(b, "s%d:%s", rv.Len(), rv.Type().Elem())
			return
		}
		fmt.Fprintf(b, "v:%T", v)
	}
}
