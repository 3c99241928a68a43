package weft

import (
	"context"
	"fmt"
	"reflect"

	"github.com/syssam/weft/compiler"
	"github.com/syssam/weft/dialect"
	"github.com/syssam/weft/dialect/sql"
	"github.com/syssam/weft/rowmap"
)

// source is the execution contract shared by Engine and Tx: a connection,
// a statement pipeline, and an interning scope for mapped rows.
type source interface {
	conn() dialect.ExecQuerier
	statement(ctx context.Context, tmpl Template) (*compiler.Statement, error)
	scope() (rowmap.Interner, func() error)
}

// Cursor is a pull-based stream of mapped rows. It is finite and not
// restartable; a consumed cursor cannot be rewound. The cursor closes
// itself on exhaustion and on mapping errors, and Close is safe to call
// again on every exit path. Closing releases the row interning scope
// along with the driver resources.
type Cursor[T any] struct {
	rows   sql.Rows
	in     rowmap.Interner
	raw    []any
	ptrs   []any
	cur    T
	err    error
	closed bool
}

// Query compiles tmpl, executes it and returns a cursor mapping each row
// to T. The caller owns the cursor and must Close it unless it is drained.
func Query[T any](ctx context.Context, src source, tmpl Template) (*Cursor[T], error) {
	stmt, err := src.statement(ctx, tmpl)
	if err != nil {
		return nil, err
	}
	if stmt.BindVars != nil {
		return nil, compiler.NewTemplateError("statement has an unbound batch block; use ExecBatch")
	}
	var zero T
	plan, err := rowmap.PlanFor(reflect.TypeOf(&zero).Elem())
	if err != nil {
		return nil, err
	}
	in, release := src.scope()
	var rows sql.Rows
	if err := src.conn().Query(ctx, stmt.SQL, stmt.Args(), &rows); err != nil {
		if release != nil {
			_ = release()
		}
		return nil, err
	}
	if release != nil {
		rows = rows.WithCloser(release)
	}
	cols, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		return nil, err
	}
	if !plan.Applicable(len(cols)) {
		_ = rows.Close()
		return nil, rowmap.NewDataError(plan.Type().Name(), "",
			fmt.Sprintf("query returns %d columns, plan consumes %d", len(cols), plan.Arity()))
	}
	c := &Cursor[T]{
		rows: rows,
		in:   in,
		raw:  make([]any, plan.Arity()),
		ptrs: make([]any, plan.Arity()),
	}
	for i := range c.raw {
		c.ptrs[i] = &c.raw[i]
	}
	return c, nil
}

// Next advances to the next row, mapping it into Value. It returns false
// when the stream is exhausted or fails; Err tells the two apart. The
// underlying resources are released the moment Next returns false.
func (c *Cursor[T]) Next() bool {
	if c.closed || c.err != nil {
		return false
	}
	if !c.rows.Next() {
		c.err = c.rows.Err()
		if cerr := c.Close(); cerr != nil && c.err == nil {
			c.err = cerr
		}
		return false
	}
	if err := c.rows.Scan(c.ptrs...); err != nil {
		c.fail(err)
		return false
	}
	v, err := rowmap.Scan[T](c.raw, c.in)
	if err != nil {
		c.fail(err)
		return false
	}
	c.cur = v
	return true
}

func (c *Cursor[T]) fail(err error) {
	c.err = err
	_ = c.Close()
}

// Value returns the row mapped by the last successful Next.
func (c *Cursor[T]) Value() T {
	return c.cur
}

// Err returns the first error the cursor hit, if any.
func (c *Cursor[T]) Err() error {
	return c.err
}

// Close releases the driver resources and the interning scope. It is
// idempotent.
func (c *Cursor[T]) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.rows.Close()
}

// All compiles tmpl, executes it and drains the result into a slice.
func All[T any](ctx context.Context, src source, tmpl Template) ([]T, error) {
	c, err := Query[T](ctx, src, tmpl)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	var out []T
	for c.Next() {
		out = append(out, c.Value())
	}
	if err := c.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// One compiles tmpl, executes it and returns exactly one mapped row. Zero
// rows fail with a NotFoundError, more than one with a NotSingularError.
func One[T any](ctx context.Context, src source, tmpl Template) (T, error) {
	var zero T
	c, err := Query[T](ctx, src, tmpl)
	if err != nil {
		return zero, err
	}
	defer c.Close()
	if !c.Next() {
		if err := c.Err(); err != nil {
			return zero, err
		}
		return zero, NewNotFoundError(entityLabel(zero))
	}
	v := c.Value()
	if c.Next() {
		return zero, NewNotSingularError(entityLabel(zero))
	}
	if err := c.Err(); err != nil {
		return zero, err
	}
	return v, nil
}
