package weft

import (
	"context"
	"log/slog"
	"reflect"
	"strings"

	"github.com/syssam/weft/compiler"
	"github.com/syssam/weft/dialect"
	"github.com/syssam/weft/dialect/sql"
	"github.com/syssam/weft/intercept"
	"github.com/syssam/weft/rowmap"
	"github.com/syssam/weft/schema"
)

// Engine compiles templates against one database and executes them. An
// Engine is safe for concurrent use; compiled statement shapes are cached
// and shared across goroutines.
type Engine struct {
	drv      dialect.Driver
	cfg      compiler.Config
	registry *intercept.Registry
	prepared *preparedCache
}

// Option configures an Engine.
type Option func(*Engine)

// WithFlavor overrides the SQL flavor derived from the driver's dialect
// name.
func WithFlavor(f dialect.Flavor) Option {
	return func(e *Engine) { e.cfg.Flavor = f }
}

// WithNames installs a custom table/column naming service.
func WithNames(names *schema.Names) Option {
	return func(e *Engine) { e.cfg.Names = names }
}

// WithSafeMode turns the update/delete-without-WHERE advisory into a hard
// compile error.
func WithSafeMode() Option {
	return func(e *Engine) { e.cfg.SafeMode = true }
}

// WithoutAutoJoin disables foreign-key join derivation; every table a
// statement touches must then be joined explicitly.
func WithoutAutoJoin() Option {
	return func(e *Engine) { e.cfg.DisableAutoJoin = true }
}

// WithoutRecordValues rejects record instances as template values,
// restricting templates to scalars, tokens and expressions.
func WithoutRecordValues() Option {
	return func(e *Engine) { e.cfg.DisableRecords = true }
}

// WithInterceptors registers interceptors on the engine's registry. They
// see every statement the engine executes, in registration order.
func WithInterceptors(ics ...intercept.Interceptor) Option {
	return func(e *Engine) {
		for _, ic := range ics {
			if _, err := e.registry.Register(ic); err != nil {
				panic(err)
			}
		}
	}
}

// New wraps an open driver in an Engine. The SQL flavor defaults to the
// driver's dialect name.
func New(drv dialect.Driver, opts ...Option) *Engine {
	e := &Engine{
		drv:      drv,
		cfg:      compiler.Config{Flavor: dialect.NewFlavor(drv.Dialect())},
		registry: intercept.NewRegistry(),
		prepared: newPreparedCache(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Open opens a database/sql connection for the named dialect and wraps it
// in an Engine.
func Open(dialectName, dsn string, opts ...Option) (*Engine, error) {
	drv, err := sql.Open(dialectName, dsn)
	if err != nil {
		return nil, err
	}
	return New(drv, opts...), nil
}

// Close closes the underlying driver.
func (e *Engine) Close() error {
	return e.drv.Close()
}

// Driver returns the underlying driver.
func (e *Engine) Driver() dialect.Driver {
	return e.drv
}

// Interceptors returns the engine's interceptor registry.
func (e *Engine) Interceptors() *intercept.Registry {
	return e.registry
}

// Compile compiles a template's shape without binding its values. The
// result is cached, so recompiling the same text and value shape is a
// lookup.
func (e *Engine) Compile(tmpl Template) (*compiler.Compiled, error) {
	return e.prepared.compile(tmpl, e.cfg)
}

// Statement compiles and binds a template and runs it through the
// engine-registered and context-scoped interceptor chains. This is the
// exact statement Exec and Query would hand to the driver.
func (e *Engine) Statement(ctx context.Context, tmpl Template) (*compiler.Statement, error) {
	c, err := e.prepared.compile(tmpl, e.cfg)
	if err != nil {
		return nil, err
	}
	stmt, err := c.Bind(tmpl.Values...)
	if err != nil {
		return nil, err
	}
	return e.observe(ctx, stmt)
}

func (e *Engine) observe(ctx context.Context, stmt *compiler.Statement) (*compiler.Statement, error) {
	stmt, err := e.registry.Apply(ctx, stmt)
	if err != nil {
		return nil, err
	}
	return intercept.Apply(ctx, stmt, intercept.FromContext(ctx)...)
}

// Exec compiles tmpl and executes it as a mutation. Version-pinned
// updates and deletes that match no rows fail with a VersionError.
func (e *Engine) Exec(ctx context.Context, tmpl Template) (sql.Result, error) {
	stmt, err := e.Statement(ctx, tmpl)
	if err != nil {
		return nil, err
	}
	return execStatement(ctx, e.drv, stmt)
}

// ExecBatch compiles tmpl once and executes it for every row, binding the
// statement's bind-variables block per row. It returns the total number of
// affected rows. The template must contain a BindVars element.
func (e *Engine) ExecBatch(ctx context.Context, tmpl Template, rows ...any) (int64, error) {
	stmt, err := e.Statement(ctx, tmpl)
	if err != nil {
		return 0, err
	}
	return execBatch(ctx, e.drv, stmt, rows)
}

// Tx starts a transaction. Statements executed through the returned Tx
// share one entity cache, so rows naming the same entity map to the same
// instance for the transaction's lifetime.
func (e *Engine) Tx(ctx context.Context) (*Tx, error) {
	tx, err := e.drv.Tx(ctx)
	if err != nil {
		return nil, err
	}
	return &Tx{engine: e, tx: tx, cache: NewEntityCache()}, nil
}

func execStatement(ctx context.Context, conn dialect.ExecQuerier, stmt *compiler.Statement) (sql.Result, error) {
	if stmt.BindVars != nil {
		return nil, compiler.NewTemplateError("statement has an unbound batch block; use ExecBatch")
	}
	warnUnsafe(ctx, stmt)
	var res sql.Result
	if err := conn.Exec(ctx, stmt.SQL, stmt.Args(), &res); err != nil {
		return nil, err
	}
	if err := checkVersion(stmt, res, ""); err != nil {
		return res, err
	}
	return res, nil
}

func execBatch(ctx context.Context, conn dialect.ExecQuerier, stmt *compiler.Statement, rows []any) (int64, error) {
	spec := stmt.BindVars
	if spec == nil {
		return 0, compiler.NewTemplateError("statement has no batch block; add a BindVars element")
	}
	warnUnsafe(ctx, stmt)
	fixed := stmt.Args()
	var total int64
	for _, row := range rows {
		rowArgs, err := spec.BindRow(row)
		if err != nil {
			return total, err
		}
		args := make([]any, 0, len(fixed)+len(rowArgs))
		args = append(args, fixed[:spec.Offset]...)
		args = append(args, rowArgs...)
		args = append(args, fixed[spec.Offset:]...)
		var res sql.Result
		if err := conn.Exec(ctx, stmt.SQL, args, &res); err != nil {
			return total, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			continue
		}
		if n == 0 && stmt.VersionAware {
			return total, NewVersionError(entityLabel(row))
		}
		total += n
	}
	return total, nil
}

// checkVersion turns a zero-row version-pinned write into a stale-version
// failure. Drivers that cannot report affected rows skip the check.
func checkVersion(stmt *compiler.Statement, res sql.Result, label string) error {
	if !stmt.VersionAware {
		return nil
	}
	if stmt.Op != compiler.OpUpdate && stmt.Op != compiler.OpDelete {
		return nil
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil
	}
	if n == 0 {
		return NewVersionError(label)
	}
	return nil
}

func warnUnsafe(ctx context.Context, stmt *compiler.Statement) {
	if stmt.Unsafe != "" {
		slog.WarnContext(ctx, "unsafe statement", "advisory", stmt.Unsafe, "query", stmt.SQL)
	}
}

// entityLabel names an entity value in errors: the lower-cased Go type
// name.
func entityLabel(v any) string {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Name() == "" {
		return "entity"
	}
	return strings.ToLower(t.Name())
}

// interner scope for engine-level queries: a fresh arena per query,
// released when the cursor closes.
func (e *Engine) scope() (rowmap.Interner, func() error) {
	arena := rowmap.NewArena()
	return arena, arena.Release
}

func (e *Engine) conn() dialect.ExecQuerier { return e.drv }

func (e *Engine) statement(ctx context.Context, tmpl Template) (*compiler.Statement, error) {
	return e.Statement(ctx, tmpl)
}
