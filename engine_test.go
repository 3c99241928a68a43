package weft_test

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/weft"
	"github.com/syssam/weft/compiler"
	"github.com/syssam/weft/dialect"
	"github.com/syssam/weft/dialect/sql"
	"github.com/syssam/weft/intercept"
)

// newEngine returns an engine over a sqlmock connection matching queries
// by exact text.
func newEngine(t *testing.T, opts ...weft.Option) (*weft.Engine, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return weft.New(sql.OpenDB(dialect.SQLite, db), opts...), mock
}

func driverArgs(args []any) []driver.Value {
	out := make([]driver.Value, len(args))
	for i, a := range args {
		out[i] = a
	}
	return out
}

func TestEngineStatement(t *testing.T) {
	ctx := context.Background()

	t.Run("compiles_against_the_driver_dialect", func(t *testing.T) {
		e, _ := newEngine(t)
		stmt, err := e.Statement(ctx, weft.SQL("SELECT {} FROM {} WHERE amount > {}",
			weft.TokenOf[Order](), weft.TokenOf[Order](), int64(100)))
		require.NoError(t, err)
		assert.Equal(t,
			"SELECT o.id, c.id, c.name, o.amount, o.revision "+
				"FROM orders o INNER JOIN customers c ON o.customer_id = c.id "+
				"WHERE amount > ?",
			stmt.SQL)
		assert.Equal(t, []any{int64(100)}, stmt.Args())
		assert.Equal(t, weft.OpSelect, stmt.Op)
	})

	t.Run("registry_interceptors_see_every_statement", func(t *testing.T) {
		var seen []string
		e, _ := newEngine(t, weft.WithInterceptors(
			intercept.Observe(func(_ context.Context, s *weft.Statement) {
				seen = append(seen, s.SQL)
			})))
		_, err := e.Statement(ctx, weft.SQL("SELECT amount FROM {}", weft.TokenOf[Order]()))
		require.NoError(t, err)
		assert.Equal(t, []string{
			"SELECT amount FROM orders o INNER JOIN customers c ON o.customer_id = c.id",
		}, seen)
	})

	t.Run("context_chain_runs_after_the_registry", func(t *testing.T) {
		reorder := intercept.Func(func(_ context.Context, s *weft.Statement) (*weft.Statement, error) {
			next := *s
			next.SQL = s.SQL + " ORDER BY o.id"
			return &next, nil
		})
		e, _ := newEngine(t)
		stmt, err := e.Statement(intercept.With(ctx, reorder),
			weft.SQL("SELECT amount FROM {}", weft.TokenOf[Order]()))
		require.NoError(t, err)
		assert.Equal(t,
			"SELECT amount FROM orders o INNER JOIN customers c ON o.customer_id = c.id ORDER BY o.id",
			stmt.SQL)
	})

	t.Run("interceptor_error_blocks_compilation_result", func(t *testing.T) {
		deny := intercept.Func(func(context.Context, *weft.Statement) (*weft.Statement, error) {
			return nil, errors.New("writes are frozen")
		})
		e, _ := newEngine(t, weft.WithInterceptors(deny))
		_, err := e.Statement(ctx, weft.SQL("SELECT amount FROM {}", weft.TokenOf[Order]()))
		require.EqualError(t, err, "writes are frozen")
	})
}

func TestEngineOptions(t *testing.T) {
	ctx := context.Background()

	t.Run("safe_mode_rejects_unguarded_deletes", func(t *testing.T) {
		e, _ := newEngine(t, weft.WithSafeMode())
		_, err := e.Statement(ctx, weft.SQL("DELETE FROM {}", weft.TokenOf[Order]()))
		require.Error(t, err)
		assert.True(t, weft.IsTemplateError(err))
	})

	t.Run("without_auto_join_keeps_the_root_table_alone", func(t *testing.T) {
		e, _ := newEngine(t, weft.WithoutAutoJoin())
		stmt, err := e.Statement(ctx, weft.SQL("SELECT amount FROM {}", weft.TokenOf[Order]()))
		require.NoError(t, err)
		assert.Equal(t, "SELECT amount FROM orders o", stmt.SQL)
	})

	t.Run("without_record_values_rejects_records", func(t *testing.T) {
		e, _ := newEngine(t, weft.WithoutRecordValues())
		_, err := e.Statement(ctx, weft.SQL("INSERT INTO {} VALUES ({})",
			weft.TokenOf[Order](), Order{Amount: 5}))
		require.Error(t, err)
		assert.True(t, weft.IsTemplateError(err))
	})

	t.Run("flavor_override", func(t *testing.T) {
		e, _ := newEngine(t, weft.WithFlavor(dialect.NewFlavor(dialect.Postgres)))
		stmt, err := e.Statement(ctx, weft.SQL("SELECT amount FROM {} WHERE amount > {}",
			weft.TokenOf[Order](), int64(9)))
		require.NoError(t, err)
		assert.Equal(t,
			"SELECT amount FROM orders o INNER JOIN customers c ON o.customer_id = c.id WHERE amount > $1",
			stmt.SQL)
	})
}

func TestEngineExec(t *testing.T) {
	ctx := context.Background()

	t.Run("insert_reports_the_result", func(t *testing.T) {
		e, mock := newEngine(t)
		tmpl := weft.SQL("INSERT INTO {} VALUES ({})", weft.TokenOf[Customer](), Customer{Name: "ACME"})
		stmt, err := e.Statement(ctx, tmpl)
		require.NoError(t, err)

		mock.ExpectExec(stmt.SQL).
			WithArgs(driverArgs(stmt.Args())...).
			WillReturnResult(sqlmock.NewResult(7, 1))

		res, err := e.Exec(ctx, tmpl)
		require.NoError(t, err)
		id, err := res.LastInsertId()
		require.NoError(t, err)
		assert.Equal(t, int64(7), id)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("version_pinned_update_with_zero_rows_is_stale", func(t *testing.T) {
		e, mock := newEngine(t)
		order := Order{ID: 3, Customer: Customer{ID: 10}, Amount: 50, Revision: 2}
		tmpl := weft.SQL("UPDATE {} SET {} WHERE {}",
			weft.TokenOf[Order](), order, weft.ByKey(order))
		stmt, err := e.Statement(ctx, tmpl)
		require.NoError(t, err)
		require.True(t, stmt.VersionAware)

		mock.ExpectExec(stmt.SQL).
			WithArgs(driverArgs(stmt.Args())...).
			WillReturnResult(sqlmock.NewResult(0, 0))

		_, err = e.Exec(ctx, tmpl)
		require.Error(t, err)
		assert.True(t, weft.IsVersionError(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("batch_statement_must_go_through_exec_batch", func(t *testing.T) {
		e, _ := newEngine(t)
		_, err := e.Exec(ctx, weft.SQL("DELETE FROM {} WHERE {}",
			weft.TokenOf[Order](), weft.BindVars()))
		require.Error(t, err)
		assert.True(t, weft.IsTemplateError(err))
	})
}

func TestEngineExecBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("binds_the_key_block_per_row", func(t *testing.T) {
		e, mock := newEngine(t)
		tmpl := weft.SQL("DELETE FROM {} WHERE {}", weft.TokenOf[Customer](), weft.BindVars())
		stmt, err := e.Statement(ctx, tmpl)
		require.NoError(t, err)

		for _, id := range []int64{4, 6} {
			mock.ExpectExec(stmt.SQL).
				WithArgs(id).
				WillReturnResult(sqlmock.NewResult(0, 1))
		}

		n, err := e.ExecBatch(ctx, tmpl, Customer{ID: 4}, Customer{ID: 6})
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stale_row_stops_the_batch", func(t *testing.T) {
		e, mock := newEngine(t)
		tmpl := weft.SQL("DELETE FROM {} WHERE {}", weft.TokenOf[Order](), weft.BindVars())
		stmt, err := e.Statement(ctx, tmpl)
		require.NoError(t, err)
		require.True(t, stmt.VersionAware)

		mock.ExpectExec(stmt.SQL).
			WithArgs(int64(1), int64(2)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(stmt.SQL).
			WithArgs(int64(2), int64(5)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		n, err := e.ExecBatch(ctx, tmpl,
			Order{ID: 1, Revision: 2}, Order{ID: 2, Revision: 5}, Order{ID: 3, Revision: 1})
		require.Error(t, err)
		assert.True(t, weft.IsVersionError(err))
		assert.Equal(t, int64(1), n)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("requires_a_bind_vars_block", func(t *testing.T) {
		e, _ := newEngine(t)
		_, err := e.ExecBatch(ctx, weft.SQL("DELETE FROM {} WHERE id = {}",
			weft.TokenOf[Order](), int64(1)), Order{ID: 1})
		require.Error(t, err)
		assert.True(t, weft.IsTemplateError(err))
	})
}

func TestEngineCompileCache(t *testing.T) {
	e, _ := newEngine(t)

	t.Run("same_text_and_shape_share_one_compilation", func(t *testing.T) {
		a, err := e.Compile(weft.SQL("SELECT amount FROM {} WHERE id = {}", weft.TokenOf[Order](), int64(1)))
		require.NoError(t, err)
		b, err := e.Compile(weft.SQL("SELECT amount FROM {} WHERE id = {}", weft.TokenOf[Order](), int64(2)))
		require.NoError(t, err)
		assert.Same(t, a, b)
	})

	t.Run("slice_length_is_part_of_the_shape", func(t *testing.T) {
		a, err := e.Compile(weft.SQL("SELECT amount FROM {} WHERE id IN {}",
			weft.TokenOf[Order](), []int64{1, 2}))
		require.NoError(t, err)
		b, err := e.Compile(weft.SQL("SELECT amount FROM {} WHERE id IN {}",
			weft.TokenOf[Order](), []int64{1, 2, 3}))
		require.NoError(t, err)
		assert.NotSame(t, a, b)
	})

	t.Run("compile_errors_are_not_cached", func(t *testing.T) {
		_, err := e.Compile(weft.SQL("SELECT {} FROM {}", weft.TokenOf[Order]()))
		require.Error(t, err)
		_, err = e.Compile(weft.SQL("SELECT {} FROM {}", weft.TokenOf[Order]()))
		require.Error(t, err)
	})

	t.Run("bound_statements_reuse_the_cached_shape", func(t *testing.T) {
		ctx := context.Background()
		s1, err := e.Statement(ctx, weft.SQL("SELECT amount FROM {} WHERE id = {}",
			weft.TokenOf[Order](), int64(1)))
		require.NoError(t, err)
		s2, err := e.Statement(ctx, weft.SQL("SELECT amount FROM {} WHERE id = {}",
			weft.TokenOf[Order](), int64(2)))
		require.NoError(t, err)
		assert.Equal(t, s1.SQL, s2.SQL)
		assert.Equal(t, []any{int64(1)}, s1.Args())
		assert.Equal(t, []any{int64(2)}, s2.Args())
	})
}

func TestEngineCompileErrorTexture(t *testing.T) {
	e, _ := newEngine(t)
	_, err := e.Compile(weft.SQL("SELECT {} FROM {} WHERE {}",
		weft.TokenOf[Order](), weft.TokenOf[Order]()))
	require.Error(t, err)
	var te *compiler.TemplateError
	assert.True(t, errors.As(err, &te))
}
