package weft_test

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/weft"
)

func TestEntityCache(t *testing.T) {
	orderType := reflect.TypeOf(Order{})

	t.Run("intern_first_wins", func(t *testing.T) {
		c := weft.NewEntityCache()
		first := &Order{ID: 1, Amount: 100}
		second := &Order{ID: 1, Amount: 999}

		assert.Same(t, first, c.Intern(orderType, int64(1), first))
		assert.Same(t, first, c.Intern(orderType, int64(1), second))

		got, ok := c.Lookup(orderType, int64(1))
		require.True(t, ok)
		assert.Same(t, first, got)
		assert.Equal(t, 1, c.Len())
	})

	t.Run("lookup_misses_unknown_keys", func(t *testing.T) {
		c := weft.NewEntityCache()
		_, ok := c.Lookup(orderType, int64(404))
		assert.False(t, ok)
	})

	t.Run("dirty_reports_mutated_entities", func(t *testing.T) {
		c := weft.NewEntityCache()
		clean := &Order{ID: 1, Amount: 100}
		touched := &Order{ID: 2, Amount: 200}
		c.Intern(orderType, int64(1), clean)
		c.Intern(orderType, int64(2), touched)

		dirty, err := c.Dirty()
		require.NoError(t, err)
		assert.Empty(t, dirty)

		touched.Amount = 250
		dirty, err = c.Dirty()
		require.NoError(t, err)
		require.Len(t, dirty, 1)
		assert.Same(t, touched, dirty[0])
	})

	t.Run("release_turns_intern_into_passthrough", func(t *testing.T) {
		c := weft.NewEntityCache()
		c.Intern(orderType, int64(1), &Order{ID: 1})
		require.NoError(t, c.Release())
		assert.Equal(t, 0, c.Len())

		v := &Order{ID: 2}
		assert.Same(t, v, c.Intern(orderType, int64(2), v))
		_, ok := c.Lookup(orderType, int64(2))
		assert.False(t, ok)
	})
}

func TestTx(t *testing.T) {
	ctx := context.Background()

	t.Run("queries_share_one_identity_map", func(t *testing.T) {
		e, mock := newEngine(t)
		tmpl, sqlText := selectOrders(t, e)
		row := func() *sqlmock.Rows {
			return sqlmock.NewRows(orderColumns).
				AddRow(int64(1), int64(10), "ACME", int64(100), int64(1))
		}
		mock.ExpectBegin()
		mock.ExpectQuery(sqlText).WillReturnRows(row())
		mock.ExpectQuery(sqlText).WillReturnRows(row())
		mock.ExpectCommit()

		tx, err := e.Tx(ctx)
		require.NoError(t, err)
		a, err := weft.One[*Order](ctx, tx, tmpl)
		require.NoError(t, err)
		b, err := weft.One[*Order](ctx, tx, tmpl)
		require.NoError(t, err)
		assert.Same(t, a, b)
		assert.Equal(t, 2, tx.Cache().Len()) // the order and its customer

		require.NoError(t, tx.Commit())
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("dirty_tracks_entities_loaded_in_the_transaction", func(t *testing.T) {
		e, mock := newEngine(t)
		tmpl, sqlText := selectOrders(t, e)
		mock.ExpectBegin()
		mock.ExpectQuery(sqlText).WillReturnRows(sqlmock.NewRows(orderColumns).
			AddRow(int64(1), int64(10), "ACME", int64(100), int64(1)))
		mock.ExpectRollback()

		tx, err := e.Tx(ctx)
		require.NoError(t, err)
		order, err := weft.One[*Order](ctx, tx, tmpl)
		require.NoError(t, err)

		dirty, err := tx.Dirty()
		require.NoError(t, err)
		assert.Empty(t, dirty)

		order.Amount = 175
		dirty, err = tx.Dirty()
		require.NoError(t, err)
		require.Len(t, dirty, 1)
		assert.Same(t, order, dirty[0])

		require.NoError(t, tx.Rollback())
	})

	t.Run("exec_runs_on_the_transaction", func(t *testing.T) {
		e, mock := newEngine(t)
		tmpl := weft.SQL("INSERT INTO {} VALUES ({})", weft.TokenOf[Customer](), Customer{Name: "ACME"})
		stmt, err := e.Statement(ctx, tmpl)
		require.NoError(t, err)

		mock.ExpectBegin()
		mock.ExpectExec(stmt.SQL).
			WithArgs("ACME").
			WillReturnResult(sqlmock.NewResult(3, 1))
		mock.ExpectCommit()

		tx, err := e.Tx(ctx)
		require.NoError(t, err)
		res, err := tx.Exec(ctx, tmpl)
		require.NoError(t, err)
		id, err := res.LastInsertId()
		require.NoError(t, err)
		assert.Equal(t, int64(3), id)
		require.NoError(t, tx.Commit())
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("commit_releases_the_cache", func(t *testing.T) {
		e, mock := newEngine(t)
		mock.ExpectBegin()
		mock.ExpectCommit()

		tx, err := e.Tx(ctx)
		require.NoError(t, err)
		require.NoError(t, tx.Commit())
		assert.Equal(t, 0, tx.Cache().Len())
		require.Error(t, tx.Commit())
	})

	t.Run("failed_rollback_is_a_rollback_error", func(t *testing.T) {
		e, mock := newEngine(t)
		mock.ExpectBegin()
		mock.ExpectRollback().WillReturnError(errors.New("connection lost"))

		tx, err := e.Tx(ctx)
		require.NoError(t, err)
		err = tx.Rollback()
		require.Error(t, err)
		var re *weft.RollbackError
		assert.True(t, errors.As(err, &re))
	})

	t.Run("transactions_do_not_nest", func(t *testing.T) {
		e, mock := newEngine(t)
		mock.ExpectBegin()
		mock.ExpectRollback()

		tx, err := e.Tx(ctx)
		require.NoError(t, err)
		_, err = tx.Tx(ctx)
		assert.ErrorIs(t, err, weft.ErrTxStarted)
		require.NoError(t, tx.Rollback())
	})
}
