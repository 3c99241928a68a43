package weft

import (
	"context"
	"errors"
	"reflect"

	"github.com/syssam/weft/compiler"
	"github.com/syssam/weft/dialect"
	"github.com/syssam/weft/dialect/sql"
	"github.com/syssam/weft/rowmap"
)

// EntityCache is a transaction-scoped identity map. Every entity mapped
// inside one transaction is interned here by primary key, so two queries
// touching the same row hand back the same instance. Interning also
// records a serialized baseline of the instance, which Dirty compares
// against its current state.
//
// Like a transaction, an EntityCache is a single-goroutine scope; it does
// no locking of its own.
type EntityCache struct {
	entries map[cacheKey]*cacheEntry
}

type cacheKey struct {
	t reflect.Type
	k any
}

type cacheEntry struct {
	v        any
	baseline []byte
}

// NewEntityCache returns an empty cache.
func NewEntityCache() *EntityCache {
	return &EntityCache{entries: make(map[cacheKey]*cacheEntry)}
}

// Lookup returns the canonical instance for the key.
func (c *EntityCache) Lookup(t reflect.Type, key any) (any, bool) {
	e, ok := c.entries[cacheKey{t: t, k: key}]
	if !ok {
		return nil, false
	}
	return e.v, true
}

// Intern stores v as the canonical instance for the key, keeping an
// earlier instance if one exists, and snapshots the winner's state as the
// dirty-tracking baseline. A released cache passes v through untouched.
func (c *EntityCache) Intern(t reflect.Type, key any, v any) any {
	if c.entries == nil {
		return v
	}
	k := cacheKey{t: t, k: key}
	if cur, ok := c.entries[k]; ok {
		return cur.v
	}
	baseline, err := rowmap.Snapshot(v)
	if err != nil {
		// Unencodable entities stay interned but can never report dirty.
		baseline = nil
	}
	c.entries[k] = &cacheEntry{v: v, baseline: baseline}
	return v
}

// Len reports the number of cached entities.
func (c *EntityCache) Len() int {
	return len(c.entries)
}

// Dirty returns every cached entity whose current state differs from the
// state it had when it was interned.
func (c *EntityCache) Dirty() ([]any, error) {
	var out []any
	for _, e := range c.entries {
		if e.baseline == nil {
			continue
		}
		changed, err := rowmap.Dirty(e.v, e.baseline)
		if err != nil {
			return out, err
		}
		if changed {
			out = append(out, e.v)
		}
	}
	return out, nil
}

// Release drops every cached entity. Interning after Release passes
// values through without caching them.
func (c *EntityCache) Release() error {
	c.entries = nil
	return nil
}

var _ rowmap.Interner = (*EntityCache)(nil)

// Tx is a transactional execution scope. Statements compiled through it
// run on one driver transaction and share one EntityCache, so identical
// rows map to identical instances until Commit or Rollback.
type Tx struct {
	engine *Engine
	tx     dialect.Tx
	cache  *EntityCache
	done   bool
}

// Cache returns the transaction's entity cache.
func (t *Tx) Cache() *EntityCache {
	return t.cache
}

// Dirty returns the cached entities modified since they were loaded.
func (t *Tx) Dirty() ([]any, error) {
	return t.cache.Dirty()
}

// Statement compiles and binds a template through the engine's pipeline.
func (t *Tx) Statement(ctx context.Context, tmpl Template) (*compiler.Statement, error) {
	return t.engine.Statement(ctx, tmpl)
}

// Exec compiles tmpl and executes it on the transaction.
func (t *Tx) Exec(ctx context.Context, tmpl Template) (sql.Result, error) {
	stmt, err := t.engine.Statement(ctx, tmpl)
	if err != nil {
		return nil, err
	}
	return execStatement(ctx, t.tx, stmt)
}

// ExecBatch compiles tmpl once and executes it on the transaction for
// every row, binding the bind-variables block per row.
func (t *Tx) ExecBatch(ctx context.Context, tmpl Template, rows ...any) (int64, error) {
	stmt, err := t.engine.Statement(ctx, tmpl)
	if err != nil {
		return 0, err
	}
	return execBatch(ctx, t.tx, stmt, rows)
}

// Tx returns ErrTxStarted: transactions do not nest.
func (t *Tx) Tx(context.Context) (*Tx, error) {
	return nil, ErrTxStarted
}

// Commit commits the transaction and releases the entity cache.
func (t *Tx) Commit() error {
	if t.done {
		return errors.New("weft: transaction already closed")
	}
	t.done = true
	err := t.tx.Commit()
	return errors.Join(err, t.cache.Release())
}

// Rollback rolls the transaction back and releases the entity cache. A
// failed rollback is reported as a RollbackError.
func (t *Tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	err := t.tx.Rollback()
	_ = t.cache.Release()
	if err != nil {
		return &RollbackError{Err: err}
	}
	return nil
}

func (t *Tx) conn() dialect.ExecQuerier { return t.tx }

func (t *Tx) statement(ctx context.Context, tmpl Template) (*compiler.Statement, error) {
	return t.engine.Statement(ctx, tmpl)
}

// scope: the transaction's cache spans every query in the transaction, so
// cursors must not release it on Close.
func (t *Tx) scope() (rowmap.Interner, func() error) {
	return t.cache, nil
}
