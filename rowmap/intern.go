package rowmap

import (
	"fmt"
	"reflect"
	"strings"
)

// Interner deduplicates scanned entities by primary key. Lookup returns
// the canonical instance for a key, if one exists; Intern registers an
// instance and returns the canonical one, which is the first instance
// registered under that key. Instances are pointers to the record type.
//
// Scanning consults the interner before constructing a nested entity, so
// a hit skips the whole subtree and the cursor advances over its span.
type Interner interface {
	Lookup(t reflect.Type, key any) (any, bool)
	Intern(t reflect.Type, key any, v any) any
}

// Arena is a query-scoped Interner with an explicit lifetime: created
// when a result stream opens, released when it closes. It is not safe for
// concurrent use; a stream is consumed by one goroutine.
type Arena struct {
	m map[arenaKey]any
}

type arenaKey struct {
	t reflect.Type
	k any
}

// NewArena returns an empty arena.
func NewArena() *Arena {
	return &Arena{m: make(map[arenaKey]any)}
}

// Lookup returns the canonical instance for the key.
func (a *Arena) Lookup(t reflect.Type, key any) (any, bool) {
	v, ok := a.m[arenaKey{t: t, k: key}]
	return v, ok
}

// Intern registers v under the key and returns the canonical instance.
func (a *Arena) Intern(t reflect.Type, key any, v any) any {
	if a.m == nil {
		return v
	}
	k := arenaKey{t: t, k: key}
	if cur, ok := a.m[k]; ok {
		return cur
	}
	a.m[k] = v
	return v
}

// Len reports the number of interned instances.
func (a *Arena) Len() int { return len(a.m) }

// Release drops every interned instance. Lookups after Release miss and
// Interns pass values through unregistered.
func (a *Arena) Release() error {
	a.m = nil
	return nil
}

// normalizeKey folds scanned key values onto one representation per
// logical key, so int32(7) from one driver and int64(7) from another
// intern to the same entity.
func normalizeKey(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case nil:
		return nil
	}
	rv := reflect.ValueOf(v)
	switch {
	case rv.CanInt():
		return rv.Int()
	case rv.CanUint():
		return int64(rv.Uint())
	}
	return v
}

// internKey builds a comparable key from the primary-key column values.
// Compound keys compare by their printed form.
func internKey(vals []any) any {
	if len(vals) == 1 {
		return normalizeKey(vals[0])
	}
	var b strings.Builder
	for i, v := range vals {
		if i > 0 {
			b.WriteByte(0x1f)
		}
		fmt.Fprintf(&b, "%v", normalizeKey(v))
	}
	return b.String()
}
