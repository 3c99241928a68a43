package intercept

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/syssam/weft/compiler"
)

// ErrReentrant is returned when the registry is modified while it is
// evaluating a statement. Registering an interceptor from inside another
// interceptor's callback is the usual way to trip it.
var ErrReentrant = errors.New("weft/intercept: registry modified during evaluation")

type entry struct {
	id int64
	ic Interceptor
}

// Registry is a set of interceptors shared by every statement an engine
// executes. Registration and removal take the write lock, evaluation
// snapshots the chain under the read lock and runs it unlocked, so a slow
// interceptor never blocks registration on other goroutines.
//
// The chain is meant to be assembled at setup time. Modifying it while
// any evaluation is in flight fails with ErrReentrant; the check is
// best-effort and exists to catch interceptors that try to mutate the
// registry that is running them.
type Registry struct {
	mu    sync.RWMutex
	chain []entry
	nexID int64
	depth atomic.Int32
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends ic to the chain and returns a handle that removes it
// again. Both directions fail with ErrReentrant while the registry is
// evaluating a statement.
func (r *Registry) Register(ic Interceptor) (remove func() error, err error) {
	if ic == nil {
		return nil, errors.New("weft/intercept: nil interceptor")
	}
	if r.depth.Load() > 0 {
		return nil, ErrReentrant
	}
	r.mu.Lock()
	r.nexID++
	id := r.nexID
	// Copy on write; snapshots taken by Apply stay immutable.
	chain := make([]entry, len(r.chain), len(r.chain)+1)
	copy(chain, r.chain)
	r.chain = append(chain, entry{id: id, ic: ic})
	r.mu.Unlock()
	return func() error {
		return r.unregister(id)
	}, nil
}

func (r *Registry) unregister(id int64) error {
	if r.depth.Load() > 0 {
		return ErrReentrant
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	chain := make([]entry, 0, len(r.chain))
	for _, e := range r.chain {
		if e.id != id {
			chain = append(chain, e)
		}
	}
	r.chain = chain
	return nil
}

// Len reports the number of registered interceptors.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.chain)
}

// Apply threads stmt through the registered chain in registration order,
// with the same Skip and replacement semantics as the package-level Apply.
func (r *Registry) Apply(ctx context.Context, stmt *compiler.Statement) (*compiler.Statement, error) {
	r.mu.RLock()
	snapshot := r.chain
	r.mu.RUnlock()
	if len(snapshot) == 0 {
		return stmt, nil
	}
	r.depth.Add(1)
	defer r.depth.Add(-1)
	for _, e := range snapshot {
		next, err := e.ic.Intercept(ctx, stmt)
		switch {
		case err == nil:
			if next == nil {
				return nil, errors.New("weft/intercept: interceptor returned a nil statement")
			}
			stmt = next
		case errors.Is(err, Skip):
		default:
			return nil, err
		}
	}
	return stmt, nil
}
