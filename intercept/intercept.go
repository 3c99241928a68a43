package intercept

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/syssam/weft/compiler"
)

// Skip reports that an interceptor has nothing to say about a statement.
// A chain treats Skip as "pass unchanged and keep going".
var Skip = errors.New("weft/intercept: skip statement")

// Skipf returns a formatted wrapped Skip error.
func Skipf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Skip)...)
}

// Interceptor inspects a compiled statement on its way to the driver.
// It may return the statement unchanged, return a replacement, or return
// an error to block execution. Returning an error that wraps Skip leaves
// the statement unchanged and lets the rest of the chain run.
type Interceptor interface {
	Intercept(ctx context.Context, stmt *compiler.Statement) (*compiler.Statement, error)
}

// Func is an Interceptor built from a function.
type Func func(ctx context.Context, stmt *compiler.Statement) (*compiler.Statement, error)

// Intercept calls f(ctx, stmt).
func (f Func) Intercept(ctx context.Context, stmt *compiler.Statement) (*compiler.Statement, error) {
	return f(ctx, stmt)
}

// Observe wraps a read-only callback as an Interceptor. The callback sees
// every statement but can neither replace nor block it.
func Observe(fn func(ctx context.Context, stmt *compiler.Statement)) Interceptor {
	return Func(func(ctx context.Context, stmt *compiler.Statement) (*compiler.Statement, error) {
		fn(ctx, stmt)
		return stmt, nil
	})
}

type chainCtxKey struct{}

// With returns a context carrying the parent's interceptor chain extended
// by ics. The chain is scoped to the returned context: once the context
// is out of reach the interceptors are gone with it, on every exit path.
func With(ctx context.Context, ics ...Interceptor) context.Context {
	if len(ics) == 0 {
		return ctx
	}
	chain := FromContext(ctx)
	merged := make([]Interceptor, 0, len(chain)+len(ics))
	merged = append(merged, chain...)
	merged = append(merged, ics...)
	return context.WithValue(ctx, chainCtxKey{}, merged)
}

// FromContext returns the interceptor chain attached to ctx, outermost
// first. The returned slice must not be mutated.
func FromContext(ctx context.Context) []Interceptor {
	chain, _ := ctx.Value(chainCtxKey{}).([]Interceptor)
	return chain
}

// Scoped runs fn with ics attached to the context for the duration of the
// call. The attachment does not survive fn, whether it returns or panics.
func Scoped(ctx context.Context, fn func(context.Context) error, ics ...Interceptor) error {
	return fn(With(ctx, ics...))
}

// Apply threads stmt through chain in order. Each interceptor receives the
// output of the one before it; an error wrapping Skip keeps the current
// statement and moves on, any other error stops the chain. A nil statement
// without an error is rejected rather than passed along.
func Apply(ctx context.Context, stmt *compiler.Statement, chain ...Interceptor) (*compiler.Statement, error) {
	for _, ic := range chain {
		next, err := ic.Intercept(ctx, stmt)
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

// Chain bundles interceptors into one. Useful for registering a fixed
// pipeline as a single unit.
func Chain(ics ...Interceptor) Interceptor {
	bundled := slices.Clone(ics)
	return Func(func(ctx context.Context, stmt *compiler.Statement) (*compiler.Statement, error) {
		return Apply(ctx, stmt, bundled...)
	})
}
