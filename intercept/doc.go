// Package intercept routes every compiled statement through a chain of
// observers and rewriters before it executes.
//
// Two chains exist. The engine owns a Registry of process-wide
// interceptors, guarded for concurrent registration and lookup. Callers
// attach request-scoped interceptors to a context with With or Scoped;
// the scoped chain lives exactly as long as the context that carries it,
// so it unwinds on every exit path without explicit cleanup.
//
// An interceptor may return the statement unchanged, replace it, return
// Skip to abstain, or return any other error to block execution.
package intercept
