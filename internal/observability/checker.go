package observability

import (
	"context"
	"errors"
	"sync/atomic"
)

// Checker defines the contract for any component that needs to report its health status.
// Implementations must be thread-safe and non-blocking (respecting the context).
type Checker interface {
	// Name returns the unique identifier of the component (e.g., "postgres", "redis").
	Name() string
	// Check performs the health verification. Returns nil if healthy, or an error if it fails.
	// The provided context must be used to respect timeouts.
	Check(ctx context.Context) error
}

// CheckerFunc adapts a plain function into a named Checker.
type CheckerFunc struct {
	name string
	fn   func(ctx context.Context) error
}

// NewCheckerFunc wraps fn as a Checker called name.
func NewCheckerFunc(name string, fn func(ctx context.Context) error) *CheckerFunc {
	return &CheckerFunc{name: name, fn: fn}
}

func (c *CheckerFunc) Name() string { return c.name }

func (c *CheckerFunc) Check(ctx context.Context) error { return c.fn(ctx) }

// ErrNotReady is reported by a Gate that has not been opened yet.
var ErrNotReady = errors.New("not ready")

// Gate is a Checker that fails until Open is called. The engine opens its
// gate once the variable graph has been loaded from the store.
type Gate struct {
	name string
	open atomic.Bool
}

// NewGate creates a closed gate.
func NewGate(name string) *Gate {
	return &Gate{name: name}
}

// Open marks the component ready.
func (g *Gate) Open() { g.open.Store(true) }

// Close marks the component not ready, e.g. during shutdown.
func (g *Gate) Close() { g.open.Store(false) }

func (g *Gate) Name() string { return g.name }

func (g *Gate) Check(context.Context) error {
	if !g.open.Load() {
		return ErrNotReady
	}
	return nil
}
