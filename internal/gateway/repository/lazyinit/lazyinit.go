// Package lazyinit runs store setup (schema, bucket) on first use and
// retries it until it succeeds once.
package lazyinit

import (
	"context"
	"sync"
	"time"
)

const DefaultTimeout = 10 * time.Second

// Gate guards one initialisation. A failed attempt is not remembered, so
// the next caller tries again. The zero value is ready to use.
type Gate struct {
	Timeout time.Duration

	mu   sync.Mutex
	done bool
}

// Do runs fn unless it already succeeded. fn gets a context detached from
// the caller's cancellation and bounded by Timeout, so a caller that goes
// away mid-setup does not fail it for everyone else.
func (g *Gate) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.done {
		return nil
	}
	timeout := g.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ictx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := fn(ictx); err != nil {
		return err
	}
	g.done = true
	return nil
}

// Done reports whether initialisation has succeeded.
func (g *Gate) Done() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.done
}
