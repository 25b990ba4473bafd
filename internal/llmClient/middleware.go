package llmclient

import (
	"context"
	"iter"
	"log/slog"
	"time"
)

// Middleware decorates a Client to inject cross-cutting concerns.
type Middleware func(Client) Client

// Wrap applies middlewares in left-to-right order.
// Example: Wrap(inner, A, B) => A(B(inner))
func Wrap(inner Client, mws ...Middleware) Client {
	out := inner
	for i := len(mws) - 1; i >= 0; i-- {
		out = mws[i](out)
	}
	return out
}

// -------- Rate limiting --------

// RateLimit limits the request rate with a token bucket. If rps <= 0 the
// bucket is disabled. When the wrapped client reports provider rate-limit
// headers, the wait they imply is honoured before the next request.
func RateLimit(rps float64, burst int) Middleware {
	return func(next Client) Client {
		return &rateLimited{next: next, bucket: newTokenBucket(rps, burst)}
	}
}

type rateLimited struct {
	next   Client
	bucket *tokenBucket
}

func (c *rateLimited) Model() string { return c.next.Model() }
func (c *rateLimited) Close() error {
	c.bucket.Stop()
	return c.next.Close()
}

func (c *rateLimited) acquire(ctx context.Context) error {
	if qr, ok := c.next.(QuotaReporter); ok {
		if q, ok := qr.LastQuota(); ok {
			if err := sleepCtx(ctx, q.Wait(time.Now())); err != nil {
				return err
			}
		}
	}
	return c.bucket.Acquire(ctx)
}

func (c *rateLimited) Complete(ctx context.Context, system, prompt string) (string, error) {
	if err := c.acquire(ctx); err != nil {
		return "", newUpstreamError(err)
	}
	return c.next.Complete(ctx, system, prompt)
}

func (c *rateLimited) Stream(ctx context.Context, system, prompt string) iter.Seq[Event] {
	return singlePass(func(yield func(Event) bool) {
		if err := c.acquire(ctx); err != nil {
			yield(errorEvent(newUpstreamError(err)))
			return
		}
		c.next.Stream(ctx, system, prompt)(yield)
	})
}

// -------- Logging --------

// WithLogging logs request sizes, outcomes and latency. A nil logger uses slog.Default().
func WithLogging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Client) Client {
		return &logging{next: next, log: logger}
	}
}

type logging struct {
	next Client
	log  *slog.Logger
}

func (l *logging) Model() string { return l.next.Model() }
func (l *logging) Close() error  { return l.next.Close() }

func (l *logging) Complete(ctx context.Context, system, prompt string) (string, error) {
	start := time.Now()
	l.log.DebugContext(ctx, "llm request", "model", l.next.Model(), "bytes", len(system)+len(prompt))
	text, err := l.next.Complete(ctx, system, prompt)
	if err != nil {
		l.log.WarnContext(ctx, "llm error", "model", l.next.Model(), "elapsed", time.Since(start), "error", err)
		return text, err
	}
	l.log.DebugContext(ctx, "llm response", "model", l.next.Model(), "elapsed", time.Since(start), "chars", len(text))
	return text, nil
}

func (l *logging) Stream(ctx context.Context, system, prompt string) iter.Seq[Event] {
	inner := l.next.Stream(ctx, system, prompt)
	return func(yield func(Event) bool) {
		start := time.Now()
		deltas := 0
		outcome := "cancelled"
		l.log.DebugContext(ctx, "llm stream request", "model", l.next.Model(), "bytes", len(system)+len(prompt))
		defer func() {
			l.log.DebugContext(ctx, "llm stream finished", "model", l.next.Model(), "outcome", outcome, "deltas", deltas, "elapsed", time.Since(start))
		}()
		for ev := range inner {
			switch ev.Kind {
			case EventDelta:
				deltas++
			case EventDone:
				outcome = "done"
			case EventError:
				outcome = "error"
				l.log.WarnContext(ctx, "llm stream error", "model", l.next.Model(), "error", ev.Err)
			}
			if !yield(ev) {
				return
			}
		}
	}
}
