package llmclient

import (
	"context"
	"sync"
	"time"
)

// tokenBucket throttles callers to rps acquisitions per second, allowing
// bursts of up to burst. A nil *tokenBucket never blocks.
type tokenBucket struct {
	tokens   chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
}

func newTokenBucket(rps float64, burst int) *tokenBucket {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	b := &tokenBucket{
		tokens: make(chan struct{}, burst),
		stopCh: make(chan struct{}),
	}
	for i := 0; i < burst; i++ {
		b.tokens <- struct{}{}
	}

	period := time.Duration(float64(time.Second) / rps)
	if period <= 0 {
		period = time.Millisecond
	}
	go b.refill(period)
	return b
}

func (b *tokenBucket) refill(period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			select {
			case b.tokens <- struct{}{}:
			default:
			}
		case <-b.stopCh:
			return
		}
	}
}

// Acquire blocks until a token is available, the context ends, or the bucket stops.
func (b *tokenBucket) Acquire(ctx context.Context) error {
	if b == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.stopCh:
		return context.Canceled
	case <-b.tokens:
		return nil
	}
}

func (b *tokenBucket) Stop() {
	if b == nil {
		return
	}
	b.stopOnce.Do(func() { close(b.stopCh) })
}

// sleepCtx waits for d or until ctx ends.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
