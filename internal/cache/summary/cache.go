package summary

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"testsummary/internal/testdoc"
)

type Config struct {
	// TTL is the lifetime of a stored summary. Zero selects DefaultTTL.
	TTL time.Duration
	// Backend names the store for logs and health output.
	Backend string
	// Disabled turns every lookup into a bypass.
	Disabled bool
}

type MetricsSnapshot struct {
	Backend     string        `json:"backend"`
	Disabled    bool          `json:"disabled"`
	Hits        uint64        `json:"hits"`
	Misses      uint64        `json:"misses"`
	Writes      uint64        `json:"writes"`
	ReadErrors  uint64        `json:"readErrors"`
	WriteErrors uint64        `json:"writeErrors"`
	TTLSeconds  int64         `json:"ttlSeconds"`
	Tier        *TierSnapshot `json:"tier,omitempty"`
}

type metrics struct {
	hits        atomic.Uint64
	misses      atomic.Uint64
	writes      atomic.Uint64
	readErrors  atomic.Uint64
	writeErrors atomic.Uint64
}

// Cache stores summaries keyed by Key. Backend errors are logged and
// absorbed. A nil *Cache is valid and always misses.
type Cache struct {
	backend Backend
	cfg     Config
	log     *slog.Logger
	metrics metrics
	now     func() time.Time
}

func New(backend Backend, cfg Config, logger *slog.Logger) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Backend == "" {
		cfg.Backend = "memory"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		backend: backend,
		cfg:     cfg,
		log:     logger.With("component", "summary_cache", "backend", cfg.Backend),
		now:     time.Now,
	}
}

// ShouldBypass reports whether reads and writes must skip the cache for t.
func (c *Cache) ShouldBypass(t testdoc.Test) bool {
	if c == nil || c.backend == nil || c.cfg.Disabled {
		return true
	}
	return t.Advanced.DisableAICaching
}

func (c *Cache) Get(ctx context.Context, k Key) (Entry, bool) {
	if c == nil || c.backend == nil {
		return Entry{}, false
	}
	raw, ok, err := c.backend.Get(ctx, k.String())
	if err != nil {
		c.metrics.readErrors.Add(1)
		c.metrics.misses.Add(1)
		c.log.WarnContext(ctx, "cache read failed", "key", k.String(), "error", err)
		return Entry{}, false
	}
	if !ok {
		c.metrics.misses.Add(1)
		return Entry{}, false
	}
	e, err := decodeEntry(raw)
	if err != nil || strings.TrimSpace(e.Text) == "" {
		c.metrics.readErrors.Add(1)
		c.metrics.misses.Add(1)
		c.log.WarnContext(ctx, "cache entry undecodable", "key", k.String(), "error", err)
		return Entry{}, false
	}
	// Tiers in front of the origin may hold a copy past the entry's lifetime.
	if !e.CreatedAt.IsZero() && !c.now().Before(e.CreatedAt.Add(c.cfg.TTL)) {
		c.metrics.misses.Add(1)
		return Entry{}, false
	}
	c.metrics.hits.Add(1)
	e.Cached = true
	return e, true
}

// Put stores e under k. Empty text is never stored.
func (c *Cache) Put(ctx context.Context, k Key, e Entry) {
	if c == nil || c.backend == nil || strings.TrimSpace(e.Text) == "" {
		return
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = c.now().UTC()
	}
	e.Cached = false
	raw, err := encodeEntry(e)
	if err != nil {
		c.metrics.writeErrors.Add(1)
		c.log.WarnContext(ctx, "cache entry encode failed", "key", k.String(), "error", err)
		return
	}
	if err := c.backend.Set(ctx, k.String(), raw, c.cfg.TTL); err != nil {
		c.metrics.writeErrors.Add(1)
		c.log.WarnContext(ctx, "cache write failed", "key", k.String(), "error", err)
		return
	}
	c.metrics.writes.Add(1)
}

// Flush removes every stored summary.
func (c *Cache) Flush(ctx context.Context) error {
	if c == nil || c.backend == nil {
		return nil
	}
	if err := c.backend.Clear(ctx); err != nil {
		c.log.WarnContext(ctx, "cache flush failed", "error", err)
		return err
	}
	c.log.InfoContext(ctx, "cache flushed")
	return nil
}

func (c *Cache) Ping(ctx context.Context) error {
	if c == nil || c.backend == nil {
		return nil
	}
	return c.backend.Ping(ctx)
}

func (c *Cache) Name() string {
	if c == nil || c.backend == nil {
		return "none"
	}
	return c.cfg.Backend
}

func (c *Cache) Metrics() MetricsSnapshot {
	if c == nil {
		return MetricsSnapshot{Backend: "none", Disabled: true}
	}
	snap := MetricsSnapshot{
		Backend:     c.Name(),
		Disabled:    c.cfg.Disabled,
		Hits:        c.metrics.hits.Load(),
		Misses:      c.metrics.misses.Load(),
		Writes:      c.metrics.writes.Load(),
		ReadErrors:  c.metrics.readErrors.Load(),
		WriteErrors: c.metrics.writeErrors.Load(),
		TTLSeconds:  int64(c.cfg.TTL / time.Second),
	}
	if t, ok := c.backend.(*Tiered); ok {
		tier := t.Metrics()
		snap.Tier = &tier
	}
	return snap
}
