package summary

import (
	"context"
	"sync/atomic"
	"time"

	memcache "testsummary/internal/cache/memory"
)

type TieredConfig struct {
	HotTTL        time.Duration
	HotMaxEntries int
	HotMaxBytes   int
}

func DefaultTieredConfig() TieredConfig {
	return TieredConfig{
		HotTTL:        10 * time.Minute,
		HotMaxEntries: 1024,
		HotMaxBytes:   16 * 1024 * 1024, // 16MiB
	}
}

type TierSnapshot struct {
	HotHits        uint64 `json:"hotHits"`
	HotMisses      uint64 `json:"hotMisses"`
	OriginReads    uint64 `json:"originReads"`
	OriginWrites   uint64 `json:"originWrites"`
	OriginReadErr  uint64 `json:"originReadErrors"`
	OriginWriteErr uint64 `json:"originWriteErrors"`
}

type tierMetrics struct {
	hotHits        atomic.Uint64
	hotMisses      atomic.Uint64
	originReads    atomic.Uint64
	originWrites   atomic.Uint64
	originReadErr  atomic.Uint64
	originWriteErr atomic.Uint64
}

func (m *tierMetrics) snapshot() TierSnapshot {
	return TierSnapshot{
		HotHits:        m.hotHits.Load(),
		HotMisses:      m.hotMisses.Load(),
		OriginReads:    m.originReads.Load(),
		OriginWrites:   m.originWrites.Load(),
		OriginReadErr:  m.originReadErr.Load(),
		OriginWriteErr: m.originWriteErr.Load(),
	}
}

// Tiered keeps a short-lived in-process copy in front of a remote backend.
// Reads fill the hot tier; writes go to the origin first and only reach the
// hot tier once the origin accepted them.
type Tiered struct {
	origin  Backend
	hot     *memcache.LRUTTL[string, []byte]
	hotTTL  time.Duration
	metrics tierMetrics
}

func NewTiered(origin Backend, cfg TieredConfig) *Tiered {
	def := DefaultTieredConfig()
	if cfg.HotTTL <= 0 {
		cfg.HotTTL = def.HotTTL
	}
	if cfg.HotMaxEntries <= 0 {
		cfg.HotMaxEntries = def.HotMaxEntries
	}
	if cfg.HotMaxBytes < 0 {
		cfg.HotMaxBytes = def.HotMaxBytes
	}
	return &Tiered{
		origin: origin,
		hot:    memcache.NewLRUTTL[string, []byte](cfg.HotMaxEntries, cfg.HotMaxBytes, cfg.HotTTL),
		hotTTL: cfg.HotTTL,
	}
}

func (t *Tiered) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if raw, ok := t.hot.Get(key); ok {
		t.metrics.hotHits.Add(1)
		return append([]byte(nil), raw...), true, nil
	}
	t.metrics.hotMisses.Add(1)
	t.metrics.originReads.Add(1)

	raw, ok, err := t.origin.Get(ctx, key)
	if err != nil {
		t.metrics.originReadErr.Add(1)
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	copied := append([]byte(nil), raw...)
	t.hot.SetTTL(key, copied, len(copied), t.hotTTL)
	return append([]byte(nil), copied...), true, nil
}

func (t *Tiered) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	t.metrics.originWrites.Add(1)
	if err := t.origin.Set(ctx, key, value, ttl); err != nil {
		t.metrics.originWriteErr.Add(1)
		t.hot.Delete(key)
		return err
	}
	hotTTL := t.hotTTL
	if ttl > 0 && ttl < hotTTL {
		hotTTL = ttl
	}
	copied := append([]byte(nil), value...)
	t.hot.SetTTL(key, copied, len(copied), hotTTL)
	return nil
}

func (t *Tiered) Clear(ctx context.Context) error {
	t.hot.Clear()
	return t.origin.Clear(ctx)
}

func (t *Tiered) Ping(ctx context.Context) error { return t.origin.Ping(ctx) }

func (t *Tiered) Metrics() TierSnapshot { return t.metrics.snapshot() }
