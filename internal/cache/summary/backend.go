package summary

import (
	"context"
	"time"

	"testsummary/internal/cache/disk"
	memcache "testsummary/internal/cache/memory"
)

// Backend stores opaque values under string keys with a per-entry lifetime.
// A missing or expired key is reported as ok == false with a nil error.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Clear(ctx context.Context) error
	Ping(ctx context.Context) error
}

// MemoryBackend keeps entries in process. Contents are lost on restart.
type MemoryBackend struct {
	lru *memcache.LRUTTL[string, []byte]
}

func NewMemoryBackend(maxEntries, maxBytes int) *MemoryBackend {
	if maxEntries <= 0 {
		maxEntries = 4096
	}
	return &MemoryBackend{lru: memcache.NewLRUTTL[string, []byte](maxEntries, maxBytes, DefaultTTL)}
}

func (b *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	raw, ok := b.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), raw...), true, nil
}

func (b *MemoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	copied := append([]byte(nil), value...)
	b.lru.SetTTL(key, copied, len(copied), ttl)
	return nil
}

func (b *MemoryBackend) Clear(_ context.Context) error {
	b.lru.Clear()
	return nil
}

func (b *MemoryBackend) Ping(_ context.Context) error { return nil }

func (b *MemoryBackend) Len() int { return b.lru.Len() }

// NewDiskBackend opens a file-backed store under root.
func NewDiskBackend(root string, maxEntries int, maxBytes int64) (*disk.LRUTTLStore, error) {
	if maxEntries <= 0 {
		maxEntries = 16384
	}
	return disk.NewLRUTTLStore(disk.LRUTTLConfig{
		Root:       root,
		IndexFile:  "summaries.json",
		MaxEntries: maxEntries,
		MaxBytes:   maxBytes,
		TTL:        DefaultTTL,
	})
}

var (
	_ Backend = (*MemoryBackend)(nil)
	_ Backend = (*disk.LRUTTLStore)(nil)
	_ Backend = (*Tiered)(nil)
)
