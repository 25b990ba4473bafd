package disk

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type stepClock struct{ t time.Time }

func (c *stepClock) now() time.Time {
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

func newStore(t *testing.T, root string, ttl time.Duration, maxEntries int) (*LRUTTLStore, *stepClock) {
	t.Helper()
	store, err := NewLRUTTLStore(LRUTTLConfig{Root: root, TTL: ttl, MaxEntries: maxEntries})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	clk := &stepClock{t: time.Now()}
	return store.WithClock(clk.now), clk
}

func TestLRUTTLStoreTTLExpiry(t *testing.T) {
	store, clk := newStore(t, t.TempDir(), time.Hour, 10)
	ctx := context.Background()

	if err := store.Set(ctx, "k1", []byte("v1"), 30*time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Set(ctx, "k2", []byte("v2"), 0); err != nil {
		t.Fatalf("set default ttl: %v", err)
	}
	if _, ok, err := store.Get(ctx, "k1"); err != nil || !ok {
		t.Fatalf("get before expiry: ok=%v err=%v", ok, err)
	}

	clk.t = clk.t.Add(time.Minute)
	if _, ok, err := store.Get(ctx, "k1"); err != nil {
		t.Fatalf("get after expiry: %v", err)
	} else if ok {
		t.Fatalf("expected miss after ttl expiry")
	}
	if _, ok, err := store.Get(ctx, "k2"); err != nil || !ok {
		t.Fatalf("default ttl entry should survive: ok=%v err=%v", ok, err)
	}
}

func TestLRUTTLStoreEvictsLeastRecentlyUsed(t *testing.T) {
	store, _ := newStore(t, t.TempDir(), time.Minute, 2)
	ctx := context.Background()

	if err := store.Set(ctx, "a", []byte("aa"), 0); err != nil {
		t.Fatalf("set a: %v", err)
	}
	if err := store.Set(ctx, "b", []byte("bb"), 0); err != nil {
		t.Fatalf("set b: %v", err)
	}
	if _, ok, err := store.Get(ctx, "a"); err != nil || !ok {
		t.Fatalf("touch a: ok=%v err=%v", ok, err)
	}
	if err := store.Set(ctx, "c", []byte("cc"), 0); err != nil {
		t.Fatalf("set c: %v", err)
	}

	if _, ok, err := store.Get(ctx, "b"); err != nil {
		t.Fatalf("get b: %v", err)
	} else if ok {
		t.Fatalf("expected b to be evicted")
	}
	if _, ok, err := store.Get(ctx, "a"); err != nil || !ok {
		t.Fatalf("expected a to remain: ok=%v err=%v", ok, err)
	}
	if store.Len() != 2 {
		t.Fatalf("len: got=%d", store.Len())
	}
}

func TestLRUTTLStoreRestoresFromIndex(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()

	store, _ := newStore(t, root, time.Minute, 10)
	if err := store.Set(ctx, "persist", []byte("value"), 0); err != nil {
		t.Fatalf("set persist: %v", err)
	}

	store2, _ := newStore(t, root, time.Minute, 10)
	raw, ok, err := store2.Get(ctx, "persist")
	if err != nil {
		t.Fatalf("get persist: %v", err)
	}
	if !ok || string(raw) != "value" {
		t.Fatalf("unexpected value: ok=%v %q", ok, string(raw))
	}
}

func TestLRUTTLStoreClearAndPing(t *testing.T) {
	root := t.TempDir()
	store, _ := newStore(t, root, time.Minute, 10)
	ctx := context.Background()

	if err := store.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if err := store.Set(ctx, "x", []byte("1"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "x"); ok {
		t.Fatalf("expected miss after clear")
	}
	files, err := os.ReadDir(filepath.Join(root, "data"))
	if err != nil {
		t.Fatalf("read data dir: %v", err)
	}
	if len(files) != 0 {
		t.Fatalf("expected data files to be removed, got %d", len(files))
	}

	if err := os.RemoveAll(filepath.Join(root, "data")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := store.Ping(ctx); err == nil {
		t.Fatalf("ping should fail once the data dir is gone")
	}
}
