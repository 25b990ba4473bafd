package memory

import (
	"testing"
	"time"

	"testsummary/internal/tester"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestLRUTTLPerEntryExpiry(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1000, 0)}
	c := NewLRUTTL[string, string](10, 0, time.Minute).WithClock(clk.now)

	c.Set("default", "a", 1)
	c.SetTTL("short", "b", 1, time.Second)

	clk.advance(2 * time.Second)
	_, ok := c.Get("short")
	tester.False(t, ok, "short entry should expire")
	v, ok := c.Get("default")
	tester.True(t, ok, "default entry should survive")
	tester.Eq(t, v, "a")

	clk.advance(time.Minute)
	_, ok = c.Get("default")
	tester.False(t, ok, "default entry should expire")
	tester.Eq(t, c.Len(), 0, "expired entries are removed on access")
}

func TestLRUTTLEvictsByCountAndBytes(t *testing.T) {
	c := NewLRUTTL[string, int](2, 0, time.Minute)
	c.Set("a", 1, 0)
	c.Set("b", 2, 0)
	c.Get("a")
	c.Set("c", 3, 0)
	_, ok := c.Get("b")
	tester.False(t, ok, "b should be evicted")
	_, ok = c.Get("a")
	tester.True(t, ok, "a should remain")

	sized := NewLRUTTL[string, []byte](10, 4, time.Minute)
	sized.Set("x", []byte("xxx"), 3)
	sized.Set("y", []byte("yy"), 2)
	_, ok = sized.Get("x")
	tester.False(t, ok, "x should be evicted by size")

	// Overwrite adjusts the byte total instead of double counting.
	sized.Set("y", []byte("yyyy"), 4)
	_, ok = sized.Get("y")
	tester.True(t, ok, "y should fit after overwrite")
}

func TestLRUTTLNilIsNoop(t *testing.T) {
	var c *LRUTTL[string, string]
	c.Set("a", "b", 1)
	c.Delete("a")
	c.Clear()
	_, ok := c.Get("a")
	tester.False(t, ok, "nil cache must miss")
	tester.Eq(t, c.Len(), 0)
}
