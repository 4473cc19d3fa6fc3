package cache

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestCache(t *testing.T) *RistrettoCache {
	t.Helper()
	c, err := NewRistrettoCache(&RistrettoConfig{
		NumCounters: 1000,
		MaxCost:     100,
		BufferItems: 64,
		Logger:      zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	t.Cleanup(c.Close)
	return c.(*RistrettoCache)
}

func TestRistrettoSetAndGet(t *testing.T) {
	c := newTestCache(t)

	if ok := c.Set("k", "v", time.Hour); !ok {
		t.Fatal("set rejected")
	}
	c.Wait()

	got, found := c.Get("k")
	if !found || got != "v" {
		t.Fatalf("get: %v, %v", got, found)
	}
	if _, found := c.Get("missing"); found {
		t.Fatal("missing key reported present")
	}
}

func TestRistrettoDelete(t *testing.T) {
	c := newTestCache(t)

	c.Set("k", "v", time.Hour)
	c.Wait()
	c.Delete("k")

	if _, found := c.Get("k"); found {
		t.Fatal("key present after delete")
	}
}

func TestRistrettoTTLExpiry(t *testing.T) {
	c := newTestCache(t)

	c.Set("k", "v", 100*time.Millisecond)
	c.Wait()
	time.Sleep(250 * time.Millisecond)

	if _, found := c.Get("k"); found {
		t.Fatal("key present after TTL")
	}
}

func TestRistrettoClear(t *testing.T) {
	c := newTestCache(t)

	c.Set("k1", "v1", time.Hour)
	c.Set("k2", "v2", time.Hour)
	c.Wait()

	_, found1 := c.Get("k1")
	_, found2 := c.Get("k2")
	if !found1 || !found2 {
		t.Skip("entries not admitted")
	}

	c.Clear()
	if _, found := c.Get("k1"); found {
		t.Fatal("key present after clear")
	}
}
