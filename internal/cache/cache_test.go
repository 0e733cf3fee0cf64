package cache

import (
	"context"
	"testing"
	"time"
)

type point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 20, 10, 0, 0, 0, time.UTC)
	c := NewMemoryCache()
	c.now = func() time.Time { return now }

	if err := c.Set(ctx, "geo:E16AN:GB", point{51.52, -0.07}, time.Hour); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.Set(ctx, "forever", 42, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var p point
	ok, err := c.Get(ctx, "geo:E16AN:GB", &p)
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if p.Lat != 51.52 {
		t.Fatalf("expected 51.52, got %v", p.Lat)
	}

	now = now.Add(2 * time.Hour)
	if ok, _ := c.Get(ctx, "geo:E16AN:GB", &p); ok {
		t.Fatalf("expected expired entry to miss")
	}
	if c.Len() != 1 {
		t.Fatalf("expected 1 entry left, got %d", c.Len())
	}

	var n int
	if ok, _ := c.Get(ctx, "forever", &n); !ok || n != 42 {
		t.Fatalf("expected 42, got ok=%v n=%d", ok, n)
	}

	if err := c.Delete(ctx, "forever"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok, _ := c.Get(ctx, "forever", &n); ok {
		t.Fatalf("expected deleted entry to miss")
	}
}

func TestMemoryCacheMiss(t *testing.T) {
	var p point
	ok, err := NewMemoryCache().Get(context.Background(), "missing", &p)
	if err != nil || ok {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}
}

func TestRedisCacheWithoutClient(t *testing.T) {
	ctx := context.Background()

	rc, err := NewRedisCache(ctx, "not a url", 1)
	if err == nil {
		t.Fatalf("expected error for invalid url")
	}
	if rc.Available() {
		t.Fatalf("expected cache to be unavailable")
	}

	if err := rc.Set(ctx, "k", 1, time.Minute); err != nil {
		t.Fatalf("expected dropped write, got %v", err)
	}
	var n int
	if ok, err := rc.Get(ctx, "k", &n); ok || err != nil {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	if err := rc.Delete(ctx, "k"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := rc.Health(ctx); err != nil {
		t.Fatalf("expected disabled cache to be healthy, got %v", err)
	}
	if err := rc.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
