package adapter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dannybszn/doris-referral/internal/infrastructure/cache/port"
	"github.com/dannybszn/doris-referral/internal/infrastructure/clock"
)

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	fc := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	c := NewMemoryCache(fc)

	if _, err := c.Get(ctx, "k"); !errors.Is(err, port.ErrMiss) {
		t.Fatalf("Get on empty cache = %v, want ErrMiss", err)
	}
	if err := c.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatal(err)
	}
	if err := c.Set(ctx, "forever", "v", 0); err != nil {
		t.Fatal(err)
	}
	if got, err := c.Get(ctx, "k"); err != nil || got != "v" {
		t.Fatalf("Get = (%q, %v), want (v, nil)", got, err)
	}

	fc.Advance(time.Minute)
	if _, err := c.Get(ctx, "k"); !errors.Is(err, port.ErrMiss) {
		t.Fatalf("Get after ttl = %v, want ErrMiss", err)
	}
	if _, err := c.Get(ctx, "forever"); err != nil {
		t.Fatalf("Get on no-ttl key = %v", err)
	}
}

func TestMemoryCacheDel(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(nil)
	_ = c.Set(ctx, "a", "1", 0)
	_ = c.Set(ctx, "b", "2", 0)

	n, err := c.Del(ctx, "a", "b", "missing")
	if err != nil || n != 2 {
		t.Fatalf("Del = (%d, %v), want (2, nil)", n, err)
	}
}
