package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client)
}

func TestEffectiveThreshold_MissThenHit(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	if _, ok := c.GetEffective(ctx, "rack-1"); ok {
		t.Fatalf("expected cache miss before any Put")
	}

	want := map[string]float64{"critical_temperature_high": 30, "warning_temperature_high": 27}
	if err := c.PutEffective(ctx, "rack-1", want); err != nil {
		t.Fatalf("PutEffective: %v", err)
	}

	got, ok := c.GetEffective(ctx, "rack-1")
	if !ok {
		t.Fatalf("expected cache hit after Put")
	}
	if len(got) != len(want) || got["critical_temperature_high"] != 30 {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestEffectiveThreshold_InvalidateSingleRack(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	if err := c.PutEffective(ctx, "rack-1", map[string]float64{"x": 1}); err != nil {
		t.Fatalf("PutEffective rack-1: %v", err)
	}
	if err := c.PutEffective(ctx, "rack-2", map[string]float64{"x": 1}); err != nil {
		t.Fatalf("PutEffective rack-2: %v", err)
	}

	if err := c.InvalidateEffective(ctx, "rack-1"); err != nil {
		t.Fatalf("InvalidateEffective: %v", err)
	}

	if _, ok := c.GetEffective(ctx, "rack-1"); ok {
		t.Fatalf("rack-1 should have missed after targeted invalidation")
	}
	if _, ok := c.GetEffective(ctx, "rack-2"); !ok {
		t.Fatalf("rack-2 should still be cached")
	}
}

func TestEffectiveThreshold_InvalidateAllRacks(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	if err := c.PutEffective(ctx, "rack-1", map[string]float64{"x": 1}); err != nil {
		t.Fatalf("PutEffective rack-1: %v", err)
	}
	if err := c.PutEffective(ctx, "rack-2", map[string]float64{"x": 1}); err != nil {
		t.Fatalf("PutEffective rack-2: %v", err)
	}

	if err := c.InvalidateEffective(ctx, ""); err != nil {
		t.Fatalf("InvalidateEffective(all): %v", err)
	}

	if _, ok := c.GetEffective(ctx, "rack-1"); ok {
		t.Fatalf("rack-1 should have missed after global invalidation")
	}
	if _, ok := c.GetEffective(ctx, "rack-2"); ok {
		t.Fatalf("rack-2 should have missed after global invalidation")
	}
}

func TestSuppressedSet_MissBeforePut(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	if _, ok := c.SuppressedSet(ctx); ok {
		t.Fatalf("expected cache miss before any Put")
	}
}

func TestSuppressedSet_RoundTrip(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	if err := c.PutSuppressedSet(ctx, []string{"rack-1", "rack-2"}); err != nil {
		t.Fatalf("PutSuppressedSet: %v", err)
	}

	got, ok := c.SuppressedSet(ctx)
	if !ok {
		t.Fatalf("expected cache hit after Put")
	}
	if !got["rack-1"] || !got["rack-2"] || len(got) != 2 {
		t.Fatalf("got %v, want {rack-1, rack-2}", got)
	}
}

// TestSuppressedSet_EmptySetStillHits guards the sentinel-member trick:
// an empty suppressed set (every rack cleared from maintenance) must
// still cache-hit with zero members, not fall through to a miss that
// forces every caller to rebuild from storage.
func TestSuppressedSet_EmptySetStillHits(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	if err := c.PutSuppressedSet(ctx, nil); err != nil {
		t.Fatalf("PutSuppressedSet(nil): %v", err)
	}

	got, ok := c.SuppressedSet(ctx)
	if !ok {
		t.Fatalf("expected cache hit on an empty suppressed set")
	}
	if len(got) != 0 {
		t.Fatalf("expected zero members, got %v", got)
	}
}

func TestSuppressedSet_InvalidateForcesRebuild(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	if err := c.PutSuppressedSet(ctx, []string{"rack-1"}); err != nil {
		t.Fatalf("PutSuppressedSet: %v", err)
	}
	if err := c.InvalidateSuppressedSet(ctx); err != nil {
		t.Fatalf("InvalidateSuppressedSet: %v", err)
	}
	if _, ok := c.SuppressedSet(ctx); ok {
		t.Fatalf("expected cache miss after invalidation")
	}
}
