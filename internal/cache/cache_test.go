package cache

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestKey(t *testing.T) {
	if got := Key("sales-dashboard", "all", "2026-03-01"); got != "tallerpos:sales-dashboard:all:2026-03-01" {
		t.Fatalf("unexpected key %s", got)
	}
}

func TestNoopAlwaysMisses(t *testing.T) {
	var c DashboardCache = NoopDashboardCache{}
	if err := c.Set(context.Background(), "k", map[string]int{"a": 1}, time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	var out map[string]int
	hit, err := c.Get(context.Background(), "k", &out)
	if err != nil || hit {
		t.Fatalf("expected miss, got hit=%v err=%v", hit, err)
	}
}

func TestRedisRoundTrip(t *testing.T) {
	addr := os.Getenv("TALLERPOS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TALLERPOS_TEST_REDIS_ADDR to run redis integration test")
	}
	ctx := context.Background()
	c := NewRedisDashboardCache(addr, "", 0)
	t.Cleanup(func() { _ = c.Close() })
	if err := c.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}

	key := Key("test", time.Now().Format(time.RFC3339Nano))
	if err := c.Set(ctx, key, map[string]string{"total": "53.25"}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	var out map[string]string
	hit, err := c.Get(ctx, key, &out)
	if err != nil || !hit || out["total"] != "53.25" {
		t.Fatalf("unexpected get result hit=%v err=%v out=%v", hit, err, out)
	}
}
