package cache

import (
	"context"
	"strings"
	"time"
)

// DashboardCache stores JSON-serialisable report results. A miss is
// (false, nil); errors are never fatal to callers.
type DashboardCache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

type NoopDashboardCache struct{}

func (NoopDashboardCache) Get(_ context.Context, _ string, _ any) (bool, error) {
	return false, nil
}

func (NoopDashboardCache) Set(_ context.Context, _ string, _ any, _ time.Duration) error {
	return nil
}

// Key joins parts into a namespaced cache key such as
// "tallerpos:sales-dashboard:2:2026-03-01:2026-03-02".
func Key(parts ...string) string {
	return "tallerpos:" + strings.Join(parts, ":")
}
