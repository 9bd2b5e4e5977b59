// Package cache provides short-lived caching for dashboard snapshots. The
// version counter is bumped on every sale or milk mutation; callers embed it
// in cache keys so stale snapshots fall out immediately.
package cache

import (
	"context"
	"time"

	"teapos/backend/internal/domain"
)

type SnapshotCache interface {
	Get(ctx context.Context, key string) (*domain.DashboardSnapshot, bool, error)
	Set(ctx context.Context, key string, snapshot *domain.DashboardSnapshot, ttl time.Duration) error
	Version(ctx context.Context) (int64, error)
	Bump(ctx context.Context) error
}

// Noop satisfies SnapshotCache when no Redis is configured. Every lookup
// misses, so snapshots are recomputed on each request.
type Noop struct{}

func NewNoop() *Noop { return &Noop{} }

func (*Noop) Get(context.Context, string) (*domain.DashboardSnapshot, bool, error) {
	return nil, false, nil
}

func (*Noop) Set(context.Context, string, *domain.DashboardSnapshot, time.Duration) error {
	return nil
}

func (*Noop) Version(context.Context) (int64, error) { return 0, nil }

func (*Noop) Bump(context.Context) error { return nil }
