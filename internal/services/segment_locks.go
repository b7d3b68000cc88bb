package services

import (
	"context"
	"route-segment-service/internal/platform/logger"
	"route-segment-service/internal/platform/obs"
	"route-segment-service/internal/ports"

	"go.uber.org/zap"
)

// LockResult reports the outcome of one acquisition attempt. Supported is
// false when no lock primitive could be consulted; Acquired is then true so
// callers proceed unsynchronized.
type LockResult struct {
	Acquired  bool
	Supported bool
}

// SegmentLockCoordinator serializes segment resolution across processes on a
// best-effort basis. Any primitive failure fails open.
type SegmentLockCoordinator struct {
	primitive ports.LockPrimitive
	log       *zap.SugaredLogger
}

// NewSegmentLockCoordinator accepts a nil primitive for deployments without
// cross-process locking.
func NewSegmentLockCoordinator(primitive ports.LockPrimitive) *SegmentLockCoordinator {
	return &SegmentLockCoordinator{
		primitive: primitive,
		log:       logger.GetLogger("locks"),
	}
}

func (c *SegmentLockCoordinator) TryAcquire(ctx context.Context, key string) LockResult {
	if c.primitive == nil {
		obs.LockAcquisitions.WithLabelValues("unsupported").Inc()
		return LockResult{Acquired: true, Supported: false}
	}

	ok, err := c.primitive.TryLock(ctx, key)
	if err != nil {
		c.log.Warnw("lock primitive failed, proceeding without lock", "key", key, "err", err)
		obs.LockAcquisitions.WithLabelValues("unsupported").Inc()
		return LockResult{Acquired: true, Supported: false}
	}

	if !ok {
		obs.LockAcquisitions.WithLabelValues("contended").Inc()
		return LockResult{Acquired: false, Supported: true}
	}

	obs.LockAcquisitions.WithLabelValues("acquired").Inc()
	return LockResult{Acquired: true, Supported: true}
}

// Release gives back a lock taken by TryAcquire. It is a no-op unless the
// primitive actually granted it.
func (c *SegmentLockCoordinator) Release(ctx context.Context, key string, res LockResult) {
	if !res.Acquired || !res.Supported || c.primitive == nil {
		return
	}

	if err := c.primitive.Unlock(context.WithoutCancel(ctx), key); err != nil {
		c.log.Warnw("lock release failed", "key", key, "err", err)
	}
}
