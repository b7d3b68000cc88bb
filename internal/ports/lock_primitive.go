package ports

import "context"

// Port: an atomic, cross-process, non-blocking advisory lock keyed by string.
type LockPrimitive interface {
	TryLock(ctx context.Context, key string) (bool, error)
	Unlock(ctx context.Context, key string) error
}
