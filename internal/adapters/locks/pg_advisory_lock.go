// Package locks provides cross-process advisory lock primitives keyed by
// segment key.
package locks

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ErrLockCapacity means every lock slot of the pool is taken. Callers treat it
// like any other backend error and proceed without the lock.
var ErrLockCapacity = errors.New("pg advisory lock: all lock connections in use")

// PGAdvisoryLock maps string keys onto Postgres session-level advisory locks.
// A held lock pins one pooled connection until Unlock returns it, so at most
// MaxOpenConns-1 locks are held at once and one connection always stays free.
type PGAdvisoryLock struct {
	DB *sql.DB

	slots *semaphore.Weighted
	mu    sync.Mutex
	held  map[string]*sql.Conn
}

// NewPGAdvisoryLock should be given a pool of its own; see db.OpenLockPool.
func NewPGAdvisoryLock(db *sql.DB) *PGAdvisoryLock {
	l := &PGAdvisoryLock{DB: db, held: make(map[string]*sql.Conn)}
	if db != nil {
		if n := db.Stats().MaxOpenConnections; n > 0 {
			l.slots = semaphore.NewWeighted(int64(max(n-1, 1)))
		}
	}
	return l
}

func (l *PGAdvisoryLock) TryLock(ctx context.Context, key string) (bool, error) {
	if l.DB == nil {
		return false, errors.New("pg advisory lock: db is nil")
	}

	l.mu.Lock()
	if _, ok := l.held[key]; ok {
		l.mu.Unlock()
		return false, nil
	}
	l.mu.Unlock()

	if l.slots != nil && !l.slots.TryAcquire(1) {
		return false, ErrLockCapacity
	}
	ok, err := l.tryLock(ctx, key)
	if !ok && l.slots != nil {
		l.slots.Release(1)
	}
	return ok, err
}

func (l *PGAdvisoryLock) tryLock(ctx context.Context, key string) (bool, error) {
	conn, err := l.DB.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("pg advisory lock: acquire conn: %w", err)
	}

	var ok bool
	err = conn.QueryRowContext(ctx,
		`SELECT pg_try_advisory_lock(hashtextextended($1, 0))`, key,
	).Scan(&ok)
	if err != nil {
		_ = conn.Close()
		return false, fmt.Errorf("pg advisory lock: try lock %q: %w", key, err)
	}
	if !ok {
		_ = conn.Close()
		return false, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, dup := l.held[key]; dup {
		// Another goroutine of this process won in between; give ours back.
		_, _ = conn.ExecContext(context.WithoutCancel(ctx),
			`SELECT pg_advisory_unlock(hashtextextended($1, 0))`, key)
		_ = conn.Close()
		return false, nil
	}
	l.held[key] = conn
	return true, nil
}

func (l *PGAdvisoryLock) Unlock(ctx context.Context, key string) error {
	l.mu.Lock()
	conn, ok := l.held[key]
	delete(l.held, key)
	l.mu.Unlock()

	if !ok {
		return nil
	}
	defer func() {
		_ = conn.Close()
		if l.slots != nil {
			l.slots.Release(1)
		}
	}()

	var released bool
	err := conn.QueryRowContext(context.WithoutCancel(ctx),
		`SELECT pg_advisory_unlock(hashtextextended($1, 0))`, key,
	).Scan(&released)
	if err != nil {
		// Discard the connection; ending the session releases the lock.
		_ = conn.Raw(func(any) error { return driver.ErrBadConn })
		return fmt.Errorf("pg advisory lock: unlock %q: %w", key, err)
	}
	if !released {
		return fmt.Errorf("pg advisory lock: unlock %q: lock was not held", key)
	}
	return nil
}
