package core

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"
)

// DefaultLockTimeout is the finite timeout spec.md §5 requires on every
// lock acquisition ("default 5 s").
const DefaultLockTimeout = 5 * time.Second

// NamedLock is a single-holder lock with a bounded acquire wait, used for
// diagnostics per spec.md §5 ("Named locks are recommended for
// diagnostics"). It wraps golang.org/x/sync/semaphore.Weighted(1) rather
// than a bare sync.Mutex, because sync.Mutex has no timeout primitive and
// the spec calls for one explicitly.
type NamedLock struct {
	name    string
	timeout time.Duration
	sem     *semaphore.Weighted
}

// NewNamedLock creates a lock named name with the given timeout. A zero
// timeout selects DefaultLockTimeout.
func NewNamedLock(name string, timeout time.Duration) *NamedLock {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	return &NamedLock{name: name, timeout: timeout, sem: semaphore.NewWeighted(1)}
}

// Acquire blocks until the lock is held or the timeout elapses, in which
// case it returns ErrTimeout (fatal per spec.md §7). Call Release to
// unlock.
func (l *NamedLock) Acquire() error {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("lock %q: %w: %v", l.name, ErrTimeout, err)
	}
	return nil
}

// Release unlocks the lock.
func (l *NamedLock) Release() {
	l.sem.Release(1)
}

// WithLock runs fn while holding the lock, releasing it unconditionally
// afterwards. It is the usual call shape: southbridge→device acquisition
// order (spec.md §9 "Locking granularity") is the caller's responsibility.
func (l *NamedLock) WithLock(fn func() error) error {
	if err := l.Acquire(); err != nil {
		return err
	}
	defer l.Release()
	return fn()
}
