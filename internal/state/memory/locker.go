package memory

import (
	"context"
	"sync"
	"time"

	"github.com/clustermon/jobhistory-crawler/internal/state"
)

// DefaultLockWait bounds Acquire when no wait is configured.
const DefaultLockWait = 30 * time.Second

// Locker grants named in-process locks with the same bounded-wait
// contract as the distributed implementation, which lets the full
// locking paths run in tests without a coordination service.
type Locker struct {
	wait time.Duration

	mu    sync.Mutex
	locks map[string]chan struct{}
}

// NewLocker returns a Locker whose Acquire gives up after wait.
// A non-positive wait falls back to DefaultLockWait.
func NewLocker(wait time.Duration) *Locker {
	if wait <= 0 {
		wait = DefaultLockWait
	}
	return &Locker{wait: wait, locks: make(map[string]chan struct{})}
}

func (l *Locker) semaphore(name string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	sem, ok := l.locks[name]
	if !ok {
		sem = make(chan struct{}, 1)
		l.locks[name] = sem
	}
	return sem
}

// Acquire blocks until the named lock is held, the wait expires
// (state.ErrLockTimeout), or ctx is done.
func (l *Locker) Acquire(ctx context.Context, name string) (state.UnlockFunc, error) {
	sem := l.semaphore(name)
	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, state.ErrLockTimeout
	}

	var once sync.Once
	unlock := func(context.Context) error {
		once.Do(func() { <-sem })
		return nil
	}
	return unlock, nil
}

// Close satisfies state.Locker.
func (l *Locker) Close() error { return nil }
