package etcd

import (
	"context"
	"errors"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"

	"github.com/clustermon/jobhistory-crawler/internal/state"
)

// Locker implements state.Locker with etcd mutexes. Each Acquire opens
// its own session: the mutex key is derived from the session lease, so
// a shared session would let two local acquirers of the same name both
// see themselves as the owner. A per-lock lease also means a crashed
// holder's lock expires with its TTL.
type Locker struct {
	client  *clientv3.Client
	ttlSecs int
	wait    time.Duration
}

// Acquire blocks until the named lock is held, the bounded wait expires
// (state.ErrLockTimeout), or ctx is done.
func (l *Locker) Acquire(ctx context.Context, name string) (state.UnlockFunc, error) {
	session, err := concurrency.NewSession(l.client, concurrency.WithTTL(l.ttlSecs))
	if err != nil {
		return nil, fmt.Errorf("open session for lock %s: %w", name, err)
	}
	mutex := concurrency.NewMutex(session, name)

	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()
	if err := mutex.Lock(waitCtx); err != nil {
		session.Close() //nolint:errcheck // best-effort teardown
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, state.ErrLockTimeout
		}
		return nil, fmt.Errorf("lock %s: %w", name, err)
	}

	unlock := func(ctx context.Context) error {
		// Closing the session revokes the lease even if Unlock fails.
		defer session.Close() //nolint:errcheck // lease revocation releases the lock
		if err := mutex.Unlock(ctx); err != nil {
			return fmt.Errorf("unlock %s: %w", name, err)
		}
		return nil
	}
	return unlock, nil
}

// Close is a no-op; lock sessions are scoped to each Acquire and the
// underlying client belongs to the Store.
func (l *Locker) Close() error { return nil }
