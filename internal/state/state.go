// Package state tracks crawl progress in a shared coordination store:
// per-partition watermarks, processed-job markers, and the distributed
// locks that guard multi-step updates.
package state

import (
	"context"
	"errors"
)

// ErrLockTimeout is returned by Locker.Acquire when the bounded wait
// expires before the lock is granted. Callers treat it as retriable.
var ErrLockTimeout = errors.New("lock acquisition timed out")

// Store is a hierarchical key-value view of the coordination store.
// Keys are slash-separated paths; prefix operations cover subtrees.
type Store interface {
	// Get returns the value at key and whether the key exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Put writes value at key, creating it if necessary.
	Put(ctx context.Context, key string, value []byte) error
	// PutIfAbsent writes value only when key does not exist yet and
	// reports whether this call created it.
	PutIfAbsent(ctx context.Context, key string, value []byte) (bool, error)
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// DeletePrefix removes every key under prefix and returns how many
	// keys were deleted.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	// List returns every key under prefix with its value.
	List(ctx context.Context, prefix string) (map[string][]byte, error)
	Close() error
}

// UnlockFunc releases a held lock. The context bounds the release call
// itself, not the hold.
type UnlockFunc func(ctx context.Context) error

// Locker grants named distributed locks with a bounded wait. Acquire
// blocks until the lock is held, the configured wait expires
// (ErrLockTimeout), or ctx is done. Crash release is the store's
// responsibility (session or lease expiry).
type Locker interface {
	Acquire(ctx context.Context, name string) (UnlockFunc, error)
	Close() error
}
