package lockmgr

import (
	"context"
	"time"
)

// ILockManager defines the interface for a lock provider.
type ILockManager interface {
	// AcquireLock tries once to acquire the lock for the given key with an optional timeout.
	// The timeout is counted in writes to the underlying store (0 = the lock never times out).
	// Returns whether the lock was acquired, the owner ID needed to release it, and an error if any.
	AcquireLock(ctx context.Context, key string, timeout uint64) (ok bool, ownerID []byte, err error)

	// WaitLock retries AcquireLock every retry interval until the lock is acquired or ctx is done.
	WaitLock(ctx context.Context, key string, timeout uint64, retry time.Duration) (ownerID []byte, err error)

	// ReleaseLock releases the lock for the given key.
	// Returns whether the lock was released, and an error if any.
	// The method also returns true if the lock did not exist.
	ReleaseLock(ctx context.Context, key string, ownerID []byte) (ok bool, err error)
}
