package lockmgr

import (
	"bytes"
	"context"
	"time"

	"github.com/ValentinKolb/litepool/lib/store"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("lockmgr")

type lockMgrImpl struct {
	store store.IStore
}

// NewLockManager creates a lock manager that keeps its locks in s
func NewLockManager(s store.IStore) ILockManager {
	return &lockMgrImpl{
		store: s,
	}
}

func (lm *lockMgrImpl) AcquireLock(ctx context.Context, key string, timeout uint64) (bool, []byte, error) {
	ownerID, err := generateOwnerID()
	if err != nil {
		return false, nil, err
	}

	// only one SetEIfUnset can create the key, the store serializes them
	if err = lm.store.SetEIfUnset(ctx, key, ownerID, 0, timeout); err != nil {
		log.Warningf("setting lock %s failed: %v", key, err)
		return false, nil, err
	}

	value, found, err := lm.store.Get(ctx, key)
	if err != nil {
		return false, nil, err
	}

	if found && bytes.Equal(value, ownerID) {
		log.Debugf("acquired lock %s", key)
		return true, ownerID, nil
	}
	// somebody else holds the lock
	return false, nil, nil
}

func (lm *lockMgrImpl) WaitLock(ctx context.Context, key string, timeout uint64, retry time.Duration) ([]byte, error) {
	ticker := time.NewTicker(retry)
	defer ticker.Stop()

	for {
		ok, ownerID, err := lm.AcquireLock(ctx, key, timeout)
		if err != nil {
			return nil, err
		}
		if ok {
			return ownerID, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (lm *lockMgrImpl) ReleaseLock(ctx context.Context, key string, ownerID []byte) (bool, error) {
	value, ok, err := lm.store.Get(ctx, key)
	if err != nil || !ok {
		return err == nil, err
	}

	if !bytes.Equal(ownerID, value) {
		return false, nil
	}

	// the Get and the Delete run in separate scopes, a lock that timed out in between
	// and was taken by another owner would be deleted as well
	if err = lm.store.Delete(ctx, key); err != nil {
		return false, err
	}
	log.Debugf("released lock %s", key)
	return true, nil
}
