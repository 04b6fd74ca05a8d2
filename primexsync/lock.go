package primexsync

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/mmdatafocus/catalog_sync/config"
)

const lockKeyPrefix = "primexsync:lock:"

// LockManager keeps at most one unexpired lock per sync type. Acquire
// goes through redislock so two service instances cannot both win;
// Release is an unconditional key delete, which lets a later request
// cycle (or a cleanup step on another instance) release a lock its
// own process never obtained.
type LockManager struct{}

func NewLockManager() *LockManager {
	return &LockManager{}
}

func (m *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) error {
	locker := config.GetRedisLock()
	if locker == nil {
		return errors.New("service not ready (redis lock not initialized)")
	}
	_, err := locker.Obtain(ctx, lockKeyPrefix+key, ttl, nil)
	if err == redislock.ErrNotObtained {
		return ErrLockHeld
	}
	if err != nil {
		return err
	}
	return nil
}

func (m *LockManager) Release(ctx context.Context, key string) {
	_ = config.RemoveRedisKey(lockKeyPrefix + key)
}
