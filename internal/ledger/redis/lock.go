// Package redis is the distributed AccountLocker. Each account maps to
// one SetNX key with a TTL, so a crashed holder can never wedge the
// account for good.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"eco-tiket/internal/ledger"
	"eco-tiket/internal/logger"
)

const lockKeyPrefix = "account_lock:"

// acquireInterval is the poll interval while waiting for a held lock.
const acquireInterval = 50 * time.Millisecond

type Locker struct {
	Client *redis.Client
	Logger *logger.Logger
	// TTL bounds how long a lock may be held; it must exceed the longest
	// ledger operation.
	TTL time.Duration
	// AcquireTimeout is how long LockAccount waits before giving up with
	// ErrConflict.
	AcquireTimeout time.Duration
}

func NewLocker(client *redis.Client, ttl time.Duration, log *logger.Logger) *Locker {
	return &Locker{
		Client:         client,
		Logger:         log,
		TTL:            ttl,
		AcquireTimeout: 5 * time.Second,
	}
}

// LockAccount acquires the per-account exclusion scope. The returned func
// releases it; release is owner-checked so an expired lock taken over by
// another operation is never deleted from under it.
func (l *Locker) LockAccount(ctx context.Context, accountID string) (func(), error) {
	key := lockKeyPrefix + accountID
	owner := uuid.NewString()

	deadline := time.Now().Add(l.AcquireTimeout)
	for {
		ok, err := l.Client.SetNX(ctx, key, owner, l.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("redis lock error: %w", err)
		}
		if ok {
			return func() { l.unlock(key, owner) }, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: account %s is locked", ledger.ErrConflict, accountID)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ledger.ErrConflict, ctx.Err())
		case <-time.After(acquireInterval):
		}
	}
}

// unlockScript compares and deletes in one call. A separate GET-then-DEL
// leaves a window where the key expires, another operation re-acquires
// it, and the stale holder deletes the new lock.
var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

func (l *Locker) unlock(key, owner string) {
	ctx := context.Background()
	if err := unlockScript.Run(ctx, l.Client, []string{key}, owner).Err(); err != nil && l.Logger != nil {
		l.Logger.Warn("REDIS", fmt.Sprintf("failed to release lock %s: %v", key, err))
	}
}
