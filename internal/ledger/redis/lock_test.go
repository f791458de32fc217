package redis_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eco-tiket/internal/ledger"
	lockredis "eco-tiket/internal/ledger/redis"
)

func setupLocker(t *testing.T) (*lockredis.Locker, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return lockredis.NewLocker(client, 30*time.Second, nil), mr
}

func TestLockAndUnlock(t *testing.T) {
	locker, mr := setupLocker(t)
	ctx := context.Background()

	unlock, err := locker.LockAccount(ctx, "acc_1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("account_lock:acc_1"))

	unlock()
	assert.False(t, mr.Exists("account_lock:acc_1"))

	// Reacquiring after release works immediately.
	unlock2, err := locker.LockAccount(ctx, "acc_1")
	require.NoError(t, err)
	unlock2()
}

func TestLockContention(t *testing.T) {
	locker, _ := setupLocker(t)
	locker.AcquireTimeout = 150 * time.Millisecond
	ctx := context.Background()

	unlock, err := locker.LockAccount(ctx, "acc_busy")
	require.NoError(t, err)
	defer unlock()

	_, err = locker.LockAccount(ctx, "acc_busy")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ledger.ErrConflict))
}

func TestLockDifferentAccountsIndependent(t *testing.T) {
	locker, _ := setupLocker(t)
	ctx := context.Background()

	unlockA, err := locker.LockAccount(ctx, "acc_a")
	require.NoError(t, err)
	defer unlockA()

	unlockB, err := locker.LockAccount(ctx, "acc_b")
	require.NoError(t, err)
	defer unlockB()
}

func TestUnlockIsOwnerChecked(t *testing.T) {
	locker, mr := setupLocker(t)
	ctx := context.Background()

	unlock, err := locker.LockAccount(ctx, "acc_ttl")
	require.NoError(t, err)

	// Simulate the TTL firing and another operation taking the lock over.
	mr.Del("account_lock:acc_ttl")
	takeover, err := locker.LockAccount(ctx, "acc_ttl")
	require.NoError(t, err)

	// The stale release must not delete the new holder's lock.
	unlock()
	assert.True(t, mr.Exists("account_lock:acc_ttl"))

	takeover()
	assert.False(t, mr.Exists("account_lock:acc_ttl"))
}

func TestLockRespectsContextCancellation(t *testing.T) {
	locker, _ := setupLocker(t)
	locker.AcquireTimeout = 5 * time.Second

	unlock, err := locker.LockAccount(context.Background(), "acc_ctx")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = locker.LockAccount(ctx, "acc_ctx")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ledger.ErrConflict))
	assert.Less(t, time.Since(start), time.Second, "cancellation should cut the wait short")
}
