package ledger

import (
	"context"
	"sync"
)

// AccountLocker serializes ledger operations per account. Operations on
// different accounts run in parallel; two operations on the same account
// never interleave their read-modify-write sequence.
type AccountLocker interface {
	// LockAccount acquires the account's exclusion scope and returns the
	// release func. Returns ErrConflict (possibly wrapped) when the scope
	// cannot be entered in time.
	LockAccount(ctx context.Context, accountID string) (func(), error)
}

// LocalLocker is an in-process AccountLocker backed by one mutex per
// account. Suitable for single-node deployments and tests; multi-node
// deployments use the Redis locker instead.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *LocalLocker) LockAccount(ctx context.Context, accountID string) (func(), error) {
	l.mu.Lock()
	m, ok := l.locks[accountID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[accountID] = m
	}
	l.mu.Unlock()

	acquired := make(chan struct{})
	go func() {
		m.Lock()
		close(acquired)
	}()

	select {
	case <-acquired:
		return m.Unlock, nil
	case <-ctx.Done():
		// The goroutine will still acquire the mutex eventually; release
		// it again so the account does not stay locked.
		go func() {
			<-acquired
			m.Unlock()
		}()
		return nil, ErrConflict
	}
}
