package sweeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"eco-tiket/internal/ledger"
	"eco-tiket/internal/logger"
)

// Sweeper periodically forfeits expired ticket batches across all
// accounts. Each account is swept through the same locked path the
// request handlers use, so a sweep never races an exchange or a usage.
type Sweeper struct {
	Service  *ledger.Service
	Store    ledger.Store
	Logger   *logger.Logger
	Interval time.Duration

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func New(service *ledger.Service, store ledger.Store, log *logger.Logger, interval time.Duration) *Sweeper {
	return &Sweeper{
		Service:  service,
		Store:    store,
		Logger:   log,
		Interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start begins the background sweep loop. The first pass runs
// immediately so a restart does not delay overdue forfeitures by a
// full interval.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ticker = time.NewTicker(s.Interval)
	s.wg.Add(1)
	go s.run()

	s.Logger.Info("SWEEP", fmt.Sprintf("sweeper started with interval %v", s.Interval))
}

// Stop stops the sweep loop and waits for an in-flight pass to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.Logger.Info("SWEEP", "sweeper stopped")
	}
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	s.RunOnce(context.Background())

	for {
		select {
		case <-s.ticker.C:
			s.RunOnce(context.Background())
		case <-s.stop:
			return
		}
	}
}

// RunOnce performs a single sweep pass over every account that holds at
// least one expired, unforfeited batch. A failure on one account is
// logged and the pass moves on; the account is picked up again next
// interval.
func (s *Sweeper) RunOnce(ctx context.Context) {
	now := time.Now()

	accountIDs, err := s.Store.AccountsWithExpiredBatches(ctx, now)
	if err != nil {
		s.Logger.Error("SWEEP", fmt.Sprintf("failed to list accounts with expired batches: %v", err))
		return
	}
	if len(accountIDs) == 0 {
		return
	}

	s.Logger.LogSweep("*", fmt.Sprintf("sweep pass over %d account(s)", len(accountIDs)))

	swept := 0
	forfeited := 0
	for _, accountID := range accountIDs {
		resp, err := s.Service.SweepExpired(ctx, accountID, now)
		if err != nil {
			// Account deleted between listing and sweeping, or lock
			// contention with a live request. Both resolve themselves.
			if errors.Is(err, ledger.ErrAccountNotFound) || ledger.IsRetryable(err) {
				s.Logger.LogSweep(accountID, fmt.Sprintf("skipped: %v", err))
				continue
			}
			s.Logger.Error("SWEEP", fmt.Sprintf("sweep failed for account %s: %v", accountID, err))
			continue
		}
		swept += resp.BatchesSwept
		forfeited += resp.TotalForfeited
	}

	s.Logger.LogSweep("*", fmt.Sprintf("sweep pass done: %d batch(es) forfeited, %d ticket(s) reclaimed", swept, forfeited))
}
