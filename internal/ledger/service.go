package ledger

import (
	"context"
	"fmt"
	"time"

	"eco-tiket/internal/config"
	"eco-tiket/internal/logger"
	"eco-tiket/internal/metrics"
	"eco-tiket/internal/models"
	"eco-tiket/internal/sse"
	"eco-tiket/internal/utils"
)

// Actor roles known to the ledger.
const (
	RoleAdmin     = "admin"
	RolePetugas   = "petugas"
	RolePenumpang = "penumpang"
)

// Actor identifies who invoked a ledger operation.
type Actor struct {
	ID   string
	Role string
}

// EventPublisher streams committed ledger transactions to Kafka.
type EventPublisher interface {
	PublishExchange(tx models.Transaction) error
	PublishUsage(tx models.Transaction) error
	PublishExpiration(tx models.Transaction) error
	PublishReversal(tx models.Transaction) error
}

// Service is the ticket ledger engine. Every operation runs inside the
// account's exclusion scope and one store transaction, so it either fully
// commits or fully rolls back.
type Service struct {
	Store  Store
	Locks  AccountLocker
	Kafka  EventPublisher           // optional
	Events *sse.LedgerEventEmitter // optional
	Logger *logger.Logger          // optional

	// Validity is the batch lifetime from issuance (30 days).
	Validity time.Duration
	// PointThreshold is the balance multiple awarding one point (10).
	PointThreshold int

	// Now is the clock; tests override it.
	Now func() time.Time
}

func NewService(store Store, locks AccountLocker, cfg config.LedgerConfig) *Service {
	return &Service{
		Store:          store,
		Locks:          locks,
		Validity:       cfg.Validity(),
		PointThreshold: cfg.PointThreshold,
		Now:            time.Now,
	}
}

// ---------------- ACCOUNTS ----------------

// CreateAccount registers a passenger with both balances at zero.
func (s *Service) CreateAccount(ctx context.Context, req models.CreateAccountRequest) (*models.Account, error) {
	id := req.AccountID
	if id == "" {
		id = utils.GenerateAccountID()
	}
	now := s.Now()
	acct := &models.Account{
		ID:        id,
		FullName:  req.FullName,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Store.CreateAccount(ctx, acct); err != nil {
		return nil, err
	}
	s.logLedger("CREATE_ACCOUNT", id, "account registered")
	return acct, nil
}

// GetAccountView returns the account plus its consumable batches.
func (s *Service) GetAccountView(ctx context.Context, accountID string) (*models.AccountResponse, error) {
	acct, err := s.Store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	batches, err := s.Store.ActiveBatches(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &models.AccountResponse{Account: acct, ActiveBatches: batches}, nil
}

// DeleteAccount removes an account with no ledger history. The store
// rejects accounts that transactions still reference.
func (s *Service) DeleteAccount(ctx context.Context, accountID string) error {
	unlock, err := s.Locks.LockAccount(ctx, accountID)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.Store.DeleteAccount(ctx, accountID); err != nil {
		return err
	}
	s.logLedger("DELETE_ACCOUNT", accountID, "account removed")
	return nil
}

// Statement returns the newest audit entries for the account.
func (s *Service) Statement(ctx context.Context, accountID string, limit int) ([]*models.Transaction, error) {
	if _, err := s.Store.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return s.Store.TransactionsByAccount(ctx, accountID, limit)
}

// ---------------- EXCHANGE ----------------

// ExchangeBottles converts a bottle drop-off into a fresh ticket batch,
// awarding points for every multiple-of-threshold balance crossing. The
// expiration sweep runs first so stale batches never count toward the
// crossing.
func (s *Service) ExchangeBottles(ctx context.Context, actor Actor, req models.ExchangeRequest) (*models.ExchangeResponse, error) {
	if req.AccountID == "" {
		return nil, fmt.Errorf("%w: account_id is required", ErrInvalidInput)
	}
	if req.BottleCount <= 0 {
		return nil, fmt.Errorf("%w: bottle_count must be positive", ErrInvalidInput)
	}

	timer := time.Now()
	defer func() {
		metrics.LedgerOperationDuration.WithLabelValues("exchange").Observe(time.Since(timer).Seconds())
	}()

	unlock, err := s.Locks.LockAccount(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := s.Now()
	var (
		resp    *models.ExchangeResponse
		created *models.Transaction
		sweepTx *models.Transaction
	)

	err = s.Store.InAccountTx(ctx, req.AccountID, func(tx AccountTx) error {
		// Sweep first: forfeited tickets must not count toward the point
		// threshold crossing below.
		var err error
		sweepTx, _, err = s.sweepLocked(tx, now)
		if err != nil {
			return err
		}

		ticketsEarned := models.TicketsForBottles(models.BottleType(req.BottleType), req.BottleCount)
		if ticketsEarned == 0 {
			return fmt.Errorf("%w: %d bottles of type %q", ErrZeroTicketExchange, req.BottleCount, req.BottleType)
		}

		acct := tx.Account()
		oldBalance := acct.TicketBalance
		newBalance := oldBalance + ticketsEarned
		pointsEarned := newBalance/s.PointThreshold - oldBalance/s.PointThreshold

		batch := &models.TicketBatch{
			ID:        utils.GenerateBatchID(),
			AccountID: acct.ID,
			Earned:    ticketsEarned,
			Remaining: ticketsEarned,
			IssuedAt:  now,
			ExpiresAt: now.Add(s.Validity),
		}
		if err := tx.InsertBatch(batch); err != nil {
			return err
		}

		acct.TicketBalance = newBalance
		acct.PointBalance += pointsEarned
		acct.UpdatedAt = now
		if err := tx.UpdateAccount(acct); err != nil {
			return err
		}

		created = &models.Transaction{
			ID:          utils.GenerateTransactionID(),
			AccountID:   acct.ID,
			ActorID:     actor.ID,
			Type:        models.TxBottleExchange,
			TicketDelta: ticketsEarned,
			PointDelta:  pointsEarned,
			BatchID:     batch.ID,
			BottleType:  req.BottleType,
			BottleCount: req.BottleCount,
			Description: fmt.Sprintf("Exchanged %d %s bottles for %d tickets", req.BottleCount, req.BottleType, ticketsEarned),
			Location:    req.Location,
			Status:      models.TxStatusRecorded,
			CreatedAt:   now,
		}
		if err := tx.AppendTransaction(created); err != nil {
			return err
		}

		resp = &models.ExchangeResponse{
			TransactionID: created.ID,
			BatchID:       batch.ID,
			TicketsEarned: ticketsEarned,
			PointsEarned:  pointsEarned,
			ExpiresAt:     batch.ExpiresAt,
			TicketBalance: acct.TicketBalance,
			PointBalance:  acct.PointBalance,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.ExchangesTotal.WithLabelValues(req.BottleType).Inc()
	metrics.TicketsIssuedTotal.Add(float64(resp.TicketsEarned))
	metrics.PointsAwardedTotal.Add(float64(resp.PointsEarned))
	s.logLedger("EXCHANGE", req.AccountID,
		fmt.Sprintf("%d %s bottles -> %d tickets, %d points", req.BottleCount, req.BottleType, resp.TicketsEarned, resp.PointsEarned))

	s.afterSweep(sweepTx)
	s.emit(*created)
	if s.Kafka != nil {
		if err := s.Kafka.PublishExchange(*created); err != nil {
			s.logWarn("KAFKA", fmt.Sprintf("failed to publish exchange event: %v", err))
		}
	}
	return resp, nil
}

// ---------------- SWEEP ----------------

// SweepExpired forfeits the account's expired, unused batches. Calling it
// twice without intervening mutation is a no-op the second time.
func (s *Service) SweepExpired(ctx context.Context, accountID string, asOf time.Time) (*models.SweepResponse, error) {
	if accountID == "" {
		return nil, fmt.Errorf("%w: account_id is required", ErrInvalidInput)
	}
	if asOf.IsZero() {
		asOf = s.Now()
	}

	timer := time.Now()
	defer func() { metrics.SweepDuration.Observe(time.Since(timer).Seconds()) }()

	unlock, err := s.Locks.LockAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var (
		resp    *models.SweepResponse
		sweepTx *models.Transaction
	)
	err = s.Store.InAccountTx(ctx, accountID, func(tx AccountTx) error {
		var (
			swept int
			err   error
		)
		sweepTx, swept, err = s.sweepLocked(tx, asOf)
		if err != nil {
			return err
		}
		acct := tx.Account()
		resp = &models.SweepResponse{
			AccountID:     accountID,
			BatchesSwept:  swept,
			TicketBalance: acct.TicketBalance,
		}
		if sweepTx != nil {
			resp.TotalForfeited = -sweepTx.TicketDelta
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if sweepTx != nil {
		s.logSweep(accountID, fmt.Sprintf("forfeited %d expired tickets", resp.TotalForfeited))
	}
	s.afterSweep(sweepTx)
	return resp, nil
}

// sweepLocked is the one sweep implementation, shared by every operation.
// It must run inside the account's transaction, before any balance math.
// Returns the appended ticket_expiration entry and the number of batches
// swept; a nil entry means nothing was forfeited (idempotent no-op: no
// state change, no transaction).
func (s *Service) sweepLocked(tx AccountTx, asOf time.Time) (*models.Transaction, int, error) {
	totalForfeited := 0
	swept := 0
	for _, b := range tx.Batches() {
		if b.Forfeited || !b.Expired(asOf) || b.Remaining == 0 {
			continue
		}
		totalForfeited += b.Remaining
		b.Remaining = 0
		b.Forfeited = true
		if err := tx.UpdateBatch(b); err != nil {
			return nil, 0, err
		}
		swept++
	}
	if totalForfeited == 0 {
		return nil, 0, nil
	}

	acct := tx.Account()
	acct.TicketBalance -= totalForfeited
	acct.UpdatedAt = asOf
	if err := tx.UpdateAccount(acct); err != nil {
		return nil, 0, err
	}

	expTx := &models.Transaction{
		ID:          utils.GenerateTransactionID(),
		AccountID:   acct.ID,
		ActorID:     models.SystemActorID,
		Type:        models.TxTicketExpiration,
		TicketDelta: -totalForfeited,
		Description: fmt.Sprintf("Forfeited %d expired tickets from %d batch(es)", totalForfeited, swept),
		Status:      models.TxStatusRecorded,
		CreatedAt:   asOf,
	}
	if err := tx.AppendTransaction(expTx); err != nil {
		return nil, 0, err
	}
	return expTx, swept, nil
}

// ---------------- USAGE ----------------

// UseTickets debits the balance for a ride, consuming non-forfeited
// batches in ascending order of expiry. Drained batches stay in place for
// audit.
func (s *Service) UseTickets(ctx context.Context, actor Actor, req models.UsageRequest) (*models.UsageResponse, error) {
	if req.AccountID == "" {
		return nil, fmt.Errorf("%w: account_id is required", ErrInvalidInput)
	}
	if req.TicketCount <= 0 {
		return nil, fmt.Errorf("%w: ticket_count must be positive", ErrInvalidInput)
	}

	timer := time.Now()
	defer func() {
		metrics.LedgerOperationDuration.WithLabelValues("use").Observe(time.Since(timer).Seconds())
	}()

	unlock, err := s.Locks.LockAccount(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := s.Now()
	var (
		resp    *models.UsageResponse
		created *models.Transaction
		sweepTx *models.Transaction
	)

	err = s.Store.InAccountTx(ctx, req.AccountID, func(tx AccountTx) error {
		var err error
		sweepTx, _, err = s.sweepLocked(tx, now)
		if err != nil {
			return err
		}

		acct := tx.Account()
		if acct.TicketBalance < req.TicketCount {
			return &InsufficientBalanceError{
				AccountID: acct.ID,
				Available: acct.TicketBalance,
				Requested: req.TicketCount,
			}
		}

		left := req.TicketCount
		for _, b := range tx.Batches() {
			if left == 0 {
				break
			}
			if !b.Consumable() {
				continue
			}
			take := b.Remaining
			if take > left {
				take = left
			}
			b.Remaining -= take
			left -= take
			if err := tx.UpdateBatch(b); err != nil {
				return err
			}
		}
		if left > 0 {
			// Balance said we had enough; batches disagreed. Roll back.
			return fmt.Errorf("%w: account %s, %d tickets unaccounted", ErrLedgerDrift, acct.ID, left)
		}

		acct.TicketBalance -= req.TicketCount
		acct.UpdatedAt = now
		if err := tx.UpdateAccount(acct); err != nil {
			return err
		}

		created = &models.Transaction{
			ID:          utils.GenerateTransactionID(),
			AccountID:   acct.ID,
			ActorID:     actor.ID,
			Type:        models.TxTicketUsage,
			TicketDelta: -req.TicketCount,
			Description: fmt.Sprintf("Used %d tickets", req.TicketCount),
			Location:    req.Location,
			Status:      models.TxStatusRecorded,
			CreatedAt:   now,
		}
		if err := tx.AppendTransaction(created); err != nil {
			return err
		}

		resp = &models.UsageResponse{
			TransactionID: created.ID,
			TicketsUsed:   req.TicketCount,
			TicketBalance: acct.TicketBalance,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.TicketsUsedTotal.Add(float64(req.TicketCount))
	s.logLedger("USE", req.AccountID, fmt.Sprintf("debited %d tickets, balance now %d", req.TicketCount, resp.TicketBalance))

	s.afterSweep(sweepTx)
	s.emit(*created)
	if s.Kafka != nil {
		if err := s.Kafka.PublishUsage(*created); err != nil {
			s.logWarn("KAFKA", fmt.Sprintf("failed to publish usage event: %v", err))
		}
	}
	return resp, nil
}

// ---------------- REVERSAL ----------------

// ReverseTransaction undoes a prior exchange or usage entry. Privileged
// actors only. Exchange reversals remove exactly the batch the entry
// created (never "the most recent one"); the batch must still be whole.
// Usage reversals restore the balance without reopening batch remainders;
// the audit trail keeps the consumption history.
func (s *Service) ReverseTransaction(ctx context.Context, actor Actor, transactionID string) (*models.Transaction, error) {
	if actor.Role != RoleAdmin {
		return nil, fmt.Errorf("%w: reversal requires the admin role", ErrPermissionDenied)
	}
	if transactionID == "" {
		return nil, fmt.Errorf("%w: transaction id is required", ErrInvalidInput)
	}

	timer := time.Now()
	defer func() {
		metrics.LedgerOperationDuration.WithLabelValues("reverse").Observe(time.Since(timer).Seconds())
	}()

	// Locate the owning account first; the authoritative re-read happens
	// inside the account transaction.
	ref, err := s.Store.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	unlock, err := s.Locks.LockAccount(ctx, ref.AccountID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := s.Now()
	var (
		snapshot *models.Transaction
		marker   *models.Transaction
	)

	err = s.Store.InAccountTx(ctx, ref.AccountID, func(tx AccountTx) error {
		orig, err := tx.GetTransaction(transactionID)
		if err != nil {
			return err
		}
		if orig.Status == models.TxStatusReversed {
			return fmt.Errorf("%w: %s", ErrAlreadyReversed, orig.ID)
		}

		acct := tx.Account()

		switch orig.Type {
		case models.TxBottleExchange:
			var batch *models.TicketBatch
			for _, b := range tx.Batches() {
				if b.ID == orig.BatchID {
					batch = b
					break
				}
			}
			if batch == nil {
				return fmt.Errorf("batch %s for transaction %s not found", orig.BatchID, orig.ID)
			}
			if batch.Forfeited || batch.Remaining != batch.Earned {
				return fmt.Errorf("%w: batch %s", ErrBatchAlreadyTouched, batch.ID)
			}
			acct.TicketBalance -= orig.TicketDelta
			acct.PointBalance -= orig.PointDelta
			if err := tx.DeleteBatch(batch.ID); err != nil {
				return err
			}

		case models.TxTicketUsage:
			// Delta is negative; subtracting restores the balance.
			acct.TicketBalance -= orig.TicketDelta

		default:
			return fmt.Errorf("%w: entries of type %s cannot be reversed", ErrInvalidInput, orig.Type)
		}

		acct.UpdatedAt = now
		if err := tx.UpdateAccount(acct); err != nil {
			return err
		}
		if err := tx.MarkTransactionReversed(orig.ID); err != nil {
			return err
		}

		marker = &models.Transaction{
			ID:          utils.GenerateTransactionID(),
			AccountID:   acct.ID,
			ActorID:     actor.ID,
			Type:        models.TxReversal,
			TicketDelta: -orig.TicketDelta,
			PointDelta:  -orig.PointDelta,
			ReversesID:  orig.ID,
			Description: fmt.Sprintf("Reversal of %s entry %s", orig.Type, orig.ID),
			Status:      models.TxStatusRecorded,
			CreatedAt:   now,
		}
		if err := tx.AppendTransaction(marker); err != nil {
			return err
		}

		reversed := *orig
		reversed.Status = models.TxStatusReversed
		snapshot = &reversed
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.ReversalsTotal.WithLabelValues(string(snapshot.Type)).Inc()
	s.logLedger("REVERSE", snapshot.AccountID, fmt.Sprintf("reversed %s entry %s", snapshot.Type, snapshot.ID))

	s.emit(*marker)
	if s.Kafka != nil {
		if err := s.Kafka.PublishReversal(*marker); err != nil {
			s.logWarn("KAFKA", fmt.Sprintf("failed to publish reversal event: %v", err))
		}
	}
	return snapshot, nil
}

// ---------------- HELPERS ----------------

// afterSweep fans out a committed expiration entry to metrics, SSE, and
// Kafka. A nil entry means the sweep was a no-op.
func (s *Service) afterSweep(sweepTx *models.Transaction) {
	if sweepTx == nil {
		return
	}
	metrics.TicketsForfeitedTotal.Add(float64(-sweepTx.TicketDelta))
	s.emit(*sweepTx)
	if s.Kafka != nil {
		if err := s.Kafka.PublishExpiration(*sweepTx); err != nil {
			s.logWarn("KAFKA", fmt.Sprintf("failed to publish expiration event: %v", err))
		}
	}
}

func (s *Service) emit(tx models.Transaction) {
	if s.Events != nil {
		s.Events.Emit(tx)
	}
}

func (s *Service) logLedger(op, accountID, msg string) {
	if s.Logger != nil {
		s.Logger.LogLedger(op, accountID, msg)
	}
}

func (s *Service) logSweep(accountID, msg string) {
	if s.Logger != nil {
		s.Logger.LogSweep(accountID, msg)
	}
}

func (s *Service) logWarn(category, msg string) {
	if s.Logger != nil {
		s.Logger.Warn(category, msg)
	}
}
