// Package memory is the in-memory ledger store. It backs tests and the
// single-node dev mode, with an explicit lifecycle (Open/Flush/Close) and
// an optional JSON snapshot file instead of process-exit hooks.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"eco-tiket/internal/ledger"
	"eco-tiket/internal/models"
)

type Store struct {
	mu           sync.RWMutex
	accounts     map[string]*models.Account
	batches      map[string][]*models.TicketBatch // keyed by account id
	transactions []*models.Transaction
	txByID       map[string]*models.Transaction
	snapshotPath string
}

// NewStore creates an empty store. snapshotPath may be empty, in which
// case Flush and Close are no-ops.
func NewStore(snapshotPath string) *Store {
	return &Store{
		accounts:     make(map[string]*models.Account),
		batches:      make(map[string][]*models.TicketBatch),
		txByID:       make(map[string]*models.Transaction),
		snapshotPath: snapshotPath,
	}
}

type snapshot struct {
	Accounts     []*models.Account     `json:"accounts"`
	Batches      []*models.TicketBatch `json:"batches"`
	Transactions []*models.Transaction `json:"transactions"`
}

// Open loads the snapshot file when one is configured and present.
func (s *Store) Open() error {
	if s.snapshotPath == "" {
		return nil
	}
	data, err := os.ReadFile(s.snapshotPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to parse snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range snap.Accounts {
		s.accounts[a.ID] = a
	}
	for _, b := range snap.Batches {
		s.batches[b.AccountID] = append(s.batches[b.AccountID], b)
	}
	for _, t := range snap.Transactions {
		s.transactions = append(s.transactions, t)
		s.txByID[t.ID] = t
	}
	return nil
}

// Flush writes the snapshot file when one is configured.
func (s *Store) Flush() error {
	if s.snapshotPath == "" {
		return nil
	}
	s.mu.RLock()
	snap := snapshot{}
	for _, a := range s.accounts {
		snap.Accounts = append(snap.Accounts, a)
	}
	for _, bs := range s.batches {
		snap.Batches = append(snap.Batches, bs...)
	}
	snap.Transactions = s.transactions
	data, err := json.MarshalIndent(snap, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return err
	}
	return os.WriteFile(s.snapshotPath, data, 0644)
}

// Close flushes and releases the store.
func (s *Store) Close() error {
	return s.Flush()
}

// ---------------- READS ----------------

func (s *Store) CreateAccount(ctx context.Context, acct *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[acct.ID]; ok {
		return fmt.Errorf("%w: %s", ledger.ErrAccountExists, acct.ID)
	}
	cp := *acct
	s.accounts[acct.ID] = &cp
	return nil
}

func (s *Store) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ledger.ErrAccountNotFound, id)
	}
	cp := *acct
	return &cp, nil
}

func (s *Store) DeleteAccount(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[id]; !ok {
		return fmt.Errorf("%w: %s", ledger.ErrAccountNotFound, id)
	}
	for _, t := range s.transactions {
		if t.AccountID == id {
			return fmt.Errorf("%w: %s", ledger.ErrAccountHasHistory, id)
		}
	}
	delete(s.accounts, id)
	delete(s.batches, id)
	return nil
}

func (s *Store) ActiveBatches(ctx context.Context, accountID string) ([]*models.TicketBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.accounts[accountID]; !ok {
		return nil, fmt.Errorf("%w: %s", ledger.ErrAccountNotFound, accountID)
	}
	var out []*models.TicketBatch
	for _, b := range s.batches[accountID] {
		if b.Consumable() {
			cp := *b
			out = append(out, &cp)
		}
	}
	sortBatches(out)
	return out, nil
}

func (s *Store) TransactionsByAccount(ctx context.Context, accountID string, limit int) ([]*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Transaction
	for i := len(s.transactions) - 1; i >= 0; i-- {
		t := s.transactions[i]
		if t.AccountID != accountID {
			continue
		}
		cp := *t
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.txByID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ledger.ErrTransactionNotFound, id)
	}
	cp := *t
	return &cp, nil
}

func (s *Store) AccountsWithExpiredBatches(ctx context.Context, asOf time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for accountID, bs := range s.batches {
		for _, b := range bs {
			if !b.Forfeited && b.Expired(asOf) && b.Remaining > 0 {
				out = append(out, accountID)
				break
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// ---------------- ACCOUNT TRANSACTION ----------------

// InAccountTx stages every mutation on copies and commits them only when
// fn succeeds, so a failing operation leaves no partial state behind.
func (s *Store) InAccountTx(ctx context.Context, accountID string, fn func(tx ledger.AccountTx) error) error {
	s.mu.Lock()
	acct, ok := s.accounts[accountID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ledger.ErrAccountNotFound, accountID)
	}

	tx := &accountTx{store: s, acct: copyAccount(acct)}
	for _, b := range s.batches[accountID] {
		cp := *b
		tx.batches = append(tx.batches, &cp)
	}
	sortBatches(tx.batches)
	s.mu.Unlock()

	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[accountID] = tx.acct
	s.batches[accountID] = tx.batches
	for _, id := range tx.reversed {
		if t, ok := s.txByID[id]; ok {
			t.Status = models.TxStatusReversed
		}
	}
	for _, t := range tx.appended {
		s.transactions = append(s.transactions, t)
		s.txByID[t.ID] = t
	}
	return nil
}

type accountTx struct {
	store    *Store
	acct     *models.Account
	batches  []*models.TicketBatch
	appended []*models.Transaction
	reversed []string
}

func (tx *accountTx) Account() *models.Account { return tx.acct }

func (tx *accountTx) Batches() []*models.TicketBatch {
	sortBatches(tx.batches)
	return tx.batches
}

func (tx *accountTx) UpdateAccount(acct *models.Account) error {
	tx.acct = acct
	return nil
}

func (tx *accountTx) InsertBatch(b *models.TicketBatch) error {
	tx.batches = append(tx.batches, b)
	return nil
}

func (tx *accountTx) UpdateBatch(b *models.TicketBatch) error {
	// Batches are the staged copies themselves; mutation is enough.
	return nil
}

func (tx *accountTx) DeleteBatch(id string) error {
	for i, b := range tx.batches {
		if b.ID == id {
			tx.batches = append(tx.batches[:i], tx.batches[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("batch %s not found", id)
}

func (tx *accountTx) AppendTransaction(t *models.Transaction) error {
	tx.appended = append(tx.appended, t)
	return nil
}

func (tx *accountTx) GetTransaction(id string) (*models.Transaction, error) {
	for _, t := range tx.appended {
		if t.ID == id {
			cp := *t
			return &cp, nil
		}
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	t, ok := tx.store.txByID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ledger.ErrTransactionNotFound, id)
	}
	cp := *t
	return &cp, nil
}

func (tx *accountTx) MarkTransactionReversed(id string) error {
	tx.reversed = append(tx.reversed, id)
	return nil
}

// ---------------- HELPERS ----------------

func copyAccount(a *models.Account) *models.Account {
	cp := *a
	return &cp
}

func sortBatches(bs []*models.TicketBatch) {
	sort.SliceStable(bs, func(i, j int) bool {
		if bs[i].ExpiresAt.Equal(bs[j].ExpiresAt) {
			return bs[i].IssuedAt.Before(bs[j].IssuedAt)
		}
		return bs[i].ExpiresAt.Before(bs[j].ExpiresAt)
	})
}
