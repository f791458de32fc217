package ledger

import (
	"context"
	"time"

	"eco-tiket/internal/models"
)

// Store is the persistence contract of the ledger engine. The engine is
// implemented exactly once on top of it; backends (MySQL, in-memory) are
// swappable beneath.
type Store interface {
	// CreateAccount registers a passenger account with zero balances.
	// Returns ErrAccountExists for a duplicate id.
	CreateAccount(ctx context.Context, acct *models.Account) error

	// GetAccount returns one account or ErrAccountNotFound.
	GetAccount(ctx context.Context, id string) (*models.Account, error)

	// DeleteAccount removes an account without ledger history. Accounts
	// that transactions still reference are rejected with
	// ErrAccountHasHistory; cascading is never implicit.
	DeleteAccount(ctx context.Context, id string) error

	// ActiveBatches returns the account's consumable batches ordered by
	// soonest expiry.
	ActiveBatches(ctx context.Context, accountID string) ([]*models.TicketBatch, error)

	// TransactionsByAccount returns the newest entries of the account's
	// audit log, up to limit (0 means no limit).
	TransactionsByAccount(ctx context.Context, accountID string, limit int) ([]*models.Transaction, error)

	// GetTransaction returns one ledger entry or ErrTransactionNotFound.
	GetTransaction(ctx context.Context, id string) (*models.Transaction, error)

	// AccountsWithExpiredBatches lists accounts holding batches that are
	// past expiry, unforfeited, and non-empty as of asOf. The background
	// sweeper iterates this set.
	AccountsWithExpiredBatches(ctx context.Context, asOf time.Time) ([]string, error)

	// InAccountTx runs fn inside one transaction scoped to the account:
	// the account row and its batches are loaded up front, every write fn
	// issues belongs to the same transaction, and any error rolls the
	// whole operation back. Returns ErrAccountNotFound for unknown ids.
	InAccountTx(ctx context.Context, accountID string, fn func(tx AccountTx) error) error
}

// AccountTx is the mutation surface available inside InAccountTx.
type AccountTx interface {
	// Account returns the account row loaded at transaction start. Field
	// mutations become visible to the store via UpdateAccount.
	Account() *models.Account

	// Batches returns every batch owned by the account, drained and
	// forfeited ones included, ordered by ascending expiry then issuance.
	Batches() []*models.TicketBatch

	UpdateAccount(acct *models.Account) error
	InsertBatch(b *models.TicketBatch) error
	UpdateBatch(b *models.TicketBatch) error
	DeleteBatch(id string) error

	AppendTransaction(t *models.Transaction) error
	GetTransaction(id string) (*models.Transaction, error)
	MarkTransactionReversed(id string) error
}
