package models

import (
	"time"

	"github.com/uptrace/bun"
)

// TransactionType is the business reason for a ledger entry.
type TransactionType string

const (
	TxBottleExchange   TransactionType = "bottle_exchange"
	TxTicketUsage      TransactionType = "ticket_usage"
	TxTicketExpiration TransactionType = "ticket_expiration"
	TxReversal         TransactionType = "reversal"
)

// Transaction statuses.
const (
	TxStatusRecorded = "recorded"
	TxStatusReversed = "reversed"
)

// SystemActorID marks entries written by the sweeper rather than a person.
const SystemActorID = "system"

// Transaction is one append-only audit entry for a balance-affecting event.
// The batches plus the account fields stay authoritative for balance; the
// log must remain consistent with them.
type Transaction struct {
	bun.BaseModel `bun:"table:ledger_transactions"`

	ID          string          `bun:"id,pk" json:"id"`
	AccountID   string          `bun:"account_id,notnull" json:"account_id"`
	ActorID     string          `bun:"actor_id,notnull" json:"actor_id"`
	Type        TransactionType `bun:"type,notnull" json:"type"`
	TicketDelta int             `bun:"ticket_delta,notnull" json:"ticket_delta"`
	PointDelta  int             `bun:"point_delta,notnull" json:"point_delta"`

	// BatchID ties a bottle_exchange entry to the batch it created, so a
	// reversal removes exactly that batch.
	BatchID string `bun:"batch_id,nullzero" json:"batch_id,omitempty"`

	// ReversesID is set on reversal marker entries and points at the
	// transaction that was undone.
	ReversesID string `bun:"reverses_id,nullzero" json:"reverses_id,omitempty"`

	BottleType  string    `bun:"bottle_type,nullzero" json:"bottle_type,omitempty"`
	BottleCount int       `bun:"bottle_count,nullzero" json:"bottle_count,omitempty"`
	Description string    `bun:"description,nullzero" json:"description,omitempty"`
	Location    string    `bun:"location,nullzero" json:"location,omitempty"`
	Status      string    `bun:"status,notnull,default:'recorded'" json:"status"`
	CreatedAt   time.Time `bun:"created_at,notnull" json:"created_at"`

	Account *Account `bun:"rel:belongs-to,join:account_id=id" json:"-"`
}
