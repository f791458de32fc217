package models

import (
	"time"

	"github.com/uptrace/bun"
)

// TicketBatch is one grant of tickets from a single bottle exchange.
// ExpiresAt is fixed at creation (issued_at + validity window) and never
// changes. Once Forfeited is set, Remaining is 0 and stays 0.
type TicketBatch struct {
	bun.BaseModel `bun:"table:ticket_batches"`

	ID        string    `bun:"id,pk" json:"id"`
	AccountID string    `bun:"account_id,notnull" json:"account_id"`
	Earned    int       `bun:"earned,notnull" json:"earned"`
	Remaining int       `bun:"remaining,notnull" json:"remaining"`
	IssuedAt  time.Time `bun:"issued_at,notnull" json:"issued_at"`
	ExpiresAt time.Time `bun:"expires_at,notnull" json:"expires_at"`
	Forfeited bool      `bun:"forfeited,notnull,default:false" json:"forfeited"`

	Account *Account `bun:"rel:belongs-to,join:account_id=id" json:"-"`
}

// Expired reports whether the batch's validity window has passed at asOf.
func (b *TicketBatch) Expired(asOf time.Time) bool {
	return b.ExpiresAt.Before(asOf)
}

// Consumable reports whether the batch can still absorb usage deductions.
// Forfeited batches always hold remaining=0 and never participate.
func (b *TicketBatch) Consumable() bool {
	return !b.Forfeited && b.Remaining > 0
}
