package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Account is one passenger's ledger state. Balances are only ever mutated
// by the ledger engine; they must match the sum of batch remainders once
// sweeps are applied.
type Account struct {
	bun.BaseModel `bun:"table:accounts"`

	ID            string    `bun:"id,pk" json:"id"`
	FullName      string    `bun:"full_name,nullzero" json:"full_name,omitempty"`
	TicketBalance int       `bun:"ticket_balance,notnull,default:0" json:"ticket_balance"`
	PointBalance  int       `bun:"point_balance,notnull,default:0" json:"point_balance"`
	CreatedAt     time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}
