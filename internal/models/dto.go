package models

import "time"

// ExchangeRequest is the body of POST /api/ledger/exchange.
type ExchangeRequest struct {
	AccountID   string `json:"account_id"`
	BottleType  string `json:"bottle_type"`
	BottleCount int    `json:"bottle_count"`
	Location    string `json:"location"`
}

// ExchangeResponse summarises a recorded bottle exchange.
type ExchangeResponse struct {
	TransactionID string    `json:"transaction_id"`
	BatchID       string    `json:"batch_id"`
	TicketsEarned int       `json:"tickets_earned"`
	PointsEarned  int       `json:"points_earned"`
	ExpiresAt     time.Time `json:"expires_at"`
	TicketBalance int       `json:"ticket_balance"`
	PointBalance  int       `json:"point_balance"`
}

// UsageRequest is the body of POST /api/ledger/use.
type UsageRequest struct {
	AccountID   string `json:"account_id"`
	TicketCount int    `json:"ticket_count"`
	Location    string `json:"location"`
}

// UsageResponse reports the balance after a ticket debit.
type UsageResponse struct {
	TransactionID string `json:"transaction_id"`
	TicketsUsed   int    `json:"tickets_used"`
	TicketBalance int    `json:"ticket_balance"`
}

// SweepResponse reports the outcome of a forfeiture sweep.
type SweepResponse struct {
	AccountID      string `json:"account_id"`
	TotalForfeited int    `json:"total_forfeited"`
	BatchesSwept   int    `json:"batches_swept"`
	TicketBalance  int    `json:"ticket_balance"`
}

// CreateAccountRequest is the body of POST /api/ledger/accounts.
type CreateAccountRequest struct {
	AccountID string `json:"account_id"`
	FullName  string `json:"full_name"`
}

// AccountResponse is the dashboard view of one passenger account.
type AccountResponse struct {
	Account       *Account       `json:"account"`
	ActiveBatches []*TicketBatch `json:"active_batches"`
}

// ScanRequest is the body of POST /api/ledger/scan: the raw content a
// field officer's scanner read off a passenger's pass QR.
type ScanRequest struct {
	QRContent string `json:"qr_content"`
}
