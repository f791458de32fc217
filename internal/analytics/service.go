package analytics

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"eco-tiket/internal/models"
)

// Service handles analytics queries over the transaction log. Everything
// here is read-only; the ledger engine owns all writes.
type Service struct {
	db *bun.DB
}

// NewService creates a new analytics service
func NewService(db *bun.DB) *Service {
	return &Service{db: db}
}

// LedgerSummary is the headline figures for the whole system.
type LedgerSummary struct {
	TotalTicketsIssued    int `json:"total_tickets_issued"`
	TotalTicketsUsed      int `json:"total_tickets_used"`
	TotalTicketsForfeited int `json:"total_tickets_forfeited"`
	TotalBottlesCollected int `json:"total_bottles_collected"`
	TotalPointsAwarded    int `json:"total_points_awarded"`
	TotalExchanges        int `json:"total_exchanges"`
	TotalReversals        int `json:"total_reversals"`
}

// DailyActivityMetrics contains ledger activity for a single day.
type DailyActivityMetrics struct {
	Date             string `json:"date"`
	TicketsIssued    int    `json:"tickets_issued"`
	TicketsUsed      int    `json:"tickets_used"`
	TicketsForfeited int    `json:"tickets_forfeited"`
	Exchanges        int    `json:"exchanges"`
}

// BottleTypeMetrics contains exchange totals per bottle type.
type BottleTypeMetrics struct {
	BottleType    string `json:"bottle_type"`
	Exchanges     int    `json:"exchanges"`
	Bottles       int    `json:"bottles"`
	TicketsIssued int    `json:"tickets_issued"`
}

// LocationMetrics contains exchange totals per collection point.
type LocationMetrics struct {
	Location      string `json:"location"`
	Exchanges     int    `json:"exchanges"`
	Bottles       int    `json:"bottles"`
	TicketsIssued int    `json:"tickets_issued"`
}

// GetSummary returns system-wide totals across the whole transaction log.
// Reversed entries are excluded so a reversed exchange does not inflate
// the issued figures.
func (s *Service) GetSummary(ctx context.Context) (*LedgerSummary, error) {
	type summaryRaw struct {
		TicketsIssued    int `bun:"tickets_issued"`
		TicketsUsed      int `bun:"tickets_used"`
		TicketsForfeited int `bun:"tickets_forfeited"`
		BottlesCollected int `bun:"bottles_collected"`
		PointsAwarded    int `bun:"points_awarded"`
		Exchanges        int `bun:"exchanges"`
		Reversals        int `bun:"reversals"`
	}

	var row summaryRaw
	rawSQL := `
		SELECT
			COALESCE(SUM(CASE WHEN type = ? AND status = ? THEN ticket_delta ELSE 0 END), 0) AS tickets_issued,
			COALESCE(SUM(CASE WHEN type = ? AND status = ? THEN -ticket_delta ELSE 0 END), 0) AS tickets_used,
			COALESCE(SUM(CASE WHEN type = ? THEN -ticket_delta ELSE 0 END), 0) AS tickets_forfeited,
			COALESCE(SUM(CASE WHEN type = ? AND status = ? THEN bottle_count ELSE 0 END), 0) AS bottles_collected,
			COALESCE(SUM(CASE WHEN point_delta > 0 AND status = ? THEN point_delta ELSE 0 END), 0) AS points_awarded,
			COALESCE(SUM(CASE WHEN type = ? THEN 1 ELSE 0 END), 0) AS exchanges,
			COALESCE(SUM(CASE WHEN type = ? THEN 1 ELSE 0 END), 0) AS reversals
		FROM ledger_transactions
	`
	err := s.db.NewRaw(rawSQL,
		models.TxBottleExchange, models.TxStatusRecorded,
		models.TxTicketUsage, models.TxStatusRecorded,
		models.TxTicketExpiration,
		models.TxBottleExchange, models.TxStatusRecorded,
		models.TxStatusRecorded,
		models.TxBottleExchange,
		models.TxReversal,
	).Scan(ctx, &row)
	if err != nil {
		return nil, err
	}

	return &LedgerSummary{
		TotalTicketsIssued:    row.TicketsIssued,
		TotalTicketsUsed:      row.TicketsUsed,
		TotalTicketsForfeited: row.TicketsForfeited,
		TotalBottlesCollected: row.BottlesCollected,
		TotalPointsAwarded:    row.PointsAwarded,
		TotalExchanges:        row.Exchanges,
		TotalReversals:        row.Reversals,
	}, nil
}

// GetDailyActivity returns per-day ledger activity for the given window.
// A zero `from` defaults to 30 days back; a zero `to` defaults to now.
func (s *Service) GetDailyActivity(ctx context.Context, from, to time.Time) ([]DailyActivityMetrics, error) {
	if to.IsZero() {
		to = time.Now()
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -30)
	}

	// DATE() comes back as text on sqlite and as a DATE on MySQL; a
	// string scan covers both.
	type dailyRaw struct {
		ActivityDate     string `bun:"activity_date"`
		TicketsIssued    int    `bun:"tickets_issued"`
		TicketsUsed      int    `bun:"tickets_used"`
		TicketsForfeited int    `bun:"tickets_forfeited"`
		Exchanges        int    `bun:"exchanges"`
	}

	var rows []dailyRaw
	rawSQL := `
		SELECT
			DATE(created_at) AS activity_date,
			COALESCE(SUM(CASE WHEN type = ? THEN ticket_delta ELSE 0 END), 0) AS tickets_issued,
			COALESCE(SUM(CASE WHEN type = ? THEN -ticket_delta ELSE 0 END), 0) AS tickets_used,
			COALESCE(SUM(CASE WHEN type = ? THEN -ticket_delta ELSE 0 END), 0) AS tickets_forfeited,
			COALESCE(SUM(CASE WHEN type = ? THEN 1 ELSE 0 END), 0) AS exchanges
		FROM ledger_transactions
		WHERE created_at >= ? AND created_at < ?
		GROUP BY
			DATE(created_at)
		ORDER BY
			activity_date
	`
	err := s.db.NewRaw(rawSQL,
		models.TxBottleExchange,
		models.TxTicketUsage,
		models.TxTicketExpiration,
		models.TxBottleExchange,
		from, to,
	).Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}

	result := make([]DailyActivityMetrics, len(rows))
	for i, row := range rows {
		result[i] = DailyActivityMetrics{
			Date:             row.ActivityDate,
			TicketsIssued:    row.TicketsIssued,
			TicketsUsed:      row.TicketsUsed,
			TicketsForfeited: row.TicketsForfeited,
			Exchanges:        row.Exchanges,
		}
	}
	return result, nil
}

// GetBottleTypeBreakdown returns exchange totals grouped by bottle type.
func (s *Service) GetBottleTypeBreakdown(ctx context.Context) ([]BottleTypeMetrics, error) {
	var rows []BottleTypeMetrics
	err := s.db.NewSelect().
		Model((*models.Transaction)(nil)).
		ColumnExpr("bottle_type AS bottle_type").
		ColumnExpr("COUNT(*) AS exchanges").
		ColumnExpr("COALESCE(SUM(bottle_count), 0) AS bottles").
		ColumnExpr("COALESCE(SUM(ticket_delta), 0) AS tickets_issued").
		Where("type = ?", models.TxBottleExchange).
		Where("status = ?", models.TxStatusRecorded).
		GroupExpr("bottle_type").
		OrderExpr("bottle_type").
		Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// GetLocationBreakdown returns exchange totals grouped by collection point.
// Entries recorded without a location are grouped under an empty string.
func (s *Service) GetLocationBreakdown(ctx context.Context, limit int) ([]LocationMetrics, error) {
	q := s.db.NewSelect().
		Model((*models.Transaction)(nil)).
		ColumnExpr("COALESCE(location, '') AS location").
		ColumnExpr("COUNT(*) AS exchanges").
		ColumnExpr("COALESCE(SUM(bottle_count), 0) AS bottles").
		ColumnExpr("COALESCE(SUM(ticket_delta), 0) AS tickets_issued").
		Where("type = ?", models.TxBottleExchange).
		Where("status = ?", models.TxStatusRecorded).
		GroupExpr("COALESCE(location, '')").
		OrderExpr("bottles DESC")

	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []LocationMetrics
	if err := q.Scan(ctx, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}
