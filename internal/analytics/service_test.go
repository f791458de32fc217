package analytics_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"eco-tiket/internal/analytics"
	"eco-tiket/internal/models"
)

func setupAnalytics(t *testing.T) (*analytics.Service, *bun.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { sqldb.Close() })

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	require.NoError(t, bunDB.ResetModel(context.Background(), (*models.Transaction)(nil)))

	return analytics.NewService(bunDB), bunDB
}

func seedTransactions(t *testing.T, bunDB *bun.DB) {
	t.Helper()

	day1 := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

	txs := []*models.Transaction{
		{ID: "trx_1", AccountID: "acc_a", ActorID: "acc_p", Type: models.TxBottleExchange,
			TicketDelta: 3, BottleType: "kecil", BottleCount: 30, Location: "Halte Harmoni",
			Status: models.TxStatusRecorded, CreatedAt: day1},
		{ID: "trx_2", AccountID: "acc_a", ActorID: "acc_p", Type: models.TxBottleExchange,
			TicketDelta: 8, PointDelta: 1, BottleType: "besar", BottleCount: 40, Location: "Halte Blok M",
			Status: models.TxStatusRecorded, CreatedAt: day1},
		{ID: "trx_3", AccountID: "acc_b", ActorID: "acc_b", Type: models.TxTicketUsage,
			TicketDelta: -2, Status: models.TxStatusRecorded, CreatedAt: day2},
		{ID: "trx_4", AccountID: "acc_b", ActorID: models.SystemActorID, Type: models.TxTicketExpiration,
			TicketDelta: -4, Status: models.TxStatusRecorded, CreatedAt: day2},
		// A reversed exchange and its marker must not count as issuance.
		{ID: "trx_5", AccountID: "acc_c", ActorID: "acc_p", Type: models.TxBottleExchange,
			TicketDelta: 5, BottleType: "besar", BottleCount: 25, Location: "Halte Blok M",
			Status: models.TxStatusReversed, CreatedAt: day2},
		{ID: "trx_6", AccountID: "acc_c", ActorID: "acc_admin", Type: models.TxReversal,
			TicketDelta: -5, ReversesID: "trx_5", Status: models.TxStatusRecorded, CreatedAt: day2},
	}
	_, err := bunDB.NewInsert().Model(&txs).Exec(context.Background())
	require.NoError(t, err)
}

func TestGetSummary(t *testing.T) {
	svc, bunDB := setupAnalytics(t)
	seedTransactions(t, bunDB)

	summary, err := svc.GetSummary(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 11, summary.TotalTicketsIssued, "reversed exchange excluded")
	assert.Equal(t, 2, summary.TotalTicketsUsed)
	assert.Equal(t, 4, summary.TotalTicketsForfeited)
	assert.Equal(t, 70, summary.TotalBottlesCollected)
	assert.Equal(t, 1, summary.TotalPointsAwarded)
	assert.Equal(t, 3, summary.TotalExchanges)
	assert.Equal(t, 1, summary.TotalReversals)
}

func TestGetDailyActivity(t *testing.T) {
	svc, bunDB := setupAnalytics(t)
	seedTransactions(t, bunDB)

	from := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 4, 3, 0, 0, 0, 0, time.UTC)

	daily, err := svc.GetDailyActivity(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, daily, 2)

	assert.Equal(t, "2026-04-01", daily[0].Date)
	assert.Equal(t, 11, daily[0].TicketsIssued)
	assert.Equal(t, 2, daily[0].Exchanges)

	assert.Equal(t, "2026-04-02", daily[1].Date)
	assert.Equal(t, 2, daily[1].TicketsUsed)
	assert.Equal(t, 4, daily[1].TicketsForfeited)
}

func TestGetBottleTypeBreakdown(t *testing.T) {
	svc, bunDB := setupAnalytics(t)
	seedTransactions(t, bunDB)

	breakdown, err := svc.GetBottleTypeBreakdown(context.Background())
	require.NoError(t, err)
	require.Len(t, breakdown, 2) // besar and kecil; the reversed besar entry is excluded

	byType := map[string]analytics.BottleTypeMetrics{}
	for _, m := range breakdown {
		byType[m.BottleType] = m
	}
	assert.Equal(t, 40, byType["besar"].Bottles)
	assert.Equal(t, 8, byType["besar"].TicketsIssued)
	assert.Equal(t, 30, byType["kecil"].Bottles)
	assert.Equal(t, 1, byType["kecil"].Exchanges)
}

func TestGetLocationBreakdown(t *testing.T) {
	svc, bunDB := setupAnalytics(t)
	seedTransactions(t, bunDB)

	breakdown, err := svc.GetLocationBreakdown(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, breakdown, 2)

	// Ordered by bottles descending.
	assert.Equal(t, "Halte Blok M", breakdown[0].Location)
	assert.Equal(t, 40, breakdown[0].Bottles)
	assert.Equal(t, "Halte Harmoni", breakdown[1].Location)

	limited, err := svc.GetLocationBreakdown(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
