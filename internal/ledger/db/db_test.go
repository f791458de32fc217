package db_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"eco-tiket/internal/config"
	"eco-tiket/internal/ledger"
	ledgerdb "eco-tiket/internal/ledger/db"
	"eco-tiket/internal/models"
)

func setupTestDB(t *testing.T) *ledgerdb.DB {
	t.Helper()

	// A named in-memory SQLite database, isolated per test.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { sqldb.Close() })

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	ctx := context.Background()
	require.NoError(t, bunDB.ResetModel(ctx, (*models.Account)(nil)))
	require.NoError(t, bunDB.ResetModel(ctx, (*models.TicketBatch)(nil)))
	require.NoError(t, bunDB.ResetModel(ctx, (*models.Transaction)(nil)))

	return &ledgerdb.DB{Bun: bunDB}
}

func TestAccountCRUD(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	now := time.Now().Round(time.Second)
	acct := &models.Account{ID: "acc_db", FullName: "DB Tester", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, store.CreateAccount(ctx, acct))

	err := store.CreateAccount(ctx, acct)
	assert.True(t, errors.Is(err, ledger.ErrAccountExists))

	got, err := store.GetAccount(ctx, "acc_db")
	require.NoError(t, err)
	assert.Equal(t, "DB Tester", got.FullName)
	assert.Equal(t, 0, got.TicketBalance)

	_, err = store.GetAccount(ctx, "acc_missing")
	assert.True(t, errors.Is(err, ledger.ErrAccountNotFound))

	require.NoError(t, store.DeleteAccount(ctx, "acc_db"))
	_, err = store.GetAccount(ctx, "acc_db")
	assert.True(t, errors.Is(err, ledger.ErrAccountNotFound))
}

func TestDeleteAccountWithHistoryFails(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	now := time.Now().Round(time.Second)
	require.NoError(t, store.CreateAccount(ctx, &models.Account{ID: "acc_hist", FullName: "H", CreatedAt: now, UpdatedAt: now}))

	err := store.InAccountTx(ctx, "acc_hist", func(tx ledger.AccountTx) error {
		return tx.AppendTransaction(&models.Transaction{
			ID: "trx_hist", AccountID: "acc_hist", ActorID: "acc_petugas",
			Type: models.TxBottleExchange, TicketDelta: 1,
			Status: models.TxStatusRecorded, CreatedAt: now,
		})
	})
	require.NoError(t, err)

	err = store.DeleteAccount(ctx, "acc_hist")
	assert.True(t, errors.Is(err, ledger.ErrAccountHasHistory))
}

func TestInAccountTxRollsBackOnError(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	now := time.Now().Round(time.Second)
	require.NoError(t, store.CreateAccount(ctx, &models.Account{ID: "acc_rb", FullName: "R", CreatedAt: now, UpdatedAt: now}))

	boom := errors.New("boom")
	err := store.InAccountTx(ctx, "acc_rb", func(tx ledger.AccountTx) error {
		if err := tx.InsertBatch(&models.TicketBatch{
			ID: "bat_rb", AccountID: "acc_rb", Earned: 3, Remaining: 3,
			IssuedAt: now, ExpiresAt: now.Add(time.Hour),
		}); err != nil {
			return err
		}
		acct := tx.Account()
		acct.TicketBalance = 3
		if err := tx.UpdateAccount(acct); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	acct, err := store.GetAccount(ctx, "acc_rb")
	require.NoError(t, err)
	assert.Equal(t, 0, acct.TicketBalance)

	batches, err := store.ActiveBatches(ctx, "acc_rb")
	require.NoError(t, err)
	assert.Empty(t, batches)
}

func TestBatchOrderingByExpiry(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	now := time.Now().Round(time.Second)
	require.NoError(t, store.CreateAccount(ctx, &models.Account{ID: "acc_ord", FullName: "O", CreatedAt: now, UpdatedAt: now}))

	err := store.InAccountTx(ctx, "acc_ord", func(tx ledger.AccountTx) error {
		// Inserted newest-expiry first on purpose.
		batches := []*models.TicketBatch{
			{ID: "bat_late", AccountID: "acc_ord", Earned: 2, Remaining: 2, IssuedAt: now, ExpiresAt: now.Add(72 * time.Hour)},
			{ID: "bat_early", AccountID: "acc_ord", Earned: 2, Remaining: 2, IssuedAt: now, ExpiresAt: now.Add(24 * time.Hour)},
			{ID: "bat_mid", AccountID: "acc_ord", Earned: 2, Remaining: 2, IssuedAt: now, ExpiresAt: now.Add(48 * time.Hour)},
		}
		for _, b := range batches {
			if err := tx.InsertBatch(b); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	// Reads and the transaction snapshot both come back ascending.
	batches, err := store.ActiveBatches(ctx, "acc_ord")
	require.NoError(t, err)
	require.Len(t, batches, 3)
	assert.Equal(t, "bat_early", batches[0].ID)
	assert.Equal(t, "bat_mid", batches[1].ID)
	assert.Equal(t, "bat_late", batches[2].ID)

	err = store.InAccountTx(ctx, "acc_ord", func(tx ledger.AccountTx) error {
		inTx := tx.Batches()
		require.Len(t, inTx, 3)
		assert.Equal(t, "bat_early", inTx[0].ID)
		return nil
	})
	require.NoError(t, err)
}

func TestAccountsWithExpiredBatches(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	now := time.Now().Round(time.Second)
	for _, id := range []string{"acc_x", "acc_y"} {
		require.NoError(t, store.CreateAccount(ctx, &models.Account{ID: id, FullName: id, CreatedAt: now, UpdatedAt: now}))
	}

	err := store.InAccountTx(ctx, "acc_x", func(tx ledger.AccountTx) error {
		return tx.InsertBatch(&models.TicketBatch{
			ID: "bat_x", AccountID: "acc_x", Earned: 2, Remaining: 2,
			IssuedAt: now.Add(-48 * time.Hour), ExpiresAt: now.Add(-time.Hour),
		})
	})
	require.NoError(t, err)

	err = store.InAccountTx(ctx, "acc_y", func(tx ledger.AccountTx) error {
		return tx.InsertBatch(&models.TicketBatch{
			ID: "bat_y", AccountID: "acc_y", Earned: 2, Remaining: 2,
			IssuedAt: now, ExpiresAt: now.Add(time.Hour),
		})
	})
	require.NoError(t, err)

	ids, err := store.AccountsWithExpiredBatches(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"acc_x"}, ids)
}

// The full engine running over the SQL store: exchange, usage, sweep and
// reversal against the same database.
func TestEngineOverSQLStore(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc := ledger.NewService(store, ledger.NewLocalLocker(), config.LedgerConfig{
		ValidityDays:   30,
		PointThreshold: 10,
	})
	svc.Now = func() time.Time { return now }

	petugas := ledger.Actor{ID: "acc_petugas", Role: ledger.RolePetugas}
	admin := ledger.Actor{ID: "acc_admin", Role: ledger.RoleAdmin}

	_, err := svc.CreateAccount(ctx, models.CreateAccountRequest{AccountID: "acc_sql", FullName: "SQL"})
	require.NoError(t, err)

	ex, err := svc.ExchangeBottles(ctx, petugas, models.ExchangeRequest{
		AccountID: "acc_sql", BottleType: "besar", BottleCount: 60,
	})
	require.NoError(t, err)
	assert.Equal(t, 12, ex.TicketsEarned)
	assert.Equal(t, 1, ex.PointsEarned)

	used, err := svc.UseTickets(ctx, petugas, models.UsageRequest{AccountID: "acc_sql", TicketCount: 5})
	require.NoError(t, err)
	assert.Equal(t, 7, used.TicketBalance)

	// Reversing the touched exchange must fail; reversing the usage works.
	_, err = svc.ReverseTransaction(ctx, admin, ex.TransactionID)
	assert.True(t, errors.Is(err, ledger.ErrBatchAlreadyTouched))

	_, err = svc.ReverseTransaction(ctx, admin, used.TransactionID)
	require.NoError(t, err)

	acct, err := store.GetAccount(ctx, "acc_sql")
	require.NoError(t, err)
	assert.Equal(t, 12, acct.TicketBalance)

	// Expire everything and sweep.
	now = now.Add(31 * 24 * time.Hour)
	swept, err := svc.SweepExpired(ctx, "acc_sql", now)
	require.NoError(t, err)
	assert.Equal(t, 1, swept.BatchesSwept)
	assert.Equal(t, 7, swept.TotalForfeited, "only the unconsumed remainder is forfeited")

	acct, err = store.GetAccount(ctx, "acc_sql")
	require.NoError(t, err)
	assert.Equal(t, 5, acct.TicketBalance)

	txs, err := store.TransactionsByAccount(ctx, "acc_sql", 0)
	require.NoError(t, err)
	assert.Len(t, txs, 4) // exchange, usage, reversal marker, expiration
}
