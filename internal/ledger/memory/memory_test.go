package memory_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eco-tiket/internal/ledger"
	"eco-tiket/internal/ledger/memory"
	"eco-tiket/internal/models"
)

func seedAccount(t *testing.T, store *memory.Store, id string) {
	t.Helper()
	err := store.CreateAccount(context.Background(), &models.Account{
		ID:       id,
		FullName: "Snapshot Tester",
	})
	require.NoError(t, err)
}

func TestInAccountTxCommitsOnSuccess(t *testing.T) {
	store := memory.NewStore("")
	seedAccount(t, store, "acc_commit")

	now := time.Now().Round(time.Second)
	err := store.InAccountTx(context.Background(), "acc_commit", func(tx ledger.AccountTx) error {
		if err := tx.InsertBatch(&models.TicketBatch{
			ID: "bat_1", AccountID: "acc_commit", Earned: 5, Remaining: 5,
			IssuedAt: now, ExpiresAt: now.Add(30 * 24 * time.Hour),
		}); err != nil {
			return err
		}
		acct := tx.Account()
		acct.TicketBalance = 5
		if err := tx.UpdateAccount(acct); err != nil {
			return err
		}
		return tx.AppendTransaction(&models.Transaction{
			ID: "trx_1", AccountID: "acc_commit", Type: models.TxBottleExchange,
			TicketDelta: 5, BatchID: "bat_1", Status: models.TxStatusRecorded, CreatedAt: now,
		})
	})
	require.NoError(t, err)

	acct, err := store.GetAccount(context.Background(), "acc_commit")
	require.NoError(t, err)
	assert.Equal(t, 5, acct.TicketBalance)

	batches, err := store.ActiveBatches(context.Background(), "acc_commit")
	require.NoError(t, err)
	require.Len(t, batches, 1)

	tx, err := store.GetTransaction(context.Background(), "trx_1")
	require.NoError(t, err)
	assert.Equal(t, models.TxBottleExchange, tx.Type)
}

func TestInAccountTxRollsBackOnError(t *testing.T) {
	store := memory.NewStore("")
	seedAccount(t, store, "acc_rollback")

	boom := errors.New("boom")
	err := store.InAccountTx(context.Background(), "acc_rollback", func(tx ledger.AccountTx) error {
		now := time.Now()
		_ = tx.InsertBatch(&models.TicketBatch{
			ID: "bat_gone", AccountID: "acc_rollback", Earned: 3, Remaining: 3,
			IssuedAt: now, ExpiresAt: now.Add(time.Hour),
		})
		acct := tx.Account()
		acct.TicketBalance = 99
		_ = tx.UpdateAccount(acct)
		_ = tx.AppendTransaction(&models.Transaction{ID: "trx_gone", AccountID: "acc_rollback"})
		return boom
	})
	require.ErrorIs(t, err, boom)

	acct, err := store.GetAccount(context.Background(), "acc_rollback")
	require.NoError(t, err)
	assert.Equal(t, 0, acct.TicketBalance)

	batches, err := store.ActiveBatches(context.Background(), "acc_rollback")
	require.NoError(t, err)
	assert.Empty(t, batches)

	_, err = store.GetTransaction(context.Background(), "trx_gone")
	assert.ErrorIs(t, err, ledger.ErrTransactionNotFound)
}

func TestSnapshotLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")

	store := memory.NewStore(path)
	require.NoError(t, store.Open(), "opening against a missing snapshot is fine")

	seedAccount(t, store, "acc_snap")
	now := time.Now().Round(time.Second).UTC()
	err := store.InAccountTx(context.Background(), "acc_snap", func(tx ledger.AccountTx) error {
		_ = tx.InsertBatch(&models.TicketBatch{
			ID: "bat_snap", AccountID: "acc_snap", Earned: 2, Remaining: 2,
			IssuedAt: now, ExpiresAt: now.Add(30 * 24 * time.Hour),
		})
		acct := tx.Account()
		acct.TicketBalance = 2
		_ = tx.UpdateAccount(acct)
		return tx.AppendTransaction(&models.Transaction{
			ID: "trx_snap", AccountID: "acc_snap", Type: models.TxBottleExchange,
			TicketDelta: 2, Status: models.TxStatusRecorded, CreatedAt: now,
		})
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// A fresh store over the same path sees the flushed state.
	reopened := memory.NewStore(path)
	require.NoError(t, reopened.Open())

	acct, err := reopened.GetAccount(context.Background(), "acc_snap")
	require.NoError(t, err)
	assert.Equal(t, 2, acct.TicketBalance)

	batches, err := reopened.ActiveBatches(context.Background(), "acc_snap")
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, "bat_snap", batches[0].ID)

	tx, err := reopened.GetTransaction(context.Background(), "trx_snap")
	require.NoError(t, err)
	assert.Equal(t, 2, tx.TicketDelta)
}

func TestAccountsWithExpiredBatches(t *testing.T) {
	store := memory.NewStore("")
	now := time.Now()

	for _, id := range []string{"acc_a", "acc_b", "acc_c"} {
		seedAccount(t, store, id)
	}

	insert := func(accountID string, expiresAt time.Time, remaining int, forfeited bool) {
		err := store.InAccountTx(context.Background(), accountID, func(tx ledger.AccountTx) error {
			return tx.InsertBatch(&models.TicketBatch{
				ID: accountID + "_batch", AccountID: accountID,
				Earned: 5, Remaining: remaining, Forfeited: forfeited,
				IssuedAt: now.Add(-40 * 24 * time.Hour), ExpiresAt: expiresAt,
			})
		})
		require.NoError(t, err)
	}

	insert("acc_a", now.Add(-time.Hour), 5, false)    // expired, sweepable
	insert("acc_b", now.Add(time.Hour), 5, false)     // still valid
	insert("acc_c", now.Add(-time.Hour), 0, true)     // already forfeited

	ids, err := store.AccountsWithExpiredBatches(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, []string{"acc_a"}, ids)
}
