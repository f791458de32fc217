// Package db is the bun-backed ledger store. In production it runs on
// MySQL and serializes per-account operations with SELECT ... FOR UPDATE
// inside one transaction; the sqlite dialect (tests) skips the row lock
// and relies on the engine's in-process account locker.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"

	"eco-tiket/internal/ledger"
	"eco-tiket/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// ---------------- ACCOUNTS ----------------

func (d *DB) CreateAccount(ctx context.Context, acct *models.Account) error {
	exists, err := d.Bun.NewSelect().
		Model((*models.Account)(nil)).
		Where("id = ?", acct.ID).
		Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ledger.ErrAccountExists, acct.ID)
	}
	_, err = d.Bun.NewInsert().Model(acct).Exec(ctx)
	return err
}

func (d *DB) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	var acct models.Account
	err := d.Bun.NewSelect().
		Model(&acct).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ledger.ErrAccountNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

func (d *DB) DeleteAccount(ctx context.Context, id string) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		exists, err := tx.NewSelect().
			Model((*models.Account)(nil)).
			Where("id = ?", id).
			Exists(ctx)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: %s", ledger.ErrAccountNotFound, id)
		}

		referenced, err := tx.NewSelect().
			Model((*models.Transaction)(nil)).
			Where("account_id = ?", id).
			Exists(ctx)
		if err != nil {
			return err
		}
		if referenced {
			return fmt.Errorf("%w: %s", ledger.ErrAccountHasHistory, id)
		}

		if _, err := tx.NewDelete().
			Model((*models.TicketBatch)(nil)).
			Where("account_id = ?", id).
			Exec(ctx); err != nil {
			return err
		}
		_, err = tx.NewDelete().
			Model((*models.Account)(nil)).
			Where("id = ?", id).
			Exec(ctx)
		return err
	})
}

// ---------------- BATCHES & LOG ----------------

func (d *DB) ActiveBatches(ctx context.Context, accountID string) ([]*models.TicketBatch, error) {
	if _, err := d.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	var batches []*models.TicketBatch
	err := d.Bun.NewSelect().
		Model(&batches).
		Where("account_id = ?", accountID).
		Where("forfeited = ?", false).
		Where("remaining > 0").
		Order("expires_at ASC", "issued_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return batches, nil
}

func (d *DB) TransactionsByAccount(ctx context.Context, accountID string, limit int) ([]*models.Transaction, error) {
	var txs []*models.Transaction
	q := d.Bun.NewSelect().
		Model(&txs).
		Where("account_id = ?", accountID).
		Order("created_at DESC", "id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return txs, nil
}

func (d *DB) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	var t models.Transaction
	err := d.Bun.NewSelect().
		Model(&t).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ledger.ErrTransactionNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (d *DB) AccountsWithExpiredBatches(ctx context.Context, asOf time.Time) ([]string, error) {
	var accountIDs []string
	err := d.Bun.NewSelect().
		ColumnExpr("DISTINCT account_id").
		Table("ticket_batches").
		Where("forfeited = ?", false).
		Where("remaining > 0").
		Where("expires_at < ?", asOf).
		Scan(ctx, &accountIDs)
	if err != nil {
		return nil, err
	}
	return accountIDs, nil
}

// ---------------- ACCOUNT TRANSACTION ----------------

func (d *DB) InAccountTx(ctx context.Context, accountID string, fn func(tx ledger.AccountTx) error) error {
	lockRows := d.Bun.Dialect().Name() == dialect.MySQL

	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var acct models.Account
		q := tx.NewSelect().
			Model(&acct).
			Where("id = ?", accountID).
			Limit(1)
		if lockRows {
			q = q.For("UPDATE")
		}
		err := q.Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", ledger.ErrAccountNotFound, accountID)
		}
		if err != nil {
			return err
		}

		var batches []*models.TicketBatch
		bq := tx.NewSelect().
			Model(&batches).
			Where("account_id = ?", accountID).
			Order("expires_at ASC", "issued_at ASC")
		if lockRows {
			bq = bq.For("UPDATE")
		}
		if err := bq.Scan(ctx); err != nil {
			return err
		}

		return fn(&accountTx{ctx: ctx, tx: tx, acct: &acct, batches: batches})
	})
}

type accountTx struct {
	ctx     context.Context
	tx      bun.Tx
	acct    *models.Account
	batches []*models.TicketBatch
}

func (a *accountTx) Account() *models.Account { return a.acct }

func (a *accountTx) Batches() []*models.TicketBatch { return a.batches }

func (a *accountTx) UpdateAccount(acct *models.Account) error {
	_, err := a.tx.NewUpdate().
		Model(acct).
		Column("ticket_balance", "point_balance", "updated_at").
		Where("id = ?", acct.ID).
		Exec(a.ctx)
	return err
}

func (a *accountTx) InsertBatch(b *models.TicketBatch) error {
	if _, err := a.tx.NewInsert().Model(b).Exec(a.ctx); err != nil {
		return err
	}
	a.batches = append(a.batches, b)
	return nil
}

func (a *accountTx) UpdateBatch(b *models.TicketBatch) error {
	_, err := a.tx.NewUpdate().
		Model(b).
		Column("remaining", "forfeited").
		Where("id = ?", b.ID).
		Exec(a.ctx)
	return err
}

func (a *accountTx) DeleteBatch(id string) error {
	if _, err := a.tx.NewDelete().
		Model((*models.TicketBatch)(nil)).
		Where("id = ?", id).
		Exec(a.ctx); err != nil {
		return err
	}
	for i, b := range a.batches {
		if b.ID == id {
			a.batches = append(a.batches[:i], a.batches[i+1:]...)
			break
		}
	}
	return nil
}

func (a *accountTx) AppendTransaction(t *models.Transaction) error {
	_, err := a.tx.NewInsert().Model(t).Exec(a.ctx)
	return err
}

func (a *accountTx) GetTransaction(id string) (*models.Transaction, error) {
	var t models.Transaction
	err := a.tx.NewSelect().
		Model(&t).
		Where("id = ?", id).
		Limit(1).
		Scan(a.ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ledger.ErrTransactionNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (a *accountTx) MarkTransactionReversed(id string) error {
	_, err := a.tx.NewUpdate().
		Model((*models.Transaction)(nil)).
		Set("status = ?", models.TxStatusReversed).
		Where("id = ?", id).
		Exec(a.ctx)
	return err
}
