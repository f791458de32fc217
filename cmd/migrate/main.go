package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"

	"eco-tiket/internal/models"
	"eco-tiket/internal/utils"
)

// Development helper: drops and recreates the ledger schema from the bun
// models, then seeds a few sample accounts with active and already
// expired batches. Production schema changes go through the SQL
// migrations in ./migrations instead.
func main() {
	_ = godotenv.Load()

	ctx := context.Background()

	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "ecotiket:ecotiket@tcp(localhost:3306)/ecotiket?parseTime=true"
	}

	sqldb, err := sql.Open("mysql", dsn)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer sqldb.Close()

	if err := sqldb.PingContext(ctx); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	db := bun.NewDB(sqldb, mysqldialect.New())

	log.Println("Dropping tables...")
	_ = dropTables(ctx, db)

	log.Println("Creating tables...")
	_ = createTables(ctx, db)

	log.Println("Seeding sample data...")
	_ = seedData(ctx, db)

	log.Println("✅ Done.")
}

func dropTables(ctx context.Context, db *bun.DB) error {
	tables := []interface{}{(*models.Transaction)(nil), (*models.TicketBatch)(nil), (*models.Account)(nil)}
	for _, m := range tables {
		_, _ = db.NewDropTable().Model(m).IfExists().Exec(ctx)
	}
	return nil
}

func createTables(ctx context.Context, db *bun.DB) error {
	tables := []interface{}{(*models.Account)(nil), (*models.TicketBatch)(nil), (*models.Transaction)(nil)}
	for _, m := range tables {
		_, err := db.NewCreateTable().Model(m).IfNotExists().Exec(ctx)
		if err != nil {
			log.Fatalf("❌ Failed to create table for %T: %v", m, err)
		}
	}
	return nil
}

func seedData(ctx context.Context, db *bun.DB) error {
	now := time.Now()

	accounts := []*models.Account{
		{ID: "acc_budi", FullName: "Budi Santoso", TicketBalance: 5, PointBalance: 1, CreatedAt: now, UpdatedAt: now},
		{ID: "acc_sari", FullName: "Sari Wulandari", TicketBalance: 12, PointBalance: 1, CreatedAt: now, UpdatedAt: now},
		{ID: "acc_agus", FullName: "Agus Pratama", TicketBalance: 0, PointBalance: 0, CreatedAt: now, UpdatedAt: now},
	}
	if _, err := db.NewInsert().Model(&accounts).Exec(ctx); err != nil {
		log.Fatalf("❌ Failed to seed accounts: %v", err)
	}

	batches := []*models.TicketBatch{
		// Budi: one active batch, one already expired (sweeper fodder).
		{ID: utils.GenerateBatchID(), AccountID: "acc_budi", Earned: 3, Remaining: 3, IssuedAt: now.AddDate(0, 0, -5), ExpiresAt: now.AddDate(0, 0, 25)},
		{ID: utils.GenerateBatchID(), AccountID: "acc_budi", Earned: 2, Remaining: 2, IssuedAt: now.AddDate(0, 0, -40), ExpiresAt: now.AddDate(0, 0, -10)},
		// Sari: two active batches with different expiries.
		{ID: utils.GenerateBatchID(), AccountID: "acc_sari", Earned: 8, Remaining: 8, IssuedAt: now.AddDate(0, 0, -20), ExpiresAt: now.AddDate(0, 0, 10)},
		{ID: utils.GenerateBatchID(), AccountID: "acc_sari", Earned: 4, Remaining: 4, IssuedAt: now.AddDate(0, 0, -2), ExpiresAt: now.AddDate(0, 0, 28)},
	}
	if _, err := db.NewInsert().Model(&batches).Exec(ctx); err != nil {
		log.Fatalf("❌ Failed to seed batches: %v", err)
	}

	txs := []*models.Transaction{}
	for _, b := range batches {
		txs = append(txs, &models.Transaction{
			ID:          utils.GenerateTransactionID(),
			AccountID:   b.AccountID,
			ActorID:     "acc_petugas_demo",
			Type:        models.TxBottleExchange,
			TicketDelta: b.Earned,
			BatchID:     b.ID,
			BottleType:  string(models.BottleKecil),
			BottleCount: b.Earned * 10,
			Location:    "Halte Harmoni",
			Status:      models.TxStatusRecorded,
			CreatedAt:   b.IssuedAt,
		})
	}
	if _, err := db.NewInsert().Model(&txs).Exec(ctx); err != nil {
		log.Fatalf("❌ Failed to seed transactions: %v", err)
	}

	for _, a := range accounts {
		fmt.Printf("Seeded account %s (%s)\n", a.ID, a.FullName)
	}
	return nil
}
