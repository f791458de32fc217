package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/go-sql-driver/mysql"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"

	"eco-tiket/internal/config"
	"eco-tiket/internal/ledger"
	ledgerdb "eco-tiket/internal/ledger/db"
	lockredis "eco-tiket/internal/ledger/redis"
	"eco-tiket/internal/logger"
	"eco-tiket/internal/sweeper"
)

// Standalone forfeiture sweeper. Runs the same sweep loop as the main
// service; deploy it separately when the API instances should not carry
// the background work. Locks are shared through Redis, so running both
// is safe.
func verifyConnections(cfg *config.Config) *bun.DB {
	sqldb, err := sql.Open("mysql", cfg.Database.DSN)
	if err != nil {
		log.Fatalf("[Database] Failed to open MySQL: %v", err)
	}
	if err := sqldb.Ping(); err != nil {
		log.Fatalf("[Database] Failed to connect to MySQL: %v", err)
	}
	log.Println("[Database] MySQL connection successful")

	return bun.NewDB(sqldb, mysqldialect.New())
}

func main() {
	_ = godotenv.Load() // Loads .env file if present

	cfg := config.Load()
	appLog := logger.NewLogger()
	defer appLog.Close()

	bunDB := verifyConnections(cfg)
	defer bunDB.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("[Redis] Connection error: %v", err)
	}
	defer redisClient.Close()

	store := &ledgerdb.DB{Bun: bunDB}
	locks := lockredis.NewLocker(redisClient, cfg.Ledger.LockTTL, appLog)

	service := ledger.NewService(store, locks, cfg.Ledger)
	service.Logger = appLog

	sw := sweeper.New(service, store, appLog, cfg.Ledger.SweepInterval)
	sw.Start()

	log.Printf("🚀 Sweep service running, interval %v", cfg.Ledger.SweepInterval)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	sw.Stop()
	log.Println("✅ Sweep service shutdown complete")
}
