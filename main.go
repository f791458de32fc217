package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	_ "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"

	"eco-tiket/internal/analytics"
	analytics_api "eco-tiket/internal/analytics/api"
	"eco-tiket/internal/auth"
	"eco-tiket/internal/config"
	"eco-tiket/internal/database/migrations"
	"eco-tiket/internal/kafka"
	"eco-tiket/internal/ledger"
	ledgerdb "eco-tiket/internal/ledger/db"
	"eco-tiket/internal/ledger/ledger_api"
	"eco-tiket/internal/ledger/memory"
	"eco-tiket/internal/ledger/qr"
	lockredis "eco-tiket/internal/ledger/redis"
	"eco-tiket/internal/logger"
	"eco-tiket/internal/metrics"
	"eco-tiket/internal/sse"
	"eco-tiket/internal/sweeper"
)

// subscribeLockExpirations watches Redis keyspace notifications for
// account locks that hit their TTL. An expired lock means the holder
// died mid-operation; the store transaction already rolled back, so we
// only log it for the operators.
func subscribeLockExpirations(rdb *redis.Client, log *logger.Logger) {
	ctx := context.Background()

	val, err := rdb.ConfigGet(ctx, "notify-keyspace-events").Result()
	if err != nil {
		log.Error("REDIS", fmt.Sprintf("Failed to get keyspace config: %v", err))
	} else {
		log.Info("REDIS", fmt.Sprintf("Current keyspace notifications setting: %v", val))
	}

	pubsub := rdb.PSubscribe(ctx, "__keyevent@0__:expired")
	log.Info("REDIS", "Subscribed to Redis keyevent expired notifications")

	go func() {
		for msg := range pubsub.Channel() {
			if strings.HasPrefix(msg.Payload, "account_lock:") {
				accountID := strings.TrimPrefix(msg.Payload, "account_lock:")
				log.Warn("LOCK", fmt.Sprintf("Account lock expired without release for account: %s", accountID))
			}
		}
	}()
}

func verifyConnections(ctx context.Context, cfg *config.Config, log *logger.Logger) (*bun.DB, *redis.Client) {
	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to MySQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("mysql", cfg.Database.DSN)
		if err != nil {
			log.Error("DATABASE", fmt.Sprintf("Failed to open MySQL: %v", err))
			time.Sleep(2 * time.Second)
			continue
		}

		err = sqldb.Ping()
		if err == nil {
			break
		}

		log.Error("DATABASE", fmt.Sprintf("Failed to connect to MySQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}

	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to MySQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	log.Info("DATABASE", "✅ MySQL connection successful")
	bunDB := bun.NewDB(sqldb, mysqldialect.New())

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}

	if _, err := redisClient.ConfigSet(ctx, "notify-keyspace-events", "Ex").Result(); err != nil {
		log.Warn("REDIS", fmt.Sprintf("Failed to enable keyspace notifications: %v", err))
	} else {
		log.Info("REDIS", "Keyspace notifications enabled for expired events")
	}

	log.Info("DATABASE", fmt.Sprintf("✅ Redis connection successful to %s", cfg.Redis.Addr))
	return bunDB, redisClient
}

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting Eco-Tiket Ledger Service initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}

	cfg := config.Load()
	ctx := context.Background()

	var store ledger.Store
	var locks ledger.AccountLocker
	var bunDB *bun.DB
	var redisClient *redis.Client

	switch cfg.Store.Backend {
	case "memory":
		log.Info("STORE", "Using in-memory store backend")
		memStore := memory.NewStore(cfg.Store.SnapshotPath)
		if err := memStore.Open(); err != nil {
			log.Fatal("STORE", fmt.Sprintf("Failed to open snapshot: %v", err))
		}
		defer memStore.Close()
		store = memStore
		locks = ledger.NewLocalLocker()
	default:
		log.Info("APP", "Verifying database connections")
		bunDB, redisClient = verifyConnections(ctx, cfg, log)
		defer bunDB.Close()
		defer redisClient.Close()

		runner := migrations.NewRunner(bunDB, migrations.DefaultOptions())
		if err := runner.MigrateUp(); err != nil {
			log.Fatal("DATABASE", fmt.Sprintf("Migrations failed: %v", err))
		}
		if version, _, err := runner.Version(); err == nil {
			log.Info("DATABASE", fmt.Sprintf("Schema version: %d", version))
		}

		store = &ledgerdb.DB{Bun: bunDB}
		locks = lockredis.NewLocker(redisClient, cfg.Ledger.LockTTL, log)

		log.Info("REDIS", "Starting account lock expiry subscription")
		subscribeLockExpirations(redisClient, log)
	}

	service := ledger.NewService(store, locks, cfg.Ledger)
	service.Logger = log

	events := sse.NewLedgerEventEmitter()
	service.Events = events

	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics)
		defer producer.Close()
		log.Info("KAFKA", "Kafka producer initialized successfully")

		requiredTopics := []string{
			cfg.Kafka.Topics.Exchange,
			cfg.Kafka.Topics.Usage,
			cfg.Kafka.Topics.Expiration,
			cfg.Kafka.Topics.Reversal,
		}
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, requiredTopics); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		} else {
			log.Info("KAFKA", "Required topics ensured successfully")
		}

		service.Kafka = producer
	} else {
		log.Warn("KAFKA", "Kafka disabled, ledger events will not be published")
	}

	qrSecret := os.Getenv("QR_SECRET")
	if qrSecret == "" {
		log.Warn("CONFIG", "QR_SECRET not set, using development default")
		qrSecret = "eco-tiket-dev-secret"
	}

	handler := &ledger_api.Handler{
		LedgerService: service,
		Events:        events,
		Pass:          qr.NewPassGenerator(qrSecret),
		Logger:        log,
	}

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()
	r.Use(metrics.Middleware)

	// --- Public Routes ---
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	log.Info("ROUTER", "Health and metrics endpoints registered")

	// --- Protected Routes ---
	r.Group(func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(auth.Middleware())
			log.Info("AUTH", "JWT middleware applied to protected API routes")
		} else {
			r.Use(auth.ClaimsMiddleware())
			log.Warn("AUTH", "Token verification disabled, trusting bearer claims as-is")
		}

		r.Route("/api/ledger", func(r chi.Router) {
			r.Route("/accounts", func(r chi.Router) {
				r.Post("/", handler.CreateAccount)
				r.Get("/{accountId}", handler.GetAccount)
				r.Get("/{accountId}/transactions", handler.GetStatement)
				r.Get("/{accountId}/pass", handler.GetPass)
				r.Get("/{accountId}/events", handler.StreamAccountEvents)
			})
			log.Info("ROUTER", "Account routes registered under /api/ledger/accounts")

			r.Post("/exchange", handler.Exchange)
			r.Post("/use", handler.Use)
			r.Post("/scan", handler.Scan)
			log.Info("ROUTER", "Exchange, usage and scan routes registered under /api/ledger")

			// Administrative operations.
			r.Group(func(r chi.Router) {
				if cfg.Auth.Enabled {
					r.Use(auth.RequireRole(ledger.RoleAdmin))
				}
				r.Delete("/accounts/{accountId}", handler.DeleteAccount)
				r.Post("/accounts/{accountId}/sweep", handler.Sweep)
				r.Post("/transactions/{transactionId}/reverse", handler.Reverse)
				r.Get("/events", handler.StreamAllEvents)
			})
			log.Info("ROUTER", "Admin routes registered under /api/ledger")
		})

		if bunDB != nil {
			analyticsHandler := analytics_api.NewHandler(analytics.NewService(bunDB), log)
			r.Route("/api", func(r chi.Router) {
				analyticsHandler.RegisterRoutes(r)
			})
			log.Info("ROUTER", "Analytics routes registered under /api/ledger/analytics")
		}
	})

	sw := sweeper.New(service, store, log, cfg.Ledger.SweepInterval)
	sw.Start()
	defer sw.Stop()

	// No write timeout: the SSE endpoints hold their response open.
	server := &http.Server{
		Addr:        cfg.Server.Port,
		Handler:     r,
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("🚀 Eco-Tiket Ledger Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	}

	log.Info("APP", "Service stopped")
}
