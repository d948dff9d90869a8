package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/fundraising-token/backend/internal/config"
	"github.com/fundraising-token/backend/internal/db"
	"github.com/fundraising-token/backend/internal/events"
	apphttp "github.com/fundraising-token/backend/internal/http"
	"github.com/fundraising-token/backend/internal/http/handlers"
	"github.com/fundraising-token/backend/internal/ledger"
	"github.com/fundraising-token/backend/internal/metrics"
	"github.com/fundraising-token/backend/internal/repositories"
	"github.com/fundraising-token/backend/internal/services"
	"github.com/fundraising-token/backend/migrations"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	params, err := cfg.DeployParams()
	if err != nil {
		log.Fatal("invalid fundraising configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis (optional in memory mode)
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = db.NewRedisClient(ctx, cfg.RedisURL, log)
		if err != nil {
			log.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer rdb.Close()
	}

	// Storage
	var (
		store  ledger.Store
		nonces services.NonceStore
		audit  services.AuditLogger
	)
	switch cfg.Storage {
	case config.StorageMemory:
		store = ledger.NewMemoryStore()
		if rdb != nil {
			nonces = repositories.NewRedisNonceStore(rdb)
		} else {
			nonces = repositories.NewMemoryNonceStore()
		}
	default:
		pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
		if err != nil {
			log.Fatal("failed to connect to postgres", zap.Error(err))
		}
		defer pool.Close()

		if err := db.RunMigrations(ctx, pool, migrationsFS(cfg), log); err != nil {
			log.Fatal("failed to run migrations", zap.Error(err))
		}

		store = repositories.NewLedgerRepo(pool)
		nonces = repositories.NewNonceRepo(pool)
		audit = repositories.NewAuditRepo(pool)
	}

	// Events
	var (
		publisher  events.Publisher
		subscriber events.Subscriber
	)
	if rdb != nil {
		publisher = events.NewRedisPublisher(rdb, log)
		subscriber = events.NewRedisSubscriber(rdb, log)
	} else {
		bus := events.NewLocalBus()
		publisher, subscriber = bus, bus
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	ledgerMetrics := metrics.NewLedgerMetrics(registry)

	// Ledger
	opts := cfg.LedgerOptions()
	opts.Notifier = events.NewLedgerNotifier(publisher, log)
	opts.Recorder = ledgerMetrics
	l := ledger.New(store, opts, log)

	st, err := l.Deploy(ctx, params)
	if err != nil {
		log.Fatal("failed to deploy ledger", zap.Error(err))
	}
	log.Info("ledger ready",
		zap.String("goal", ledger.FormatEther(st.Goal)),
		zap.String("owner", st.Owner.Hex()),
		zap.String("escrow", st.Escrow.Hex()),
		zap.Time("deployed_at", st.DeployedAt),
		zap.String("storage", cfg.Storage),
	)

	// Services
	authService := services.NewAuthService(nonces, audit, cfg, log)
	fundraisingService := services.NewFundraisingService(l, audit, cfg, log)
	accountService := services.NewAccountService(l, audit, cfg, log)

	// Handlers
	wsHub := handlers.NewWSHub(subscriber, log)
	if err := wsHub.Start(ctx); err != nil {
		log.Fatal("failed to start websocket hub", zap.Error(err))
	}

	app := apphttp.NewApp()
	apphttp.SetupRouter(app, cfg, log, rdb, registry, apphttp.Handlers{
		Auth:        handlers.NewAuthHandler(authService, log),
		Fundraising: handlers.NewFundraisingHandler(l, fundraisingService, log),
		Account:     handlers.NewAccountHandler(accountService, log),
		WS:          wsHub,
	})

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
	// дождаться доставки событий, уже закоммиченных в журнал
	l.Close()
}

func migrationsFS(cfg *config.Config) fs.FS {
	if cfg.Migrations != "" {
		return os.DirFS(cfg.Migrations)
	}
	return migrations.FS
}
