package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fundraising-token/backend/internal/config"
	"github.com/fundraising-token/backend/internal/db"
	"github.com/fundraising-token/backend/internal/events"
	"github.com/fundraising-token/backend/internal/ledger"
	"github.com/fundraising-token/backend/internal/metrics"
	"github.com/fundraising-token/backend/internal/repositories"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)
	if cfg.Storage != config.StoragePostgres {
		log.Fatal("worker requires STORAGE=postgres", zap.String("storage", cfg.Storage))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Repos
	ledgerRepo := repositories.NewLedgerRepo(pool)
	nonceRepo := repositories.NewNonceRepo(pool)

	// Services
	publisher := events.NewRedisPublisher(rdb, log)
	l := ledger.New(ledgerRepo, cfg.LedgerOptions(), log)
	defer l.Close()

	registry := prometheus.NewRegistry()
	ledgerMetrics := metrics.NewLedgerMetrics(registry)
	go serveMetrics(cfg, registry, log)

	log.Info("worker started", zap.Duration("reconcile_interval", cfg.ReconcileInterval))

	// Run jobs on tickers
	reconcileTicker := time.NewTicker(cfg.ReconcileInterval)
	timeLockTicker := time.NewTicker(time.Minute)
	cleanupTicker := time.NewTicker(time.Hour)
	defer reconcileTicker.Stop()
	defer timeLockTicker.Stop()
	defer cleanupTicker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// first pass without waiting for the tickers
	runReconcile(ctx, l, ledgerMetrics, log)
	runTimeLockWatch(ctx, l, publisher, log)

	for {
		select {
		case <-reconcileTicker.C:
			runReconcile(ctx, l, ledgerMetrics, log)
		case <-timeLockTicker.C:
			runTimeLockWatch(ctx, l, publisher, log)
		case <-cleanupTicker.C:
			runNonceCleanup(ctx, nonceRepo, log)
		case <-sigCh:
			log.Info("shutting down worker")
			cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}

func runReconcile(ctx context.Context, l *ledger.Ledger, m *metrics.LedgerMetrics, log *zap.Logger) {
	r, err := l.Reconcile(ctx)
	m.ObserveReconciliation(r, err)
	if err != nil {
		log.Error("reconciliation failed", zap.Error(err))
		return
	}
	if !r.OK() {
		log.Error("ledger invariants violated",
			zap.Strings("violations", r.Violations),
			zap.String("total_collected_wei", r.TotalCollected.String()),
			zap.String("sum_of_balances_wei", r.SumOfBalances.String()),
			zap.String("escrow_wei", r.EscrowBalance.String()),
		)
		return
	}
	log.Debug("reconciliation ok", zap.String("total_collected_wei", r.TotalCollected.String()))
}

func runTimeLockWatch(ctx context.Context, l *ledger.Ledger, publisher *events.RedisPublisher, log *zap.Logger) {
	snap, err := l.Snapshot(ctx)
	if err != nil {
		log.Error("failed to read ledger snapshot", zap.Error(err))
		return
	}
	if !snap.TimeLockOpen {
		return
	}

	event := events.Event{
		Type: events.EventTimeLockOpened,
		Payload: map[string]any{
			"escrow":      snap.Escrow.Hex(),
			"deployed_at": snap.DeployedAt.UTC(),
			"opened_at":   snap.TimeLockOpensAt.UTC(),
		},
	}
	guard := fmt.Sprintf("ledger:%s:time_lock_opened", snap.Escrow.Hex())
	published, err := publisher.PublishOnce(ctx, guard, events.ChannelLedger, event)
	if err != nil {
		log.Error("failed to publish time-lock event", zap.Error(err))
		return
	}
	if published {
		log.Info("time-lock opened", zap.Time("opened_at", snap.TimeLockOpensAt))
	}
}

func runNonceCleanup(ctx context.Context, nonceRepo *repositories.NonceRepo, log *zap.Logger) {
	n, err := nonceRepo.DeleteExpired(ctx)
	if err != nil {
		log.Error("failed to delete expired nonces", zap.Error(err))
		return
	}
	if n > 0 {
		log.Info("expired nonces deleted", zap.Int64("count", n))
	}
}

func serveMetrics(cfg *config.Config, registry *prometheus.Registry, log *zap.Logger) {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	addr := fmt.Sprintf(":%s", cfg.MetricsPort)
	if err := app.Listen(addr); err != nil {
		log.Error("metrics server error", zap.Error(err))
	}
}
