package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fundraising-token/backend/internal/config"
	"github.com/fundraising-token/backend/internal/db"
	"github.com/fundraising-token/backend/internal/events"
	"go.uber.org/zap"
)

// Event Bridge — small service that subscribes to ledger events in Redis
// and forwards each one to NOTIFY_WEBHOOK_URL.

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.NotifyWebhookURL == "" {
		log.Warn("NOTIFY_WEBHOOK_URL is not set, nothing to forward")
		return
	}

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	subscriber := events.NewRedisSubscriber(rdb, log)
	forwarder := events.NewWebhookForwarder(cfg.NotifyWebhookURL, cfg.NotifyTimeout, log)

	if err := subscriber.Subscribe(ctx, events.ChannelLedger, forwarder.Handler(ctx)); err != nil {
		log.Fatal("failed to subscribe", zap.Error(err))
	}

	log.Info("event-bridge started", zap.String("webhook", cfg.NotifyWebhookURL))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down event-bridge")
	cancel()
}
