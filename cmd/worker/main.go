// Package main is the entry point for the Carmen background worker.
//
// The worker relays the transactional outbox to Kafka and consumes the same
// topic to invalidate the shared Redis average cache.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"carmen/internal/app"
	"carmen/internal/config"
	"carmen/internal/infrastructure/events"
	"carmen/internal/infrastructure/storage/postgres"
	"carmen/pkg/logger"
)

const publishedRetention = 7 * 24 * time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.IsDevelopment(),
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)

	if !cfg.KafkaEnabled() {
		log.Fatalw("KAFKA_BROKERS is required for the worker")
	}
	if cfg.DatabaseURL == "" {
		log.Fatalw("DATABASE_URL is required for the worker")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting carmen worker")

	a, err := app.New(ctx, cfg, app.Options{})
	if err != nil {
		log.Fatalw("failed to initialize application", "error", err)
	}
	defer a.Close()

	publisher := events.NewPublisher(events.NewWriter(cfg.Kafka()))
	defer func() { _ = publisher.Close() }()

	w := &Worker{
		relay:        postgres.NewOutboxRelay(a.TxManager, cfg.OutboxBatchSize, publisher),
		pollInterval: cfg.OutboxPollInterval,
		log:          log.WithComponent("worker"),
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.Run(ctx)
	}()

	if a.SharesCache() {
		consumer := events.NewReceiptConsumer(events.NewReader(cfg.Kafka()))
		consumer.Subscribe(a.Calculator)
		defer func() { _ = consumer.Close() }()

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Run(ctx); err != nil {
				log.Errorw("receipt consumer stopped", "error", err)
			}
		}()
	} else {
		log.Warnw("cache backend is not shared, skipping cache invalidation consumer", "cache_backend", cfg.CacheBackend)
	}

	<-ctx.Done()
	log.Info("shutting down worker...")
	wg.Wait()
	log.Info("worker stopped")
}

// Worker drives the outbox relay.
type Worker struct {
	relay        *postgres.OutboxRelay
	pollInterval time.Duration
	log          *logger.Logger
}

// Run polls the outbox until ctx is cancelled. Failed messages move to the
// DLQ and old published rows are purged hourly.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	cleanupTicker := time.NewTicker(time.Hour)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.processOutbox(ctx)
		case <-cleanupTicker.C:
			w.cleanup(ctx)
		}
	}
}

func (w *Worker) processOutbox(ctx context.Context) {
	n, err := w.relay.ProcessBatch(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Errorw("outbox batch failed", "error", err)
		}
		return
	}
	if n > 0 {
		w.log.Debugw("relayed outbox batch", "count", n)
	}
}

func (w *Worker) cleanup(ctx context.Context) {
	if moved, err := w.relay.MoveToDLQ(ctx); err != nil {
		w.log.Errorw("move to DLQ failed", "error", err)
	} else if moved > 0 {
		w.log.Warnw("moved failed outbox messages to DLQ", "count", moved)
	}

	if purged, err := w.relay.PurgePublished(ctx, publishedRetention); err != nil {
		w.log.Errorw("purge outbox failed", "error", err)
	} else if purged > 0 {
		w.log.Infow("purged published outbox messages", "count", purged)
	}
}
