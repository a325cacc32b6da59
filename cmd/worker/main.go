// Package main is the entry point for the background worker.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"backoffice/internal/config"
	"backoffice/internal/domain/ledger"
	"backoffice/internal/domain/notify"
	"backoffice/internal/infrastructure/storage/postgres"
	"backoffice/internal/infrastructure/storage/postgres/stock_repo"
	"backoffice/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.App.IsDevelopment(),
		Service:     cfg.App.Name + "-worker",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)

	if cfg.UsesMemory() {
		log.Fatal("the worker needs the postgres driver; the memory store has no outbox")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info("starting backoffice worker")

	poolCfg := postgres.DefaultPoolConfig(cfg.Database.URL)
	poolCfg.MaxConns = 5
	poolCfg.MinConns = 1
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	txm := postgres.NewTxManager(pool, cfg.Database.StatementTimeout)
	relay := postgres.NewOutboxRelay(txm, cfg.Worker.BatchSize, dispatchHandler(notify.NewLogSink(log)))
	ledgerSvc := ledger.NewService(stock_repo.NewLedgerRepo(txm), txm)

	worker := NewWorker(
		relay,
		postgres.NewIdempotencyStore(txm, cfg.Worker.IdempotencyTTL),
		ledgerSvc,
		pool,
		Intervals{
			Poll:    cfg.Worker.PollInterval,
			Cleanup: cfg.Worker.CleanupInterval,
			Verify:  cfg.Worker.VerifyInterval,
		},
		log,
	)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()

	wg.Wait()
	log.Info("worker stopped")
}
