package main

import (
	"context"
	"time"

	appctx "backoffice/internal/core/context"
	"backoffice/internal/domain/ledger"
	"backoffice/internal/domain/notify"
	"backoffice/internal/infrastructure/storage/postgres"
	"backoffice/pkg/logger"
)

type outboxRelay interface {
	ProcessBatch(ctx context.Context) (int, error)
	MoveToDLQ(ctx context.Context) (int64, error)
}

type idempotencyCleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

type statsLogger interface {
	LogStats(ctx context.Context)
}

type ledgerVerifier interface {
	VerifyTouchedSince(ctx context.Context, since time.Time) ([]*ledger.Verification, error)
}

// Intervals are the worker's tick periods.
type Intervals struct {
	Poll    time.Duration
	Cleanup time.Duration
	Verify  time.Duration
}

// Worker drains the outbox, expires idempotency keys and re-verifies
// recently touched ledgers.
type Worker struct {
	relay       outboxRelay
	idempotency idempotencyCleaner
	ledger      ledgerVerifier
	pool        statsLogger
	intervals   Intervals
	log         *logger.Logger

	lastVerify time.Time
	now        func() time.Time
}

func NewWorker(relay outboxRelay, idem idempotencyCleaner, verifier ledgerVerifier, pool statsLogger, intervals Intervals, log *logger.Logger) *Worker {
	now := func() time.Time { return time.Now().UTC() }
	return &Worker{
		relay:       relay,
		idempotency: idem,
		ledger:      verifier,
		pool:        pool,
		intervals:   intervals,
		log:         log.WithComponent("worker"),
		lastVerify:  now().Add(-intervals.Verify),
		now:         now,
	}
}

// dispatchHandler delivers outbox notifications to n.
func dispatchHandler(n notify.Notifier) postgres.OutboxHandler {
	return postgres.OutboxHandlerFunc(func(ctx context.Context, msg *postgres.OutboxMessage) error {
		notification, err := msg.Notification()
		if err != nil {
			return err
		}
		return n.Notify(ctx, notification)
	})
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.intervals.Poll)
	defer ticker.Stop()

	cleanupTicker := time.NewTicker(w.intervals.Cleanup)
	defer cleanupTicker.Stop()

	verifyTicker := time.NewTicker(w.intervals.Verify)
	defer verifyTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("worker loop stopped")
			return
		case <-ticker.C:
			w.processOutbox(w.tickContext(ctx))
		case <-cleanupTicker.C:
			tickCtx := w.tickContext(ctx)
			w.cleanupIdempotency(tickCtx)
			if w.pool != nil {
				w.pool.LogStats(tickCtx)
			}
		case <-verifyTicker.C:
			w.verifyLedgers(w.tickContext(ctx))
		}
	}
}

func (w *Worker) tickContext(ctx context.Context) context.Context {
	ctx = appctx.WithTrace(ctx, appctx.NewTraceContext())
	return logger.WithLogger(ctx, w.log)
}

func (w *Worker) processOutbox(ctx context.Context) {
	n, err := w.relay.ProcessBatch(ctx)
	if err != nil {
		logger.Error(ctx, "outbox batch failed", "error", err)
		return
	}
	if n > 0 {
		logger.Debug(ctx, "processed outbox batch", "count", n)
	}

	moved, err := w.relay.MoveToDLQ(ctx)
	if err != nil {
		logger.Error(ctx, "moving failed outbox messages failed", "error", err)
		return
	}
	if moved > 0 {
		logger.Warn(ctx, "outbox messages moved to dead letter table", "count", moved)
	}
}

func (w *Worker) cleanupIdempotency(ctx context.Context) {
	n, err := w.idempotency.CleanupExpired(ctx)
	if err != nil {
		logger.Error(ctx, "idempotency cleanup failed", "error", err)
		return
	}
	if n > 0 {
		logger.Info(ctx, "cleaned up idempotency keys", "count", n)
	}
}

// verifyLedgers replays every unit touched since the previous successful run.
// The window only advances on success, so a failed run is retried in full.
func (w *Worker) verifyLedgers(ctx context.Context) {
	started := w.now()
	broken, err := w.ledger.VerifyTouchedSince(ctx, w.lastVerify)
	for _, v := range broken {
		logger.Warn(ctx, "ledger inconsistency detected",
			"unit_id", v.UnitID,
			"balance", v.Balance,
			"replayed", v.Replayed,
			"entries", v.Entries,
			"breaks", len(v.Breaks),
		)
	}
	if err != nil {
		logger.Error(ctx, "ledger verification failed", "error", err)
		return
	}
	w.lastVerify = started
}
