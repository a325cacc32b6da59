package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"backoffice/internal/core/tx"
	"backoffice/pkg/logger"
)

var tracer = otel.Tracer("backoffice/tx")

// Compile-time check that TxManager implements tx.Manager interface.
var _ tx.Manager = (*TxManager)(nil)

// TxOptions configures transaction behavior.
type TxOptions struct {
	// IsolationLevel: pgx.Serializable, pgx.RepeatableRead, pgx.ReadCommitted
	IsolationLevel pgx.TxIsoLevel

	// AccessMode: pgx.ReadWrite, pgx.ReadOnly
	AccessMode pgx.TxAccessMode

	// StatementTimeout protects against long-running queries (default 30s)
	StatementTimeout time.Duration

	// MaxAttempts bounds how often an outermost transaction is run when it
	// aborts with a deadlock or serialization failure. Two sales taking the
	// same units in different order can deadlock on the unit rows.
	MaxAttempts int
}

// DefaultTxOptions returns production-safe defaults.
func DefaultTxOptions() TxOptions {
	return TxOptions{
		IsolationLevel:   pgx.ReadCommitted,
		AccessMode:       pgx.ReadWrite,
		StatementTimeout: 30 * time.Second,
		MaxAttempts:      3,
	}
}

// txPool is what TxManager needs from the pool. *pgxpool.Pool and pgxmock satisfy it.
type txPool interface {
	Querier
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// TxManager manages database transactions with support for:
// - Nested transactions (joined into the outermost one)
// - Statement timeout protection
// - Retry of deadlocked or serialization-failed transactions
// - Distributed tracing integration
type TxManager struct {
	pool     txPool
	defaults TxOptions
	backoff  func(attempt int) time.Duration
}

// NewTxManager creates a new transaction manager.
// A positive statementTimeout overrides the default per-transaction timeout.
func NewTxManager(pool *Pool, statementTimeout time.Duration) *TxManager {
	defaults := DefaultTxOptions()
	if statementTimeout > 0 {
		defaults.StatementTimeout = statementTimeout
	}
	return newTxManager(pool.Pool, defaults)
}

func newTxManager(pool txPool, defaults TxOptions) *TxManager {
	return &TxManager{
		pool:     pool,
		defaults: defaults,
		backoff:  func(attempt int) time.Duration { return time.Duration(attempt*attempt) * 10 * time.Millisecond },
	}
}

// txKey is the context key for active transaction.
type txKey struct{}

// Tx wraps the active pgx.Tx.
type Tx struct {
	pgx.Tx
}

// RunInTransaction executes fn within a transaction.
// If a transaction already exists in ctx, it will be reused (nested transaction).
// fn may run more than once; see TxOptions.MaxAttempts.
func (m *TxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.RunInTransactionWithOptions(ctx, m.defaults, fn)
}

// RunInTransactionWithOptions executes fn with custom transaction options.
func (m *TxManager) RunInTransactionWithOptions(ctx context.Context, opts TxOptions, fn func(ctx context.Context) error) error {
	// Start tracing span
	ctx, span := tracer.Start(ctx, "transaction",
		trace.WithAttributes(
			attribute.String("tx.isolation", string(opts.IsolationLevel)),
		))
	defer span.End()

	// Nested calls join the outer transaction; only the outermost one retries.
	if m.GetTx(ctx) != nil {
		return fn(ctx)
	}

	attempts := max(opts.MaxAttempts, 1)
	for attempt := 1; ; attempt++ {
		err := m.startNewTransaction(ctx, opts, fn)
		if err == nil || attempt >= attempts || !IsRetryable(err) {
			span.SetAttributes(attribute.Int("tx.attempts", attempt))
			return err
		}

		logger.Warn(ctx, "transaction aborted by the database, retrying", "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return err
		case <-time.After(m.backoff(attempt)):
		}
	}
}

// startNewTransaction begins a new database transaction.
func (m *TxManager) startNewTransaction(ctx context.Context, opts TxOptions, fn func(ctx context.Context) error) error {
	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   opts.IsolationLevel,
		AccessMode: opts.AccessMode,
	})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	// Set statement timeout for protection against runaway queries
	if opts.StatementTimeout > 0 {
		_, err = tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = '%dms'", opts.StatementTimeout.Milliseconds()))
		if err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("set statement_timeout: %w", err)
		}
	}

	// Store transaction in context
	wrappedTx := &Tx{Tx: tx}
	txCtx := context.WithValue(ctx, txKey{}, wrappedTx)

	if err := m.executeWithRollbackProtection(txCtx, tx, fn); err != nil {
		return err
	}

	// Commit transaction
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// executeWithRollbackProtection runs fn and handles rollback on error.
// Context cancellation is handled by pgx internally - no goroutine needed.
func (m *TxManager) executeWithRollbackProtection(ctx context.Context, tx pgx.Tx, fn func(ctx context.Context) error) error {
	err := fn(ctx)
	if err != nil {
		// Use background context for rollback to ensure it completes
		// even if the original context was cancelled
		if rbErr := tx.Rollback(context.Background()); rbErr != nil {
			logger.Error(ctx, "rollback failed", "error", rbErr, "original_error", err)
		}
		return err
	}
	return nil
}

// GetTx returns the current transaction from context, or nil if none.
func (m *TxManager) GetTx(ctx context.Context) *Tx {
	if tx, ok := ctx.Value(txKey{}).(*Tx); ok {
		return tx
	}
	return nil
}

// Querier is satisfied by pgx.Tx, *pgxpool.Pool and pgxmock, so repositories
// work inside and outside transactions alike.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// QuerierProvider hands repositories the querier for the current context.
type QuerierProvider interface {
	GetQuerier(ctx context.Context) Querier
}

// GetQuerier returns the transaction in ctx, or the pool when there is none.
func (m *TxManager) GetQuerier(ctx context.Context) Querier {
	if tx := m.GetTx(ctx); tx != nil {
		return tx.Tx
	}
	return m.pool
}
