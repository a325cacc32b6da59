package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"

	"backoffice/internal/core/id"
	"backoffice/internal/core/tx"
	"backoffice/internal/domain/notify"
)

// OutboxStatus represents the state of an outbox message.
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusPublished OutboxStatus = "published"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// DefaultOutboxMaxRetries is how many failed deliveries move a message to failed.
const DefaultOutboxMaxRetries = 5

// OutboxMessage represents a message in the transactional outbox.
type OutboxMessage struct {
	ID            id.ID           `db:"id"`
	AggregateType string          `db:"aggregate_type"` // subject type, e.g. "purchase_order", "unit"
	AggregateID   id.ID           `db:"aggregate_id"`
	EventType     string          `db:"event_type"` // notification template
	Payload       json.RawMessage `db:"payload"`
	Status        OutboxStatus    `db:"status"`
	RetryCount    int             `db:"retry_count"`
	LastError     *string         `db:"last_error"`
	NextRetryAt   *time.Time      `db:"next_retry_at"`
	CreatedAt     time.Time       `db:"created_at"`
	PublishedAt   *time.Time      `db:"published_at"`
}

var outboxColumns = ExtractDBColumns[OutboxMessage]()

// Notification decodes the notification carried by the message.
func (m *OutboxMessage) Notification() (notify.Notification, error) {
	var n notify.Notification
	if err := json.Unmarshal(m.Payload, &n); err != nil {
		return n, fmt.Errorf("decode outbox message %s: %w", m.ID, err)
	}
	return n, nil
}

// DB is what the outbox needs from the database: transactions and a querier.
// *TxManager satisfies it.
type DB interface {
	tx.Manager
	QuerierProvider
}

// OutboxNotifier implements notify.Notifier by writing to sys_outbox.
// Inside a transaction the row commits with it; outside, it commits on its own.
type OutboxNotifier struct {
	db QuerierProvider
}

var _ notify.Notifier = (*OutboxNotifier)(nil)

// NewOutboxNotifier creates a new outbox notifier.
func NewOutboxNotifier(db QuerierProvider) *OutboxNotifier {
	return &OutboxNotifier{db: db}
}

// Notify enqueues n for the worker.
func (p *OutboxNotifier) Notify(ctx context.Context, n notify.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	sql, args, err := Builder().Insert("sys_outbox").
		Columns("id", "aggregate_type", "aggregate_id", "event_type", "payload", "status", "created_at").
		Values(id.New(), n.SubjectType, n.SubjectID, string(n.Template), payload, OutboxStatusPending, time.Now().UTC()).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := p.db.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert outbox message: %w", err)
	}
	return nil
}

// OutboxHandler delivers outbox messages.
type OutboxHandler interface {
	// Handle delivers a message and returns error if failed
	Handle(ctx context.Context, msg *OutboxMessage) error
}

// OutboxHandlerFunc adapts a function to OutboxHandler.
type OutboxHandlerFunc func(ctx context.Context, msg *OutboxMessage) error

func (f OutboxHandlerFunc) Handle(ctx context.Context, msg *OutboxMessage) error { return f(ctx, msg) }

// OutboxRelay reads and delivers messages from the outbox.
// Used by the background worker.
type OutboxRelay struct {
	db         DB
	batchSize  int
	maxRetries int
	handler    OutboxHandler
	now        func() time.Time
}

// NewOutboxRelay creates a new outbox relay.
func NewOutboxRelay(db DB, batchSize int, handler OutboxHandler) *OutboxRelay {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &OutboxRelay{
		db:         db,
		batchSize:  batchSize,
		maxRetries: DefaultOutboxMaxRetries,
		handler:    handler,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// ProcessBatch locks a batch of due messages and delivers them.
// Rows stay locked (FOR UPDATE SKIP LOCKED) until the batch commits, so
// several workers never deliver the same message concurrently.
// Returns the number of delivered messages.
func (r *OutboxRelay) ProcessBatch(ctx context.Context) (int, error) {
	processed := 0

	err := r.db.RunInTransaction(ctx, func(ctx context.Context) error {
		sql, args, err := Builder().Select(outboxColumns...).From("sys_outbox").
			Where("status = ? AND (next_retry_at IS NULL OR next_retry_at <= ?)", OutboxStatusPending, r.now()).
			OrderBy("created_at").
			Limit(uint64(r.batchSize)).
			Suffix("FOR UPDATE SKIP LOCKED").
			ToSql()
		if err != nil {
			return fmt.Errorf("build fetch: %w", err)
		}

		var messages []*OutboxMessage
		if err := pgxscan.Select(ctx, r.db.GetQuerier(ctx), &messages, sql, args...); err != nil {
			return fmt.Errorf("fetch outbox messages: %w", err)
		}

		for _, msg := range messages {
			ok, err := r.processMessage(ctx, msg)
			if err != nil {
				return err
			}
			if ok {
				processed++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return processed, nil
}

// processMessage delivers one message and records the outcome.
// A delivery failure is recorded on the row; only a bookkeeping failure is returned.
func (r *OutboxRelay) processMessage(ctx context.Context, msg *OutboxMessage) (bool, error) {
	q := r.db.GetQuerier(ctx)
	now := r.now()

	if handleErr := r.handler.Handle(ctx, msg); handleErr != nil {
		retries := msg.RetryCount + 1
		status := OutboxStatusPending
		if retries >= r.maxRetries {
			status = OutboxStatusFailed
		}
		// Linear backoff: one more minute per attempt.
		nextRetry := now.Add(time.Duration(retries) * time.Minute)

		_, err := q.Exec(ctx, `
			UPDATE sys_outbox
			SET retry_count = $1, last_error = $2, next_retry_at = $3, status = $4
			WHERE id = $5
		`, retries, handleErr.Error(), nextRetry, status, msg.ID)
		if err != nil {
			return false, fmt.Errorf("update failed message: %w", err)
		}
		return false, nil
	}

	_, err := q.Exec(ctx, `
		UPDATE sys_outbox
		SET status = $1, published_at = $2
		WHERE id = $3
	`, OutboxStatusPublished, now, msg.ID)
	if err != nil {
		return false, fmt.Errorf("mark message published: %w", err)
	}
	return true, nil
}

// MoveToDLQ moves failed messages to the dead letter table.
func (r *OutboxRelay) MoveToDLQ(ctx context.Context) (int64, error) {
	result, err := r.db.GetQuerier(ctx).Exec(ctx, `
		WITH moved AS (
			DELETE FROM sys_outbox
			WHERE status = $1
			RETURNING id, aggregate_type, aggregate_id, event_type, payload, status,
			          retry_count, last_error, next_retry_at, created_at, published_at
		)
		INSERT INTO sys_outbox_dlq (id, aggregate_type, aggregate_id, event_type, payload, status,
		                            retry_count, last_error, next_retry_at, created_at, published_at,
		                            failed_at, failure_reason)
		SELECT *, NOW(), last_error FROM moved
	`, OutboxStatusFailed)
	if err != nil {
		return 0, fmt.Errorf("move to DLQ: %w", err)
	}
	return result.RowsAffected(), nil
}
