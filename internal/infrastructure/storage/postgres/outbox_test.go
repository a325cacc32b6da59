package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backoffice/internal/core/entity"
	"backoffice/internal/core/id"
	"backoffice/internal/domain/notify"
)

// mockDB runs transactions inline against a pgxmock pool.
type mockDB struct {
	pgxmock.PgxPoolIface
}

func (m mockDB) GetQuerier(context.Context) Querier { return m.PgxPoolIface }

func (m mockDB) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func TestOutboxNotifier_Notify(t *testing.T) {
	mock := newMock(t)
	n := notify.Notification{
		Template:    notify.TemplateLowStock,
		Recipient:   notify.AdminChannel(),
		SubjectType: "unit",
		SubjectID:   id.New(),
		Payload:     map[string]any{"sku": "TEE-RED-M"},
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO sys_outbox (id,aggregate_type,aggregate_id,event_type,payload,status,created_at)")).
		WithArgs(pgxmock.AnyArg(), "unit", n.SubjectID, "low_stock", pgxmock.AnyArg(), OutboxStatusPending, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, NewOutboxNotifier(mockDB{mock}).Notify(context.Background(), n))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRelay_ProcessBatch(t *testing.T) {
	mock := newMock(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	good, bad := id.New(), id.New()
	payload, err := json.Marshal(notify.Notification{Template: notify.TemplateOrderCreated, SubjectType: "purchase_order"})
	require.NoError(t, err)

	rows := pgxmock.NewRows(outboxColumns)
	for _, msgID := range []id.ID{good, bad} {
		rows.AddRow(msgID, "purchase_order", id.New(), "order_created", json.RawMessage(payload),
			OutboxStatusPending, 0, (*string)(nil), (*time.Time)(nil), now, (*time.Time)(nil))
	}

	mock.ExpectQuery(regexp.QuoteMeta("FROM sys_outbox WHERE status = $1 AND (next_retry_at IS NULL OR next_retry_at <= $2) ORDER BY created_at LIMIT 10 FOR UPDATE SKIP LOCKED")).
		WithArgs(OutboxStatusPending, now).
		WillReturnRows(rows)
	mock.ExpectExec(regexp.QuoteMeta("SET status = $1, published_at = $2")).
		WithArgs(OutboxStatusPublished, now, good).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(regexp.QuoteMeta("SET retry_count = $1, last_error = $2, next_retry_at = $3, status = $4")).
		WithArgs(1, "smtp down", now.Add(time.Minute), OutboxStatusPending, bad).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	var delivered []notify.Template
	relay := NewOutboxRelay(mockDB{mock}, 10, OutboxHandlerFunc(func(_ context.Context, msg *OutboxMessage) error {
		if msg.ID == bad {
			return errors.New("smtp down")
		}
		n, err := msg.Notification()
		if err != nil {
			return err
		}
		delivered = append(delivered, n.Template)
		return nil
	}))
	relay.now = func() time.Time { return now }

	processed, err := relay.ProcessBatch(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	assert.Equal(t, []notify.Template{notify.TemplateOrderCreated}, delivered)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRelay_LastRetryFails(t *testing.T) {
	mock := newMock(t)
	now := time.Now().UTC()
	msgID := id.New()

	rows := pgxmock.NewRows(outboxColumns).
		AddRow(msgID, "unit", id.New(), "low_stock", json.RawMessage(`{}`),
			OutboxStatusPending, DefaultOutboxMaxRetries-1, (*string)(nil), (*time.Time)(nil), now, (*time.Time)(nil))

	mock.ExpectQuery("FROM sys_outbox").
		WithArgs(OutboxStatusPending, now).
		WillReturnRows(rows)
	mock.ExpectExec("SET retry_count").
		WithArgs(DefaultOutboxMaxRetries, "gone", pgxmock.AnyArg(), OutboxStatusFailed, msgID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	relay := NewOutboxRelay(mockDB{mock}, 10, OutboxHandlerFunc(func(context.Context, *OutboxMessage) error {
		return errors.New("gone")
	}))
	relay.now = func() time.Time { return now }

	processed, err := relay.ProcessBatch(context.Background())

	require.NoError(t, err)
	assert.Zero(t, processed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// capture stores the argument it is matched against.
type capture struct {
	value any
}

func (c *capture) Match(v any) bool {
	c.value = v
	return true
}

func TestActivityLog_CompressesLargePayloads(t *testing.T) {
	mock := newMock(t)
	log, err := NewActivityLog(mockDB{mock}, 64)
	require.NoError(t, err)

	subjectID := id.New()
	note := strings.Repeat("counted twice, ", 20)
	algo, compressed := &capture{}, &capture{}

	// Columns sorted: action, actor, compression_algo, id, occurred_at, payload, payload_compressed, subject_id, subject_type.
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO sys_activity")).
		WithArgs("stock_audit.created", pgxmock.AnyArg(), algo, pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), compressed, subjectID, "stock_audit").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = log.Record(context.Background(), notify.ActivityEvent{
		Actor:       entity.StaffActor("u-1"),
		Action:      "stock_audit.created",
		SubjectType: "stock_audit",
		SubjectID:   subjectID,
		Payload:     map[string]any{"notes": note},
	})
	require.NoError(t, err)
	assert.Equal(t, CompressionZstd, algo.value)

	blob, ok := compressed.value.([]byte)
	require.True(t, ok)
	require.NotEmpty(t, blob)

	mock.ExpectQuery(regexp.QuoteMeta("FROM sys_activity WHERE subject_id = $1 AND subject_type = $2")).
		WithArgs(subjectID.String(), "stock_audit").
		WillReturnRows(pgxmock.NewRows(activityColumns).AddRow(
			id.New(), "staff:u-1", "stock_audit.created", "stock_audit", subjectID,
			json.RawMessage(nil), blob, CompressionZstd, time.Now().UTC(),
		))

	history, err := log.History(context.Background(), "stock_audit", subjectID, 10)

	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, note, history[0].Payload["notes"])
	assert.Equal(t, entity.StaffActor("u-1"), history[0].Actor)
	assert.NoError(t, mock.ExpectationsWereMet())
}
