package notify_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backoffice/internal/core/id"
	"backoffice/internal/domain/ledger"
	"backoffice/internal/domain/notify"
	"backoffice/internal/infrastructure/storage/memory"
)

func queued(subjectID id.ID) (notify.Notification, notify.ActivityEvent) {
	return notify.Notification{
			Template:    notify.TemplateOrderCreated,
			Recipient:   notify.AdminChannel(),
			SubjectType: "purchase_order",
			SubjectID:   subjectID,
		}, notify.ActivityEvent{
			Action:      "order.created",
			SubjectType: "purchase_order",
			SubjectID:   subjectID,
		}
}

func createUnit(ctx context.Context, store *memory.Store, unitID id.ID) error {
	return store.Repositories().Ledger.CreateUnit(ctx, &ledger.Unit{ID: unitID, SKU: "SKU-" + id.Suffix(unitID, 8)})
}

func TestInTransaction_TransactionalWriteFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	rec := notify.NewRecorder()
	rec.Err = errors.New("outbox unavailable")
	emitter := notify.NewTransactionalEmitter(rec, rec)

	unitID := id.New()
	err := emitter.InTransaction(ctx, store, func(ctx context.Context, out *notify.Pending) error {
		if err := createUnit(ctx, store, unitID); err != nil {
			return err
		}
		n, ev := queued(unitID)
		out.Notify(n)
		out.Record(ev)
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "enqueue order_created notification")

	_, err = store.Repositories().Ledger.GetUnit(ctx, unitID)
	assert.Error(t, err, "business change must roll back with the outbox write")
}

func TestInTransaction_TransactionalWritesBeforeCommit(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	rec := notify.NewRecorder()
	emitter := notify.NewTransactionalEmitter(rec, rec)

	unitID := id.New()
	err := emitter.InTransaction(ctx, store, func(ctx context.Context, out *notify.Pending) error {
		n, ev := queued(unitID)
		out.Notify(n)
		out.Record(ev)
		return createUnit(ctx, store, unitID)
	})
	require.NoError(t, err)
	assert.Equal(t, []notify.Template{notify.TemplateOrderCreated}, rec.Templates())
	require.Len(t, rec.Events(), 1)
	assert.False(t, rec.Events()[0].OccurredAt.IsZero())
}

func TestInTransaction_AfterCommitDeliveryOnlyOnSuccess(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	rec := notify.NewRecorder()
	emitter := notify.NewEmitter(rec, rec)

	boom := errors.New("boom")
	err := emitter.InTransaction(ctx, store, func(ctx context.Context, out *notify.Pending) error {
		n, ev := queued(id.New())
		out.Notify(n)
		out.Record(ev)
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Empty(t, rec.Notifications())
	assert.Empty(t, rec.Events())

	err = emitter.InTransaction(ctx, store, func(ctx context.Context, out *notify.Pending) error {
		n, ev := queued(id.New())
		out.Notify(n)
		out.Record(ev)
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, rec.Notifications(), 1)
	assert.Len(t, rec.Events(), 1)
}

func TestInTransaction_AfterCommitFailuresAreSwallowed(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	rec := notify.NewRecorder()
	rec.Err = errors.New("dispatcher down")
	emitter := notify.NewEmitter(rec, rec)

	unitID := id.New()
	err := emitter.InTransaction(ctx, store, func(ctx context.Context, out *notify.Pending) error {
		n, _ := queued(unitID)
		out.Notify(n)
		return createUnit(ctx, store, unitID)
	})
	require.NoError(t, err)

	_, err = store.Repositories().Ledger.GetUnit(ctx, unitID)
	assert.NoError(t, err)
}

func TestInTransaction_NilEmitterStillRunsTransaction(t *testing.T) {
	var emitter *notify.Emitter
	store := memory.New()
	unitID := id.New()

	err := emitter.InTransaction(context.Background(), store, func(ctx context.Context, out *notify.Pending) error {
		n, _ := queued(unitID)
		out.Notify(n)
		assert.Equal(t, 1, out.Len())
		return createUnit(ctx, store, unitID)
	})
	require.NoError(t, err)
}
