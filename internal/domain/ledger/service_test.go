package ledger_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backoffice/internal/core/apperror"
	"backoffice/internal/core/entity"
	"backoffice/internal/core/id"
	"backoffice/internal/core/types"
	"backoffice/internal/domain"
	"backoffice/internal/domain/ledger"
	"backoffice/internal/domain/notify"
	"backoffice/internal/infrastructure/storage/memory"
)

var staff = entity.StaffActor("clerk-1")

type fixture struct {
	store    *memory.Store
	repo     ledger.Repository
	svc      *ledger.Service
	recorder *notify.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	repos := store.Repositories()
	svc := ledger.NewService(repos.Ledger, store)

	rec := notify.NewRecorder()
	rule, err := ledger.CompileLowStockRule(ledger.DefaultLowStockRule)
	require.NoError(t, err)
	svc.Hooks().OnAfterCommit(ledger.LowStockAlert(rule, repos.Ledger, notify.NewEmitter(rec, rec)))

	return &fixture{store: store, repo: repos.Ledger, svc: svc, recorder: rec}
}

func (f *fixture) unit(t *testing.T, sku string, opening, minLevel int64) *ledger.Unit {
	t.Helper()
	u, err := f.svc.RegisterUnit(context.Background(), &ledger.Unit{
		ProductID:     id.New(),
		SKU:           sku,
		MinStockLevel: types.Quantity(minLevel),
		BasePrice:     types.MustMoney("10.00"),
	}, types.Quantity(opening), staff)
	require.NoError(t, err)
	return u
}

func delta(unitID id.ID, change int64, typ ledger.EntryType) ledger.Delta {
	return ledger.Delta{
		UnitID: unitID,
		Change: types.Quantity(change),
		Type:   typ,
		Source: ledger.SourceRef{Type: ledger.SourceManual},
		Actor:  staff,
	}
}

func TestApplyDelta_ChainsEntries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.unit(t, "SKU-1", 10, 0)

	e1, err := f.svc.ApplyDelta(ctx, delta(u.ID, -3, ledger.EntrySale))
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(10), e1.QuantityBefore)
	assert.Equal(t, types.Quantity(7), e1.QuantityAfter)
	assert.Equal(t, types.Quantity(-3), e1.QuantityChange)

	e2, err := f.svc.ApplyDelta(ctx, delta(u.ID, 5, ledger.EntryPurchase))
	require.NoError(t, err)
	assert.Equal(t, e1.QuantityAfter, e2.QuantityBefore)
	assert.Equal(t, types.Quantity(12), e2.QuantityAfter)

	got, err := f.svc.GetUnit(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(12), got.Quantity)

	v, err := f.svc.Verify(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, v.Consistent)
	assert.Equal(t, 3, v.Entries)
	assert.Equal(t, got.Quantity, v.Replayed)
}

func TestApplyDelta_RefusesNegativeBalance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.unit(t, "SKU-1", 2, 0)

	_, err := f.svc.ApplyDelta(ctx, delta(u.ID, -3, ledger.EntrySale))
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeInsufficientStock))

	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, int64(2), appErr.Details["available"])

	got, err := f.svc.GetUnit(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(2), got.Quantity)

	entries, err := f.repo.AllEntries(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "failed delta must not leave an entry")
}

func TestApplyDelta_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.unit(t, "SKU-1", 2, 0)

	tests := []struct {
		name string
		d    ledger.Delta
		code string
	}{
		{name: "zero change", d: delta(u.ID, 0, ledger.EntryAdjustment), code: apperror.CodeInvalidQuantity},
		{name: "unknown type", d: delta(u.ID, 1, ledger.EntryType("GIFT")), code: apperror.CodeValidation},
		{name: "missing unit", d: delta(id.Nil(), 1, ledger.EntryAdjustment), code: apperror.CodeValidation},
		{name: "unknown unit", d: delta(id.New(), 1, ledger.EntryAdjustment), code: apperror.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.ApplyDelta(ctx, tt.d)
			require.Error(t, err)
			assert.True(t, apperror.IsCode(err, tt.code), "got %v", err)
		})
	}

	t.Run("missing actor", func(t *testing.T) {
		d := delta(u.ID, 1, ledger.EntryAdjustment)
		d.Actor = entity.Actor{}
		_, err := f.svc.ApplyDelta(ctx, d)
		assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
	})
}

func TestApplyDelta_ConcurrentDecrementsNeverOversell(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.unit(t, "SKU-1", 5, 0)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		short     int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.ApplyDelta(ctx, delta(u.ID, -1, ledger.EntrySale))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case apperror.IsCode(err, apperror.CodeInsufficientStock):
				short++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)
	assert.Equal(t, 15, short)

	v, err := f.svc.Verify(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, v.Consistent)
	assert.Equal(t, types.Quantity(0), v.Balance)
}

func TestApplyDelta_RollsBackWithOuterTransaction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.unit(t, "SKU-A", 5, 0)
	b := f.unit(t, "SKU-B", 1, 0)

	err := f.store.RunInTransaction(ctx, func(ctx context.Context) error {
		if _, err := f.svc.ApplyDelta(ctx, delta(a.ID, -2, ledger.EntrySale)); err != nil {
			return err
		}
		_, err := f.svc.ApplyDelta(ctx, delta(b.ID, -2, ledger.EntrySale))
		return err
	})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeInsufficientStock))

	got, err := f.svc.GetUnit(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(5), got.Quantity)

	entries, err := f.repo.AllEntries(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestHistory_NewestFirst(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.unit(t, "SKU-1", 10, 0)

	for i := 0; i < 4; i++ {
		_, err := f.svc.ApplyDelta(ctx, delta(u.ID, -1, ledger.EntrySale))
		require.NoError(t, err)
	}

	page, err := f.svc.History(ctx, u.ID, domain.PageFilter{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.TotalCount)
	require.Len(t, page.Items, 2)
	assert.Equal(t, types.Quantity(6), page.Items[0].QuantityAfter)
	assert.Equal(t, types.Quantity(7), page.Items[1].QuantityAfter)

	_, err = f.svc.History(ctx, id.New(), domain.DefaultPageFilter())
	assert.True(t, apperror.IsNotFound(err))
}

func TestRegisterUnit_DuplicateSKU(t *testing.T) {
	f := newFixture(t)
	f.unit(t, "SKU-1", 0, 0)

	_, err := f.svc.RegisterUnit(context.Background(), &ledger.Unit{SKU: "SKU-1"}, 3, staff)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeConflict))
}

func TestLowStockAlert_FiresOnCrossing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.unit(t, "SKU-1", 6, 3)

	_, err := f.svc.Adjust(ctx, u.ID, -2, "breakage", staff)
	require.NoError(t, err)
	assert.Empty(t, f.recorder.Notifications(), "4 is above the threshold")

	_, err = f.svc.Adjust(ctx, u.ID, -1, "breakage", staff)
	require.NoError(t, err)
	_, err = f.svc.Adjust(ctx, u.ID, -1, "breakage", staff)
	require.NoError(t, err)

	sent := f.recorder.Notifications()
	require.Len(t, sent, 1, "alert fires once when crossing, not on every low decrement")
	assert.Equal(t, notify.TemplateLowStock, sent[0].Template)
	assert.Equal(t, notify.RecipientAdmin, sent[0].Recipient.Kind)
	assert.Equal(t, u.ID, sent[0].SubjectID)
	assert.Equal(t, int64(3), sent[0].Payload["quantity"])
}

func TestLowStockAlert_FailingNotifierDoesNotFailDelta(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.unit(t, "SKU-1", 1, 5)
	f.recorder.Err = assert.AnError

	entry, err := f.svc.Adjust(ctx, u.ID, -1, "breakage", staff)
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(0), entry.QuantityAfter)
}

func TestCompileLowStockRule(t *testing.T) {
	u := &ledger.Unit{SKU: "CABLE-1", MinStockLevel: 10}

	rule, err := ledger.CompileLowStockRule(`quantity < 5 || sku.startsWith("CABLE") && quantity <= min_stock_level`)
	require.NoError(t, err)

	ok, err := rule.Matches(u, 10)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = rule.Matches(u, 11)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = ledger.CompileLowStockRule("quantity + 1")
	assert.Error(t, err, "non-bool rule must be rejected")

	_, err = ledger.CompileLowStockRule("unknown_var > 1")
	assert.Error(t, err)

	def, err := ledger.CompileLowStockRule("")
	require.NoError(t, err)
	assert.Equal(t, ledger.DefaultLowStockRule, def.String())
}
