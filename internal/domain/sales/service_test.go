package sales_test

import (
	"context"
	"strings"
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
	"backoffice/internal/domain/sales"
	"backoffice/internal/infrastructure/storage/memory"
)

var cashier = entity.StaffActor("cashier-1")

type fixture struct {
	store  *memory.Store
	repos  memory.Repositories
	ledger *ledger.Service
	svc    *sales.Service
	rec    *notify.Recorder
	guard  *memGuard
}

type memGuard struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (g *memGuard) Seen(_ context.Context, deliveryID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seen[deliveryID], nil
}

func (g *memGuard) Mark(_ context.Context, deliveryID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seen[deliveryID] = true
	return nil
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	repos := store.Repositories()
	ledgerSvc := ledger.NewService(repos.Ledger, store)
	rec := notify.NewRecorder()
	guard := &memGuard{seen: map[string]bool{}}
	return &fixture{
		store:  store,
		repos:  repos,
		ledger: ledgerSvc,
		rec:    rec,
		guard:  guard,
		svc: sales.NewService(sales.Config{
			Repo:        repos.Sales,
			Customers:   repos.Customers,
			Ledger:      ledgerSvc,
			TxManager:   store,
			Emitter:     notify.NewEmitter(rec, rec),
			ReplayGuard: guard,
		}),
	}
}

func (f *fixture) unit(t *testing.T, sku string, opening int64, price string) *ledger.Unit {
	t.Helper()
	u, err := f.ledger.RegisterUnit(context.Background(), &ledger.Unit{
		SKU:             sku,
		BasePrice:       types.MustMoney(price),
		AdditionalPrice: types.MustMoney("0.50"),
	}, types.Quantity(opening), cashier)
	require.NoError(t, err)
	return u
}

func (f *fixture) balance(t *testing.T, unitID id.ID) types.Quantity {
	t.Helper()
	u, err := f.ledger.GetUnit(context.Background(), unitID)
	require.NoError(t, err)
	return u.Quantity
}

func cash(amount string) sales.PaymentInput {
	return sales.PaymentInput{Method: sales.MethodCash, Amount: types.MustMoney(amount)}
}

func items(lines ...any) []sales.LineInput {
	var out []sales.LineInput
	for i := 0; i < len(lines); i += 2 {
		out = append(out, sales.LineInput{UnitID: lines[i].(id.ID), Quantity: types.Quantity(lines[i+1].(int))})
	}
	return out
}

func TestCreateSale_DeductsStockAndRecordsPayment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.unit(t, "SKU-A", 10, "4.00")
	b := f.unit(t, "SKU-B", 3, "1.25")

	sale, err := f.svc.CreateSale(ctx, sales.CreateSaleInput{
		Items:   items(a.ID, 2, b.ID, 3),
		Payment: cash("20.00"),
		Actor:   cashier,
	})
	require.NoError(t, err)

	assert.Equal(t, sales.StatusPaid, sale.Status)
	assert.True(t, types.MustMoney("14.25").Equal(sale.Total), sale.Total.String())
	assert.True(t, types.MustMoney("5.75").Equal(sale.ChangeDue), sale.ChangeDue.String())
	assert.True(t, strings.HasPrefix(sale.InvoiceNumber, "INV-"), sale.InvoiceNumber)
	assert.Equal(t, sales.InvoiceNumber(sale.CreatedAt, sale.ID), sale.InvoiceNumber)

	assert.Equal(t, types.Quantity(8), f.balance(t, a.ID))
	assert.Equal(t, types.Quantity(0), f.balance(t, b.ID))

	entries, err := f.repos.Ledger.AllEntries(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ledger.EntrySale, entries[1].Type)
	assert.Equal(t, ledger.SourceSale, entries[1].SourceType)
	assert.Equal(t, sale.ID, *entries[1].SourceID)

	payments, err := f.svc.Payments(ctx, sale.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, sales.MethodCash, payments[0].Method)
}

func TestCreateSale_ShortageWritesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.unit(t, "SKU-A", 10, "1.00")
	b := f.unit(t, "SKU-B", 1, "1.00")

	_, err := f.svc.CreateSale(ctx, sales.CreateSaleInput{
		Items:   items(a.ID, 2, b.ID, 1, b.ID, 1),
		Payment: cash("100"),
		Actor:   cashier,
	})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeInsufficientStock))

	appErr, _ := apperror.AsAppError(err)
	assert.Equal(t, b.ID.String(), appErr.Details["unit_id"])

	assert.Equal(t, types.Quantity(10), f.balance(t, a.ID))
	assert.Equal(t, types.Quantity(1), f.balance(t, b.ID))
}

func TestCreateSale_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.unit(t, "SKU-A", 10, "1.00")

	tests := []struct {
		name string
		in   sales.CreateSaleInput
		code string
	}{
		{"no items", sales.CreateSaleInput{Payment: cash("1"), Actor: cashier}, apperror.CodeValidation},
		{"zero quantity", sales.CreateSaleInput{Items: items(a.ID, 0), Payment: cash("1"), Actor: cashier}, apperror.CodeInvalidQuantity},
		{"no actor", sales.CreateSaleInput{Items: items(a.ID, 1), Payment: cash("1")}, apperror.CodeValidation},
		{"bad method", sales.CreateSaleInput{Items: items(a.ID, 1), Payment: sales.PaymentInput{Method: "barter", Amount: types.MustMoney("1")}, Actor: cashier}, apperror.CodeValidation},
		{"underpaid", sales.CreateSaleInput{Items: items(a.ID, 1), Payment: cash("1.00"), Actor: cashier}, apperror.CodeValidation},
		{"unknown unit", sales.CreateSaleInput{Items: items(id.New(), 1), Payment: cash("10"), Actor: cashier}, apperror.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateSale(ctx, tt.in)
			require.Error(t, err)
			assert.True(t, apperror.IsCode(err, tt.code), "got %v", err)
		})
	}
	assert.Equal(t, types.Quantity(10), f.balance(t, a.ID))
}

func TestCreateSale_Customer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.unit(t, "SKU-A", 10, "1.00")

	first, err := f.svc.CreateSale(ctx, sales.CreateSaleInput{
		Items:    items(a.ID, 1),
		Payment:  cash("5"),
		Customer: &sales.CustomerRef{Name: "Dana", Phone: "+15550100"},
		Actor:    cashier,
	})
	require.NoError(t, err)
	require.NotNil(t, first.CustomerID)

	second, err := f.svc.CreateSale(ctx, sales.CreateSaleInput{
		Items:    items(a.ID, 1),
		Payment:  cash("5"),
		Customer: &sales.CustomerRef{Phone: "+15550100"},
		Actor:    cashier,
	})
	require.NoError(t, err)
	assert.Equal(t, *first.CustomerID, *second.CustomerID, "found by phone")

	missing := id.New()
	_, err = f.svc.CreateSale(ctx, sales.CreateSaleInput{
		Items:    items(a.ID, 1),
		Payment:  cash("5"),
		Customer: &sales.CustomerRef{ID: &missing},
		Actor:    cashier,
	})
	assert.True(t, apperror.IsNotFound(err))
	assert.Equal(t, types.Quantity(8), f.balance(t, a.ID))
}

func TestCreateSale_ConcurrentLastUnit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.unit(t, "SKU-A", 1, "1.00")

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.CreateSale(ctx, sales.CreateSaleInput{
				Items:   items(a.ID, 1),
				Payment: cash("5"),
				Actor:   cashier,
			})
		}()
	}
	wg.Wait()

	var ok, short int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case apperror.IsCode(err, apperror.CodeInsufficientStock):
			short++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, short)
	assert.Equal(t, types.Quantity(0), f.balance(t, a.ID))
}

// staleUnits serves unit reads from a snapshot taken before a competing
// sale committed; writes reach the real store.
type staleUnits struct {
	ledger.Repository
	snapshot map[id.ID]ledger.Unit
}

func (s staleUnits) GetUnit(_ context.Context, unitID id.ID) (*ledger.Unit, error) {
	u := s.snapshot[unitID]
	return &u, nil
}

func TestCreateSale_StaleAvailabilityCheck(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.unit(t, "SKU-A", 1, "1.00")

	stale := staleUnits{Repository: f.repos.Ledger, snapshot: map[id.ID]ledger.Unit{a.ID: *a}}
	late := sales.NewService(sales.Config{
		Repo:      f.repos.Sales,
		Customers: f.repos.Customers,
		Ledger:    ledger.NewService(stale, f.store),
		TxManager: f.store,
		Emitter:   notify.NewEmitter(f.rec, f.rec),
	})

	_, err := f.svc.CreateSale(ctx, sales.CreateSaleInput{Items: items(a.ID, 1), Payment: cash("5"), Actor: cashier})
	require.NoError(t, err)

	// The pre-check still sees one unit; only the conditional decrement can refuse.
	_, err = late.CreateSale(ctx, sales.CreateSaleInput{Items: items(a.ID, 1), Payment: cash("5"), Actor: cashier})
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeInsufficientStock, appErr.Code)
	assert.Equal(t, int64(0), appErr.Details["available"])

	assert.Equal(t, types.Quantity(0), f.balance(t, a.ID))
	history, err := f.ledger.History(ctx, a.ID, domain.DefaultPageFilter())
	require.NoError(t, err)
	assert.Equal(t, int64(2), history.TotalCount, "opening balance and the first sale only")
}

func TestRefund_RoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.unit(t, "SKU-A", 10, "2.00")

	sale, err := f.svc.CreateSale(ctx, sales.CreateSaleInput{Items: items(a.ID, 4), Payment: cash("10"), Actor: cashier})
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(6), f.balance(t, a.ID))

	refund, err := f.svc.Refund(ctx, sale.ID, "damaged box", cashier)
	require.NoError(t, err)
	assert.True(t, sale.Total.Equal(refund.Amount))
	assert.Equal(t, types.Quantity(10), f.balance(t, a.ID))

	got, err := f.svc.Get(ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, sales.StatusRefunded, got.Status)
	assert.NotNil(t, got.RefundedAt)

	entries, err := f.repos.Ledger.AllEntries(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3, "opening, sale and refund")
	assert.Equal(t, ledger.EntrySale, entries[1].Type)
	assert.Equal(t, ledger.EntryRefund, entries[2].Type)
	assert.Equal(t, types.Quantity(4), entries[2].QuantityChange)

	_, err = f.svc.Refund(ctx, sale.ID, "again", cashier)
	assert.True(t, apperror.IsCode(err, apperror.CodeAlreadyRefunded))
	assert.Equal(t, types.Quantity(10), f.balance(t, a.ID))

	v, err := f.ledger.Verify(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, v.Consistent)
}

func TestRefund_Guards(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.unit(t, "SKU-A", 10, "2.00")

	_, err := f.svc.Refund(ctx, id.New(), "x", cashier)
	assert.True(t, apperror.IsNotFound(err))

	pending, err := f.svc.PlacePendingSale(ctx, sales.PendingSaleInput{Items: items(a.ID, 1), Actor: cashier})
	require.NoError(t, err)
	_, err = f.svc.Refund(ctx, pending.ID, "x", cashier)
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalidTransition))

	_, err = f.svc.Refund(ctx, pending.ID, "", cashier)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
}
