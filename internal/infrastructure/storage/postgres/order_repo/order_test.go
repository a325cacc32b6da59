package order_repo

import (
	"context"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backoffice/internal/core/apperror"
	"backoffice/internal/core/entity"
	"backoffice/internal/core/id"
	"backoffice/internal/core/types"
	"backoffice/internal/domain/procurement"
	"backoffice/internal/infrastructure/storage/postgres"
)

type mockDB struct {
	pgxmock.PgxPoolIface
}

func (m mockDB) GetQuerier(context.Context) postgres.Querier { return m.PgxPoolIface }

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

// headerArgs matches the order header insert: id, supplier, notes, creator,
// the nine lifecycle columns and both timestamps.
func headerArgs() []any {
	args := make([]any, 15)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func TestPurchaseOrderRepo_Create(t *testing.T) {
	ctx := context.Background()
	staff := entity.StaffActor("u-1")

	t.Run("inserts header and lines", func(t *testing.T) {
		mock := newMock(t)
		repo := NewPurchaseOrderRepo(mockDB{mock})
		po := procurement.NewPurchaseOrder(id.New(), "", staff, []procurement.LineInput{
			{UnitID: id.New(), Quantity: 3, UnitCost: types.MustMoney("2.50")},
			{UnitID: id.New(), Quantity: 1, UnitCost: types.MustMoney("4.00")},
		})

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO proc_purchase_orders")).
			WithArgs(headerArgs()...).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO proc_purchase_order_items (id,order_id,line_no,unit_id,quantity_ordered,quantity_received,unit_cost)")).
			WithArgs(
				po.Items[0].ID, po.ID, 1, po.Items[0].UnitID, int64(3), int64(0), po.Items[0].UnitCost,
				po.Items[1].ID, po.ID, 2, po.Items[1].UnitID, int64(1), int64(0), po.Items[1].UnitCost,
			).
			WillReturnResult(pgxmock.NewResult("INSERT", 2))

		require.NoError(t, repo.Create(ctx, po))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("second open order for a supplier", func(t *testing.T) {
		mock := newMock(t)
		repo := NewPurchaseOrderRepo(mockDB{mock})
		supplierID := id.New()
		po := procurement.NewPurchaseOrder(supplierID, "", staff, []procurement.LineInput{{UnitID: id.New(), Quantity: 1}})

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO proc_purchase_orders")).
			WithArgs(headerArgs()...).
			WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "proc_purchase_orders_open_supplier_uq"})

		err := repo.Create(ctx, po)

		appErr, ok := apperror.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperror.CodeConflictingPendingOrder, appErr.Code)
		assert.Equal(t, supplierID.String(), appErr.Details["key"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestReorderRepo_HasOpenOrder(t *testing.T) {
	mock := newMock(t)
	repo := NewReorderRepo(mockDB{mock})
	unitID := id.New()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM proc_reorders WHERE unit_id = $1 AND status = ANY($2))")).
		WithArgs(unitID, []string{"pending", "accepted"}).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	open, err := repo.HasOpenOrder(context.Background(), unitID)

	require.NoError(t, err)
	assert.True(t, open)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReorderRepo_UpdateLineReceived_Missing(t *testing.T) {
	mock := newMock(t)
	repo := NewReorderRepo(mockDB{mock})
	orderID := id.New()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE proc_reorders SET quantity_received = $1 WHERE id = $2")).
		WithArgs(int64(2), orderID.String()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.UpdateLineReceived(context.Background(), &procurement.LineItem{ID: orderID, OrderID: orderID, QuantityReceived: 2})

	assert.True(t, apperror.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
