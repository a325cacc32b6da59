package stock_repo

import (
	"context"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backoffice/internal/core/apperror"
	"backoffice/internal/core/id"
	"backoffice/internal/core/types"
	"backoffice/internal/domain/ledger"
	"backoffice/internal/infrastructure/storage/postgres"
)

type mockDB struct {
	pgxmock.PgxPoolIface
}

func (m mockDB) GetQuerier(context.Context) postgres.Querier { return m.PgxPoolIface }

func newMockLedgerRepo(t *testing.T) (*LedgerRepo, pgxmock.PgxPoolIface) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewLedgerRepo(mockDB{mock}), mock
}

// anyArgs matches n arguments of any value.
func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

var (
	adjustSQL  = regexp.QuoteMeta("UPDATE inv_units SET quantity = quantity + $1, updated_at = $2 WHERE id = $3 AND quantity + $4 >= 0 RETURNING quantity")
	readQtySQL = regexp.QuoteMeta("SELECT quantity FROM inv_units WHERE id = $1")
)

func TestLedgerRepo_AdjustQuantity(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the new balance", func(t *testing.T) {
		repo, mock := newMockLedgerRepo(t)
		unitID := id.New()

		mock.ExpectQuery(adjustSQL).
			WithArgs(int64(-2), pgxmock.AnyArg(), unitID.String(), int64(-2)).
			WillReturnRows(pgxmock.NewRows([]string{"quantity"}).AddRow(int64(3)))

		after, err := repo.AdjustQuantity(ctx, unitID, -2)

		require.NoError(t, err)
		assert.Equal(t, types.Quantity(3), after)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reports the balance when the guard refuses", func(t *testing.T) {
		repo, mock := newMockLedgerRepo(t)
		unitID := id.New()

		mock.ExpectQuery(adjustSQL).
			WithArgs(int64(-5), pgxmock.AnyArg(), unitID.String(), int64(-5)).
			WillReturnRows(pgxmock.NewRows([]string{"quantity"}))
		mock.ExpectQuery(readQtySQL).
			WithArgs(unitID).
			WillReturnRows(pgxmock.NewRows([]string{"quantity"}).AddRow(int64(1)))

		_, err := repo.AdjustQuantity(ctx, unitID, -5)

		require.Error(t, err)
		appErr, ok := apperror.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperror.CodeInsufficientStock, appErr.Code)
		assert.Equal(t, int64(5), appErr.Details["requested"])
		assert.Equal(t, int64(1), appErr.Details["available"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing unit", func(t *testing.T) {
		repo, mock := newMockLedgerRepo(t)
		unitID := id.New()

		mock.ExpectQuery(adjustSQL).
			WithArgs(int64(4), pgxmock.AnyArg(), unitID.String(), int64(4)).
			WillReturnRows(pgxmock.NewRows([]string{"quantity"}))
		mock.ExpectQuery(readQtySQL).
			WithArgs(unitID).
			WillReturnRows(pgxmock.NewRows([]string{"quantity"}))

		_, err := repo.AdjustQuantity(ctx, unitID, 4)

		assert.True(t, apperror.IsNotFound(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLedgerRepo_CreateUnit(t *testing.T) {
	ctx := context.Background()

	t.Run("always inserts a zero balance", func(t *testing.T) {
		repo, mock := newMockLedgerRepo(t)
		u := &ledger.Unit{ID: id.New(), SKU: "MUG-BLUE", Quantity: 12}

		// Columns are sorted by name: additional_price, base_price, created_at, id,
		// min_stock_level, product_id, quantity, sku, updated_at.
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO inv_units")).
			WithArgs(
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), u.ID,
				pgxmock.AnyArg(), pgxmock.AnyArg(), int64(0), "MUG-BLUE", pgxmock.AnyArg(),
			).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, repo.CreateUnit(ctx, u))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate sku", func(t *testing.T) {
		repo, mock := newMockLedgerRepo(t)

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO inv_units")).
			WithArgs(anyArgs(9)...).
			WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "inv_units_sku_uq"})

		err := repo.CreateUnit(ctx, &ledger.Unit{ID: id.New(), SKU: "MUG-BLUE"})

		appErr, ok := apperror.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperror.CodeConflict, appErr.Code)
		assert.Equal(t, "MUG-BLUE", appErr.Details["sku"])
	})
}

func TestLedgerRepo_GetUnit_NotFound(t *testing.T) {
	repo, mock := newMockLedgerRepo(t)
	unitID := id.New()

	mock.ExpectQuery(regexp.QuoteMeta("FROM inv_units WHERE id = $1 FOR UPDATE")).
		WithArgs(unitID.String()).
		WillReturnRows(pgxmock.NewRows(unitColumns))

	_, err := repo.GetUnitForUpdate(context.Background(), unitID)

	assert.True(t, apperror.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
