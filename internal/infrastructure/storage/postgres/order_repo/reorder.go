package order_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"backoffice/internal/core/apperror"
	"backoffice/internal/core/id"
	"backoffice/internal/core/types"
	"backoffice/internal/domain/procurement"
	"backoffice/internal/infrastructure/storage/postgres"
)

const reordersTable = "proc_reorders"

// reorderRow is the flat shape of proc_reorders: the shared header plus the single line.
type reorderRow struct {
	procurement.Header
	UnitID           id.ID          `db:"unit_id"`
	QuantityOrdered  types.Quantity `db:"quantity_ordered"`
	QuantityReceived types.Quantity `db:"quantity_received"`
	UnitCost         types.Money    `db:"unit_cost"`
}

var reorderColumns = postgres.ExtractDBColumns[reorderRow]()

func (row *reorderRow) toDomain() *procurement.Reorder {
	return &procurement.Reorder{
		Header: row.Header,
		Item: procurement.LineItem{
			ID:               row.ID,
			OrderID:          row.ID,
			UnitID:           row.UnitID,
			QuantityOrdered:  row.QuantityOrdered,
			QuantityReceived: row.QuantityReceived,
			UnitCost:         row.UnitCost,
		},
	}
}

// ReorderRepo implements procurement.ReorderRepository.
type ReorderRepo struct {
	orderTable
}

var _ procurement.ReorderRepository = (*ReorderRepo)(nil)

// NewReorderRepo creates a new reorder repository.
func NewReorderRepo(db postgres.QuerierProvider) *ReorderRepo {
	return &ReorderRepo{orderTable: newOrderTable(db, reordersTable, "unit_id")}
}

func (r *ReorderRepo) Create(ctx context.Context, ro *procurement.Reorder) error {
	row := reorderRow{
		Header:           ro.Header,
		UnitID:           ro.Item.UnitID,
		QuantityOrdered:  ro.Item.QuantityOrdered,
		QuantityReceived: ro.Item.QuantityReceived,
		UnitCost:         ro.Item.UnitCost,
	}

	sql, args, err := r.builder.Insert(r.table).SetMap(postgres.StructToMap(&row)).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.db.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if postgres.UniqueViolation(err) == "proc_reorders_open_unit_uq" {
			return apperror.NewConflictingPendingOrder("reorder", ro.Item.UnitID.String()).WithCause(err)
		}
		if postgres.IsForeignKeyViolation(err) {
			return apperror.NewNotFound("unit", ro.Item.UnitID.String()).WithCause(err)
		}
		return fmt.Errorf("insert reorder: %w", err)
	}
	return nil
}

func (r *ReorderRepo) GetByID(ctx context.Context, orderID id.ID) (*procurement.Reorder, error) {
	return r.get(ctx, orderID, false)
}

func (r *ReorderRepo) GetForUpdate(ctx context.Context, orderID id.ID) (*procurement.Reorder, error) {
	return r.get(ctx, orderID, true)
}

func (r *ReorderRepo) get(ctx context.Context, orderID id.ID, lock bool) (*procurement.Reorder, error) {
	sql, args, err := lockSuffix(
		r.builder.Select(reorderColumns...).From(r.table).Where(squirrel.Eq{"id": orderID}), lock,
	).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var row reorderRow
	if err := pgxscan.Get(ctx, r.db.GetQuerier(ctx), &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("reorder", orderID.String())
		}
		return nil, fmt.Errorf("get reorder: %w", err)
	}
	return row.toDomain(), nil
}

func (r *ReorderRepo) UpdateState(ctx context.Context, ro *procurement.Reorder) error {
	ok, err := r.updateState(ctx, ro.ID, &ro.Lifecycle, ro.UpdatedAt)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.NewNotFound("reorder", ro.ID.String())
	}
	return nil
}

// UpdateLineReceived writes the received quantity onto the reorder row itself.
func (r *ReorderRepo) UpdateLineReceived(ctx context.Context, line *procurement.LineItem) error {
	sql, args, err := r.builder.Update(r.table).
		Set("quantity_received", line.QuantityReceived.Int64()).
		Where(squirrel.Eq{"id": line.OrderID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	tag, err := r.db.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update reorder quantity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("reorder", line.OrderID.String())
	}
	return nil
}

func (r *ReorderRepo) HasOpenOrder(ctx context.Context, unitID id.ID) (bool, error) {
	return r.hasOpenOrder(ctx, unitID)
}
