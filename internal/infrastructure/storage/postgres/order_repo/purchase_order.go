package order_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"backoffice/internal/core/apperror"
	"backoffice/internal/core/id"
	"backoffice/internal/domain/procurement"
	"backoffice/internal/infrastructure/storage/postgres"
)

const (
	purchaseOrdersTable = "proc_purchase_orders"
	poItemsTable        = "proc_purchase_order_items"
)

var (
	lineColumns   = postgres.ExtractDBColumns[procurement.LineItem]()
	lineInsertCol = []string{"id", "order_id", "line_no", "unit_id", "quantity_ordered", "quantity_received", "unit_cost"}
)

// PurchaseOrderRepo implements procurement.PurchaseOrderRepository.
type PurchaseOrderRepo struct {
	orderTable
	lines *postgres.BatchInserter
}

var _ procurement.PurchaseOrderRepository = (*PurchaseOrderRepo)(nil)

// NewPurchaseOrderRepo creates a new purchase order repository.
func NewPurchaseOrderRepo(db postgres.QuerierProvider) *PurchaseOrderRepo {
	return &PurchaseOrderRepo{
		orderTable: newOrderTable(db, purchaseOrdersTable, "supplier_id"),
		lines:      postgres.NewBatchInserter(db),
	}
}

// Create inserts the header and its lines. The partial unique index on
// supplier_id turns a second open order into CONFLICTING_PENDING_ORDER.
func (r *PurchaseOrderRepo) Create(ctx context.Context, po *procurement.PurchaseOrder) error {
	sql, args, err := r.builder.Insert(r.table).SetMap(postgres.StructToMap(po)).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.db.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if postgres.UniqueViolation(err) == "proc_purchase_orders_open_supplier_uq" {
			return apperror.NewConflictingPendingOrder("purchase order", po.SupplierID.String()).WithCause(err)
		}
		return fmt.Errorf("insert purchase order: %w", err)
	}

	rows := make([][]any, 0, len(po.Items))
	for i, li := range po.Items {
		rows = append(rows, []any{
			li.ID, po.ID, i + 1, li.UnitID,
			li.QuantityOrdered.Int64(), li.QuantityReceived.Int64(), li.UnitCost,
		})
	}
	if _, err := r.lines.Insert(ctx, poItemsTable, lineInsertCol, rows); err != nil {
		if postgres.IsForeignKeyViolation(err) {
			return apperror.NewValidation("purchase order references an unknown unit").WithCause(err)
		}
		return err
	}
	return nil
}

func (r *PurchaseOrderRepo) GetByID(ctx context.Context, orderID id.ID) (*procurement.PurchaseOrder, error) {
	return r.get(ctx, orderID, false)
}

// GetForUpdate locks the header row. Lines are only written under that lock.
func (r *PurchaseOrderRepo) GetForUpdate(ctx context.Context, orderID id.ID) (*procurement.PurchaseOrder, error) {
	return r.get(ctx, orderID, true)
}

func (r *PurchaseOrderRepo) get(ctx context.Context, orderID id.ID, lock bool) (*procurement.PurchaseOrder, error) {
	q := r.db.GetQuerier(ctx)

	sql, args, err := lockSuffix(
		r.builder.Select(headerColumns...).From(r.table).Where(squirrel.Eq{"id": orderID}), lock,
	).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var po procurement.PurchaseOrder
	if err := pgxscan.Get(ctx, q, &po, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("purchase order", orderID.String())
		}
		return nil, fmt.Errorf("get purchase order: %w", err)
	}

	sql, args, err = r.builder.Select(lineColumns...).From(poItemsTable).
		Where(squirrel.Eq{"order_id": orderID}).
		OrderBy("line_no").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build lines query: %w", err)
	}
	if err := pgxscan.Select(ctx, q, &po.Items, sql, args...); err != nil {
		return nil, fmt.Errorf("select purchase order lines: %w", err)
	}
	return &po, nil
}

func (r *PurchaseOrderRepo) UpdateState(ctx context.Context, po *procurement.PurchaseOrder) error {
	ok, err := r.updateState(ctx, po.ID, &po.Lifecycle, po.UpdatedAt)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.NewNotFound("purchase order", po.ID.String())
	}
	return nil
}

func (r *PurchaseOrderRepo) UpdateLineReceived(ctx context.Context, line *procurement.LineItem) error {
	sql, args, err := r.builder.Update(poItemsTable).
		Set("quantity_received", line.QuantityReceived.Int64()).
		Where(squirrel.Eq{"id": line.ID, "order_id": line.OrderID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	tag, err := r.db.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update purchase order line: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("purchase order line", line.ID.String())
	}
	return nil
}

func (r *PurchaseOrderRepo) HasOpenOrder(ctx context.Context, supplierID id.ID) (bool, error) {
	return r.hasOpenOrder(ctx, supplierID)
}
