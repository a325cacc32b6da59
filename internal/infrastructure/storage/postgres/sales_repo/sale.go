// Package sales_repo provides PostgreSQL implementations of the sales and customer repositories.
package sales_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"backoffice/internal/core/apperror"
	"backoffice/internal/core/id"
	"backoffice/internal/domain/sales"
	"backoffice/internal/infrastructure/storage/postgres"
)

const (
	salesTable    = "sales_sales"
	itemsTable    = "sales_sale_items"
	paymentsTable = "sales_payments"
	refundsTable  = "sales_refunds"
)

var (
	saleColumns    = postgres.ExtractDBColumns[sales.Sale]()
	itemColumns    = postgres.ExtractDBColumns[sales.Item]()
	paymentColumns = postgres.ExtractDBColumns[sales.Payment]()
	itemInsertCols = []string{"id", "sale_id", "line_no", "unit_id", "quantity", "unit_price", "subtotal"}
)

// SalesRepo implements sales.Repository.
type SalesRepo struct {
	db      postgres.QuerierProvider
	builder squirrel.StatementBuilderType
	items   *postgres.BatchInserter
}

var _ sales.Repository = (*SalesRepo)(nil)

// NewSalesRepo creates a new sales repository.
func NewSalesRepo(db postgres.QuerierProvider) *SalesRepo {
	return &SalesRepo{db: db, builder: postgres.Builder(), items: postgres.NewBatchInserter(db)}
}

// Create inserts the sale and its items.
func (r *SalesRepo) Create(ctx context.Context, sale *sales.Sale) error {
	sql, args, err := r.builder.Insert(salesTable).SetMap(postgres.StructToMap(sale)).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.db.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if postgres.UniqueViolation(err) != "" {
			return apperror.NewConflict("invoice number already exists").
				WithDetail("invoice_number", sale.InvoiceNumber).
				WithCause(err)
		}
		return fmt.Errorf("insert sale: %w", err)
	}

	rows := make([][]any, 0, len(sale.Items))
	for i, it := range sale.Items {
		rows = append(rows, []any{it.ID, sale.ID, i + 1, it.UnitID, it.Quantity.Int64(), it.UnitPrice, it.Subtotal})
	}
	_, err = r.items.Insert(ctx, itemsTable, itemInsertCols, rows)
	return err
}

func (r *SalesRepo) GetByID(ctx context.Context, saleID id.ID) (*sales.Sale, error) {
	return r.load(ctx, squirrel.Eq{"id": saleID}, false, saleID.String())
}

func (r *SalesRepo) GetForUpdate(ctx context.Context, saleID id.ID) (*sales.Sale, error) {
	return r.load(ctx, squirrel.Eq{"id": saleID}, true, saleID.String())
}

func (r *SalesRepo) GetByInvoiceNumberForUpdate(ctx context.Context, invoiceNumber string) (*sales.Sale, error) {
	return r.load(ctx, squirrel.Eq{"invoice_number": invoiceNumber}, true, invoiceNumber)
}

func (r *SalesRepo) load(ctx context.Context, where squirrel.Sqlizer, lock bool, ref string) (*sales.Sale, error) {
	q := r.db.GetQuerier(ctx)

	sb := r.builder.Select(saleColumns...).From(salesTable).Where(where)
	if lock {
		sb = sb.Suffix("FOR UPDATE")
	}
	sql, args, err := sb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var sale sales.Sale
	if err := pgxscan.Get(ctx, q, &sale, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("sale", ref)
		}
		return nil, fmt.Errorf("get sale: %w", err)
	}

	sql, args, err = r.builder.Select(itemColumns...).From(itemsTable).
		Where(squirrel.Eq{"sale_id": sale.ID}).
		OrderBy("line_no").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build items query: %w", err)
	}
	if err := pgxscan.Select(ctx, q, &sale.Items, sql, args...); err != nil {
		return nil, fmt.Errorf("select sale items: %w", err)
	}
	return &sale, nil
}

// UpdateStatus persists status, amounts, paid_at, refunded_at and updated_at.
func (r *SalesRepo) UpdateStatus(ctx context.Context, sale *sales.Sale) error {
	sql, args, err := r.builder.Update(salesTable).
		SetMap(map[string]any{
			"status":      sale.Status,
			"amount_paid": sale.AmountPaid,
			"change_due":  sale.ChangeDue,
			"paid_at":     sale.PaidAt,
			"refunded_at": sale.RefundedAt,
			"updated_at":  sale.UpdatedAt,
		}).
		Where(squirrel.Eq{"id": sale.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	tag, err := r.db.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update sale: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("sale", sale.ID.String())
	}
	return nil
}

func (r *SalesRepo) AddPayment(ctx context.Context, payment *sales.Payment) error {
	sql, args, err := r.builder.Insert(paymentsTable).SetMap(postgres.StructToMap(payment)).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.db.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *SalesRepo) ListPayments(ctx context.Context, saleID id.ID) ([]*sales.Payment, error) {
	sql, args, err := r.builder.Select(paymentColumns...).From(paymentsTable).
		Where(squirrel.Eq{"sale_id": saleID}).
		OrderBy("created_at", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var payments []*sales.Payment
	if err := pgxscan.Select(ctx, r.db.GetQuerier(ctx), &payments, sql, args...); err != nil {
		return nil, fmt.Errorf("select payments: %w", err)
	}
	return payments, nil
}

// AddRefund inserts the refund. The unique index on sale_id is the last line
// of defense against a second refund of the same sale.
func (r *SalesRepo) AddRefund(ctx context.Context, refund *sales.Refund) error {
	sql, args, err := r.builder.Insert(refundsTable).SetMap(postgres.StructToMap(refund)).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.db.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if postgres.UniqueViolation(err) != "" {
			return apperror.NewAlready(apperror.CodeAlreadyRefunded, "sale", refund.SaleID.String()).WithCause(err)
		}
		return fmt.Errorf("insert refund: %w", err)
	}
	return nil
}
