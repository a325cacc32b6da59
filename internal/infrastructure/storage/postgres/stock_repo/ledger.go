// Package stock_repo provides PostgreSQL implementations of the ledger and
// stock audit repositories.
package stock_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"backoffice/internal/core/apperror"
	"backoffice/internal/core/id"
	"backoffice/internal/core/types"
	"backoffice/internal/domain"
	"backoffice/internal/domain/ledger"
	"backoffice/internal/infrastructure/storage/postgres"
)

const (
	unitsTable   = "inv_units"
	entriesTable = "inv_ledger_entries"

	skuUniqueIndex = "inv_units_sku_uq"
)

var (
	unitColumns  = postgres.ExtractDBColumns[ledger.Unit]()
	entryColumns = postgres.ExtractDBColumns[ledger.Entry]()
)

// LedgerRepo implements ledger.Repository.
type LedgerRepo struct {
	db      postgres.QuerierProvider
	builder squirrel.StatementBuilderType
}

var _ ledger.Repository = (*LedgerRepo)(nil)

// NewLedgerRepo creates a new ledger repository.
func NewLedgerRepo(db postgres.QuerierProvider) *LedgerRepo {
	return &LedgerRepo{db: db, builder: postgres.Builder()}
}

// CreateUnit inserts a unit with a zero balance.
func (r *LedgerRepo) CreateUnit(ctx context.Context, unit *ledger.Unit) error {
	data := postgres.StructToMap(unit)
	data["quantity"] = int64(0)

	sql, args, err := r.builder.Insert(unitsTable).SetMap(data).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.db.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		switch postgres.UniqueViolation(err) {
		case "":
			return fmt.Errorf("insert unit: %w", err)
		case skuUniqueIndex:
			return apperror.NewConflict("sku already exists").WithDetail("sku", unit.SKU).WithCause(err)
		default:
			return apperror.NewConflict("unit already exists").WithDetail("unit_id", unit.ID.String()).WithCause(err)
		}
	}
	return nil
}

// GetUnit returns NotFound when the unit does not exist.
func (r *LedgerRepo) GetUnit(ctx context.Context, unitID id.ID) (*ledger.Unit, error) {
	return r.getUnit(ctx, unitID, false)
}

// GetUnitForUpdate locks the unit row until the transaction ends.
func (r *LedgerRepo) GetUnitForUpdate(ctx context.Context, unitID id.ID) (*ledger.Unit, error) {
	return r.getUnit(ctx, unitID, true)
}

func (r *LedgerRepo) getUnit(ctx context.Context, unitID id.ID, lock bool) (*ledger.Unit, error) {
	q := r.builder.Select(unitColumns...).From(unitsTable).Where(squirrel.Eq{"id": unitID})
	if lock {
		q = q.Suffix("FOR UPDATE")
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var unit ledger.Unit
	if err := pgxscan.Get(ctx, r.db.GetQuerier(ctx), &unit, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("unit", unitID.String())
		}
		return nil, fmt.Errorf("get unit: %w", err)
	}
	return &unit, nil
}

// AdjustQuantity applies delta in a single conditional UPDATE. The row lock
// it takes serializes concurrent writers of the same unit, and the
// quantity + delta >= 0 predicate makes an overdraw match zero rows.
func (r *LedgerRepo) AdjustQuantity(ctx context.Context, unitID id.ID, delta types.Quantity) (types.Quantity, error) {
	sql, args, err := r.builder.Update(unitsTable).
		Set("quantity", squirrel.Expr("quantity + ?", delta.Int64())).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": unitID}).
		Where(squirrel.Expr("quantity + ? >= 0", delta.Int64())).
		Suffix("RETURNING quantity").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build update: %w", err)
	}

	q := r.db.GetQuerier(ctx)

	var after int64
	err = q.QueryRow(ctx, sql, args...).Scan(&after)
	if err == nil {
		return types.Quantity(after), nil
	}
	if !postgres.IsNoRows(err) {
		return 0, fmt.Errorf("adjust quantity: %w", err)
	}

	// Nothing matched: either the unit is gone or the balance is too low.
	var current int64
	err = q.QueryRow(ctx, "SELECT quantity FROM "+unitsTable+" WHERE id = $1", unitID).Scan(&current)
	if postgres.IsNoRows(err) {
		return 0, apperror.NewNotFound("unit", unitID.String())
	}
	if err != nil {
		return 0, fmt.Errorf("read quantity: %w", err)
	}
	return 0, apperror.NewInsufficientStock(unitID.String(), delta.Neg().Int64(), current)
}

// AppendEntry inserts an immutable entry.
func (r *LedgerRepo) AppendEntry(ctx context.Context, entry *ledger.Entry) error {
	sql, args, err := r.builder.Insert(entriesTable).SetMap(postgres.StructToMap(entry)).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.db.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

// ListEntries returns a page of a unit's entries, newest first.
func (r *LedgerRepo) ListEntries(ctx context.Context, unitID id.ID, filter domain.PageFilter) ([]*ledger.Entry, int64, error) {
	filter = filter.Normalize()

	where := squirrel.And{squirrel.Eq{"unit_id": unitID}}
	if !filter.From.IsZero() {
		where = append(where, squirrel.GtOrEq{"created_at": filter.From})
	}
	if !filter.To.IsZero() {
		where = append(where, squirrel.Lt{"created_at": filter.To})
	}

	q := r.db.GetQuerier(ctx)

	countSQL, countArgs, err := r.builder.Select("COUNT(*)").From(entriesTable).Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count: %w", err)
	}
	var total int64
	if err := q.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count entries: %w", err)
	}

	sql, args, err := r.builder.Select(entryColumns...).From(entriesTable).
		Where(where).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(filter.Limit)).
		Offset(uint64(filter.Offset)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build query: %w", err)
	}

	var entries []*ledger.Entry
	if err := pgxscan.Select(ctx, q, &entries, sql, args...); err != nil {
		return nil, 0, fmt.Errorf("list entries: %w", err)
	}
	return entries, total, nil
}

// AllEntries returns every entry of a unit in write order.
func (r *LedgerRepo) AllEntries(ctx context.Context, unitID id.ID) ([]*ledger.Entry, error) {
	sql, args, err := r.builder.Select(entryColumns...).From(entriesTable).
		Where(squirrel.Eq{"unit_id": unitID}).
		OrderBy("created_at", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var entries []*ledger.Entry
	if err := pgxscan.Select(ctx, r.db.GetQuerier(ctx), &entries, sql, args...); err != nil {
		return nil, fmt.Errorf("select entries: %w", err)
	}
	return entries, nil
}

// UnitsTouchedSince lists units having entries created at or after since.
func (r *LedgerRepo) UnitsTouchedSince(ctx context.Context, since time.Time) ([]id.ID, error) {
	sql, args, err := r.builder.Select("DISTINCT unit_id").From(entriesTable).
		Where(squirrel.GtOrEq{"created_at": since}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var ids []id.ID
	if err := pgxscan.Select(ctx, r.db.GetQuerier(ctx), &ids, sql, args...); err != nil {
		return nil, fmt.Errorf("select touched units: %w", err)
	}
	return ids, nil
}
