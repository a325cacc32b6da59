package stock_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"backoffice/internal/core/apperror"
	"backoffice/internal/core/id"
	"backoffice/internal/domain"
	"backoffice/internal/domain/stockaudit"
	"backoffice/internal/infrastructure/storage/postgres"
)

const auditsTable = "inv_stock_audits"

var auditColumns = postgres.ExtractDBColumns[stockaudit.Audit]()

// AuditRepo implements stockaudit.Repository.
type AuditRepo struct {
	db      postgres.QuerierProvider
	builder squirrel.StatementBuilderType
}

var _ stockaudit.Repository = (*AuditRepo)(nil)

// NewAuditRepo creates a new stock audit repository.
func NewAuditRepo(db postgres.QuerierProvider) *AuditRepo {
	return &AuditRepo{db: db, builder: postgres.Builder()}
}

func (r *AuditRepo) Create(ctx context.Context, audit *stockaudit.Audit) error {
	sql, args, err := r.builder.Insert(auditsTable).SetMap(postgres.StructToMap(audit)).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.db.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if postgres.IsForeignKeyViolation(err) {
			return apperror.NewNotFound("unit", audit.UnitID.String()).WithCause(err)
		}
		return fmt.Errorf("insert stock audit: %w", err)
	}
	return nil
}

func (r *AuditRepo) GetByID(ctx context.Context, auditID id.ID) (*stockaudit.Audit, error) {
	return r.get(ctx, auditID, false)
}

func (r *AuditRepo) GetForUpdate(ctx context.Context, auditID id.ID) (*stockaudit.Audit, error) {
	return r.get(ctx, auditID, true)
}

func (r *AuditRepo) get(ctx context.Context, auditID id.ID, lock bool) (*stockaudit.Audit, error) {
	q := r.builder.Select(auditColumns...).From(auditsTable).Where(squirrel.Eq{"id": auditID})
	if lock {
		q = q.Suffix("FOR UPDATE")
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var a stockaudit.Audit
	if err := pgxscan.Get(ctx, r.db.GetQuerier(ctx), &a, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("stock audit", auditID.String())
		}
		return nil, fmt.Errorf("get stock audit: %w", err)
	}
	return &a, nil
}

func (r *AuditRepo) Delete(ctx context.Context, auditID id.ID) error {
	sql, args, err := r.builder.Delete(auditsTable).Where(squirrel.Eq{"id": auditID}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	tag, err := r.db.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("delete stock audit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("stock audit", auditID.String())
	}
	return nil
}

func (r *AuditRepo) ListByUnit(ctx context.Context, unitID id.ID, filter domain.PageFilter) ([]*stockaudit.Audit, int64, error) {
	filter = filter.Normalize()
	where := squirrel.Eq{"unit_id": unitID}
	q := r.db.GetQuerier(ctx)

	countSQL, countArgs, err := r.builder.Select("COUNT(*)").From(auditsTable).Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count: %w", err)
	}
	var total int64
	if err := q.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count stock audits: %w", err)
	}

	sql, args, err := r.builder.Select(auditColumns...).From(auditsTable).
		Where(where).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(filter.Limit)).
		Offset(uint64(filter.Offset)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build query: %w", err)
	}

	var audits []*stockaudit.Audit
	if err := pgxscan.Select(ctx, q, &audits, sql, args...); err != nil {
		return nil, 0, fmt.Errorf("list stock audits: %w", err)
	}
	return audits, total, nil
}
