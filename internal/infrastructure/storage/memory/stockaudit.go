package memory

import (
	"context"
	"slices"
	"strings"

	"backoffice/internal/core/apperror"
	"backoffice/internal/core/id"
	"backoffice/internal/domain"
	"backoffice/internal/domain/stockaudit"
)

// AuditRepo implements stockaudit.Repository.
type AuditRepo struct {
	s *Store
}

var _ stockaudit.Repository = (*AuditRepo)(nil)

func (r *AuditRepo) Create(ctx context.Context, audit *stockaudit.Audit) error {
	return r.s.write(ctx, func(d *dataset) error {
		d.audits[audit.ID] = *audit
		return nil
	})
}

func (r *AuditRepo) GetByID(ctx context.Context, auditID id.ID) (*stockaudit.Audit, error) {
	var (
		a  stockaudit.Audit
		ok bool
	)
	r.s.read(ctx, func(d *dataset) { a, ok = d.audits[auditID] })
	if !ok {
		return nil, apperror.NewNotFound("stock audit", auditID.String())
	}
	return &a, nil
}

func (r *AuditRepo) GetForUpdate(ctx context.Context, auditID id.ID) (*stockaudit.Audit, error) {
	return r.GetByID(ctx, auditID)
}

func (r *AuditRepo) Delete(ctx context.Context, auditID id.ID) error {
	return r.s.write(ctx, func(d *dataset) error {
		if _, ok := d.audits[auditID]; !ok {
			return apperror.NewNotFound("stock audit", auditID.String())
		}
		delete(d.audits, auditID)
		return nil
	})
}

func (r *AuditRepo) ListByUnit(ctx context.Context, unitID id.ID, filter domain.PageFilter) ([]*stockaudit.Audit, int64, error) {
	var matched []*stockaudit.Audit
	r.s.read(ctx, func(d *dataset) {
		for _, a := range d.audits {
			if a.UnitID != unitID {
				continue
			}
			if !filter.From.IsZero() && a.CreatedAt.Before(filter.From) {
				continue
			}
			if !filter.To.IsZero() && !a.CreatedAt.Before(filter.To) {
				continue
			}
			matched = append(matched, &a)
		}
	})
	slices.SortFunc(matched, func(a, b *stockaudit.Audit) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID.String(), a.ID.String())
	})
	return page(matched, filter.Offset, filter.Limit), int64(len(matched)), nil
}
