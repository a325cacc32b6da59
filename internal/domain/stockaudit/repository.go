package stockaudit

import (
	"context"

	"backoffice/internal/core/id"
	"backoffice/internal/domain"
)

// Repository stores audits.
type Repository interface {
	Create(ctx context.Context, audit *Audit) error
	GetByID(ctx context.Context, auditID id.ID) (*Audit, error)
	// GetForUpdate locks the audit row so two deletes cannot both compensate.
	GetForUpdate(ctx context.Context, auditID id.ID) (*Audit, error)
	// Delete removes the audit record. Its ledger entries stay.
	Delete(ctx context.Context, auditID id.ID) error
	ListByUnit(ctx context.Context, unitID id.ID, filter domain.PageFilter) ([]*Audit, int64, error)
}
