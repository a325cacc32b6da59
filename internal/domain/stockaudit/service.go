package stockaudit

import (
	"context"
	"fmt"
	"time"

	"backoffice/internal/core/apperror"
	"backoffice/internal/core/entity"
	"backoffice/internal/core/id"
	"backoffice/internal/core/tx"
	"backoffice/internal/domain"
	"backoffice/internal/domain/ledger"
	"backoffice/internal/domain/notify"
	"backoffice/pkg/logger"
)

// Service creates and reverses stock audits.
type Service struct {
	repo      Repository
	units     ledger.Repository
	ledger    *ledger.Service
	txManager tx.Manager
	emitter   *notify.Emitter
	now       func() time.Time
}

// NewService creates a new stock audit service.
func NewService(repo Repository, units ledger.Repository, ledgerSvc *ledger.Service, txManager tx.Manager, emitter *notify.Emitter) *Service {
	return &Service{
		repo:      repo,
		units:     units,
		ledger:    ledgerSvc,
		txManager: txManager,
		emitter:   emitter,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create snapshots the unit's balance, stores the count and, when the count
// differs, books the difference as an AUDIT entry.
func (s *Service) Create(ctx context.Context, c Count) (*Audit, error) {
	if err := c.Validate(ctx); err != nil {
		return nil, err
	}

	var (
		audit *Audit
		entry *ledger.Entry
	)
	err := s.emitter.InTransaction(ctx, s.txManager, func(ctx context.Context, out *notify.Pending) error {
		entry = nil
		unit, err := s.units.GetUnitForUpdate(ctx, c.UnitID)
		if err != nil {
			if apperror.IsNotFound(err) {
				return apperror.NewNotFound("unit", c.UnitID.String())
			}
			return fmt.Errorf("lock unit: %w", err)
		}

		audit = &Audit{
			ID:              id.New(),
			UnitID:          unit.ID,
			Auditor:         c.Auditor,
			SystemQuantity:  unit.Quantity,
			CountedQuantity: c.Counted,
			Difference:      c.Counted - unit.Quantity,
			Notes:           c.Notes,
			CreatedAt:       s.now(),
		}
		if err := s.repo.Create(ctx, audit); err != nil {
			return fmt.Errorf("create stock audit: %w", err)
		}

		if !audit.Difference.IsZero() {
			entry, err = s.ledger.ApplyDelta(ctx, ledger.Delta{
				UnitID: unit.ID,
				Change: audit.Difference,
				Type:   ledger.EntryAudit,
				Source: ledger.SourceRef{Type: ledger.SourceStockAudit, ID: audit.ID},
				Actor:  c.Auditor,
				Note:   fmt.Sprintf("count %d, system %d", audit.CountedQuantity, audit.SystemQuantity),
			})
			if err != nil {
				return err
			}
		}

		out.Record(notify.ActivityEvent{
			Actor:       c.Auditor,
			Action:      "stock_audit.created",
			SubjectType: "stock_audit",
			SubjectID:   audit.ID,
			Payload: map[string]any{
				"unit_id":    audit.UnitID.String(),
				"system":     audit.SystemQuantity.Int64(),
				"counted":    audit.CountedQuantity.Int64(),
				"difference": audit.Difference.Int64(),
			},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.ledger.AfterCommit(ctx, entry)
	logger.Info(ctx, "stock audit recorded", "audit_id", audit.ID, "unit_id", audit.UnitID, "difference", audit.Difference)
	return audit, nil
}

// Delete reverses an audit: it books an ADJUSTMENT of -difference and removes
// the record. If the stock counted in has since been consumed, the reversal
// fails with INSUFFICIENT_STOCK instead of clamping at zero.
func (s *Service) Delete(ctx context.Context, auditID id.ID, actor entity.Actor) error {
	if actor.IsZero() {
		return apperror.NewValidation("actor is required").WithDetail("field", "actor")
	}

	var (
		audit *Audit
		entry *ledger.Entry
	)
	err := s.emitter.InTransaction(ctx, s.txManager, func(ctx context.Context, out *notify.Pending) error {
		entry = nil
		var err error
		audit, err = s.repo.GetForUpdate(ctx, auditID)
		if err != nil {
			if apperror.IsNotFound(err) {
				return apperror.NewNotFound("stock audit", auditID.String())
			}
			return fmt.Errorf("load stock audit: %w", err)
		}

		if !audit.Difference.IsZero() {
			entry, err = s.ledger.ApplyDelta(ctx, ledger.Delta{
				UnitID: audit.UnitID,
				Change: audit.Difference.Neg(),
				Type:   ledger.EntryAdjustment,
				Source: ledger.SourceRef{Type: ledger.SourceStockAudit, ID: audit.ID},
				Actor:  actor,
				Note:   "reversal of deleted stock audit",
			})
			if err != nil {
				return err
			}
		}

		if err := s.repo.Delete(ctx, auditID); err != nil {
			return fmt.Errorf("delete stock audit: %w", err)
		}

		out.Record(notify.ActivityEvent{
			Actor:       actor,
			Action:      "stock_audit.deleted",
			SubjectType: "stock_audit",
			SubjectID:   auditID,
			Payload: map[string]any{
				"unit_id":  audit.UnitID.String(),
				"reversed": audit.Difference.Neg().Int64(),
			},
		})
		return nil
	})
	if err != nil {
		return err
	}

	s.ledger.AfterCommit(ctx, entry)
	logger.Info(ctx, "stock audit reversed", "audit_id", auditID, "unit_id", audit.UnitID)
	return nil
}

// Get returns an audit by ID.
func (s *Service) Get(ctx context.Context, auditID id.ID) (*Audit, error) {
	a, err := s.repo.GetByID(ctx, auditID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewNotFound("stock audit", auditID.String())
		}
		return nil, err
	}
	return a, nil
}

// ListByUnit returns a page of a unit's audits, newest first.
func (s *Service) ListByUnit(ctx context.Context, unitID id.ID, filter domain.PageFilter) (domain.ListResult[*Audit], error) {
	filter = filter.Normalize()
	items, total, err := s.repo.ListByUnit(ctx, unitID, filter)
	if err != nil {
		return domain.ListResult[*Audit]{}, fmt.Errorf("list stock audits: %w", err)
	}
	return domain.ListResult[*Audit]{Items: items, TotalCount: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}
