package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"backoffice/internal/core/apperror"
	"backoffice/internal/core/entity"
	"backoffice/internal/core/id"
	"backoffice/internal/core/tx"
	"backoffice/internal/core/types"
	"backoffice/internal/domain"
	"backoffice/pkg/logger"
)

var tracer = otel.Tracer("backoffice/ledger")

// Service is the only sanctioned writer of unit balances.
type Service struct {
	repo      Repository
	txManager tx.Manager
	hooks     *domain.HookRegistry[*Entry]
	now       func() time.Time
}

// NewService creates a new ledger service.
func NewService(repo Repository, txManager tx.Manager) *Service {
	return &Service{
		repo:      repo,
		txManager: txManager,
		hooks:     domain.NewHookRegistry[*Entry](),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Hooks returns the hook registry for external registration.
// AfterCommit hooks receive every entry passed to AfterCommit.
func (s *Service) Hooks() *domain.HookRegistry[*Entry] {
	return s.hooks
}

// ApplyDelta moves a unit's balance and appends the matching entry atomically.
//
// The balance update is a single conditional statement, so two concurrent
// callers can never both pass an availability check that together oversells.
// When called inside an outer transaction, the unit row stays locked until
// that transaction commits, which keeps the before/after chain contiguous.
func (s *Service) ApplyDelta(ctx context.Context, d Delta) (*Entry, error) {
	if err := d.Validate(ctx); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "ledger.ApplyDelta",
		trace.WithAttributes(
			attribute.String("unit.id", d.UnitID.String()),
			attribute.String("entry.type", string(d.Type)),
			attribute.Int64("quantity.change", d.Change.Int64()),
		))
	defer span.End()

	var entry *Entry
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		after, err := s.repo.AdjustQuantity(ctx, d.UnitID, d.Change)
		if err != nil {
			return err
		}

		entry = &Entry{
			ID:             id.New(),
			UnitID:         d.UnitID,
			Type:           d.Type,
			QuantityBefore: after - d.Change,
			QuantityAfter:  after,
			QuantityChange: d.Change,
			Note:           d.Note,
			Actor:          d.Actor,
			SourceType:     d.Source.Type,
			CreatedAt:      s.now(),
		}
		if !id.IsNil(d.Source.ID) {
			sourceID := d.Source.ID
			entry.SourceID = &sourceID
		}

		if err := s.repo.AppendEntry(ctx, entry); err != nil {
			return fmt.Errorf("append ledger entry: %w", err)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	logger.Debug(ctx, "ledger entry appended",
		"unit_id", entry.UnitID,
		"type", entry.Type,
		"before", entry.QuantityBefore,
		"after", entry.QuantityAfter,
	)
	return entry, nil
}

// AfterCommit runs the after-commit hooks (low-stock alerts) for entries whose
// transaction has committed. Failures are logged only.
func (s *Service) AfterCommit(ctx context.Context, entries ...*Entry) {
	for _, e := range entries {
		if e == nil {
			continue
		}
		if err := s.hooks.Run(ctx, domain.AfterCommit, e); err != nil {
			logger.Warn(ctx, "ledger after-commit hook failed", "unit_id", e.UnitID, "entry_id", e.ID, "error", err)
		}
	}
}

// Adjust records a manual correction (opening stock, breakage, found goods).
func (s *Service) Adjust(ctx context.Context, unitID id.ID, change types.Quantity, note string, actor entity.Actor) (*Entry, error) {
	entry, err := s.ApplyDelta(ctx, Delta{
		UnitID: unitID,
		Change: change,
		Type:   EntryAdjustment,
		Source: SourceRef{Type: SourceManual},
		Actor:  actor,
		Note:   note,
	})
	if err != nil {
		return nil, err
	}

	s.AfterCommit(ctx, entry)
	logger.Info(ctx, "manual stock adjustment", "unit_id", unitID, "change", change, "after", entry.QuantityAfter)
	return entry, nil
}

// RegisterUnit creates a unit at zero and books its opening stock as an
// ADJUSTMENT, so the ledger replays to the balance from the first entry.
func (s *Service) RegisterUnit(ctx context.Context, u *Unit, opening types.Quantity, actor entity.Actor) (*Unit, error) {
	if u == nil {
		return nil, apperror.NewValidation("unit is required")
	}
	if strings.TrimSpace(u.SKU) == "" {
		return nil, apperror.NewValidation("sku is required").WithDetail("field", "sku")
	}
	if opening.IsNegative() {
		return nil, apperror.NewInvalidQuantity("opening stock must not be negative", opening.Int64())
	}
	if u.MinStockLevel.IsNegative() {
		return nil, apperror.NewInvalidQuantity("min stock level must not be negative", u.MinStockLevel.Int64())
	}
	if actor.IsZero() {
		return nil, apperror.NewValidation("actor is required").WithDetail("field", "actor")
	}

	if id.IsNil(u.ID) {
		u.ID = id.New()
	}
	u.Quantity = 0
	u.Timestamps = entity.NewTimestamps()

	var entry *Entry
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.CreateUnit(ctx, u); err != nil {
			return fmt.Errorf("create unit: %w", err)
		}
		if opening.IsZero() {
			return nil
		}
		var err error
		entry, err = s.ApplyDelta(ctx, Delta{
			UnitID: u.ID,
			Change: opening,
			Type:   EntryAdjustment,
			Source: SourceRef{Type: SourceManual},
			Actor:  actor,
			Note:   "opening stock",
		})
		if err != nil {
			return err
		}
		u.Quantity = entry.QuantityAfter
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "unit registered", "unit_id", u.ID, "sku", u.SKU, "opening", opening)
	return u, nil
}

// GetUnit returns a unit by ID.
func (s *Service) GetUnit(ctx context.Context, unitID id.ID) (*Unit, error) {
	u, err := s.repo.GetUnit(ctx, unitID)
	if err != nil {
		return nil, normalizeUnitErr(err, unitID)
	}
	return u, nil
}

// CheckAvailable returns the unit when it holds at least qty.
// This is a read used to reject doomed requests early with a precise error;
// correctness still rests on the conditional update in ApplyDelta.
func (s *Service) CheckAvailable(ctx context.Context, unitID id.ID, qty types.Quantity) (*Unit, error) {
	u, err := s.GetUnit(ctx, unitID)
	if err != nil {
		return nil, err
	}
	if u.Quantity < qty {
		return nil, apperror.NewInsufficientStock(unitID.String(), qty.Int64(), u.Quantity.Int64())
	}
	return u, nil
}

// History returns a page of a unit's ledger, newest first.
func (s *Service) History(ctx context.Context, unitID id.ID, filter domain.PageFilter) (domain.ListResult[*Entry], error) {
	filter = filter.Normalize()
	if _, err := s.GetUnit(ctx, unitID); err != nil {
		return domain.ListResult[*Entry]{}, err
	}

	items, total, err := s.repo.ListEntries(ctx, unitID, filter)
	if err != nil {
		return domain.ListResult[*Entry]{}, fmt.Errorf("list ledger entries: %w", err)
	}
	return domain.ListResult[*Entry]{
		Items:      items,
		TotalCount: total,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}, nil
}

// Verify replays the unit's ledger from a zero balance and checks that every
// entry is arithmetically sound, that consecutive entries chain, and that the
// replayed balance equals the stored one.
func (s *Service) Verify(ctx context.Context, unitID id.ID) (*Verification, error) {
	u, err := s.GetUnit(ctx, unitID)
	if err != nil {
		return nil, err
	}
	entries, err := s.repo.AllEntries(ctx, unitID)
	if err != nil {
		return nil, fmt.Errorf("load ledger entries: %w", err)
	}

	v := replay(u, entries)
	if !v.Consistent {
		logger.Error(ctx, "ledger inconsistency detected",
			"unit_id", unitID,
			"balance", v.Balance,
			"replayed", v.Replayed,
			"breaks", len(v.Breaks),
		)
	}
	return v, nil
}

// VerifyTouchedSince verifies every unit with ledger activity since the given time.
// The worker calls it periodically; only inconsistent units are returned.
func (s *Service) VerifyTouchedSince(ctx context.Context, since time.Time) ([]*Verification, error) {
	unitIDs, err := s.repo.UnitsTouchedSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("list touched units: %w", err)
	}

	var broken []*Verification
	for _, unitID := range unitIDs {
		v, err := s.Verify(ctx, unitID)
		if err != nil {
			return broken, err
		}
		if !v.Consistent {
			broken = append(broken, v)
		}
	}
	return broken, nil
}

func replay(u *Unit, entries []*Entry) *Verification {
	v := &Verification{
		UnitID:  u.ID,
		Balance: u.Quantity,
		Entries: len(entries),
	}

	var running types.Quantity
	for _, e := range entries {
		if e.QuantityBefore != running {
			v.Breaks = append(v.Breaks, ChainBreak{
				EntryID:  e.ID,
				Expected: running,
				Actual:   e.QuantityBefore,
				Reason:   "quantity_before does not match previous quantity_after",
			})
		}
		if e.QuantityBefore+e.QuantityChange != e.QuantityAfter {
			v.Breaks = append(v.Breaks, ChainBreak{
				EntryID:  e.ID,
				Expected: e.QuantityBefore + e.QuantityChange,
				Actual:   e.QuantityAfter,
				Reason:   "quantity_after is not quantity_before + quantity_change",
			})
		}
		v.Replayed += e.QuantityChange
		running = e.QuantityAfter
	}

	v.Consistent = len(v.Breaks) == 0 && v.Replayed == v.Balance
	return v
}

func normalizeUnitErr(err error, unitID id.ID) error {
	if apperror.IsNotFound(err) {
		return apperror.NewNotFound("unit", unitID.String())
	}
	if apperror.IsAppError(err) {
		return err
	}
	return apperror.NewInternal(err).WithDetail("unit_id", unitID.String())
}
