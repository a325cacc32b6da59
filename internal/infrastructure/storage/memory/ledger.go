package memory

import (
	"context"
	"slices"
	"time"

	"backoffice/internal/core/apperror"
	"backoffice/internal/core/id"
	"backoffice/internal/core/types"
	"backoffice/internal/domain"
	"backoffice/internal/domain/ledger"
)

// LedgerRepo implements ledger.Repository.
type LedgerRepo struct {
	s *Store
}

var _ ledger.Repository = (*LedgerRepo)(nil)

func (r *LedgerRepo) CreateUnit(ctx context.Context, unit *ledger.Unit) error {
	return r.s.write(ctx, func(d *dataset) error {
		if _, ok := d.units[unit.ID]; ok {
			return apperror.NewConflict("unit already exists").WithDetail("unit_id", unit.ID.String())
		}
		for _, u := range d.units {
			if u.SKU == unit.SKU {
				return apperror.NewConflict("sku already exists").WithDetail("sku", unit.SKU)
			}
		}
		d.units[unit.ID] = *unit
		return nil
	})
}

func (r *LedgerRepo) GetUnit(ctx context.Context, unitID id.ID) (*ledger.Unit, error) {
	var (
		u  ledger.Unit
		ok bool
	)
	r.s.read(ctx, func(d *dataset) { u, ok = d.units[unitID] })
	if !ok {
		return nil, apperror.NewNotFound("unit", unitID.String())
	}
	return &u, nil
}

// GetUnitForUpdate is GetUnit: transactions are already serialized.
func (r *LedgerRepo) GetUnitForUpdate(ctx context.Context, unitID id.ID) (*ledger.Unit, error) {
	return r.GetUnit(ctx, unitID)
}

func (r *LedgerRepo) AdjustQuantity(ctx context.Context, unitID id.ID, delta types.Quantity) (types.Quantity, error) {
	var after types.Quantity
	err := r.s.write(ctx, func(d *dataset) error {
		u, ok := d.units[unitID]
		if !ok {
			return apperror.NewNotFound("unit", unitID.String())
		}
		if u.Quantity+delta < 0 {
			return apperror.NewInsufficientStock(unitID.String(), delta.Neg().Int64(), u.Quantity.Int64())
		}
		u.Quantity += delta
		u.Touch()
		d.units[unitID] = u
		after = u.Quantity
		return nil
	})
	return after, err
}

func (r *LedgerRepo) AppendEntry(ctx context.Context, entry *ledger.Entry) error {
	return r.s.write(ctx, func(d *dataset) error {
		d.entries = append(d.entries, *entry)
		return nil
	})
}

func (r *LedgerRepo) ListEntries(ctx context.Context, unitID id.ID, filter domain.PageFilter) ([]*ledger.Entry, int64, error) {
	var matched []*ledger.Entry
	r.s.read(ctx, func(d *dataset) {
		for i := len(d.entries) - 1; i >= 0; i-- {
			e := d.entries[i]
			if e.UnitID != unitID {
				continue
			}
			if !filter.From.IsZero() && e.CreatedAt.Before(filter.From) {
				continue
			}
			if !filter.To.IsZero() && !e.CreatedAt.Before(filter.To) {
				continue
			}
			matched = append(matched, &e)
		}
	})
	return page(matched, filter.Offset, filter.Limit), int64(len(matched)), nil
}

func (r *LedgerRepo) AllEntries(ctx context.Context, unitID id.ID) ([]*ledger.Entry, error) {
	var out []*ledger.Entry
	r.s.read(ctx, func(d *dataset) {
		for _, e := range d.entries {
			if e.UnitID == unitID {
				out = append(out, &e)
			}
		}
	})
	return out, nil
}

func (r *LedgerRepo) UnitsTouchedSince(ctx context.Context, since time.Time) ([]id.ID, error) {
	var out []id.ID
	r.s.read(ctx, func(d *dataset) {
		for _, e := range d.entries {
			if !e.CreatedAt.Before(since) && !slices.Contains(out, e.UnitID) {
				out = append(out, e.UnitID)
			}
		}
	})
	return out, nil
}
