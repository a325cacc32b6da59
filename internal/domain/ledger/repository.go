package ledger

import (
	"context"
	"time"

	"backoffice/internal/core/id"
	"backoffice/internal/core/types"
	"backoffice/internal/domain"
)

// Repository is the storage contract of the ledger.
type Repository interface {
	// CreateUnit inserts a unit. The balance always starts at zero.
	CreateUnit(ctx context.Context, unit *Unit) error

	// GetUnit returns NotFound when the unit does not exist.
	GetUnit(ctx context.Context, unitID id.ID) (*Unit, error)

	// GetUnitForUpdate locks the unit row until the transaction ends (SELECT ... FOR UPDATE).
	GetUnitForUpdate(ctx context.Context, unitID id.ID) (*Unit, error)

	// AdjustQuantity adds delta to the balance in one conditional statement and returns the new balance.
	// It must refuse to drive the balance below zero: NotFound if the unit is missing,
	// InsufficientStock (with the current balance) otherwise. The row stays locked until commit.
	AdjustQuantity(ctx context.Context, unitID id.ID, delta types.Quantity) (types.Quantity, error)

	// AppendEntry inserts an immutable entry.
	AppendEntry(ctx context.Context, entry *Entry) error

	// ListEntries returns a page of a unit's entries, newest first.
	ListEntries(ctx context.Context, unitID id.ID, filter domain.PageFilter) ([]*Entry, int64, error)

	// AllEntries returns every entry of a unit in write order (created_at, id).
	AllEntries(ctx context.Context, unitID id.ID) ([]*Entry, error)

	// UnitsTouchedSince lists units having entries created at or after since.
	UnitsTouchedSince(ctx context.Context, since time.Time) ([]id.ID, error)
}
