package procurement

import (
	"context"

	"backoffice/internal/core/id"
)

// Repository stores one order kind.
type Repository[T Order] interface {
	// Create inserts the order and its lines. Implementations backed by a
	// database also enforce the open-order uniqueness and report a violation
	// as CONFLICTING_PENDING_ORDER.
	Create(ctx context.Context, order T) error

	// GetByID returns NotFound when the order does not exist.
	GetByID(ctx context.Context, orderID id.ID) (T, error)

	// GetForUpdate loads and locks the order until the transaction ends.
	GetForUpdate(ctx context.Context, orderID id.ID) (T, error)

	// UpdateState persists the lifecycle fields and updated_at.
	UpdateState(ctx context.Context, order T) error

	// UpdateLineReceived persists a line's received quantity.
	UpdateLineReceived(ctx context.Context, line *LineItem) error

	// HasOpenOrder reports whether a Pending or Accepted order exists for the conflict key.
	HasOpenOrder(ctx context.Context, conflictKey id.ID) (bool, error)
}

// PurchaseOrderRepository stores purchase orders.
type PurchaseOrderRepository = Repository[*PurchaseOrder]

// ReorderRepository stores reorders.
type ReorderRepository = Repository[*Reorder]
