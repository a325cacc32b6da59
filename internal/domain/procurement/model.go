package procurement

import (
	"context"
	"fmt"

	"backoffice/internal/core/apperror"
	"backoffice/internal/core/entity"
	"backoffice/internal/core/id"
	"backoffice/internal/core/types"
	"backoffice/internal/domain/ledger"
	"backoffice/internal/domain/token"
)

// LineItem is one ordered unit with its receiving progress.
type LineItem struct {
	ID               id.ID          `db:"id" json:"id"`
	OrderID          id.ID          `db:"order_id" json:"orderId"`
	UnitID           id.ID          `db:"unit_id" json:"unitId"`
	QuantityOrdered  types.Quantity `db:"quantity_ordered" json:"quantityOrdered"`
	QuantityReceived types.Quantity `db:"quantity_received" json:"quantityReceived"`
	UnitCost         types.Money    `db:"unit_cost" json:"unitCost"`
}

// IsComplete reports whether everything ordered has arrived.
func (li *LineItem) IsComplete() bool {
	return li.QuantityReceived == li.QuantityOrdered
}

func (li *LineItem) validate(idx int) error {
	if id.IsNil(li.UnitID) {
		return apperror.NewValidation(fmt.Sprintf("line %d: unit is required", idx+1)).WithDetail("line", idx+1)
	}
	if !li.QuantityOrdered.IsPositive() {
		return apperror.NewInvalidQuantity(fmt.Sprintf("line %d: quantity must be positive", idx+1), li.QuantityOrdered.Int64()).
			WithDetail("line", idx+1)
	}
	if li.UnitCost.IsNegative() {
		return apperror.NewValidation(fmt.Sprintf("line %d: unit cost must not be negative", idx+1)).WithDetail("line", idx+1)
	}
	return nil
}

// LineInput describes a line of a new order.
type LineInput struct {
	UnitID   id.ID
	Quantity types.Quantity
	UnitCost types.Money
}

// Order is the contract the lifecycle machine runs over. Purchase orders and
// reorders differ only in how many lines they carry and what they conflict on.
type Order interface {
	entity.Validatable

	OrderID() id.ID
	Kind() token.Kind
	Counterparty() id.ID
	State() *Lifecycle
	Lines() []*LineItem

	// ConflictKey is the need that must not be procured twice at once:
	// the supplier for a purchase order, the unit for a reorder.
	ConflictKey() id.ID

	// LedgerSource tells the ledger which entry type and source a receipt on line produces.
	LedgerSource(line *LineItem) (ledger.EntryType, ledger.SourceRef)
	Creator() entity.Actor
	Touch()
}

// Header holds the fields common to both order kinds.
type Header struct {
	ID         id.ID        `db:"id" json:"id"`
	SupplierID id.ID        `db:"supplier_id" json:"supplierId"`
	Notes      string       `db:"notes" json:"notes,omitempty"`
	CreatedBy  entity.Actor `db:"created_by" json:"createdBy"`
	Lifecycle
	entity.Timestamps
}

func newHeader(supplierID id.ID, notes string, createdBy entity.Actor) Header {
	return Header{
		ID:         id.New(),
		SupplierID: supplierID,
		Notes:      notes,
		CreatedBy:  createdBy,
		Lifecycle:  NewLifecycle(),
		Timestamps: entity.NewTimestamps(),
	}
}

func (h *Header) OrderID() id.ID { return h.ID }
func (h *Header) Counterparty() id.ID { return h.SupplierID }
func (h *Header) State() *Lifecycle { return &h.Lifecycle }
func (h *Header) Creator() entity.Actor { return h.CreatedBy }
func (h *Header) Touch() { h.Timestamps.Touch() }

func (h *Header) validate() error {
	if id.IsNil(h.SupplierID) {
		return apperror.NewValidation("supplier is required").WithDetail("field", "supplierId")
	}
	if h.CreatedBy.IsZero() {
		return apperror.NewValidation("creator is required").WithDetail("field", "createdBy")
	}
	return nil
}

// PurchaseOrder is a multi-line procurement request to a supplier.
type PurchaseOrder struct {
	Header
	Items []*LineItem `db:"-" json:"items"`
}

var _ Order = (*PurchaseOrder)(nil)

// NewPurchaseOrder builds a Pending purchase order.
func NewPurchaseOrder(supplierID id.ID, notes string, createdBy entity.Actor, lines []LineInput) *PurchaseOrder {
	po := &PurchaseOrder{Header: newHeader(supplierID, notes, createdBy)}
	for _, in := range lines {
		po.Items = append(po.Items, &LineItem{
			ID:              id.New(),
			OrderID:         po.ID,
			UnitID:          in.UnitID,
			QuantityOrdered: in.Quantity,
			UnitCost:        in.UnitCost,
		})
	}
	return po
}

func (po *PurchaseOrder) Kind() token.Kind { return token.KindPurchaseOrder }
func (po *PurchaseOrder) Lines() []*LineItem { return po.Items }
func (po *PurchaseOrder) ConflictKey() id.ID { return po.SupplierID }

func (po *PurchaseOrder) LedgerSource(line *LineItem) (ledger.EntryType, ledger.SourceRef) {
	return ledger.EntryPurchase, ledger.SourceRef{Type: ledger.SourcePurchaseOrderItem, ID: line.ID}
}

// Validate checks purchase order invariants.
func (po *PurchaseOrder) Validate(_ context.Context) error {
	if err := po.Header.validate(); err != nil {
		return err
	}
	if len(po.Items) == 0 {
		return apperror.NewValidation("purchase order must have at least one line").WithDetail("field", "items")
	}
	for i, li := range po.Items {
		if err := li.validate(i); err != nil {
			return err
		}
	}
	return nil
}

// Reorder is a single-line procurement request.
type Reorder struct {
	Header
	Item LineItem `db:"-" json:"item"`
}

var _ Order = (*Reorder)(nil)

// NewReorder builds a Pending reorder. Its line shares the reorder's ID.
func NewReorder(supplierID id.ID, notes string, createdBy entity.Actor, line LineInput) *Reorder {
	r := &Reorder{Header: newHeader(supplierID, notes, createdBy)}
	r.Item = LineItem{
		ID:              r.ID,
		OrderID:         r.ID,
		UnitID:          line.UnitID,
		QuantityOrdered: line.Quantity,
		UnitCost:        line.UnitCost,
	}
	return r
}

func (r *Reorder) Kind() token.Kind { return token.KindReorder }
func (r *Reorder) Lines() []*LineItem { return []*LineItem{&r.Item} }
func (r *Reorder) ConflictKey() id.ID { return r.Item.UnitID }

func (r *Reorder) LedgerSource(_ *LineItem) (ledger.EntryType, ledger.SourceRef) {
	return ledger.EntryReorder, ledger.SourceRef{Type: ledger.SourceReorder, ID: r.ID}
}

// Validate checks reorder invariants.
func (r *Reorder) Validate(_ context.Context) error {
	if err := r.Header.validate(); err != nil {
		return err
	}
	return r.Item.validate(0)
}

// allComplete reports whether every line of the order is fully received.
func allComplete(o Order) bool {
	for _, li := range o.Lines() {
		if !li.IsComplete() {
			return false
		}
	}
	return true
}
