package dto

import (
	"backoffice/internal/core/id"
	"backoffice/internal/core/types"
	"backoffice/internal/domain/procurement"
)

// OrderLineRequest is one line of a new order.
type OrderLineRequest struct {
	UnitID   id.ID          `json:"unitId"`
	Quantity types.Quantity `json:"quantity"`
	UnitCost types.Money    `json:"unitCost"`
}

func (l OrderLineRequest) toInput() procurement.LineInput {
	return procurement.LineInput{UnitID: l.UnitID, Quantity: l.Quantity, UnitCost: l.UnitCost}
}

// CreatePurchaseOrderRequest creates a multi-line purchase order.
type CreatePurchaseOrderRequest struct {
	SupplierID id.ID              `json:"supplierId"`
	Notes      string             `json:"notes" binding:"max=1000"`
	Items      []OrderLineRequest `json:"items" binding:"required,min=1,dive"`
}

// Lines converts the request lines.
func (r CreatePurchaseOrderRequest) Lines() []procurement.LineInput {
	out := make([]procurement.LineInput, 0, len(r.Items))
	for _, l := range r.Items {
		out = append(out, l.toInput())
	}
	return out
}

// CreateReorderRequest creates a single-unit reorder.
type CreateReorderRequest struct {
	SupplierID id.ID            `json:"supplierId"`
	Notes      string           `json:"notes" binding:"max=1000"`
	Item       OrderLineRequest `json:"item"`
}

// Line converts the request line.
func (r CreateReorderRequest) Line() procurement.LineInput {
	return r.Item.toInput()
}

// CancelOrderRequest cancels an order.
type CancelOrderRequest struct {
	Reason string `json:"reason" binding:"required,max=1000"`
}

// ReceiptRequest sets the cumulative received quantity of a line.
type ReceiptRequest struct {
	QuantityReceived types.Quantity `json:"quantityReceived"`
}

// AcceptOrderRequest is the supplier confirming an order.
type AcceptOrderRequest struct {
	OrderID id.ID  `json:"orderId"`
	Notes   string `json:"notes" binding:"max=1000"`
}

// RejectOrderRequest is the supplier declining an order.
type RejectOrderRequest struct {
	OrderID id.ID  `json:"orderId"`
	Reason  string `json:"reason" binding:"max=1000"`
}

// ReceiptResponse is the outcome of a receipt.
type ReceiptResponse[T procurement.Order] struct {
	Order   T                     `json:"order"`
	Line    *procurement.LineItem `json:"line"`
	Changed bool                  `json:"changed"`
}

// FromReceipt creates ReceiptResponse.
func FromReceipt[T procurement.Order](r *procurement.Receipt[T]) ReceiptResponse[T] {
	return ReceiptResponse[T]{Order: r.Order, Line: r.Line, Changed: r.Entry != nil}
}
