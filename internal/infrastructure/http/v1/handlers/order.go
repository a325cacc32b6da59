package handlers

import (
	"github.com/gin-gonic/gin"

	"backoffice/internal/core/apperror"
	"backoffice/internal/core/entity"
	"backoffice/internal/core/id"
	"backoffice/internal/domain/procurement"
	"backoffice/internal/infrastructure/http/v1/dto"
)

// orderBuilder decodes a create request into a new order.
type orderBuilder[T procurement.Order] func(h *BaseHandler, c *gin.Context, actor entity.Actor) (T, bool)

// OrderHandler serves both order kinds: the staff endpoints and the public
// supplier endpoints reached through a capability link.
type OrderHandler[T procurement.Order] struct {
	*BaseHandler
	orders *procurement.Machine[T]
	build  orderBuilder[T]
}

// NewPurchaseOrderHandler creates the purchase order handler.
func NewPurchaseOrderHandler(base *BaseHandler, orders *procurement.Machine[*procurement.PurchaseOrder]) *OrderHandler[*procurement.PurchaseOrder] {
	return &OrderHandler[*procurement.PurchaseOrder]{
		BaseHandler: base,
		orders:      orders,
		build: func(h *BaseHandler, c *gin.Context, actor entity.Actor) (*procurement.PurchaseOrder, bool) {
			var req dto.CreatePurchaseOrderRequest
			if !h.BindJSON(c, &req) {
				return nil, false
			}
			return procurement.NewPurchaseOrder(req.SupplierID, req.Notes, actor, req.Lines()), true
		},
	}
}

// NewReorderHandler creates the reorder handler.
func NewReorderHandler(base *BaseHandler, orders *procurement.Machine[*procurement.Reorder]) *OrderHandler[*procurement.Reorder] {
	return &OrderHandler[*procurement.Reorder]{
		BaseHandler: base,
		orders:      orders,
		build: func(h *BaseHandler, c *gin.Context, actor entity.Actor) (*procurement.Reorder, bool) {
			var req dto.CreateReorderRequest
			if !h.BindJSON(c, &req) {
				return nil, false
			}
			return procurement.NewReorder(req.SupplierID, req.Notes, actor, req.Line()), true
		},
	}
}

// Create stores a Pending order and sends the supplier link.
// POST /{kind}
func (h *OrderHandler[T]) Create(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	order, ok := h.build(h.BaseHandler, c, actor)
	if !ok {
		return
	}

	created, err := h.orders.Create(c.Request.Context(), order)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, created)
}

// Get returns an order.
// GET /{kind}/:id
func (h *OrderHandler[T]) Get(c *gin.Context) {
	orderID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	order, err := h.orders.Get(c.Request.Context(), orderID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, order)
}

// Cancel withdraws an order.
// POST /{kind}/:id/cancel
func (h *OrderHandler[T]) Cancel(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	orderID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req dto.CancelOrderRequest
	if !h.BindJSON(c, &req) {
		return
	}

	order, err := h.orders.Cancel(c.Request.Context(), orderID, req.Reason, actor)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, order)
}

// ResendLink sends a fresh supplier link for a Pending order.
// POST /{kind}/:id/resend-link
func (h *OrderHandler[T]) ResendLink(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	orderID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	if err := h.orders.ResendLink(c.Request.Context(), orderID, actor); err != nil {
		h.Error(c, err)
		return
	}
	h.Success(c, "link sent")
}

// RecordReceipt sets the cumulative received quantity of a line.
// POST /{kind}/:id/lines/:lineId/receipts
// POST /reorders/:id/receipts (single-line orders may omit the line)
func (h *OrderHandler[T]) RecordReceipt(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	orderID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req dto.ReceiptRequest
	if !h.BindJSON(c, &req) {
		return
	}

	lineID, ok := h.lineID(c, orderID)
	if !ok {
		return
	}

	receipt, err := h.orders.RecordReceipt(c.Request.Context(), orderID, lineID, req.QuantityReceived, actor)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromReceipt(receipt))
}

func (h *OrderHandler[T]) lineID(c *gin.Context, orderID id.ID) (id.ID, bool) {
	if c.Param("lineId") != "" {
		return h.ParamID(c, "lineId")
	}

	order, err := h.orders.Get(c.Request.Context(), orderID)
	if err != nil {
		h.Error(c, err)
		return id.Nil(), false
	}
	lines := order.Lines()
	if len(lines) != 1 {
		h.Error(c, apperror.NewValidation("lineId is required for multi-line orders").WithDetail("field", "lineId"))
		return id.Nil(), false
	}
	return lines[0].ID, true
}

// --- Public supplier endpoints ---

// View shows the supplier the order its link points to.
// GET /public/{kind}/:token
func (h *OrderHandler[T]) View(c *gin.Context) {
	order, err := h.orders.ViewByToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, order)
}

// Accept is the supplier confirming the order.
// POST /public/{kind}/:token/accept
func (h *OrderHandler[T]) Accept(c *gin.Context) {
	var req dto.AcceptOrderRequest
	if !h.BindJSON(c, &req) {
		return
	}
	order, err := h.orders.Accept(c.Request.Context(), req.OrderID, c.Param("token"), req.Notes)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, order)
}

// Reject is the supplier declining the order.
// POST /public/{kind}/:token/reject
func (h *OrderHandler[T]) Reject(c *gin.Context) {
	var req dto.RejectOrderRequest
	if !h.BindJSON(c, &req) {
		return
	}
	order, err := h.orders.Reject(c.Request.Context(), req.OrderID, c.Param("token"), req.Reason)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, order)
}
