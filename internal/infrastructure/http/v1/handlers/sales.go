package handlers

import (
	"github.com/gin-gonic/gin"

	"backoffice/internal/domain/sales"
	"backoffice/internal/infrastructure/http/v1/dto"
)

// HeaderDeliveryID identifies a gateway delivery when the body does not carry one.
const HeaderDeliveryID = "X-Delivery-ID"

// SalesHandler handles sales, refunds and the payment gateway webhook.
type SalesHandler struct {
	*BaseHandler
	sales *sales.Service
}

// NewSalesHandler creates a new sales handler.
func NewSalesHandler(base *BaseHandler, svc *sales.Service) *SalesHandler {
	return &SalesHandler{BaseHandler: base, sales: svc}
}

// Create records a paid point-of-sale sale.
// POST /sales
func (h *SalesHandler) Create(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	var req dto.CreateSaleRequest
	if !h.BindJSON(c, &req) {
		return
	}

	sale, err := h.sales.CreateSale(c.Request.Context(), req.ToInput(actor))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, sale)
}

// CreatePending opens a sale awaiting hosted checkout.
// POST /sales/pending
func (h *SalesHandler) CreatePending(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	var req dto.PendingSaleRequest
	if !h.BindJSON(c, &req) {
		return
	}

	sale, err := h.sales.PlacePendingSale(c.Request.Context(), req.ToInput(actor))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, sale)
}

// Get returns a sale with its items.
// GET /sales/:id
func (h *SalesHandler) Get(c *gin.Context) {
	saleID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	sale, err := h.sales.Get(c.Request.Context(), saleID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, sale)
}

// Payments lists the payments of a sale.
// GET /sales/:id/payments
func (h *SalesHandler) Payments(c *gin.Context) {
	saleID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	payments, err := h.sales.Payments(c.Request.Context(), saleID)
	if err != nil {
		h.Error(c, err)
		return
	}
	if payments == nil {
		payments = []*sales.Payment{}
	}
	h.OK(c, payments)
}

// Refund returns every item of a paid sale to stock.
// POST /sales/:id/refund
func (h *SalesHandler) Refund(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	saleID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req dto.RefundRequest
	if !h.BindJSON(c, &req) {
		return
	}

	refund, err := h.sales.Refund(c.Request.Context(), saleID, req.Reason, actor)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, refund)
}

// PaymentWebhook receives the payment gateway's status callbacks.
// Ignored statuses and replays are acknowledged with 200 so the gateway stops retrying.
// POST /webhooks/payments
func (h *SalesHandler) PaymentWebhook(c *gin.Context) {
	var payload sales.WebhookPayload
	if !h.BindJSON(c, &payload) {
		return
	}
	if payload.DeliveryID == "" {
		payload.DeliveryID = c.GetHeader(HeaderDeliveryID)
	}

	result, err := h.sales.HandleWebhook(c.Request.Context(), payload)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.WebhookResponse{Result: string(result)})
}
