package handlers

import (
	"github.com/gin-gonic/gin"

	"backoffice/internal/domain/stockaudit"
	"backoffice/internal/infrastructure/http/v1/dto"
)

// AuditHandler handles physical stock counts.
type AuditHandler struct {
	*BaseHandler
	audits *stockaudit.Service
}

// NewAuditHandler creates a new audit handler.
func NewAuditHandler(base *BaseHandler, audits *stockaudit.Service) *AuditHandler {
	return &AuditHandler{BaseHandler: base, audits: audits}
}

// Create records a count and moves the balance to it.
// POST /audits
func (h *AuditHandler) Create(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	var req dto.CreateAuditRequest
	if !h.BindJSON(c, &req) {
		return
	}

	audit, err := h.audits.Create(c.Request.Context(), stockaudit.Count{
		UnitID:  req.UnitID,
		Counted: req.CountedQuantity,
		Notes:   req.Notes,
		Auditor: actor,
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, audit)
}

// Get returns one audit.
// GET /audits/:id
func (h *AuditHandler) Get(c *gin.Context) {
	auditID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	audit, err := h.audits.Get(c.Request.Context(), auditID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, audit)
}

// Delete removes an audit and reverses its difference.
// DELETE /audits/:id
func (h *AuditHandler) Delete(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	auditID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	if err := h.audits.Delete(c.Request.Context(), auditID, actor); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

// ListByUnit lists the audits of a unit, newest first.
// GET /units/:id/audits
func (h *AuditHandler) ListByUnit(c *gin.Context) {
	unitID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var page dto.PageRequest
	if !h.BindQuery(c, &page) {
		return
	}
	result, err := h.audits.ListByUnit(c.Request.Context(), unitID, page.ToFilter())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromListResult(result))
}
