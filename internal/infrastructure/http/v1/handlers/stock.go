package handlers

import (
	"github.com/gin-gonic/gin"

	"backoffice/internal/domain/ledger"
	"backoffice/internal/infrastructure/http/v1/dto"
)

// StockHandler handles units and their ledger.
type StockHandler struct {
	*BaseHandler
	ledger *ledger.Service
}

// NewStockHandler creates a new stock handler.
func NewStockHandler(base *BaseHandler, ledgerSvc *ledger.Service) *StockHandler {
	return &StockHandler{BaseHandler: base, ledger: ledgerSvc}
}

// RegisterUnit creates a unit. A non-zero opening quantity is booked as an ADJUSTMENT.
// POST /units
func (h *StockHandler) RegisterUnit(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	var req dto.RegisterUnitRequest
	if !h.BindJSON(c, &req) {
		return
	}

	unit, err := h.ledger.RegisterUnit(c.Request.Context(), req.ToUnit(), req.OpeningQuantity, actor)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromUnit(unit))
}

// GetUnit returns a unit with its balance.
// GET /units/:id
func (h *StockHandler) GetUnit(c *gin.Context) {
	unitID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	unit, err := h.ledger.GetUnit(c.Request.Context(), unitID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromUnit(unit))
}

// Adjust books a manual correction.
// POST /units/:id/adjustments
func (h *StockHandler) Adjust(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	unitID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req dto.AdjustStockRequest
	if !h.BindJSON(c, &req) {
		return
	}

	entry, err := h.ledger.Adjust(c.Request.Context(), unitID, req.Change, req.Note, actor)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, entry)
}

// History lists ledger entries of a unit, newest first.
// GET /units/:id/ledger
func (h *StockHandler) History(c *gin.Context) {
	unitID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var page dto.PageRequest
	if !h.BindQuery(c, &page) {
		return
	}

	result, err := h.ledger.History(c.Request.Context(), unitID, page.ToFilter())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromListResult(result))
}

// Verify replays the ledger of a unit against its balance.
// GET /units/:id/verification
func (h *StockHandler) Verify(c *gin.Context) {
	unitID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	v, err := h.ledger.Verify(c.Request.Context(), unitID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, v)
}
