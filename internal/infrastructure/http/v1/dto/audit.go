package dto

import (
	"backoffice/internal/core/id"
	"backoffice/internal/core/types"
)

// CreateAuditRequest records a physical count.
type CreateAuditRequest struct {
	UnitID          id.ID          `json:"unitId"`
	CountedQuantity types.Quantity `json:"countedQuantity"`
	Notes           string         `json:"notes" binding:"max=1000"`
}
