// Package stockaudit reconciles manual physical counts against unit balances.
package stockaudit

import (
	"context"
	"time"

	"backoffice/internal/core/apperror"
	"backoffice/internal/core/entity"
	"backoffice/internal/core/id"
	"backoffice/internal/core/types"
)

// Audit is one physical count of a unit.
type Audit struct {
	ID              id.ID          `db:"id" json:"id"`
	UnitID          id.ID          `db:"unit_id" json:"unitId"`
	Auditor         entity.Actor   `db:"auditor" json:"auditor"`
	SystemQuantity  types.Quantity `db:"system_quantity" json:"systemQuantity"`
	CountedQuantity types.Quantity `db:"counted_quantity" json:"countedQuantity"`
	Difference      types.Quantity `db:"difference" json:"difference"`
	Notes           string         `db:"notes" json:"notes,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"createdAt"`
}

// Count is the operator input of a new audit.
type Count struct {
	UnitID  id.ID
	Counted types.Quantity
	Notes   string
	Auditor entity.Actor
}

// Validate checks the count before any write.
func (c Count) Validate(_ context.Context) error {
	if id.IsNil(c.UnitID) {
		return apperror.NewValidation("unit is required").WithDetail("field", "unitId")
	}
	if c.Counted.IsNegative() {
		return apperror.NewInvalidQuantity("counted quantity must not be negative", c.Counted.Int64())
	}
	if c.Auditor.IsZero() {
		return apperror.NewValidation("auditor is required").WithDetail("field", "auditor")
	}
	return nil
}
