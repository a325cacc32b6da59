package dto

import (
	"backoffice/internal/core/id"
	"backoffice/internal/core/types"
	"backoffice/internal/domain/ledger"
)

// RegisterUnitRequest creates a unit with an optional opening balance.
type RegisterUnitRequest struct {
	ProductID       id.ID          `json:"productId"`
	SKU             string         `json:"sku" binding:"required,max=64"`
	MinStockLevel   types.Quantity `json:"minStockLevel"`
	BasePrice       types.Money    `json:"basePrice"`
	AdditionalPrice types.Money    `json:"additionalPrice"`
	OpeningQuantity types.Quantity `json:"openingQuantity"`
}

// ToUnit builds the domain unit.
func (r RegisterUnitRequest) ToUnit() *ledger.Unit {
	return &ledger.Unit{
		ProductID:       r.ProductID,
		SKU:             r.SKU,
		MinStockLevel:   r.MinStockLevel,
		BasePrice:       r.BasePrice,
		AdditionalPrice: r.AdditionalPrice,
	}
}

// AdjustStockRequest is a manual correction of a unit's balance.
type AdjustStockRequest struct {
	Change types.Quantity `json:"change"`
	Note   string         `json:"note" binding:"required,max=500"`
}

// UnitResponse is a unit with its current balance.
type UnitResponse struct {
	*ledger.Unit
	Price types.Money `json:"price"`
}

// FromUnit creates UnitResponse.
func FromUnit(u *ledger.Unit) UnitResponse {
	return UnitResponse{Unit: u, Price: u.Price()}
}
