// Package ledger owns the stock balance of every stock-keeping unit and the
// append-only ledger explaining how each balance got to its current value.
package ledger

import (
	"context"
	"fmt"
	"time"

	"backoffice/internal/core/apperror"
	"backoffice/internal/core/entity"
	"backoffice/internal/core/id"
	"backoffice/internal/core/types"
)

// EntryType is the causal kind of a ledger entry.
type EntryType string

const (
	EntrySale       EntryType = "SALE"
	EntryRefund     EntryType = "REFUND"
	EntryPurchase   EntryType = "PURCHASE"
	EntryReorder    EntryType = "REORDER"
	EntryAudit      EntryType = "AUDIT"
	EntryAdjustment EntryType = "ADJUSTMENT"
)

// IsValid checks if entry type is known.
func (t EntryType) IsValid() bool {
	switch t {
	case EntrySale, EntryRefund, EntryPurchase, EntryReorder, EntryAudit, EntryAdjustment:
		return true
	}
	return false
}

// SourceType names the record that caused a ledger entry.
type SourceType string

const (
	SourceSale              SourceType = "sale"
	SourcePurchaseOrderItem SourceType = "purchase_order_item"
	SourceReorder           SourceType = "reorder"
	SourceStockAudit        SourceType = "stock_audit"
	SourceManual            SourceType = "manual"
)

// SourceRef is a polymorphic reference to the causing transaction.
type SourceRef struct {
	Type SourceType
	ID   id.ID
}

// Unit is a stock-keeping unit (a product variant).
// Quantity is written only through Service.ApplyDelta.
type Unit struct {
	ID              id.ID          `db:"id" json:"id"`
	ProductID       id.ID          `db:"product_id" json:"productId"`
	SKU             string         `db:"sku" json:"sku"`
	Quantity        types.Quantity `db:"quantity" json:"quantity"`
	MinStockLevel   types.Quantity `db:"min_stock_level" json:"minStockLevel"`
	BasePrice       types.Money    `db:"base_price" json:"basePrice"`
	AdditionalPrice types.Money    `db:"additional_price" json:"additionalPrice"`
	entity.Timestamps
}

// Price is the selling price of one unit.
func (u *Unit) Price() types.Money {
	return u.BasePrice.Add(u.AdditionalPrice)
}

// Entry is one immutable ledger row.
type Entry struct {
	ID             id.ID          `db:"id" json:"id"`
	UnitID         id.ID          `db:"unit_id" json:"unitId"`
	Type           EntryType      `db:"entry_type" json:"type"`
	QuantityBefore types.Quantity `db:"quantity_before" json:"quantityBefore"`
	QuantityAfter  types.Quantity `db:"quantity_after" json:"quantityAfter"`
	QuantityChange types.Quantity `db:"quantity_change" json:"quantityChange"`
	Note           string         `db:"note" json:"note,omitempty"`
	Actor          entity.Actor   `db:"actor" json:"actor"`
	SourceType     SourceType     `db:"source_type" json:"sourceType"`
	SourceID       *id.ID         `db:"source_id" json:"sourceId,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"createdAt"`
}

// Delta is a request to move a unit's balance.
type Delta struct {
	UnitID id.ID
	Change types.Quantity
	Type   EntryType
	Source SourceRef
	Actor  entity.Actor
	Note   string
}

// Validate checks the request before any write.
func (d Delta) Validate(_ context.Context) error {
	if id.IsNil(d.UnitID) {
		return apperror.NewValidation("unit is required").WithDetail("field", "unitId")
	}
	if d.Change.IsZero() {
		return apperror.NewInvalidQuantity("quantity change must not be zero", d.Change.Int64())
	}
	if !d.Type.IsValid() {
		return apperror.NewValidation(fmt.Sprintf("unknown entry type %q", d.Type))
	}
	if d.Actor.IsZero() {
		return apperror.NewValidation("actor is required").WithDetail("field", "actor")
	}
	if d.Source.Type == "" {
		return apperror.NewValidation("source type is required").WithDetail("field", "sourceType")
	}
	return nil
}

// ChainBreak marks a ledger entry whose quantity_before does not match the previous entry's quantity_after,
// or whose own arithmetic is wrong.
type ChainBreak struct {
	EntryID  id.ID          `json:"entryId"`
	Expected types.Quantity `json:"expected"`
	Actual   types.Quantity `json:"actual"`
	Reason   string         `json:"reason"`
}

// Verification is the result of replaying a unit's ledger from a zero balance.
type Verification struct {
	UnitID     id.ID          `json:"unitId"`
	Balance    types.Quantity `json:"balance"`
	Replayed   types.Quantity `json:"replayed"`
	Entries    int            `json:"entries"`
	Breaks     []ChainBreak   `json:"breaks,omitempty"`
	Consistent bool           `json:"consistent"`
}
