package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"backoffice/internal/core/entity"
	"backoffice/internal/core/id"
	"backoffice/internal/core/types"
	"backoffice/internal/domain/ledger"
	"backoffice/internal/domain/procurement"
)

func TestExtractDBColumns_Embedded(t *testing.T) {
	cols := ExtractDBColumns[ledger.Unit]()

	assert.Equal(t, []string{
		"id", "product_id", "sku", "quantity", "min_stock_level",
		"base_price", "additional_price", "created_at", "updated_at",
	}, cols)
}

func TestExtractDBColumns_SkipsIgnoredFields(t *testing.T) {
	cols := ExtractDBColumns[procurement.PurchaseOrder]()

	assert.Contains(t, cols, "supplier_id")
	assert.Contains(t, cols, "status")
	assert.Contains(t, cols, "cancelled_by")
	assert.Contains(t, cols, "updated_at")
	assert.NotContains(t, cols, "items")
	assert.NotContains(t, cols, "-")
}

func TestStructToMap(t *testing.T) {
	now := time.Now().UTC()
	u := &ledger.Unit{
		ID:            id.New(),
		SKU:           "TEE-RED-M",
		Quantity:      4,
		MinStockLevel: 2,
		BasePrice:     types.MustMoney("9.99"),
		Timestamps:    entity.Timestamps{CreatedAt: now, UpdatedAt: now},
	}

	m := StructToMap(u)

	assert.Equal(t, u.ID, m["id"])
	assert.Equal(t, "TEE-RED-M", m["sku"])
	assert.Equal(t, types.Quantity(4), m["quantity"])
	assert.Equal(t, now, m["created_at"])
	assert.Len(t, m, 9)
}

func TestStructToMap_NonStruct(t *testing.T) {
	assert.Nil(t, StructToMap(42))
}
