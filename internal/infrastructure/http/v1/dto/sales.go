package dto

import (
	"backoffice/internal/core/entity"
	"backoffice/internal/core/id"
	"backoffice/internal/core/types"
	"backoffice/internal/domain/sales"
)

// SaleItemRequest is one requested sale line.
type SaleItemRequest struct {
	UnitID   id.ID          `json:"unitId"`
	Quantity types.Quantity `json:"quantity"`
}

// PaymentRequest is the tender of a point-of-sale sale.
type PaymentRequest struct {
	Method    string      `json:"method" binding:"required"`
	Amount    types.Money `json:"amount"`
	Reference string      `json:"reference" binding:"max=200"`
}

// CustomerRequest selects or creates the buyer.
type CustomerRequest struct {
	ID    *id.ID `json:"id"`
	Name  string `json:"name" binding:"max=200"`
	Phone string `json:"phone" binding:"max=32"`
	Email string `json:"email" binding:"omitempty,email"`
}

func (c *CustomerRequest) toRef() *sales.CustomerRef {
	if c == nil {
		return nil
	}
	return &sales.CustomerRef{ID: c.ID, Name: c.Name, Phone: c.Phone, Email: c.Email}
}

// CreateSaleRequest is a paid point-of-sale sale.
type CreateSaleRequest struct {
	Items    []SaleItemRequest `json:"items" binding:"required,min=1,dive"`
	Payment  PaymentRequest    `json:"payment"`
	Customer *CustomerRequest  `json:"customer"`
}

// ToInput converts the request into the service input.
func (r CreateSaleRequest) ToInput(actor entity.Actor) sales.CreateSaleInput {
	return sales.CreateSaleInput{
		Items: saleLines(r.Items),
		Payment: sales.PaymentInput{
			Method:    sales.PaymentMethod(r.Payment.Method),
			Amount:    r.Payment.Amount,
			Reference: r.Payment.Reference,
		},
		Customer: r.Customer.toRef(),
		Actor:    actor,
	}
}

// PendingSaleRequest opens a sale awaiting hosted checkout.
type PendingSaleRequest struct {
	Items    []SaleItemRequest `json:"items" binding:"required,min=1,dive"`
	Customer *CustomerRequest  `json:"customer"`
}

// ToInput converts the request into the service input.
func (r PendingSaleRequest) ToInput(actor entity.Actor) sales.PendingSaleInput {
	return sales.PendingSaleInput{
		Items:    saleLines(r.Items),
		Customer: r.Customer.toRef(),
		Actor:    actor,
	}
}

func saleLines(items []SaleItemRequest) []sales.LineInput {
	out := make([]sales.LineInput, 0, len(items))
	for _, it := range items {
		out = append(out, sales.LineInput{UnitID: it.UnitID, Quantity: it.Quantity})
	}
	return out
}

// RefundRequest refunds a paid sale.
type RefundRequest struct {
	Reason string `json:"reason" binding:"required,max=1000"`
}

// WebhookResponse acknowledges a gateway delivery.
type WebhookResponse struct {
	Result string `json:"result"`
}
