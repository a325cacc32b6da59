// Package sales coordinates point-of-sale transactions, refunds and
// asynchronously confirmed (hosted checkout) payments against the stock ledger.
package sales

import (
	"context"
	"fmt"
	"strings"
	"time"

	"backoffice/internal/core/apperror"
	"backoffice/internal/core/entity"
	"backoffice/internal/core/id"
	"backoffice/internal/core/types"
)

// Status of a sale.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusPaid     Status = "PAID"
	StatusRefunded Status = "REFUNDED"
)

// PaymentMethod of a payment.
type PaymentMethod string

const (
	MethodCash     PaymentMethod = "cash"
	MethodCard     PaymentMethod = "card"
	MethodTransfer PaymentMethod = "transfer"
	MethodOnline   PaymentMethod = "online"
)

// IsValid checks if method is known.
func (m PaymentMethod) IsValid() bool {
	switch m {
	case MethodCash, MethodCard, MethodTransfer, MethodOnline:
		return true
	}
	return false
}

// Sale is a customer purchase.
type Sale struct {
	ID            id.ID        `db:"id" json:"id"`
	InvoiceNumber string       `db:"invoice_number" json:"invoiceNumber"`
	Status        Status       `db:"status" json:"status"`
	CustomerID    *id.ID       `db:"customer_id" json:"customerId,omitempty"`
	Total         types.Money  `db:"total" json:"total"`
	AmountPaid    types.Money  `db:"amount_paid" json:"amountPaid"`
	ChangeDue     types.Money  `db:"change_due" json:"changeDue"`
	CreatedBy     entity.Actor `db:"created_by" json:"createdBy"`
	PaidAt        *time.Time   `db:"paid_at" json:"paidAt,omitempty"`
	RefundedAt    *time.Time   `db:"refunded_at" json:"refundedAt,omitempty"`
	entity.Timestamps
	Items []*Item `db:"-" json:"items"`
}

// Item is one line of a sale.
type Item struct {
	ID        id.ID          `db:"id" json:"id"`
	SaleID    id.ID          `db:"sale_id" json:"saleId"`
	UnitID    id.ID          `db:"unit_id" json:"unitId"`
	Quantity  types.Quantity `db:"quantity" json:"quantity"`
	UnitPrice types.Money    `db:"unit_price" json:"unitPrice"`
	Subtotal  types.Money    `db:"subtotal" json:"subtotal"`
}

// Payment is money received for a sale.
type Payment struct {
	ID        id.ID         `db:"id" json:"id"`
	SaleID    id.ID         `db:"sale_id" json:"saleId"`
	Method    PaymentMethod `db:"method" json:"method"`
	Amount    types.Money   `db:"amount" json:"amount"`
	Reference string        `db:"reference" json:"reference,omitempty"`
	CreatedAt time.Time     `db:"created_at" json:"createdAt"`
}

// Refund is the terminal compensating record of a sale.
type Refund struct {
	ID         id.ID        `db:"id" json:"id"`
	SaleID     id.ID        `db:"sale_id" json:"saleId"`
	Amount     types.Money  `db:"amount" json:"amount"`
	Reason     string       `db:"reason" json:"reason"`
	RefundedBy entity.Actor `db:"refunded_by" json:"refundedBy"`
	CreatedAt  time.Time    `db:"created_at" json:"createdAt"`
}

// Customer is an optional buyer attached to a sale.
type Customer struct {
	ID        id.ID     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Phone     string    `db:"phone" json:"phone,omitempty"`
	Email     string    `db:"email" json:"email,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// InvoiceNumber derives the invoice number from the creation date and sale ID.
// The same sale always yields the same number.
func InvoiceNumber(createdAt time.Time, saleID id.ID) string {
	return fmt.Sprintf("INV-%s-%s", createdAt.UTC().Format("20060102"), id.Suffix(saleID, 12))
}

// LineInput is one requested line.
type LineInput struct {
	UnitID   id.ID
	Quantity types.Quantity
}

// PaymentInput is the tender of a point-of-sale sale.
type PaymentInput struct {
	Method    PaymentMethod
	Amount    types.Money
	Reference string
}

// CustomerRef selects an existing customer by ID, or finds-or-creates one by phone.
type CustomerRef struct {
	ID    *id.ID
	Name  string
	Phone string
	Email string
}

// CreateSaleInput is a paid point-of-sale sale.
type CreateSaleInput struct {
	Items    []LineInput
	Payment  PaymentInput
	Customer *CustomerRef
	Actor    entity.Actor
}

// Validate checks the input before any read or write.
func (in CreateSaleInput) Validate(ctx context.Context) error {
	if err := validateLines(in.Items); err != nil {
		return err
	}
	if !in.Payment.Method.IsValid() {
		return apperror.NewValidation(fmt.Sprintf("unknown payment method %q", in.Payment.Method)).WithDetail("field", "payment.method")
	}
	if in.Payment.Amount.IsNegative() {
		return apperror.NewValidation("payment amount must not be negative").WithDetail("field", "payment.amount")
	}
	return validateActorAndCustomer(in.Actor, in.Customer)
}

// PendingSaleInput is a sale awaiting hosted checkout.
type PendingSaleInput struct {
	Items    []LineInput
	Customer *CustomerRef
	Actor    entity.Actor
}

// Validate checks the input before any read or write.
func (in PendingSaleInput) Validate(ctx context.Context) error {
	if err := validateLines(in.Items); err != nil {
		return err
	}
	return validateActorAndCustomer(in.Actor, in.Customer)
}

func validateLines(items []LineInput) error {
	if len(items) == 0 {
		return apperror.NewValidation("sale must have at least one item").WithDetail("field", "items")
	}
	for i, it := range items {
		if id.IsNil(it.UnitID) {
			return apperror.NewValidation(fmt.Sprintf("item %d: unit is required", i+1)).WithDetail("item", i+1)
		}
		if !it.Quantity.IsPositive() {
			return apperror.NewInvalidQuantity(fmt.Sprintf("item %d: quantity must be positive", i+1), it.Quantity.Int64()).
				WithDetail("item", i+1)
		}
	}
	return nil
}

func validateActorAndCustomer(actor entity.Actor, c *CustomerRef) error {
	if actor.IsZero() {
		return apperror.NewValidation("actor is required").WithDetail("field", "actor")
	}
	if c != nil && c.ID == nil && strings.TrimSpace(c.Phone) == "" && strings.TrimSpace(c.Name) == "" {
		return apperror.NewValidation("customer needs an id, a phone or a name").WithDetail("field", "customer")
	}
	return nil
}

// demand sums requested quantities per unit, keeping first-seen order.
type demand struct {
	unitID id.ID
	qty    types.Quantity
}

func aggregate(items []LineInput) []demand {
	idx := make(map[id.ID]int, len(items))
	var out []demand
	for _, it := range items {
		if i, ok := idx[it.UnitID]; ok {
			out[i].qty += it.Quantity
			continue
		}
		idx[it.UnitID] = len(out)
		out = append(out, demand{unitID: it.UnitID, qty: it.Quantity})
	}
	return out
}
