package sales

import (
	"context"

	"backoffice/internal/core/id"
)

// Repository stores sales and their payments and refunds.
type Repository interface {
	// Create inserts the sale and its items.
	Create(ctx context.Context, sale *Sale) error
	GetByID(ctx context.Context, saleID id.ID) (*Sale, error)
	GetForUpdate(ctx context.Context, saleID id.ID) (*Sale, error)
	// GetByInvoiceNumberForUpdate finds and locks the sale an external payment refers to.
	GetByInvoiceNumberForUpdate(ctx context.Context, invoiceNumber string) (*Sale, error)
	// UpdateStatus persists status, amounts, paid_at, refunded_at and updated_at.
	UpdateStatus(ctx context.Context, sale *Sale) error
	AddPayment(ctx context.Context, payment *Payment) error
	ListPayments(ctx context.Context, saleID id.ID) ([]*Payment, error)
	AddRefund(ctx context.Context, refund *Refund) error
}

// CustomerRepository stores customers.
type CustomerRepository interface {
	GetByID(ctx context.Context, customerID id.ID) (*Customer, error)
	// FindByPhone returns NotFound when no customer has the phone.
	FindByPhone(ctx context.Context, phone string) (*Customer, error)
	Create(ctx context.Context, customer *Customer) error
}
