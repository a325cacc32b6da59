package memory

import (
	"context"

	"backoffice/internal/core/apperror"
	"backoffice/internal/core/id"
	"backoffice/internal/domain/sales"
)

// SalesRepo implements sales.Repository.
type SalesRepo struct {
	s *Store
}

var _ sales.Repository = (*SalesRepo)(nil)

func (r *SalesRepo) Create(ctx context.Context, sale *sales.Sale) error {
	return r.s.write(ctx, func(d *dataset) error {
		for _, other := range d.sales {
			if other.InvoiceNumber == sale.InvoiceNumber {
				return apperror.NewConflict("invoice number already exists").WithDetail("invoice_number", sale.InvoiceNumber)
			}
		}
		header := *sale
		header.Items = nil
		d.sales[sale.ID] = header
		items := make([]sales.Item, 0, len(sale.Items))
		for _, it := range sale.Items {
			items = append(items, *it)
		}
		d.saleItems[sale.ID] = items
		return nil
	})
}

func (r *SalesRepo) GetByID(ctx context.Context, saleID id.ID) (*sales.Sale, error) {
	var sale *sales.Sale
	r.s.read(ctx, func(d *dataset) { sale = loadSale(d, saleID) })
	if sale == nil {
		return nil, apperror.NewNotFound("sale", saleID.String())
	}
	return sale, nil
}

func (r *SalesRepo) GetForUpdate(ctx context.Context, saleID id.ID) (*sales.Sale, error) {
	return r.GetByID(ctx, saleID)
}

func (r *SalesRepo) GetByInvoiceNumberForUpdate(ctx context.Context, invoiceNumber string) (*sales.Sale, error) {
	var sale *sales.Sale
	r.s.read(ctx, func(d *dataset) {
		for saleID, s := range d.sales {
			if s.InvoiceNumber == invoiceNumber {
				sale = loadSale(d, saleID)
				return
			}
		}
	})
	if sale == nil {
		return nil, apperror.NewNotFound("sale", invoiceNumber)
	}
	return sale, nil
}

func (r *SalesRepo) UpdateStatus(ctx context.Context, sale *sales.Sale) error {
	return r.s.write(ctx, func(d *dataset) error {
		stored, ok := d.sales[sale.ID]
		if !ok {
			return apperror.NewNotFound("sale", sale.ID.String())
		}
		stored.Status = sale.Status
		stored.AmountPaid = sale.AmountPaid
		stored.ChangeDue = sale.ChangeDue
		stored.PaidAt = sale.PaidAt
		stored.RefundedAt = sale.RefundedAt
		stored.UpdatedAt = sale.UpdatedAt
		d.sales[sale.ID] = stored
		return nil
	})
}

func (r *SalesRepo) AddPayment(ctx context.Context, payment *sales.Payment) error {
	return r.s.write(ctx, func(d *dataset) error {
		d.payments = append(d.payments, *payment)
		return nil
	})
}

func (r *SalesRepo) ListPayments(ctx context.Context, saleID id.ID) ([]*sales.Payment, error) {
	var out []*sales.Payment
	r.s.read(ctx, func(d *dataset) {
		for _, p := range d.payments {
			if p.SaleID == saleID {
				out = append(out, &p)
			}
		}
	})
	return out, nil
}

func (r *SalesRepo) AddRefund(ctx context.Context, refund *sales.Refund) error {
	return r.s.write(ctx, func(d *dataset) error {
		for _, other := range d.refunds {
			if other.SaleID == refund.SaleID {
				return apperror.NewAlready(apperror.CodeAlreadyRefunded, "sale", refund.SaleID.String())
			}
		}
		d.refunds = append(d.refunds, *refund)
		return nil
	})
}

func loadSale(d *dataset, saleID id.ID) *sales.Sale {
	header, ok := d.sales[saleID]
	if !ok {
		return nil
	}
	sale := &header
	for _, it := range d.saleItems[saleID] {
		sale.Items = append(sale.Items, &it)
	}
	return sale
}

// CustomerRepo implements sales.CustomerRepository.
type CustomerRepo struct {
	s *Store
}

var _ sales.CustomerRepository = (*CustomerRepo)(nil)

func (r *CustomerRepo) GetByID(ctx context.Context, customerID id.ID) (*sales.Customer, error) {
	var (
		c  sales.Customer
		ok bool
	)
	r.s.read(ctx, func(d *dataset) { c, ok = d.customers[customerID] })
	if !ok {
		return nil, apperror.NewNotFound("customer", customerID.String())
	}
	return &c, nil
}

func (r *CustomerRepo) FindByPhone(ctx context.Context, phone string) (*sales.Customer, error) {
	var found *sales.Customer
	r.s.read(ctx, func(d *dataset) {
		for _, c := range d.customers {
			if c.Phone == phone {
				found = &c
				return
			}
		}
	})
	if found == nil {
		return nil, apperror.NewNotFound("customer", phone)
	}
	return found, nil
}

func (r *CustomerRepo) Create(ctx context.Context, customer *sales.Customer) error {
	return r.s.write(ctx, func(d *dataset) error {
		d.customers[customer.ID] = *customer
		return nil
	})
}
