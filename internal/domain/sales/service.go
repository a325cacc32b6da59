package sales

import (
	"context"
	"fmt"
	"strings"
	"time"

	"backoffice/internal/core/apperror"
	"backoffice/internal/core/entity"
	"backoffice/internal/core/id"
	"backoffice/internal/core/tx"
	"backoffice/internal/core/types"
	"backoffice/internal/domain/ledger"
	"backoffice/internal/domain/notify"
	"backoffice/pkg/logger"
)

// Service creates sales, refunds them and reconciles asynchronous payments.
type Service struct {
	repo      Repository
	customers CustomerRepository
	ledger    *ledger.Service
	txManager tx.Manager
	emitter   *notify.Emitter
	replay    ReplayGuard
	now       func() time.Time
}

// Config configures the sales service.
type Config struct {
	Repo      Repository
	Customers CustomerRepository
	Ledger    *ledger.Service
	TxManager tx.Manager
	Emitter   *notify.Emitter
	// ReplayGuard deduplicates webhook deliveries. Optional: the sale status
	// check alone already makes confirmation idempotent.
	ReplayGuard ReplayGuard
}

// NewService creates a new sales service.
func NewService(cfg Config) *Service {
	return &Service{
		repo:      cfg.Repo,
		customers: cfg.Customers,
		ledger:    cfg.Ledger,
		txManager: cfg.TxManager,
		emitter:   cfg.Emitter,
		replay:    cfg.ReplayGuard,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateSale records a paid point-of-sale sale and takes its items out of stock.
//
// Every item is checked for existence and availability before anything is
// written, and the whole sale (items, SALE entries, payment, customer) is
// one transaction.
func (s *Service) CreateSale(ctx context.Context, in CreateSaleInput) (*Sale, error) {
	if err := in.Validate(ctx); err != nil {
		return nil, err
	}

	var (
		sale    *Sale
		entries []*ledger.Entry
	)
	err := s.emitter.InTransaction(ctx, s.txManager, func(ctx context.Context, out *notify.Pending) error {
		var err error
		sale, err = s.prepare(ctx, in.Items, in.Customer, in.Actor)
		if err != nil {
			return err
		}

		if in.Payment.Amount.LessThan(sale.Total) {
			return apperror.NewValidation("payment amount is less than the sale total").
				WithDetail("total", sale.Total.String()).
				WithDetail("amount", in.Payment.Amount.String())
		}

		now := s.now()
		sale.Status = StatusPaid
		sale.AmountPaid = in.Payment.Amount
		sale.ChangeDue = in.Payment.Amount.Sub(sale.Total)
		sale.PaidAt = &now

		if err := s.repo.Create(ctx, sale); err != nil {
			return fmt.Errorf("create sale: %w", err)
		}

		entries, err = s.deduct(ctx, sale, in.Actor)
		if err != nil {
			return err
		}

		if err := s.repo.AddPayment(ctx, &Payment{
			ID:        id.New(),
			SaleID:    sale.ID,
			Method:    in.Payment.Method,
			Amount:    in.Payment.Amount,
			Reference: in.Payment.Reference,
			CreatedAt: now,
		}); err != nil {
			return err
		}

		out.Record(saleActivity(sale, "sale.created", in.Actor, map[string]any{
			"method": string(in.Payment.Method),
		}))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.ledger.AfterCommit(ctx, entries...)
	logger.Info(ctx, "sale created", "sale_id", sale.ID, "invoice", sale.InvoiceNumber, "total", sale.Total.String())
	return sale, nil
}

// PlacePendingSale records a sale awaiting hosted checkout. Availability is
// checked so the customer is not sent to pay for goods that are gone, but no
// stock moves until the payment is confirmed.
func (s *Service) PlacePendingSale(ctx context.Context, in PendingSaleInput) (*Sale, error) {
	if err := in.Validate(ctx); err != nil {
		return nil, err
	}

	var sale *Sale
	err := s.emitter.InTransaction(ctx, s.txManager, func(ctx context.Context, out *notify.Pending) error {
		var err error
		sale, err = s.prepare(ctx, in.Items, in.Customer, in.Actor)
		if err != nil {
			return err
		}
		sale.Status = StatusPending
		if err := s.repo.Create(ctx, sale); err != nil {
			return fmt.Errorf("create sale: %w", err)
		}
		out.Record(saleActivity(sale, "sale.placed", in.Actor, nil))
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "pending sale placed", "sale_id", sale.ID, "invoice", sale.InvoiceNumber)
	return sale, nil
}

// Refund restores the stock of a paid sale with REFUND entries and records the refund.
// The original SALE entries stay in the ledger.
func (s *Service) Refund(ctx context.Context, saleID id.ID, reason string, actor entity.Actor) (*Refund, error) {
	if actor.IsZero() {
		return nil, apperror.NewValidation("actor is required").WithDetail("field", "actor")
	}
	if strings.TrimSpace(reason) == "" {
		return nil, apperror.NewValidation("refund reason is required").WithDetail("field", "reason")
	}

	var (
		sale    *Sale
		refund  *Refund
		entries []*ledger.Entry
	)
	err := s.emitter.InTransaction(ctx, s.txManager, func(ctx context.Context, out *notify.Pending) error {
		entries = nil
		var err error
		sale, err = s.repo.GetForUpdate(ctx, saleID)
		if err != nil {
			return normalizeSaleErr(err, saleID.String())
		}

		switch sale.Status {
		case StatusRefunded:
			return apperror.NewAlready(apperror.CodeAlreadyRefunded, "sale", saleID.String())
		case StatusPending:
			return apperror.NewInvalidTransition("cannot refund a sale that has not been paid").
				WithDetail("sale_id", saleID.String())
		}

		for _, it := range sale.Items {
			entry, err := s.ledger.ApplyDelta(ctx, ledger.Delta{
				UnitID: it.UnitID,
				Change: it.Quantity,
				Type:   ledger.EntryRefund,
				Source: ledger.SourceRef{Type: ledger.SourceSale, ID: sale.ID},
				Actor:  actor,
				Note:   "refund of " + sale.InvoiceNumber,
			})
			if err != nil {
				return err
			}
			entries = append(entries, entry)
		}

		now := s.now()
		sale.Status = StatusRefunded
		sale.RefundedAt = &now
		sale.Touch()
		if err := s.repo.UpdateStatus(ctx, sale); err != nil {
			return fmt.Errorf("update sale status: %w", err)
		}

		refund = &Refund{
			ID:         id.New(),
			SaleID:     sale.ID,
			Amount:     sale.Total,
			Reason:     reason,
			RefundedBy: actor,
			CreatedAt:  now,
		}
		if err := s.repo.AddRefund(ctx, refund); err != nil {
			return err
		}

		out.Record(saleActivity(sale, "sale.refunded", actor, map[string]any{"reason": reason}))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.ledger.AfterCommit(ctx, entries...)
	logger.Info(ctx, "sale refunded", "sale_id", sale.ID, "invoice", sale.InvoiceNumber)
	return refund, nil
}

// Get returns a sale with its items.
func (s *Service) Get(ctx context.Context, saleID id.ID) (*Sale, error) {
	sale, err := s.repo.GetByID(ctx, saleID)
	if err != nil {
		return nil, normalizeSaleErr(err, saleID.String())
	}
	return sale, nil
}

// Payments returns the payments recorded for a sale.
func (s *Service) Payments(ctx context.Context, saleID id.ID) ([]*Payment, error) {
	if _, err := s.Get(ctx, saleID); err != nil {
		return nil, err
	}
	return s.repo.ListPayments(ctx, saleID)
}

// prepare checks every requested unit and builds the unsaved sale.
// No write happens here, so a failure leaves nothing to undo.
func (s *Service) prepare(ctx context.Context, lines []LineInput, customer *CustomerRef, actor entity.Actor) (*Sale, error) {
	units := make(map[id.ID]*ledger.Unit, len(lines))
	for _, d := range aggregate(lines) {
		u, err := s.ledger.CheckAvailable(ctx, d.unitID, d.qty)
		if err != nil {
			return nil, err
		}
		units[d.unitID] = u
	}

	sale := &Sale{
		ID:         id.New(),
		CreatedBy:  actor,
		Total:      types.Zero(),
		AmountPaid: types.Zero(),
		ChangeDue:  types.Zero(),
		Timestamps: entity.NewTimestamps(),
	}
	sale.InvoiceNumber = InvoiceNumber(sale.CreatedAt, sale.ID)

	for _, l := range lines {
		price := units[l.UnitID].Price()
		item := &Item{
			ID:        id.New(),
			SaleID:    sale.ID,
			UnitID:    l.UnitID,
			Quantity:  l.Quantity,
			UnitPrice: price,
			Subtotal:  types.LineTotal(price, l.Quantity),
		}
		sale.Items = append(sale.Items, item)
		sale.Total = sale.Total.Add(item.Subtotal)
	}

	if customer != nil {
		c, err := s.resolveCustomer(ctx, customer)
		if err != nil {
			return nil, err
		}
		sale.CustomerID = &c.ID
	}
	return sale, nil
}

// deduct books one SALE entry per item.
func (s *Service) deduct(ctx context.Context, sale *Sale, actor entity.Actor) ([]*ledger.Entry, error) {
	entries := make([]*ledger.Entry, 0, len(sale.Items))
	for _, it := range sale.Items {
		entry, err := s.ledger.ApplyDelta(ctx, ledger.Delta{
			UnitID: it.UnitID,
			Change: it.Quantity.Neg(),
			Type:   ledger.EntrySale,
			Source: ledger.SourceRef{Type: ledger.SourceSale, ID: sale.ID},
			Actor:  actor,
			Note:   sale.InvoiceNumber,
		})
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *Service) resolveCustomer(ctx context.Context, ref *CustomerRef) (*Customer, error) {
	if ref.ID != nil {
		c, err := s.customers.GetByID(ctx, *ref.ID)
		if err != nil {
			if apperror.IsNotFound(err) {
				return nil, apperror.NewNotFound("customer", ref.ID.String())
			}
			return nil, fmt.Errorf("load customer: %w", err)
		}
		return c, nil
	}

	phone := strings.TrimSpace(ref.Phone)
	if phone != "" {
		c, err := s.customers.FindByPhone(ctx, phone)
		if err == nil {
			return c, nil
		}
		if !apperror.IsNotFound(err) {
			return nil, fmt.Errorf("find customer by phone: %w", err)
		}
	}

	name := strings.TrimSpace(ref.Name)
	if name == "" {
		name = phone
	}
	c := &Customer{
		ID:        id.New(),
		Name:      name,
		Phone:     phone,
		Email:     strings.TrimSpace(ref.Email),
		CreatedAt: s.now(),
	}
	if err := s.customers.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create customer: %w", err)
	}
	return c, nil
}

func saleActivity(sale *Sale, action string, actor entity.Actor, payload map[string]any) notify.ActivityEvent {
	if payload == nil {
		payload = map[string]any{}
	}
	payload["invoice_number"] = sale.InvoiceNumber
	payload["total"] = sale.Total.String()
	payload["status"] = string(sale.Status)
	return notify.ActivityEvent{
		Actor:       actor,
		Action:      action,
		SubjectType: "sale",
		SubjectID:   sale.ID,
		Payload:     payload,
	}
}

func normalizeSaleErr(err error, ref string) error {
	if apperror.IsNotFound(err) {
		return apperror.NewNotFound("sale", ref)
	}
	if apperror.IsAppError(err) {
		return err
	}
	return apperror.NewInternal(err).WithDetail("sale", ref)
}
