package sales

import (
	"context"
	"fmt"
	"strings"

	"backoffice/internal/core/apperror"
	"backoffice/internal/core/entity"
	"backoffice/internal/core/id"
	"backoffice/internal/core/types"
	"backoffice/internal/domain/ledger"
	"backoffice/internal/domain/notify"
	"backoffice/pkg/logger"
)

// PaymentGatewayActor is the actor recorded for gateway-confirmed payments.
var PaymentGatewayActor = entity.SystemActor("payment-gateway")

// ReplayGuard remembers webhook deliveries that were already processed.
type ReplayGuard interface {
	Seen(ctx context.Context, deliveryID string) (bool, error)
	Mark(ctx context.Context, deliveryID string) error
}

// WebhookPayload is the body the payment gateway posts on a status change.
type WebhookPayload struct {
	ExternalReference string      `json:"external_reference"`
	Status            string      `json:"status"`
	PaidAmount        types.Money `json:"paid_amount"`
	DeliveryID        string      `json:"delivery_id,omitempty"`
}

// WebhookResult tells the caller what a delivery did.
type WebhookResult string

const (
	WebhookApplied   WebhookResult = "applied"
	WebhookDuplicate WebhookResult = "duplicate"
	WebhookIgnored   WebhookResult = "ignored"
)

const statusPaid = "paid"

// OnPaymentConfirmed marks a pending sale paid with the confirmed amount and
// takes its items out of stock.
//
// The sale row is locked for the whole transaction, so concurrent deliveries
// of the same confirmation serialize and the second sees a PAID sale and gets
// ALREADY_PAID. The gateway has already taken the money, so an amount below
// the total is applied as well and the admin channel is told about the gap.
// A stock shortage fails the confirmation and leaves the sale PENDING; the
// admin channel is told so someone can refund the customer.
func (s *Service) OnPaymentConfirmed(ctx context.Context, externalRef string, paidAmount types.Money) (*Sale, error) {
	externalRef = strings.TrimSpace(externalRef)
	if externalRef == "" {
		return nil, apperror.NewValidation("external reference is required").WithDetail("field", "external_reference")
	}
	if paidAmount.IsNegative() {
		return nil, apperror.NewValidation("paid amount must not be negative").WithDetail("field", "paid_amount")
	}

	var (
		sale    *Sale
		entries []*ledger.Entry
	)
	err := s.emitter.InTransaction(ctx, s.txManager, func(ctx context.Context, out *notify.Pending) error {
		var err error
		sale, err = s.repo.GetByInvoiceNumberForUpdate(ctx, externalRef)
		if err != nil {
			return normalizeSaleErr(err, externalRef)
		}
		if sale.Status != StatusPending {
			return apperror.NewAlready(apperror.CodeAlreadyPaid, "sale", sale.ID.String())
		}

		entries, err = s.deduct(ctx, sale, PaymentGatewayActor)
		if err != nil {
			return err
		}

		now := s.now()
		sale.Status = StatusPaid
		sale.AmountPaid = paidAmount
		sale.ChangeDue = types.Zero()
		sale.PaidAt = &now
		sale.Touch()
		if err := s.repo.UpdateStatus(ctx, sale); err != nil {
			return fmt.Errorf("update sale status: %w", err)
		}

		if err := s.repo.AddPayment(ctx, &Payment{
			ID:        id.New(),
			SaleID:    sale.ID,
			Method:    MethodOnline,
			Amount:    paidAmount,
			Reference: externalRef,
			CreatedAt: now,
		}); err != nil {
			return err
		}

		if paidAmount.LessThan(sale.Total) {
			out.Notify(notify.Notification{
				Template:    notify.TemplatePaymentUnderpaid,
				Recipient:   notify.AdminChannel(),
				SubjectType: "sale",
				SubjectID:   sale.ID,
				Payload: map[string]any{
					"invoice_number": sale.InvoiceNumber,
					"total":          sale.Total.String(),
					"paid_amount":    paidAmount.String(),
					"shortfall":      sale.Total.Sub(paidAmount).String(),
				},
			})
			logger.Warn(ctx, "payment below sale total", "sale_id", sale.ID, "total", sale.Total.String(), "paid", paidAmount.String())
		}
		out.Record(saleActivity(sale, "sale.paid", PaymentGatewayActor, map[string]any{
			"paid_amount": paidAmount.String(),
		}))
		return nil
	})
	if err != nil {
		if apperror.IsCode(err, apperror.CodeInsufficientStock) && sale != nil {
			s.reportStockConflict(ctx, sale, err)
		}
		return nil, err
	}

	s.ledger.AfterCommit(ctx, entries...)
	logger.Info(ctx, "payment confirmed", "sale_id", sale.ID, "invoice", sale.InvoiceNumber)
	return sale, nil
}

// HandleWebhook processes one gateway delivery. Statuses other than "paid"
// are acknowledged and ignored, and a replayed confirmation is reported as a
// duplicate rather than an error.
func (s *Service) HandleWebhook(ctx context.Context, p WebhookPayload) (WebhookResult, error) {
	if !strings.EqualFold(strings.TrimSpace(p.Status), statusPaid) {
		logger.Debug(ctx, "payment webhook ignored", "reference", p.ExternalReference, "status", p.Status)
		return WebhookIgnored, nil
	}

	if s.replay != nil && p.DeliveryID != "" {
		seen, err := s.replay.Seen(ctx, p.DeliveryID)
		if err != nil {
			logger.Warn(ctx, "replay guard lookup failed", "delivery_id", p.DeliveryID, "error", err)
		} else if seen {
			logger.Info(ctx, "payment webhook replayed", "delivery_id", p.DeliveryID)
			return WebhookDuplicate, nil
		}
	}

	_, err := s.OnPaymentConfirmed(ctx, p.ExternalReference, p.PaidAmount)
	switch {
	case err == nil:
	case apperror.IsCode(err, apperror.CodeAlreadyPaid):
		logger.Info(ctx, "payment already applied", "reference", p.ExternalReference)
		s.markDelivery(ctx, p.DeliveryID)
		return WebhookDuplicate, nil
	default:
		return "", err
	}

	s.markDelivery(ctx, p.DeliveryID)
	return WebhookApplied, nil
}

func (s *Service) markDelivery(ctx context.Context, deliveryID string) {
	if s.replay == nil || deliveryID == "" {
		return
	}
	if err := s.replay.Mark(ctx, deliveryID); err != nil {
		logger.Warn(ctx, "replay guard mark failed", "delivery_id", deliveryID, "error", err)
	}
}

func (s *Service) reportStockConflict(ctx context.Context, sale *Sale, cause error) {
	payload := map[string]any{
		"invoice_number": sale.InvoiceNumber,
		"total":          sale.Total.String(),
	}
	if appErr, ok := apperror.AsAppError(cause); ok {
		for k, v := range appErr.Details {
			payload[k] = v
		}
	}
	s.emitter.Notify(ctx, notify.Notification{
		Template:    notify.TemplatePaymentStockConflict,
		Recipient:   notify.AdminChannel(),
		SubjectType: "sale",
		SubjectID:   sale.ID,
		Payload:     payload,
	})
	logger.Warn(ctx, "paid sale could not be fulfilled", "sale_id", sale.ID, "invoice", sale.InvoiceNumber, "error", cause)
}
