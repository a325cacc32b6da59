// Package notify defines the outbound side effects of the stock core:
// notification requests and activity-log events. A transactional emitter
// writes them with the business change (the Postgres outbox); otherwise they
// are handed over after commit. Delivery failures never undo the change.
package notify

import (
	"context"
	"fmt"
	"time"

	"backoffice/internal/core/entity"
	"backoffice/internal/core/id"
	"backoffice/internal/core/tx"
	"backoffice/pkg/logger"
)

// Template names the kind of message the dispatcher should render.
type Template string

const (
	TemplateOrderCreated         Template = "order_created"
	TemplateOrderAccepted        Template = "order_accepted"
	TemplateOrderRejected        Template = "order_rejected"
	TemplateOrderCancelled       Template = "order_cancelled"
	TemplateOrderPartial         Template = "order_partial"
	TemplateOrderReceived        Template = "order_received"
	TemplateOrderLinkResent      Template = "order_link_resent"
	TemplateLowStock             Template = "low_stock"
	TemplatePaymentStockConflict Template = "payment_stock_conflict"
	TemplatePaymentUnderpaid     Template = "payment_underpaid"
)

// RecipientKind selects the delivery channel.
type RecipientKind string

const (
	RecipientAdmin    RecipientKind = "admin"
	RecipientSupplier RecipientKind = "supplier"
)

// Recipient of a notification. ID is empty for the shared admin channel.
type Recipient struct {
	Kind RecipientKind `json:"kind"`
	ID   string        `json:"id,omitempty"`
}

// AdminChannel is the internal staff channel.
func AdminChannel() Recipient {
	return Recipient{Kind: RecipientAdmin}
}

// Supplier addresses an external counterparty.
func Supplier(supplierID id.ID) Recipient {
	return Recipient{Kind: RecipientSupplier, ID: supplierID.String()}
}

// Notification is a request to send a message; delivery is not awaited.
type Notification struct {
	Template    Template       `json:"template"`
	Recipient   Recipient      `json:"recipient"`
	SubjectType string         `json:"subjectType"`
	SubjectID   id.ID          `json:"subjectId"`
	Payload     map[string]any `json:"payload,omitempty"`
}

// ActivityEvent is one audit-trail record.
type ActivityEvent struct {
	Actor       entity.Actor   `json:"actor"`
	Action      string         `json:"action"`
	SubjectType string         `json:"subjectType"`
	SubjectID   id.ID          `json:"subjectId"`
	Payload     map[string]any `json:"payload,omitempty"`
	OccurredAt  time.Time      `json:"occurredAt"`
}

// Notifier accepts notification requests.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// ActivityLog accepts audit-trail events.
type ActivityLog interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// Pending collects the side effects of one transaction attempt.
type Pending struct {
	notifications []Notification
	events        []ActivityEvent
}

// Notify queues n.
func (p *Pending) Notify(n Notification) {
	p.notifications = append(p.notifications, n)
}

// Record queues ev.
func (p *Pending) Record(ev ActivityEvent) {
	p.events = append(p.events, ev)
}

// Len is the number of queued side effects.
func (p *Pending) Len() int {
	return len(p.notifications) + len(p.events)
}

// Emitter is what the domain services hold. It tolerates either collaborator
// being nil.
type Emitter struct {
	notifier Notifier
	activity ActivityLog
	// transactional collaborators write through the transaction in ctx.
	transactional bool
}

// NewEmitter creates an emitter whose collaborators are called after commit.
// Their failures are logged and swallowed.
func NewEmitter(notifier Notifier, activity ActivityLog) *Emitter {
	return &Emitter{notifier: notifier, activity: activity}
}

// NewTransactionalEmitter creates an emitter whose collaborators write into
// the transaction carried by ctx, like the outbox. Side effects then commit
// or roll back together with the change that produced them.
func NewTransactionalEmitter(notifier Notifier, activity ActivityLog) *Emitter {
	return &Emitter{notifier: notifier, activity: activity, transactional: true}
}

// InTransaction runs fn in a transaction and emits what fn queued on out.
// A transactional emitter writes the queue before the commit, so a failed
// write rolls the whole transaction back. Otherwise the queue is delivered
// once the transaction has committed.
func (e *Emitter) InTransaction(ctx context.Context, txm tx.Manager, fn func(ctx context.Context, out *Pending) error) error {
	var out *Pending
	err := txm.RunInTransaction(ctx, func(ctx context.Context) error {
		out = &Pending{}
		if err := fn(ctx, out); err != nil {
			return err
		}
		if e != nil && e.transactional {
			return e.write(ctx, out)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if e != nil && !e.transactional {
		e.deliver(ctx, out)
	}
	return nil
}

func (e *Emitter) write(ctx context.Context, out *Pending) error {
	if e.notifier != nil {
		for _, n := range out.notifications {
			if err := e.notifier.Notify(ctx, n); err != nil {
				return fmt.Errorf("enqueue %s notification: %w", n.Template, err)
			}
		}
	}
	if e.activity != nil {
		for _, ev := range out.events {
			if ev.OccurredAt.IsZero() {
				ev.OccurredAt = time.Now().UTC()
			}
			if err := e.activity.Record(ctx, ev); err != nil {
				return fmt.Errorf("record %s activity: %w", ev.Action, err)
			}
		}
	}
	return nil
}

func (e *Emitter) deliver(ctx context.Context, out *Pending) {
	for _, n := range out.notifications {
		e.Notify(ctx, n)
	}
	for _, ev := range out.events {
		e.Record(ctx, ev)
	}
}

// Notify sends n right away and logs a failure at warn level. Used for
// side effects that belong to no transaction, such as post-commit alerts.
func (e *Emitter) Notify(ctx context.Context, n Notification) {
	if e == nil || e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, n); err != nil {
		logger.Warn(ctx, "notification dispatch failed",
			"template", n.Template,
			"recipient", n.Recipient.Kind,
			"subject_type", n.SubjectType,
			"subject_id", n.SubjectID,
			"error", err,
		)
	}
}

// Record writes ev to the activity log and logs a failure at warn level.
func (e *Emitter) Record(ctx context.Context, ev ActivityEvent) {
	if e == nil || e.activity == nil {
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	if err := e.activity.Record(ctx, ev); err != nil {
		logger.Warn(ctx, "activity log write failed",
			"action", ev.Action,
			"subject_type", ev.SubjectType,
			"subject_id", ev.SubjectID,
			"error", err,
		)
	}
}
