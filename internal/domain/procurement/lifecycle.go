// Package procurement drives supplier purchase orders and internal reorders
// through one shared acceptance lifecycle, and reconciles goods receipts into
// the stock ledger.
package procurement

import (
	"time"

	"backoffice/internal/core/apperror"
	"backoffice/internal/core/entity"
)

// Status of an order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
	StatusPartial   Status = "partial"
	StatusReceived  Status = "received"
)

// IsOpen reports whether the order still blocks a new order for the same need.
func (s Status) IsOpen() bool {
	return s == StatusPending || s == StatusAccepted
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusRejected || s == StatusCancelled || s == StatusReceived
}

// Lifecycle is the state shared by both order kinds: the status plus the
// timestamp and free text of every transition.
type Lifecycle struct {
	Status             Status       `db:"status" json:"status"`
	AcceptedAt         *time.Time   `db:"accepted_at" json:"acceptedAt,omitempty"`
	AcceptanceNotes    string       `db:"acceptance_notes" json:"acceptanceNotes,omitempty"`
	RejectedAt         *time.Time   `db:"rejected_at" json:"rejectedAt,omitempty"`
	RejectionReason    string       `db:"rejection_reason" json:"rejectionReason,omitempty"`
	CancelledAt        *time.Time   `db:"cancelled_at" json:"cancelledAt,omitempty"`
	CancellationReason string       `db:"cancellation_reason" json:"cancellationReason,omitempty"`
	CancelledBy        entity.Actor `db:"cancelled_by" json:"cancelledBy,omitempty"`
	ReceivedAt         *time.Time   `db:"received_at" json:"receivedAt,omitempty"`
}

// NewLifecycle returns a Pending lifecycle.
func NewLifecycle() Lifecycle {
	return Lifecycle{Status: StatusPending}
}

// Accept moves Pending to Accepted.
func (l *Lifecycle) Accept(now time.Time, notes string) error {
	if l.Status != StatusPending {
		return transitionError("accept", l.Status)
	}
	l.Status = StatusAccepted
	l.AcceptedAt = &now
	l.AcceptanceNotes = notes
	return nil
}

// Reject moves Pending to Rejected.
func (l *Lifecycle) Reject(now time.Time, reason string) error {
	if l.Status != StatusPending {
		return transitionError("reject", l.Status)
	}
	l.Status = StatusRejected
	l.RejectedAt = &now
	l.RejectionReason = reason
	return nil
}

// Cancel is allowed from Pending, Accepted and Partial.
func (l *Lifecycle) Cancel(now time.Time, reason string, by entity.Actor) error {
	switch l.Status {
	case StatusCancelled:
		return apperror.NewAlready(apperror.CodeAlreadyCancelled, "order", nil)
	case StatusReceived:
		return apperror.NewAlready(apperror.CodeAlreadyReceived, "order", nil)
	case StatusRejected:
		return transitionError("cancel", l.Status)
	}
	l.Status = StatusCancelled
	l.CancelledAt = &now
	l.CancellationReason = reason
	l.CancelledBy = by
	return nil
}

// CanReceive checks that goods may be booked against the order.
func (l *Lifecycle) CanReceive() error {
	switch l.Status {
	case StatusAccepted, StatusPartial:
		return nil
	case StatusReceived:
		return apperror.NewAlready(apperror.CodeAlreadyReceived, "order", nil)
	}
	return transitionError("receive goods for", l.Status)
}

// MarkReceipt sets Received when every line is complete, Partial otherwise.
func (l *Lifecycle) MarkReceipt(now time.Time, complete bool) {
	if complete {
		l.Status = StatusReceived
		l.ReceivedAt = &now
		return
	}
	l.Status = StatusPartial
}

func transitionError(action string, from Status) error {
	return apperror.NewInvalidTransition("cannot "+action+" an order that is "+string(from)).
		WithDetail("status", string(from))
}
