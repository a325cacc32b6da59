package procurement

import (
	"context"
	"fmt"
	"time"

	"backoffice/internal/core/apperror"
	"backoffice/internal/core/entity"
	"backoffice/internal/core/id"
	"backoffice/internal/core/tx"
	"backoffice/internal/domain/ledger"
	"backoffice/internal/domain/notify"
	"backoffice/internal/domain/token"
	"backoffice/pkg/logger"
)

// TokenAuthority issues and validates supplier capability tokens.
type TokenAuthority interface {
	Issue(orderID, counterpartyID id.ID, kind token.Kind, ttlDays int) (string, error)
	Validate(tokenString string) (*token.Claims, error)
}

// Deps are the collaborators of a Machine.
type Deps struct {
	TxManager   tx.Manager
	Ledger      *ledger.Service
	Tokens      TokenAuthority
	Emitter     *notify.Emitter
	Links       LinkBuilder
	LinkTTLDays int
}

// Machine runs the order lifecycle for one order kind.
// Purchase orders and reorders use the same Machine code with different T.
type Machine[T Order] struct {
	kind        token.Kind
	repo        Repository[T]
	txManager   tx.Manager
	ledger      *ledger.Service
	tokens      TokenAuthority
	emitter     *notify.Emitter
	links       LinkBuilder
	linkTTLDays int
	now         func() time.Time
}

// NewMachine creates a lifecycle machine for kind.
func NewMachine[T Order](kind token.Kind, repo Repository[T], deps Deps) *Machine[T] {
	ttl := deps.LinkTTLDays
	if ttl <= 0 {
		ttl = 7
	}
	links := deps.Links
	if links == nil {
		links = PublicLinks("")
	}
	return &Machine[T]{
		kind:        kind,
		repo:        repo,
		txManager:   deps.TxManager,
		ledger:      deps.Ledger,
		tokens:      deps.Tokens,
		emitter:     deps.Emitter,
		links:       links,
		linkTTLDays: ttl,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// NewPurchaseOrders creates the purchase order machine.
func NewPurchaseOrders(repo PurchaseOrderRepository, deps Deps) *Machine[*PurchaseOrder] {
	return NewMachine[*PurchaseOrder](token.KindPurchaseOrder, repo, deps)
}

// NewReorders creates the reorder machine.
func NewReorders(repo ReorderRepository, deps Deps) *Machine[*Reorder] {
	return NewMachine[*Reorder](token.KindReorder, repo, deps)
}

// Kind returns the order kind this machine drives.
func (m *Machine[T]) Kind() token.Kind {
	return m.kind
}

// Create stores a new Pending order and sends the supplier a capability link.
// It is refused while another order for the same need is Pending or Accepted.
func (m *Machine[T]) Create(ctx context.Context, order T) (T, error) {
	var zero T
	if err := order.Validate(ctx); err != nil {
		return zero, err
	}
	if order.Kind() != m.kind {
		return zero, apperror.NewValidation(fmt.Sprintf("expected a %s", m.kind))
	}

	err := m.emitter.InTransaction(ctx, m.txManager, func(ctx context.Context, out *notify.Pending) error {
		for _, li := range order.Lines() {
			if _, err := m.ledger.GetUnit(ctx, li.UnitID); err != nil {
				return err
			}
		}

		open, err := m.repo.HasOpenOrder(ctx, order.ConflictKey())
		if err != nil {
			return fmt.Errorf("check open %s: %w", m.kind, err)
		}
		if open {
			return apperror.NewConflictingPendingOrder(string(m.kind), order.ConflictKey().String())
		}

		if err := m.repo.Create(ctx, order); err != nil {
			if apperror.IsAppError(err) {
				return err
			}
			return fmt.Errorf("create %s: %w", m.kind, err)
		}

		link, err := m.issueLink(order)
		if err != nil {
			return err
		}
		out.Notify(m.notification(order, notify.TemplateOrderCreated, notify.Supplier(order.Counterparty()), map[string]any{
			"link": link,
		}))
		out.Record(m.activity(order, order.State(), "created", order.Creator(), nil))
		return nil
	})
	if err != nil {
		return zero, err
	}

	logger.Info(ctx, "order created", "kind", m.kind, "order_id", order.OrderID(), "supplier_id", order.Counterparty())
	return order, nil
}

// Get returns an order by ID.
func (m *Machine[T]) Get(ctx context.Context, orderID id.ID) (T, error) {
	order, err := m.repo.GetByID(ctx, orderID)
	if err != nil {
		var zero T
		return zero, m.normalizeGetErr(err, orderID)
	}
	return order, nil
}

// ViewByToken returns the order a supplier link points to.
func (m *Machine[T]) ViewByToken(ctx context.Context, tokenString string) (T, error) {
	var zero T
	claims, err := m.claims(tokenString)
	if err != nil {
		return zero, err
	}

	order, err := m.Get(ctx, claims.OrderID)
	if err != nil {
		return zero, err
	}
	if order.Counterparty() != claims.CounterpartyID {
		return zero, tokenMismatch(claims.OrderID)
	}
	return order, nil
}

// Accept is the supplier confirming a Pending order through its link.
func (m *Machine[T]) Accept(ctx context.Context, orderID id.ID, tokenString, notes string) (T, error) {
	order, err := m.supplierTransition(ctx, orderID, tokenString, func(l *Lifecycle, now time.Time) error {
		return l.Accept(now, notes)
	}, func(order T, supplier entity.Actor, out *notify.Pending) {
		out.Notify(m.notification(order, notify.TemplateOrderAccepted, notify.AdminChannel(), map[string]any{
			"notes": notes,
		}))
		out.Record(m.activity(order, order.State(), "accepted", supplier, map[string]any{
			"notes": notes,
		}))
	})
	if err != nil {
		return order, err
	}

	logger.Info(ctx, "order accepted", "kind", m.kind, "order_id", orderID)
	return order, nil
}

// Reject is the supplier declining a Pending order through its link.
func (m *Machine[T]) Reject(ctx context.Context, orderID id.ID, tokenString, reason string) (T, error) {
	order, err := m.supplierTransition(ctx, orderID, tokenString, func(l *Lifecycle, now time.Time) error {
		return l.Reject(now, reason)
	}, func(order T, supplier entity.Actor, out *notify.Pending) {
		out.Notify(m.notification(order, notify.TemplateOrderRejected, notify.AdminChannel(), map[string]any{
			"reason": reason,
		}))
		out.Record(m.activity(order, order.State(), "rejected", supplier, map[string]any{
			"reason": reason,
		}))
	})
	if err != nil {
		return order, err
	}

	logger.Info(ctx, "order rejected", "kind", m.kind, "order_id", orderID)
	return order, nil
}

// Cancel is staff withdrawing an order that has not been fully received.
func (m *Machine[T]) Cancel(ctx context.Context, orderID id.ID, reason string, actor entity.Actor) (T, error) {
	var order T
	if actor.IsZero() {
		return order, apperror.NewValidation("actor is required").WithDetail("field", "actor")
	}

	err := m.emitter.InTransaction(ctx, m.txManager, func(ctx context.Context, out *notify.Pending) error {
		var err error
		order, err = m.repo.GetForUpdate(ctx, orderID)
		if err != nil {
			return m.normalizeGetErr(err, orderID)
		}
		if err := order.State().Cancel(m.now(), reason, actor); err != nil {
			return withOrder(err, orderID)
		}
		order.Touch()
		if err := m.repo.UpdateState(ctx, order); err != nil {
			return err
		}

		out.Notify(m.notification(order, notify.TemplateOrderCancelled, notify.Supplier(order.Counterparty()), map[string]any{
			"reason": reason,
		}))
		out.Record(m.activity(order, order.State(), "cancelled", actor, map[string]any{"reason": reason}))
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}

	logger.Info(ctx, "order cancelled", "kind", m.kind, "order_id", orderID)
	return order, nil
}

// ResendLink issues a fresh capability link for a Pending order and sends it again.
// Earlier links stay valid until they expire.
func (m *Machine[T]) ResendLink(ctx context.Context, orderID id.ID, actor entity.Actor) error {
	order, err := m.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if order.State().Status != StatusPending {
		return withOrder(transitionError("resend the link of", order.State().Status), orderID)
	}

	link, err := m.issueLink(order)
	if err != nil {
		return err
	}

	return m.emitter.InTransaction(ctx, m.txManager, func(_ context.Context, out *notify.Pending) error {
		out.Notify(m.notification(order, notify.TemplateOrderLinkResent, notify.Supplier(order.Counterparty()), map[string]any{
			"link": link,
		}))
		out.Record(m.activity(order, order.State(), "link_resent", actor, nil))
		return nil
	})
}

// supplierTransition validates the token against the order and applies fn
// under a row lock. emit queues the side effects of the new state.
func (m *Machine[T]) supplierTransition(ctx context.Context, orderID id.ID, tokenString string,
	fn func(*Lifecycle, time.Time) error, emit func(order T, supplier entity.Actor, out *notify.Pending),
) (T, error) {
	var zero T
	claims, err := m.claims(tokenString)
	if err != nil {
		return zero, err
	}
	if claims.OrderID != orderID {
		return zero, tokenMismatch(orderID)
	}

	var order T
	err = m.emitter.InTransaction(ctx, m.txManager, func(ctx context.Context, out *notify.Pending) error {
		locked, err := m.repo.GetForUpdate(ctx, orderID)
		if err != nil {
			return m.normalizeGetErr(err, orderID)
		}
		order = locked
		if order.Counterparty() != claims.CounterpartyID {
			return tokenMismatch(orderID)
		}
		if err := fn(order.State(), m.now()); err != nil {
			return withOrder(err, orderID)
		}
		order.Touch()
		if err := m.repo.UpdateState(ctx, order); err != nil {
			return err
		}
		emit(order, entity.SupplierActor(claims.CounterpartyID), out)
		return nil
	})
	if err != nil {
		return zero, err
	}
	return order, nil
}

// claims validates a token and checks it was issued for this machine's order kind.
// Any token failure is reported as an invalid transition.
func (m *Machine[T]) claims(tokenString string) (*token.Claims, error) {
	claims, err := m.tokens.Validate(tokenString)
	if err != nil {
		msg := "token is invalid"
		if apperror.IsCode(err, apperror.CodeTokenExpired) {
			msg = "token has expired"
		}
		return nil, apperror.NewInvalidTransition(msg).WithCause(err)
	}
	if claims.Kind != m.kind {
		return nil, tokenMismatch(claims.OrderID)
	}
	return claims, nil
}

func (m *Machine[T]) issueLink(order T) (string, error) {
	tok, err := m.tokens.Issue(order.OrderID(), order.Counterparty(), m.kind, m.linkTTLDays)
	if err != nil {
		return "", fmt.Errorf("issue %s token: %w", m.kind, err)
	}
	return m.links(m.kind, tok), nil
}

func (m *Machine[T]) notification(order T, tpl notify.Template, to notify.Recipient, payload map[string]any) notify.Notification {
	if payload == nil {
		payload = map[string]any{}
	}
	payload["status"] = string(order.State().Status)
	return notify.Notification{
		Template:    tpl,
		Recipient:   to,
		SubjectType: string(m.kind),
		SubjectID:   order.OrderID(),
		Payload:     payload,
	}
}

func (m *Machine[T]) activity(order T, state *Lifecycle, action string, actor entity.Actor, payload map[string]any) notify.ActivityEvent {
	if payload == nil {
		payload = map[string]any{}
	}
	payload["status"] = string(state.Status)
	return notify.ActivityEvent{
		Actor:       actor,
		Action:      string(m.kind) + "." + action,
		SubjectType: string(m.kind),
		SubjectID:   order.OrderID(),
		Payload:     payload,
	}
}

func (m *Machine[T]) normalizeGetErr(err error, orderID id.ID) error {
	if apperror.IsNotFound(err) {
		return apperror.NewNotFound(string(m.kind), orderID.String())
	}
	if apperror.IsAppError(err) {
		return err
	}
	return apperror.NewInternal(err).WithDetail("order_id", orderID.String())
}

func tokenMismatch(orderID id.ID) error {
	return apperror.NewInvalidTransition("token does not match this order").WithDetail("order_id", orderID.String())
}

func withOrder(err error, orderID id.ID) error {
	if appErr, ok := apperror.AsAppError(err); ok {
		if appErr.Details != nil {
			if _, has := appErr.Details["id"]; has {
				appErr.Details["id"] = orderID.String()
			}
		}
		return appErr.WithDetail("order_id", orderID.String())
	}
	return err
}
