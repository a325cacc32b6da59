package procurement

import (
	"context"
	"fmt"

	"backoffice/internal/core/apperror"
	"backoffice/internal/core/entity"
	"backoffice/internal/core/id"
	"backoffice/internal/core/types"
	"backoffice/internal/domain/ledger"
	"backoffice/internal/domain/notify"
	"backoffice/pkg/logger"
)

// Receipt is the outcome of RecordReceipt.
type Receipt[T Order] struct {
	Order T
	Line  *LineItem
	// Entry is nil when the receipt did not change the received quantity.
	Entry *ledger.Entry
}

// RecordReceipt sets a line's cumulative received quantity to newReceived.
//
// Only the difference to the previously received quantity moves stock, so
// repeating a receipt with the same value is a no-op. A downward correction
// takes the difference back out of stock and fails with INSUFFICIENT_STOCK
// if those goods were already consumed. After every effective receipt the
// order becomes Received when all lines are complete and Partial otherwise.
func (m *Machine[T]) RecordReceipt(ctx context.Context, orderID, lineID id.ID, newReceived types.Quantity, actor entity.Actor) (*Receipt[T], error) {
	if newReceived.IsNegative() {
		return nil, apperror.NewInvalidQuantity("received quantity must not be negative", newReceived.Int64())
	}
	if actor.IsZero() {
		return nil, apperror.NewValidation("actor is required").WithDetail("field", "actor")
	}

	var res *Receipt[T]
	err := m.emitter.InTransaction(ctx, m.txManager, func(ctx context.Context, out *notify.Pending) error {
		order, err := m.repo.GetForUpdate(ctx, orderID)
		if err != nil {
			return m.normalizeGetErr(err, orderID)
		}

		line := findLine(order, lineID)
		if line == nil {
			return apperror.NewNotFound("order line", lineID.String()).WithDetail("order_id", orderID.String())
		}
		if newReceived > line.QuantityOrdered {
			return apperror.NewOverReceipt(lineID.String(), newReceived.Int64(), line.QuantityOrdered.Int64())
		}

		res = &Receipt[T]{Order: order, Line: line}
		diff := newReceived - line.QuantityReceived
		if diff.IsZero() {
			return nil
		}

		state := order.State()
		if err := state.CanReceive(); err != nil {
			return withOrder(err, orderID)
		}
		prevStatus := state.Status

		entryType, source := order.LedgerSource(line)
		note := fmt.Sprintf("%s %s: received %d of %d", m.kind, orderID, newReceived, line.QuantityOrdered)
		entry, err := m.ledger.ApplyDelta(ctx, ledger.Delta{
			UnitID: line.UnitID,
			Change: diff,
			Type:   entryType,
			Source: source,
			Actor:  actor,
			Note:   note,
		})
		if err != nil {
			return err
		}
		res.Entry = entry

		line.QuantityReceived = newReceived
		if err := m.repo.UpdateLineReceived(ctx, line); err != nil {
			return fmt.Errorf("update received quantity: %w", err)
		}

		state.MarkReceipt(m.now(), allComplete(order))
		order.Touch()
		if err := m.repo.UpdateState(ctx, order); err != nil {
			return err
		}

		if state.Status != prevStatus {
			tpl := notify.TemplateOrderPartial
			if state.Status == StatusReceived {
				tpl = notify.TemplateOrderReceived
			}
			out.Notify(m.notification(order, tpl, notify.AdminChannel(), nil))
		}
		out.Record(m.activity(order, state, "receipt_recorded", actor, map[string]any{
			"line_id":  lineID.String(),
			"unit_id":  line.UnitID.String(),
			"received": newReceived.Int64(),
			"change":   diff.Int64(),
		}))
		return nil
	})
	if err != nil {
		return nil, err
	}
	if res.Entry == nil {
		logger.Debug(ctx, "receipt unchanged, nothing to book", "order_id", orderID, "line_id", lineID)
		return res, nil
	}

	m.ledger.AfterCommit(ctx, res.Entry)

	logger.Info(ctx, "receipt recorded",
		"kind", m.kind,
		"order_id", orderID,
		"line_id", lineID,
		"change", res.Entry.QuantityChange,
		"status", res.Order.State().Status,
	)
	return res, nil
}

func findLine(o Order, lineID id.ID) *LineItem {
	for _, li := range o.Lines() {
		if li.ID == lineID {
			return li
		}
	}
	return nil
}
