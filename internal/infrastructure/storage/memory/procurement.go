package memory

import (
	"context"

	"backoffice/internal/core/apperror"
	"backoffice/internal/core/id"
	"backoffice/internal/domain/procurement"
)

// PurchaseOrderRepo implements procurement.PurchaseOrderRepository.
type PurchaseOrderRepo struct {
	s *Store
}

var _ procurement.PurchaseOrderRepository = (*PurchaseOrderRepo)(nil)

func (r *PurchaseOrderRepo) Create(ctx context.Context, po *procurement.PurchaseOrder) error {
	return r.s.write(ctx, func(d *dataset) error {
		for _, other := range d.purchaseOrders {
			if other.SupplierID == po.SupplierID && other.Status.IsOpen() {
				return apperror.NewConflictingPendingOrder("purchase order", po.SupplierID.String())
			}
		}
		header := *po
		header.Items = nil
		d.purchaseOrders[po.ID] = header
		lines := make([]procurement.LineItem, 0, len(po.Items))
		for _, li := range po.Items {
			lines = append(lines, *li)
		}
		d.poLines[po.ID] = lines
		return nil
	})
}

func (r *PurchaseOrderRepo) GetByID(ctx context.Context, orderID id.ID) (*procurement.PurchaseOrder, error) {
	var po *procurement.PurchaseOrder
	r.s.read(ctx, func(d *dataset) {
		header, ok := d.purchaseOrders[orderID]
		if !ok {
			return
		}
		po = &header
		for _, li := range d.poLines[orderID] {
			po.Items = append(po.Items, &li)
		}
	})
	if po == nil {
		return nil, apperror.NewNotFound("purchase order", orderID.String())
	}
	return po, nil
}

func (r *PurchaseOrderRepo) GetForUpdate(ctx context.Context, orderID id.ID) (*procurement.PurchaseOrder, error) {
	return r.GetByID(ctx, orderID)
}

func (r *PurchaseOrderRepo) UpdateState(ctx context.Context, po *procurement.PurchaseOrder) error {
	return r.s.write(ctx, func(d *dataset) error {
		header, ok := d.purchaseOrders[po.ID]
		if !ok {
			return apperror.NewNotFound("purchase order", po.ID.String())
		}
		header.Lifecycle = po.Lifecycle
		header.UpdatedAt = po.UpdatedAt
		d.purchaseOrders[po.ID] = header
		return nil
	})
}

func (r *PurchaseOrderRepo) UpdateLineReceived(ctx context.Context, line *procurement.LineItem) error {
	return r.s.write(ctx, func(d *dataset) error {
		lines := d.poLines[line.OrderID]
		for i := range lines {
			if lines[i].ID == line.ID {
				lines[i].QuantityReceived = line.QuantityReceived
				return nil
			}
		}
		return apperror.NewNotFound("purchase order line", line.ID.String())
	})
}

func (r *PurchaseOrderRepo) HasOpenOrder(ctx context.Context, supplierID id.ID) (bool, error) {
	var open bool
	r.s.read(ctx, func(d *dataset) {
		for _, po := range d.purchaseOrders {
			if po.SupplierID == supplierID && po.Status.IsOpen() {
				open = true
				return
			}
		}
	})
	return open, nil
}

// ReorderRepo implements procurement.ReorderRepository.
type ReorderRepo struct {
	s *Store
}

var _ procurement.ReorderRepository = (*ReorderRepo)(nil)

func (r *ReorderRepo) Create(ctx context.Context, ro *procurement.Reorder) error {
	return r.s.write(ctx, func(d *dataset) error {
		for _, other := range d.reorders {
			if other.Item.UnitID == ro.Item.UnitID && other.Status.IsOpen() {
				return apperror.NewConflictingPendingOrder("reorder", ro.Item.UnitID.String())
			}
		}
		d.reorders[ro.ID] = *ro
		return nil
	})
}

func (r *ReorderRepo) GetByID(ctx context.Context, orderID id.ID) (*procurement.Reorder, error) {
	var (
		ro procurement.Reorder
		ok bool
	)
	r.s.read(ctx, func(d *dataset) { ro, ok = d.reorders[orderID] })
	if !ok {
		return nil, apperror.NewNotFound("reorder", orderID.String())
	}
	return &ro, nil
}

func (r *ReorderRepo) GetForUpdate(ctx context.Context, orderID id.ID) (*procurement.Reorder, error) {
	return r.GetByID(ctx, orderID)
}

func (r *ReorderRepo) UpdateState(ctx context.Context, ro *procurement.Reorder) error {
	return r.s.write(ctx, func(d *dataset) error {
		stored, ok := d.reorders[ro.ID]
		if !ok {
			return apperror.NewNotFound("reorder", ro.ID.String())
		}
		stored.Lifecycle = ro.Lifecycle
		stored.UpdatedAt = ro.UpdatedAt
		d.reorders[ro.ID] = stored
		return nil
	})
}

func (r *ReorderRepo) UpdateLineReceived(ctx context.Context, line *procurement.LineItem) error {
	return r.s.write(ctx, func(d *dataset) error {
		stored, ok := d.reorders[line.OrderID]
		if !ok {
			return apperror.NewNotFound("reorder", line.OrderID.String())
		}
		stored.Item.QuantityReceived = line.QuantityReceived
		d.reorders[line.OrderID] = stored
		return nil
	})
}

func (r *ReorderRepo) HasOpenOrder(ctx context.Context, unitID id.ID) (bool, error) {
	var open bool
	r.s.read(ctx, func(d *dataset) {
		for _, ro := range d.reorders {
			if ro.Item.UnitID == unitID && ro.Status.IsOpen() {
				open = true
				return
			}
		}
	})
	return open, nil
}
