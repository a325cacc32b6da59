// Package memory is an in-process implementation of every repository and of
// tx.Manager. It backs the domain service tests and the server's --memory mode.
//
// Transactions are serialized. Each one works on a private copy of the
// dataset that is published on commit and dropped on error, so readers
// outside the transaction only ever see committed state.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"backoffice/internal/core/id"
	"backoffice/internal/core/tx"
	"backoffice/internal/domain/ledger"
	"backoffice/internal/domain/procurement"
	"backoffice/internal/domain/sales"
	"backoffice/internal/domain/stockaudit"
)

var _ tx.Manager = (*Store)(nil)

// Store holds the dataset. Records are kept by value and every read returns
// a copy, so callers can never mutate stored state behind the store's back.
type Store struct {
	// txMu serializes transactions; a transaction holds it from begin to commit.
	txMu sync.Mutex
	mu   sync.RWMutex
	d    *dataset
}

type dataset struct {
	units          map[id.ID]ledger.Unit
	entries        []ledger.Entry
	purchaseOrders map[id.ID]procurement.PurchaseOrder
	poLines        map[id.ID][]procurement.LineItem
	reorders       map[id.ID]procurement.Reorder
	audits         map[id.ID]stockaudit.Audit
	sales          map[id.ID]sales.Sale
	saleItems      map[id.ID][]sales.Item
	payments       []sales.Payment
	refunds        []sales.Refund
	customers      map[id.ID]sales.Customer
}

// New creates an empty store.
func New() *Store {
	return &Store{d: &dataset{
		units:          make(map[id.ID]ledger.Unit),
		purchaseOrders: make(map[id.ID]procurement.PurchaseOrder),
		poLines:        make(map[id.ID][]procurement.LineItem),
		reorders:       make(map[id.ID]procurement.Reorder),
		audits:         make(map[id.ID]stockaudit.Audit),
		sales:          make(map[id.ID]sales.Sale),
		saleItems:      make(map[id.ID][]sales.Item),
		customers:      make(map[id.ID]sales.Customer),
	}}
}

func (d *dataset) clone() *dataset {
	c := &dataset{
		units:          maps.Clone(d.units),
		entries:        slices.Clone(d.entries),
		purchaseOrders: maps.Clone(d.purchaseOrders),
		poLines:        make(map[id.ID][]procurement.LineItem, len(d.poLines)),
		reorders:       maps.Clone(d.reorders),
		audits:         maps.Clone(d.audits),
		sales:          maps.Clone(d.sales),
		saleItems:      make(map[id.ID][]sales.Item, len(d.saleItems)),
		payments:       slices.Clone(d.payments),
		refunds:        slices.Clone(d.refunds),
		customers:      maps.Clone(d.customers),
	}
	for k, v := range d.poLines {
		c.poLines[k] = slices.Clone(v)
	}
	for k, v := range d.saleItems {
		c.saleItems[k] = slices.Clone(v)
	}
	return c
}

type txKey struct{}

// txn is an open transaction: a private working copy of the dataset that
// replaces the committed one on success.
type txn struct {
	s *Store
	d *dataset
}

func (s *Store) txFrom(ctx context.Context) *txn {
	if t, ok := ctx.Value(txKey{}).(*txn); ok && t.s == s {
		return t
	}
	return nil
}

// RunInTransaction implements tx.Manager. Nested calls join the outer transaction.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.txFrom(ctx) != nil {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	t := &txn{s: s, d: s.d.clone()}
	s.mu.RUnlock()

	if err := fn(context.WithValue(ctx, txKey{}, t)); err != nil {
		return err
	}

	s.mu.Lock()
	s.d = t.d
	s.mu.Unlock()
	return nil
}

// read sees the transaction's working copy inside a transaction and the
// last committed dataset outside one.
func (s *Store) read(ctx context.Context, fn func(d *dataset)) {
	if t := s.txFrom(ctx); t != nil {
		fn(t.d)
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.d)
}

// write outside a transaction commits immediately. It waits for an open
// transaction to finish so that commit cannot overwrite it.
func (s *Store) write(ctx context.Context, fn func(d *dataset) error) error {
	if t := s.txFrom(ctx); t != nil {
		return fn(t.d)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.d)
}

// Repositories bundles the store's repository views.
type Repositories struct {
	Ledger         *LedgerRepo
	PurchaseOrders *PurchaseOrderRepo
	Reorders       *ReorderRepo
	Audits         *AuditRepo
	Sales          *SalesRepo
	Customers      *CustomerRepo
}

// Repositories returns every repository backed by s.
func (s *Store) Repositories() Repositories {
	return Repositories{
		Ledger:         &LedgerRepo{s: s},
		PurchaseOrders: &PurchaseOrderRepo{s: s},
		Reorders:       &ReorderRepo{s: s},
		Audits:         &AuditRepo{s: s},
		Sales:          &SalesRepo{s: s},
		Customers:      &CustomerRepo{s: s},
	}
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
