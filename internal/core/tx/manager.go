// Package tx provides transaction management abstractions.
// Domain services depend on Manager; the Postgres and in-memory stores implement it.
package tx

import (
	"context"
)

// Manager defines the contract for transaction management.
type Manager interface {
	// RunInTransaction executes fn within a transaction.
	// If fn returns an error, every write made through ctx is rolled back.
	// If fn succeeds, the transaction is committed.
	//
	// Nested calls reuse the existing transaction from context, so a service
	// method can be called both on its own and as part of a larger operation.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
