package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backoffice/internal/core/id"
	"backoffice/internal/core/types"
	"backoffice/internal/domain/ledger"
	"backoffice/internal/infrastructure/storage/memory"
)

func seedUnit(t *testing.T, store *memory.Store, qty types.Quantity) id.ID {
	t.Helper()
	unit := &ledger.Unit{ID: id.New(), SKU: "SKU-" + id.Suffix(id.New(), 8), Quantity: qty}
	require.NoError(t, store.Repositories().Ledger.CreateUnit(context.Background(), unit))
	return unit.ID
}

func TestRunInTransaction_ReadersSeeCommittedState(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	repo := store.Repositories().Ledger
	unitID := seedUnit(t, store, 5)

	written := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- store.RunInTransaction(ctx, func(ctx context.Context) error {
			after, err := repo.AdjustQuantity(ctx, unitID, -3)
			if err != nil {
				return err
			}
			if after != 2 {
				return errors.New("working copy not updated")
			}
			close(written)
			<-release
			return nil
		})
	}()

	<-written
	u, err := repo.GetUnit(ctx, unitID)
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(5), u.Quantity, "uncommitted change must not be visible")

	close(release)
	require.NoError(t, <-done)

	u, err = repo.GetUnit(ctx, unitID)
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(2), u.Quantity)
}

func TestRunInTransaction_ErrorDiscardsWorkingCopy(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	repo := store.Repositories().Ledger
	unitID := seedUnit(t, store, 5)

	boom := errors.New("boom")
	err := store.RunInTransaction(ctx, func(ctx context.Context) error {
		if _, err := repo.AdjustQuantity(ctx, unitID, 4); err != nil {
			return err
		}
		require.NoError(t, repo.AppendEntry(ctx, &ledger.Entry{ID: id.New(), UnitID: unitID}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	u, err := repo.GetUnit(ctx, unitID)
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(5), u.Quantity)
}

func TestRunInTransaction_NestedCallsJoin(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	repo := store.Repositories().Ledger
	unitID := seedUnit(t, store, 1)

	err := store.RunInTransaction(ctx, func(ctx context.Context) error {
		return store.RunInTransaction(ctx, func(ctx context.Context) error {
			_, err := repo.AdjustQuantity(ctx, unitID, 1)
			return err
		})
	})
	require.NoError(t, err)

	u, err := repo.GetUnit(ctx, unitID)
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(2), u.Quantity)
}
