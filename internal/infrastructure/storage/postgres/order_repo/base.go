// Package order_repo provides PostgreSQL implementations of the purchase
// order and reorder repositories.
package order_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"backoffice/internal/core/id"
	"backoffice/internal/domain/procurement"
	"backoffice/internal/infrastructure/storage/postgres"
)

var (
	headerColumns = postgres.ExtractDBColumns[procurement.Header]()
	openStatuses  = []string{string(procurement.StatusPending), string(procurement.StatusAccepted)}
)

// orderTable holds what both order kinds do the same way against their header table.
type orderTable struct {
	db      postgres.QuerierProvider
	builder squirrel.StatementBuilderType
	table   string
	// conflictColumn is the column the open-order unique index covers.
	conflictColumn string
}

func newOrderTable(db postgres.QuerierProvider, table, conflictColumn string) orderTable {
	return orderTable{db: db, builder: postgres.Builder(), table: table, conflictColumn: conflictColumn}
}

func (t orderTable) updateState(ctx context.Context, orderID id.ID, state *procurement.Lifecycle, updatedAt time.Time) (bool, error) {
	data := postgres.StructToMap(state)
	data["updated_at"] = updatedAt

	sql, args, err := t.builder.Update(t.table).SetMap(data).Where(squirrel.Eq{"id": orderID}).ToSql()
	if err != nil {
		return false, fmt.Errorf("build update: %w", err)
	}
	tag, err := t.db.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return false, fmt.Errorf("update %s state: %w", t.table, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (t orderTable) hasOpenOrder(ctx context.Context, key id.ID) (bool, error) {
	sql := fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s WHERE %s = $1 AND status = ANY($2))", t.table, t.conflictColumn)

	var exists bool
	if err := t.db.GetQuerier(ctx).QueryRow(ctx, sql, key, openStatuses).Scan(&exists); err != nil {
		return false, fmt.Errorf("check open %s: %w", t.table, err)
	}
	return exists, nil
}

func lockSuffix(q squirrel.SelectBuilder, lock bool) squirrel.SelectBuilder {
	if lock {
		return q.Suffix("FOR UPDATE")
	}
	return q
}
