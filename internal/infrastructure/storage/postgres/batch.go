package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// copyThreshold is the row count from which COPY beats a multi-row INSERT.
const copyThreshold = 16

// BatchInserter writes child rows (order lines, sale items) in one round-trip.
type BatchInserter struct {
	db QuerierProvider
}

// NewBatchInserter creates a new batch inserter.
func NewBatchInserter(db QuerierProvider) *BatchInserter {
	return &BatchInserter{db: db}
}

// Insert writes rows into table. Large batches go through the COPY protocol,
// small ones through a single INSERT ... VALUES statement.
func (b *BatchInserter) Insert(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(rows) >= copyThreshold {
		return b.CopyFromSlice(ctx, table, columns, rows)
	}

	q := Builder().Insert(table).Columns(columns...)
	for _, row := range rows {
		q = q.Values(row...)
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert %s: %w", table, err)
	}
	tag, err := b.db.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("insert %s: %w", table, err)
	}
	return tag.RowsAffected(), nil
}

// CopyFromSlice performs bulk insert using the COPY protocol.
func (b *BatchInserter) CopyFromSlice(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	n, err := b.db.GetQuerier(ctx).CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("copy into %s: %w", table, err)
	}
	return n, nil
}
