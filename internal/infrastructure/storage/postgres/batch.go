package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// CopyStructs bulk-inserts items with the COPY protocol, reading each item's
// db-tagged fields in column order. encode, when non-nil, rewrites values pgx
// cannot send as-is. It requires a transaction in ctx so a failed COPY leaves
// no partial posting behind.
func CopyStructs[T any](ctx context.Context, txm *TxManager, table string, columns []string, items []T, encode func(any) any) (int64, error) {
	tx := txm.GetTx(ctx)
	if tx == nil {
		return 0, fmt.Errorf("copy into %s requires transaction context", table)
	}

	next := 0
	src := pgx.CopyFromFunc(func() ([]any, error) {
		if next >= len(items) {
			return nil, nil
		}
		row := RowValues(items[next], columns)
		next++
		if encode != nil {
			for i, v := range row {
				row[i] = encode(v)
			}
		}
		return row, nil
	})
	return tx.CopyFrom(ctx, pgx.Identifier{table}, columns, src)
}
