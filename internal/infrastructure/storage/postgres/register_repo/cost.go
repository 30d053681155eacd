// Package register_repo provides the PostgreSQL cost register.
package register_repo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"carmen/internal/core/entity"
	"carmen/internal/core/id"
	"carmen/internal/core/types"
	"carmen/internal/domain/registers/cost"
	"carmen/internal/infrastructure/storage/postgres"
)

const costMovementsTable = "reg_cost_movements"

var costColumns = postgres.ExtractDBColumns[entity.CostMovement]()

// CostRepo implements cost.Repository.
type CostRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

var _ cost.Repository = (*CostRepo)(nil)

// NewCostRepo creates a new cost register repository.
func NewCostRepo(txm *postgres.TxManager) *CostRepo {
	return &CostRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// CreateMovements inserts movements, with COPY when a transaction is open.
func (r *CostRepo) CreateMovements(ctx context.Context, movements []entity.CostMovement) error {
	if len(movements) == 0 {
		return nil
	}

	if r.txm.GetTx(ctx) != nil {
		if _, err := postgres.CopyStructs(ctx, r.txm, costMovementsTable, costColumns, movements, encodeDecimal); err != nil {
			return fmt.Errorf("copy movements: %w", err)
		}
		return nil
	}

	q := r.builder.Insert(costMovementsTable).Columns(costColumns...)
	for _, m := range movements {
		q = q.Values(postgres.RowValues(m, costColumns)...)
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert movements: %w", err)
	}
	return nil
}

// DeleteMovementsByRecorder removes and returns a document's movements.
func (r *CostRepo) DeleteMovementsByRecorder(ctx context.Context, recorderID id.ID) ([]entity.CostMovement, error) {
	sql, args, err := r.builder.Delete(costMovementsTable).
		Where(squirrel.Eq{"recorder_id": recorderID}).
		Suffix("RETURNING " + joinColumns()).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build delete: %w", err)
	}

	var removed []entity.CostMovement
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &removed, sql, args...); err != nil {
		return nil, fmt.Errorf("delete movements: %w", err)
	}
	return removed, nil
}

// ListReceipts returns receipts with period in [from, to], oldest first.
func (r *CostRepo) ListReceipts(ctx context.Context, itemID string, from, to time.Time) ([]entity.CostMovement, error) {
	return r.selectReceipts(ctx, squirrel.And{
		squirrel.Eq{"item_id": itemID, "record_type": entity.RecordTypeReceipt},
		squirrel.GtOrEq{"period": from},
		squirrel.LtOrEq{"period": to},
	})
}

// ListReceiptsUpTo returns receipts with period <= asOf, oldest first.
func (r *CostRepo) ListReceiptsUpTo(ctx context.Context, itemID string, asOf time.Time) ([]entity.CostMovement, error) {
	return r.selectReceipts(ctx, squirrel.And{
		squirrel.Eq{"item_id": itemID, "record_type": entity.RecordTypeReceipt},
		squirrel.LtOrEq{"period": asOf},
	})
}

// IssuedQuantity sums issues with period <= asOf.
func (r *CostRepo) IssuedQuantity(ctx context.Context, itemID string, asOf time.Time) (types.Quantity, error) {
	sql, args, err := r.builder.Select("COALESCE(SUM(quantity), 0)").
		From(costMovementsTable).
		Where(squirrel.Eq{"item_id": itemID, "record_type": entity.RecordTypeIssue}).
		Where(squirrel.LtOrEq{"period": asOf}).
		ToSql()
	if err != nil {
		return types.Zero(), fmt.Errorf("build query: %w", err)
	}

	var total decimal.Decimal
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&total); err != nil {
		return types.Zero(), fmt.Errorf("sum issues: %w", err)
	}
	return total, nil
}

func (r *CostRepo) selectReceipts(ctx context.Context, where squirrel.Sqlizer) ([]entity.CostMovement, error) {
	sql, args, err := r.builder.Select(costColumns...).
		From(costMovementsTable).
		Where(where).
		OrderBy("period", "line_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var out []entity.CostMovement
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("select receipts: %w", err)
	}
	return out, nil
}

func joinColumns() string {
	return strings.Join(costColumns, ", ")
}

// numeric converts a decimal for the binary COPY protocol.
// encodeDecimal sends money and quantities as exact numerics over COPY.
func encodeDecimal(v any) any {
	if d, ok := v.(decimal.Decimal); ok {
		return numeric(d)
	}
	return v
}

func numeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}
