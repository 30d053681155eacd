// Package settings_repo stores inventory settings in PostgreSQL.
package settings_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"carmen/internal/core/apperror"
	"carmen/internal/domain/costing"
	"carmen/internal/domain/costing/settings"
	"carmen/internal/infrastructure/storage/postgres"
)

const settingsTable = "inventory_settings"

var settingsColumns = postgres.ExtractDBColumns[costing.InventorySettings]()

// SettingsRepo implements settings.Repository. Each write appends a version and
// moves the active flag to it.
type SettingsRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

var _ settings.Repository = (*SettingsRepo)(nil)

// NewSettingsRepo creates a new settings repository.
func NewSettingsRepo(txm *postgres.TxManager) *SettingsRepo {
	return &SettingsRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *SettingsRepo) Read(ctx context.Context, scopeID string) (costing.InventorySettings, error) {
	sql, args, err := r.activeQuery(scopeID)
	if err != nil {
		return costing.InventorySettings{}, fmt.Errorf("build query: %w", err)
	}

	var s costing.InventorySettings
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &s, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return costing.InventorySettings{}, apperror.NewNotFound("inventory settings", scopeID)
		}
		return costing.InventorySettings{}, fmt.Errorf("get settings: %w", err)
	}
	return s, nil
}

func (r *SettingsRepo) Write(ctx context.Context, s costing.InventorySettings) (costing.InventorySettings, error) {
	err := r.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		q := r.txm.GetQuerier(ctx)

		// Serialise writers of the same scope for the version bump.
		if _, err := q.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", s.ScopeID); err != nil {
			return fmt.Errorf("lock scope: %w", err)
		}

		if err := q.QueryRow(ctx,
			"SELECT COALESCE(MAX(version), 0) + 1 FROM "+settingsTable+" WHERE scope_id = $1",
			s.ScopeID,
		).Scan(&s.Version); err != nil {
			return fmt.Errorf("next version: %w", err)
		}

		deactivate, args, err := r.deactivateQuery(s.ScopeID)
		if err != nil {
			return fmt.Errorf("build update: %w", err)
		}
		if _, err := q.Exec(ctx, deactivate, args...); err != nil {
			return fmt.Errorf("deactivate settings: %w", err)
		}

		insert, args, err := r.insertQuery(s)
		if err != nil {
			return fmt.Errorf("build insert: %w", err)
		}
		if _, err := q.Exec(ctx, insert, args...); err != nil {
			return fmt.Errorf("insert settings: %w", err)
		}
		return nil
	})
	if err != nil {
		return costing.InventorySettings{}, err
	}
	return s, nil
}

func (r *SettingsRepo) History(ctx context.Context, scopeID string) ([]costing.InventorySettings, error) {
	sql, args, err := r.historyQuery(scopeID)
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var out []costing.InventorySettings
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("select settings history: %w", err)
	}
	return out, nil
}

func (r *SettingsRepo) activeQuery(scopeID string) (string, []any, error) {
	return r.builder.Select(settingsColumns...).
		From(settingsTable).
		Where(squirrel.Eq{"scope_id": scopeID, "is_active": true}).
		Limit(1).
		ToSql()
}

func (r *SettingsRepo) deactivateQuery(scopeID string) (string, []any, error) {
	return r.builder.Update(settingsTable).
		Set("is_active", false).
		Where(squirrel.Eq{"scope_id": scopeID, "is_active": true}).
		ToSql()
}

// insertQuery writes s as the active version.
func (r *SettingsRepo) insertQuery(s costing.InventorySettings) (string, []any, error) {
	values := postgres.StructToMap(s)
	values["is_active"] = true
	return r.builder.Insert(settingsTable).SetMap(values).ToSql()
}

func (r *SettingsRepo) historyQuery(scopeID string) (string, []any, error) {
	return r.builder.Select(settingsColumns...).
		From(settingsTable).
		Where(squirrel.Eq{"scope_id": scopeID}).
		OrderBy("version DESC").
		ToSql()
}
