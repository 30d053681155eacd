// Package memory provides thread-safe in-process stores for tests, the CLI
// and single-node deployments without Postgres.
package memory

import (
	"context"
	"sync"

	"carmen/internal/core/apperror"
	"carmen/internal/domain/costing"
	"carmen/internal/domain/costing/settings"
)

// SettingsRepo keeps every settings version per scope, oldest first.
type SettingsRepo struct {
	mu       sync.RWMutex
	versions map[string][]costing.InventorySettings
}

var _ settings.Repository = (*SettingsRepo)(nil)

// NewSettingsRepo creates an empty settings store.
func NewSettingsRepo() *SettingsRepo {
	return &SettingsRepo{versions: make(map[string][]costing.InventorySettings)}
}

func (r *SettingsRepo) Read(_ context.Context, scopeID string) (costing.InventorySettings, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	vs := r.versions[scopeID]
	if len(vs) == 0 {
		return costing.InventorySettings{}, apperror.NewNotFound("inventory settings", scopeID)
	}
	return vs[len(vs)-1], nil
}

func (r *SettingsRepo) Write(_ context.Context, s costing.InventorySettings) (costing.InventorySettings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s.Version = len(r.versions[s.ScopeID]) + 1
	r.versions[s.ScopeID] = append(r.versions[s.ScopeID], s)
	return s, nil
}

func (r *SettingsRepo) History(_ context.Context, scopeID string) ([]costing.InventorySettings, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	vs := r.versions[scopeID]
	out := make([]costing.InventorySettings, len(vs))
	for i, s := range vs {
		out[len(vs)-1-i] = s
	}
	return out, nil
}
