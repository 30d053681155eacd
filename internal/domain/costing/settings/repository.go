// Package settings is the settings provider: it stores the costing method
// chosen for each organisational scope.
package settings

import (
	"context"

	"carmen/internal/domain/costing"
)

// Repository persists inventory settings.
//
// Write never overwrites: it appends a new version and marks it active, so
// History always returns every method a scope has used.
type Repository interface {
	// Read returns the active settings of scopeID or a NOT_FOUND AppError.
	Read(ctx context.Context, scopeID string) (costing.InventorySettings, error)

	// Write stores s as the next version of its scope and returns the stored record.
	Write(ctx context.Context, s costing.InventorySettings) (costing.InventorySettings, error)

	// History lists all versions of scopeID, newest first.
	History(ctx context.Context, scopeID string) ([]costing.InventorySettings, error)
}
