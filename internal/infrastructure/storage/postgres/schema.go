package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"

	"carmen/pkg/logger"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ApplySchema runs every embedded migration in file-name order. The scripts
// are idempotent, so it is safe to call on each start.
func ApplySchema(ctx context.Context, pool *Pool) error {
	names, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(names)

	for _, name := range names {
		script, err := migrations.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if _, err := pool.Exec(ctx, string(script)); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
		logger.Info(ctx, "applied migration", "file", name)
	}
	return nil
}
