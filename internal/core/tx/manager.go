// Package tx defines the transaction port domain services depend on.
// The Postgres implementation lives in infrastructure/storage/postgres; the
// in-memory stores run without one.
package tx

import (
	"context"
)

// Manager runs posting work atomically. Nested calls join the transaction
// already carried by ctx.
type Manager interface {
	// RunInTransaction commits when fn returns nil and rolls back otherwise.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ReadOnlyManager adds snapshot reads: every query fn issues sees the same
// committed state. FIFO uses it so receipts and issued quantity agree.
type ReadOnlyManager interface {
	Manager

	ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error
}
