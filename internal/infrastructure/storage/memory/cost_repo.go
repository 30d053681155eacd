package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"carmen/internal/core/entity"
	"carmen/internal/core/id"
	"carmen/internal/core/types"
	"carmen/internal/domain/registers/cost"
)

// CostRepo is an in-memory cost register.
type CostRepo struct {
	mu        sync.RWMutex
	movements []entity.CostMovement

	// reads counts receipt queries; tests use it to observe cache behaviour.
	reads int
}

var _ cost.Repository = (*CostRepo)(nil)

// NewCostRepo creates an empty register.
func NewCostRepo() *CostRepo {
	return &CostRepo{}
}

func (r *CostRepo) CreateMovements(_ context.Context, movements []entity.CostMovement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.movements = append(r.movements, movements...)
	return nil
}

func (r *CostRepo) DeleteMovementsByRecorder(_ context.Context, recorderID id.ID) ([]entity.CostMovement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []entity.CostMovement
	kept := r.movements[:0]
	for _, m := range r.movements {
		if m.RecorderID == recorderID {
			removed = append(removed, m)
			continue
		}
		kept = append(kept, m)
	}
	r.movements = kept
	return removed, nil
}

func (r *CostRepo) ListReceipts(_ context.Context, itemID string, from, to time.Time) ([]entity.CostMovement, error) {
	r.mu.Lock()
	r.reads++
	r.mu.Unlock()

	return r.filter(func(m entity.CostMovement) bool {
		return m.RecordType == entity.RecordTypeReceipt &&
			m.ItemID == itemID &&
			!m.Period.Before(from) && !m.Period.After(to)
	}), nil
}

func (r *CostRepo) ListReceiptsUpTo(_ context.Context, itemID string, asOf time.Time) ([]entity.CostMovement, error) {
	r.mu.Lock()
	r.reads++
	r.mu.Unlock()

	return r.filter(func(m entity.CostMovement) bool {
		return m.RecordType == entity.RecordTypeReceipt &&
			m.ItemID == itemID &&
			!m.Period.After(asOf)
	}), nil
}

func (r *CostRepo) IssuedQuantity(_ context.Context, itemID string, asOf time.Time) (types.Quantity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := types.Zero()
	for _, m := range r.movements {
		if m.RecordType == entity.RecordTypeIssue && m.ItemID == itemID && !m.Period.After(asOf) {
			total = total.Add(m.Quantity)
		}
	}
	return total, nil
}

// Reads returns how many receipt queries have been served.
func (r *CostRepo) Reads() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.reads
}

func (r *CostRepo) filter(keep func(entity.CostMovement) bool) []entity.CostMovement {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []entity.CostMovement
	for _, m := range r.movements {
		if keep(m) {
			out = append(out, m)
		}
	}
	slices.SortStableFunc(out, func(a, b entity.CostMovement) int {
		if c := a.Period.Compare(b.Period); c != 0 {
			return c
		}
		return strings.Compare(a.LineID.String(), b.LineID.String())
	})
	return out
}
