package memory

import (
	"context"
	"sync"

	"carmen/internal/domain/audit"
)

// AuditLog keeps audit entries in insertion order.
type AuditLog struct {
	mu      sync.RWMutex
	entries []audit.Entry
}

var _ audit.Recorder = (*AuditLog)(nil)

// NewAuditLog creates an empty audit log.
func NewAuditLog() *AuditLog {
	return &AuditLog{}
}

func (l *AuditLog) Record(_ context.Context, e audit.Entry) error {
	l.mu.Lock()
	l.entries = append(l.entries, e)
	l.mu.Unlock()
	return nil
}

// History returns the newest entries of the entity first. limit <= 0 returns all.
func (l *AuditLog) History(_ context.Context, entityType, entityID string, limit int) ([]audit.Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []audit.Entry
	for i := len(l.entries) - 1; i >= 0; i-- {
		e := l.entries[i]
		if e.EntityType != entityType || e.EntityID != entityID {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
