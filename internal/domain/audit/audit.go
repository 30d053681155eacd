// Package audit records who changed the costing configuration and which
// postings entered or left the cost register.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	appctx "carmen/internal/core/context"
	"carmen/internal/core/id"
)

// Action is the kind of audited operation.
type Action string

const (
	ActionUpdate Action = "update"
	ActionPost   Action = "post"
	ActionUnpost Action = "unpost"
)

// Entity types written by the services.
const (
	EntityInventorySettings = "inventory_settings"
	EntityCostPosting       = "cost_posting"
)

// Entry is one audit record. Changes holds the JSON document describing the
// change; stores may compress it at rest but always hand it back decoded.
type Entry struct {
	ID         id.ID           `json:"id"`
	EntityType string          `json:"entityType"`
	EntityID   string          `json:"entityId"`
	Action     Action          `json:"action"`
	UserID     string          `json:"userId,omitempty"`
	Changes    json.RawMessage `json:"changes"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// Recorder persists audit entries. Record joins the transaction in ctx, so an
// entry commits or rolls back with the change it describes.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
	History(ctx context.Context, entityType, entityID string, limit int) ([]Entry, error)
}

// NewEntry builds an entry for the actor in ctx with changes marshalled to JSON.
func NewEntry(ctx context.Context, entityType, entityID string, action Action, changes any) (Entry, error) {
	raw, err := json.Marshal(changes)
	if err != nil {
		return Entry{}, fmt.Errorf("marshal audit changes: %w", err)
	}
	return Entry{
		ID:         id.New(),
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		UserID:     appctx.GetUserID(ctx),
		Changes:    raw,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// Diff returns {"field": {"old": x, "new": y}} for every field whose value differs
// between the two states, including fields present on one side only.
func Diff(oldState, newState map[string]any) map[string]any {
	changes := make(map[string]any)
	for k, nv := range newState {
		ov, ok := oldState[k]
		if !ok || !reflect.DeepEqual(ov, nv) {
			changes[k] = map[string]any{"old": ov, "new": nv}
		}
	}
	for k, ov := range oldState {
		if _, ok := newState[k]; !ok {
			changes[k] = map[string]any{"old": ov, "new": nil}
		}
	}
	return changes
}
