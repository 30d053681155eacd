// Package context provides request-scoped values extraction.
package context

import (
	"context"
)

// UserContext identifies who is acting on the request.
// Authentication happens upstream; the costing engine only records the actor.
type UserContext struct {
	UserID string
	// ScopeIDs lists the business units the actor may administer. Empty means unrestricted.
	ScopeIDs []string
}

type userContextKey struct{}

// WithUser adds UserContext to context.
func WithUser(ctx context.Context, user *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// GetUser returns UserContext from context.
func GetUser(ctx context.Context) *UserContext {
	if v, ok := ctx.Value(userContextKey{}).(*UserContext); ok {
		return v
	}
	return nil
}

// GetUserID returns user ID from context or empty string.
func GetUserID(ctx context.Context) string {
	if u := GetUser(ctx); u != nil {
		return u.UserID
	}
	return ""
}

// CanAdministerScope reports whether the actor may change settings of scopeID.
// Requests without a user (CLI, internal jobs) are allowed.
func CanAdministerScope(ctx context.Context, scopeID string) bool {
	u := GetUser(ctx)
	if u == nil || len(u.ScopeIDs) == 0 {
		return true
	}
	for _, s := range u.ScopeIDs {
		if s == scopeID {
			return true
		}
	}
	return false
}
