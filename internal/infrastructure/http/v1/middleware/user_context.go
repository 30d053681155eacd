package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	appctx "carmen/internal/core/context"
)

const (
	HeaderUserID   = "X-User-ID"
	HeaderScopeIDs = "X-Scope-IDs"
)

// UserContext reads the actor set by the upstream gateway and puts it in the
// request context, where settings changes pick it up for the audit trail.
// X-Scope-IDs is a comma separated list of scopes the actor may administer.
func UserContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if userID != "" {
			var scopes []string
			for _, s := range strings.Split(c.GetHeader(HeaderScopeIDs), ",") {
				if s = strings.TrimSpace(s); s != "" {
					scopes = append(scopes, s)
				}
			}
			ctx := appctx.WithUser(c.Request.Context(), &appctx.UserContext{UserID: userID, ScopeIDs: scopes})
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}
