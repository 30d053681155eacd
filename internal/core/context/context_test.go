package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanAdministerScope(t *testing.T) {
	ctx := context.Background()
	assert.True(t, CanAdministerScope(ctx, "HOTEL-A"))

	ctx = WithUser(ctx, &UserContext{UserID: "u1", ScopeIDs: []string{"HOTEL-B"}})
	assert.False(t, CanAdministerScope(ctx, "HOTEL-A"))
	assert.True(t, CanAdministerScope(ctx, "HOTEL-B"))
	assert.Equal(t, "u1", GetUserID(ctx))
}

func TestTraceRoundTrip(t *testing.T) {
	tc := NewTraceContext("", "req-1")
	assert.NotEmpty(t, tc.TraceID)
	assert.Equal(t, "req-1", tc.RequestID)

	ctx := WithTrace(context.Background(), tc)
	assert.Equal(t, "req-1", GetRequestID(ctx))
	assert.Equal(t, tc.TraceID, GetTraceID(ctx))

	assert.Empty(t, GetRequestID(context.Background()))
	assert.Empty(t, GetTraceID(context.Background()))
}
