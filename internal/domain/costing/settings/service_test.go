package settings_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carmen/internal/core/apperror"
	appctx "carmen/internal/core/context"
	"carmen/internal/domain/audit"
	"carmen/internal/domain/costing"
	"carmen/internal/domain/costing/settings"
	"carmen/internal/infrastructure/storage/memory"
)

func fixedClock() time.Time {
	return time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)
}

func TestGetSettingsUnconfiguredScope(t *testing.T) {
	svc := settings.NewService(memory.NewSettingsRepo())

	_, err := svc.GetSettings(context.Background(), "HOTEL-A")
	assert.True(t, apperror.IsNotFound(err), "got %v", err)
}

func TestSetThenGetReturnsMethod(t *testing.T) {
	svc := settings.NewService(memory.NewSettingsRepo(), settings.WithClock(fixedClock))
	ctx := appctx.WithUser(context.Background(), &appctx.UserContext{UserID: "controller@hotel"})

	for _, m := range costing.Methods() {
		stored, err := svc.SetCostingMethod(ctx, "HOTEL-A", m)
		require.NoError(t, err)
		assert.Equal(t, "controller@hotel", stored.UpdatedBy)
		assert.Equal(t, fixedClock(), stored.UpdatedAt)

		got, err := svc.GetSettings(ctx, "HOTEL-A")
		require.NoError(t, err)
		assert.Equal(t, m, got.Method)
	}
}

func TestSetCostingMethodRejectsUnknown(t *testing.T) {
	repo := memory.NewSettingsRepo()
	svc := settings.NewService(repo)
	ctx := context.Background()

	_, err := svc.SetCostingMethod(ctx, "HOTEL-A", costing.MethodPeriodicAverage)
	require.NoError(t, err)

	_, err = svc.SetCostingMethod(ctx, "HOTEL-A", costing.Method("LIFO"))
	assert.True(t, apperror.IsInvalidArgument(err), "got %v", err)

	// The stored value is untouched.
	got, err := svc.GetSettings(ctx, "HOTEL-A")
	require.NoError(t, err)
	assert.Equal(t, costing.MethodPeriodicAverage, got.Method)
}

func TestEmptyScopeIsInvalid(t *testing.T) {
	svc := settings.NewService(memory.NewSettingsRepo())

	_, err := svc.GetSettings(context.Background(), " ")
	assert.True(t, apperror.IsInvalidArgument(err))

	_, err = svc.SetCostingMethod(context.Background(), "", costing.MethodFIFO)
	assert.True(t, apperror.IsInvalidArgument(err))
}

func TestHistoryKeepsSupersededVersions(t *testing.T) {
	svc := settings.NewService(memory.NewSettingsRepo())
	ctx := context.Background()

	_, err := svc.SetCostingMethod(ctx, "HOTEL-B", costing.MethodFIFO)
	require.NoError(t, err)
	_, err = svc.SetCostingMethod(ctx, "HOTEL-B", costing.MethodPeriodicAverage)
	require.NoError(t, err)

	history, err := svc.History(ctx, "HOTEL-B")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 2, history[0].Version)
	assert.Equal(t, costing.MethodPeriodicAverage, history[0].Method)
	assert.Equal(t, costing.MethodFIFO, history[1].Method)
}

func TestResolveMethod(t *testing.T) {
	ctx := context.Background()

	t.Run("configured scope", func(t *testing.T) {
		svc := settings.NewService(memory.NewSettingsRepo())
		_, err := svc.SetCostingMethod(ctx, "HOTEL-B", costing.MethodPeriodicAverage)
		require.NoError(t, err)

		m, defaulted, err := svc.ResolveMethod(ctx, "HOTEL-B")
		require.NoError(t, err)
		assert.Equal(t, costing.MethodPeriodicAverage, m)
		assert.False(t, defaulted)
	})

	t.Run("unconfigured scope falls back", func(t *testing.T) {
		svc := settings.NewService(memory.NewSettingsRepo())

		m, defaulted, err := svc.ResolveMethod(ctx, "HOTEL-A")
		require.NoError(t, err)
		assert.Equal(t, costing.MethodFIFO, m)
		assert.True(t, defaulted)
	})

	t.Run("configured default", func(t *testing.T) {
		svc := settings.NewService(memory.NewSettingsRepo(), settings.WithDefaultMethod(costing.MethodPeriodicAverage))

		m, defaulted, err := svc.ResolveMethod(ctx, "HOTEL-A")
		require.NoError(t, err)
		assert.Equal(t, costing.MethodPeriodicAverage, m)
		assert.True(t, defaulted)
	})

	t.Run("store failure propagates", func(t *testing.T) {
		svc := settings.NewService(failingRepo{err: errors.New("connection refused")})

		_, _, err := svc.ResolveMethod(ctx, "HOTEL-A")
		assert.EqualError(t, err, "connection refused")
	})
}

type failingRepo struct{ err error }

func (f failingRepo) Read(context.Context, string) (costing.InventorySettings, error) {
	return costing.InventorySettings{}, f.err
}

func (f failingRepo) Write(context.Context, costing.InventorySettings) (costing.InventorySettings, error) {
	return costing.InventorySettings{}, f.err
}

func (f failingRepo) History(context.Context, string) ([]costing.InventorySettings, error) {
	return nil, f.err
}

func TestSetCostingMethodOutsideActorScopes(t *testing.T) {
	svc := settings.NewService(memory.NewSettingsRepo())
	ctx := appctx.WithUser(context.Background(), &appctx.UserContext{UserID: "u1", ScopeIDs: []string{"HOTEL-B"}})

	_, err := svc.SetCostingMethod(ctx, "HOTEL-A", costing.MethodFIFO)
	assert.True(t, apperror.HasCode(err, apperror.CodeForbidden), "got %v", err)

	_, err = svc.SetCostingMethod(ctx, "HOTEL-B", costing.MethodFIFO)
	assert.NoError(t, err)
}

func TestSetCostingMethodIsAudited(t *testing.T) {
	log := memory.NewAuditLog()
	svc := settings.NewService(memory.NewSettingsRepo(), settings.WithAudit(log))
	ctx := appctx.WithUser(context.Background(), &appctx.UserContext{UserID: "controller@hotel"})

	_, err := svc.SetCostingMethod(ctx, "HOTEL-A", costing.MethodFIFO)
	require.NoError(t, err)
	_, err = svc.SetCostingMethod(ctx, "HOTEL-A", costing.MethodPeriodicAverage)
	require.NoError(t, err)

	entries, err := log.History(ctx, audit.EntityInventorySettings, "HOTEL-A", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	latest := entries[0]
	assert.Equal(t, audit.ActionUpdate, latest.Action)
	assert.Equal(t, "controller@hotel", latest.UserID)
	assert.JSONEq(t, `{
		"costing_method": {"old": "FIFO", "new": "PERIODIC_AVERAGE"},
		"version": {"old": 1, "new": 2}
	}`, string(latest.Changes))

	assert.JSONEq(t, `{
		"costing_method": {"old": null, "new": "FIFO"},
		"version": {"old": null, "new": 1}
	}`, string(entries[1].Changes))
}

func TestRejectedChangeIsNotAudited(t *testing.T) {
	log := memory.NewAuditLog()
	svc := settings.NewService(memory.NewSettingsRepo(), settings.WithAudit(log))
	ctx := appctx.WithUser(context.Background(), &appctx.UserContext{UserID: "clerk", ScopeIDs: []string{"HOTEL-B"}})

	_, err := svc.SetCostingMethod(ctx, "HOTEL-A", costing.MethodFIFO)
	require.Error(t, err)

	entries, err := log.History(ctx, audit.EntityInventorySettings, "HOTEL-A", 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
