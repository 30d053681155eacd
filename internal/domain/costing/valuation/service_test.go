package valuation_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carmen/internal/core/apperror"
	"carmen/internal/core/types"
	"carmen/internal/domain/costing"
	"carmen/internal/domain/costing/fifo"
	"carmen/internal/domain/costing/periodic"
	"carmen/internal/domain/costing/settings"
	"carmen/internal/domain/costing/valuation"
	"carmen/internal/domain/registers/cost"
	"carmen/internal/infrastructure/cache"
	"carmen/internal/infrastructure/storage/memory"
)

var today = time.Date(2024, time.March, 25, 12, 0, 0, 0, time.UTC)

type engine struct {
	settings *settings.Service
	postings *cost.Service
	facade   *valuation.Service
}

func newEngine(t *testing.T) *engine {
	t.Helper()
	repo := memory.NewCostRepo()
	calc := periodic.NewCalculator(repo, cache.NewMemoryAverageCache(0), periodic.DefaultConfig(),
		periodic.WithClock(func() time.Time { return today }))
	postings := cost.NewService(repo, nil)
	postings.Subscribe(calc)
	st := settings.NewService(memory.NewSettingsRepo())

	e := &engine{
		settings: st,
		postings: postings,
		facade:   valuation.NewService(st, fifo.NewStrategy(repo, 0), periodic.NewStrategy(calc)),
	}

	for _, r := range []struct {
		day       int
		qty, cost string
	}{
		{5, "10", "2.00"},
		{20, "5", "5.00"},
	} {
		_, err := postings.PostReceipt(context.Background(), cost.ReceiptInput{
			ItemID:   "SKU-100",
			Date:     time.Date(2024, time.March, r.day, 0, 0, 0, 0, time.UTC),
			Quantity: types.MustQuantity(r.qty),
			UnitCost: types.MustMoney(r.cost),
		})
		require.NoError(t, err)
	}
	return e
}

func TestUnconfiguredScopeUsesFIFO(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	res, err := e.facade.GetUnitCost(ctx, "HOTEL-A", "SKU-100", today)
	require.NoError(t, err)
	assert.Equal(t, costing.MethodFIFO, res.Method)
	assert.True(t, res.DefaultedMethod)

	_, err = e.settings.SetCostingMethod(ctx, "HOTEL-FIFO", costing.MethodFIFO)
	require.NoError(t, err)
	explicit, err := e.facade.GetUnitCost(ctx, "HOTEL-FIFO", "SKU-100", today)
	require.NoError(t, err)

	assert.True(t, explicit.UnitCost.Equal(res.UnitCost))
	assert.Equal(t, explicit.Layers, res.Layers)
	assert.False(t, explicit.DefaultedMethod)
}

func TestPeriodicAverageScope(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	_, err := e.settings.SetCostingMethod(ctx, "HOTEL-B", costing.MethodPeriodicAverage)
	require.NoError(t, err)

	res, err := e.facade.GetUnitCost(ctx, "HOTEL-B", "SKU-100", today)
	require.NoError(t, err)
	assert.Equal(t, costing.MethodPeriodicAverage, res.Method)
	assert.Equal(t, "HOTEL-B", res.ScopeID)
	assert.Equal(t, "3", res.UnitCost.String())
	require.NotNil(t, res.Period)
	assert.Equal(t, "2024-03", res.Period.Key())
}

func TestMethodChangeAppliesToNextLookup(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	_, err := e.settings.SetCostingMethod(ctx, "HOTEL-B", costing.MethodPeriodicAverage)
	require.NoError(t, err)
	avg, err := e.facade.GetUnitCost(ctx, "HOTEL-B", "SKU-100", today)
	require.NoError(t, err)

	_, err = e.settings.SetCostingMethod(ctx, "HOTEL-B", costing.MethodFIFO)
	require.NoError(t, err)
	fifoRes, err := e.facade.GetUnitCost(ctx, "HOTEL-B", "SKU-100", today)
	require.NoError(t, err)

	assert.Equal(t, "3", avg.UnitCost.String())
	assert.Equal(t, "2", fifoRes.UnitCost.String())
}

func TestNoDataSurfacesToCaller(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	_, err := e.settings.SetCostingMethod(ctx, "HOTEL-B", costing.MethodPeriodicAverage)
	require.NoError(t, err)

	_, err = e.facade.GetUnitCost(ctx, "HOTEL-B", "SKU-200", today)
	assert.True(t, apperror.IsNoData(err), "got %v", err)

	_, err = e.facade.GetUnitCost(ctx, "HOTEL-A", "SKU-200", today)
	assert.True(t, apperror.IsNoData(err), "got %v", err)
}

func TestValueQuantity(t *testing.T) {
	e := newEngine(t)

	res, err := e.facade.ValueQuantity(context.Background(), "HOTEL-A", "SKU-100", today, types.MustQuantity("12"))
	require.NoError(t, err)
	// 10 @ 2 + 2 @ 5
	assert.Equal(t, "30", res.TotalCost.String())
	assert.Equal(t, "2.5", res.UnitCost.String())

	_, err = e.facade.ValueQuantity(context.Background(), "HOTEL-A", "SKU-100", today, types.Zero())
	assert.True(t, apperror.IsInvalidArgument(err))
}

func TestRequestValidation(t *testing.T) {
	e := newEngine(t)

	_, err := e.facade.GetUnitCost(context.Background(), "", "SKU-100", today)
	assert.True(t, apperror.IsInvalidArgument(err))
	_, err = e.facade.GetUnitCost(context.Background(), "HOTEL-A", " ", today)
	assert.True(t, apperror.IsInvalidArgument(err))
}

type stubResolver struct {
	method costing.Method
	err    error
}

func (s stubResolver) ResolveMethod(context.Context, string) (costing.Method, bool, error) {
	return s.method, false, s.err
}

func TestResolverFailurePropagates(t *testing.T) {
	boom := errors.New("settings store down")
	svc := valuation.NewService(stubResolver{err: boom})

	_, err := svc.GetUnitCost(context.Background(), "HOTEL-A", "SKU-100", today)
	assert.ErrorIs(t, err, boom)
}

func TestMissingStrategyIsInternal(t *testing.T) {
	svc := valuation.NewService(stubResolver{method: costing.MethodPeriodicAverage})

	_, err := svc.GetUnitCost(context.Background(), "HOTEL-A", "SKU-100", today)
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.CodeInternal, appErr.Code)
}
