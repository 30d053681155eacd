package v1_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carmen/internal/domain/costing/fifo"
	"carmen/internal/domain/costing/periodic"
	"carmen/internal/domain/costing/settings"
	"carmen/internal/domain/costing/valuation"
	"carmen/internal/domain/registers/cost"
	"carmen/internal/infrastructure/cache"
	v1 "carmen/internal/infrastructure/http/v1"
	"carmen/internal/infrastructure/http/v1/dto"
	"carmen/internal/infrastructure/http/v1/handlers"
	"carmen/internal/infrastructure/http/v1/middleware"
	"carmen/internal/infrastructure/storage/memory"
	"carmen/pkg/logger"
)

type server struct {
	engine   *gin.Engine
	registry *prometheus.Registry
}

func newServer(t *testing.T, checks map[string]handlers.CheckFunc) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	registry := prometheus.NewRegistry()
	metrics, err := cache.NewMetrics(registry)
	require.NoError(t, err)

	costRepo := memory.NewCostRepo()
	postings := cost.NewService(costRepo, nil)
	calc := periodic.NewCalculator(costRepo, cache.NewMemoryAverageCache(0), periodic.DefaultConfig(),
		periodic.WithObserver(metrics),
		periodic.WithClock(func() time.Time { return time.Date(2024, time.April, 15, 0, 0, 0, 0, time.UTC) }),
	)
	postings.Subscribe(calc)

	settingsSvc := settings.NewService(memory.NewSettingsRepo())
	fifoStrategy := fifo.NewStrategy(costRepo, 0)
	facade := valuation.NewService(settingsSvc, fifoStrategy, periodic.NewStrategy(calc))

	engine := v1.NewRouter(v1.RouterConfig{
		Logger:       logger.NewNop(),
		Location:     time.UTC,
		Settings:     settingsSvc,
		Register:     postings,
		Valuation:    facade,
		Averages:     calc,
		Lots:         fifoStrategy,
		HealthChecks: checks,
		Gatherer:     registry,
	})
	gin.SetMode(gin.TestMode)
	return &server{engine: engine, registry: registry}
}

func (s *server) do(t *testing.T, method, target string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (s *server) receive(t *testing.T, item, date, qty, unitCost string) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/register/receipts", dto.PostReceiptRequest{
		ItemID: item, Date: date, Quantity: qty, UnitCost: unitCost,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestSettingsEndpoints(t *testing.T) {
	s := newServer(t, nil)

	rec := s.do(t, http.MethodGet, "/api/v1/settings/HOTEL-A", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPut, "/api/v1/settings/HOTEL-A",
		dto.SetCostingMethodRequest{CostingMethod: "periodic-average"},
		middleware.HeaderUserID, "controller")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	stored := decode[dto.SettingsResponse](t, rec)
	assert.Equal(t, "PERIODIC_AVERAGE", stored.CostingMethod)
	assert.Equal(t, "controller", stored.UpdatedBy)

	rec = s.do(t, http.MethodPut, "/api/v1/settings/HOTEL-A", dto.SetCostingMethodRequest{CostingMethod: "FIFO"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/settings/HOTEL-A/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[dto.ListResponse[dto.SettingsResponse]](t, rec)
	require.Len(t, history.Items, 2)
	assert.Equal(t, "FIFO", history.Items[0].CostingMethod)
	assert.Equal(t, 2, history.Items[0].Version)
}

func TestSettingsRejectsUnknownMethod(t *testing.T) {
	s := newServer(t, nil)

	rec := s.do(t, http.MethodPut, "/api/v1/settings/HOTEL-A", dto.SetCostingMethodRequest{CostingMethod: "LIFO"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_ARGUMENT", decode[dto.ErrorResponse](t, rec).Code)
}

func TestSettingsForbiddenOutsideActorScopes(t *testing.T) {
	s := newServer(t, nil)

	rec := s.do(t, http.MethodPut, "/api/v1/settings/HOTEL-A", dto.SetCostingMethodRequest{CostingMethod: "FIFO"},
		middleware.HeaderUserID, "u1", middleware.HeaderScopeIDs, "HOTEL-B, HOTEL-C")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCostFollowsScopeMethod(t *testing.T) {
	s := newServer(t, nil)
	s.receive(t, "SKU-100", "2024-03-05", "10", "2.00")
	s.receive(t, "SKU-100", "2024-03-20", "5", "5.00")

	// Unconfigured scope defaults to FIFO: the oldest lot costs 2.
	rec := s.do(t, http.MethodGet, "/api/v1/valuation/cost?scopeId=HOTEL-B&itemId=SKU-100&asOf=2024-03-25", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[dto.CostResponse](t, rec)
	assert.Equal(t, "FIFO", res.CostingMethod)
	assert.True(t, res.DefaultedMethod)
	assert.Equal(t, "2", res.UnitCost)
	require.Len(t, res.Layers, 1)

	rec = s.do(t, http.MethodPut, "/api/v1/settings/HOTEL-A", dto.SetCostingMethodRequest{CostingMethod: "PERIODIC_AVERAGE"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/valuation/cost?scopeId=HOTEL-A&itemId=SKU-100&asOf=2024-03-25&quantity=2", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res = decode[dto.CostResponse](t, rec)
	assert.Equal(t, "PERIODIC_AVERAGE", res.CostingMethod)
	assert.False(t, res.DefaultedMethod)
	assert.Equal(t, "3", res.UnitCost)
	assert.Equal(t, "6", res.TotalCost)
	assert.Equal(t, "2024-03", res.Period)
}

func TestCostWithoutHistoryIsNoData(t *testing.T) {
	s := newServer(t, nil)

	rec := s.do(t, http.MethodGet, "/api/v1/valuation/cost?scopeId=HOTEL-A&itemId=SKU-200&asOf=2024-04-10", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "NO_DATA", decode[dto.ErrorResponse](t, rec).Code)
}

func TestCostRequiresScopeAndItem(t *testing.T) {
	s := newServer(t, nil)

	rec := s.do(t, http.MethodGet, "/api/v1/valuation/cost?itemId=SKU-100", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decode[dto.ErrorResponse](t, rec).Code)

	rec = s.do(t, http.MethodGet, "/api/v1/valuation/cost?scopeId=A&itemId=SKU-100&asOf=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAverageEndpoints(t *testing.T) {
	s := newServer(t, nil)
	s.receive(t, "SKU-100", "2024-03-05", "10", "2")
	s.receive(t, "SKU-100", "2024-03-20", "5", "3")

	rec := s.do(t, http.MethodGet, "/api/v1/valuation/average?itemId=SKU-100&periodStart=2024-03-01&periodEnd=2024-03-31", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	avg := decode[dto.AverageResponse](t, rec)
	assert.Equal(t, "2.333333", avg.AverageUnitCost)
	assert.Equal(t, "15", avg.TotalQuantity)
	assert.Equal(t, 2, avg.ReceiptCount)

	rec = s.do(t, http.MethodGet, "/api/v1/valuation/average?itemId=SKU-100&periodStart=2024-03-02&periodEnd=2024-03-31", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/valuation/average/recompute", dto.RecomputeRequest{ItemID: "SKU-100", AsOf: "2024-03-15"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "2.333333", decode[dto.AverageResponse](t, rec).AverageUnitCost)
}

func TestLotsAndIssues(t *testing.T) {
	s := newServer(t, nil)
	s.receive(t, "SKU-100", "2024-03-05", "10", "2")
	s.receive(t, "SKU-100", "2024-03-20", "5", "5")

	rec := s.do(t, http.MethodPost, "/api/v1/register/issues", dto.PostIssueRequest{ItemID: "SKU-100", Date: "2024-03-21", Quantity: "12"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/v1/valuation/lots?itemId=SKU-100&asOf=2024-03-31", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	lots := decode[dto.ListResponse[dto.LayerResponse]](t, rec)
	require.Len(t, lots.Items, 1)
	assert.Equal(t, "3", lots.Items[0].Quantity)
	assert.Equal(t, "5", lots.Items[0].UnitCost)

	rec = s.do(t, http.MethodGet, "/api/v1/valuation/cost?scopeId=X&itemId=SKU-100&asOf=2024-03-31&quantity=4", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "INSUFFICIENT_STOCK", decode[dto.ErrorResponse](t, rec).Code)
}

func TestReceiptListingAndReversal(t *testing.T) {
	s := newServer(t, nil)
	recorder := "0190f5d2-6c1e-7a4b-9c3e-1f2a3b4c5d6e"

	rec := s.do(t, http.MethodPost, "/api/v1/register/receipts", dto.PostReceiptRequest{
		RecorderID: recorder, ItemID: "SKU-100", Date: "2024-03-05", Quantity: "10", UnitCost: "2",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, recorder, decode[dto.MovementResponse](t, rec).RecorderID)

	rec = s.do(t, http.MethodGet, "/api/v1/register/receipts?itemId=SKU-100&from=2024-03-01&to=2024-03-31", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[dto.ListResponse[dto.MovementResponse]](t, rec).TotalCount)

	rec = s.do(t, http.MethodDelete, "/api/v1/register/recorders/"+recorder, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/register/receipts?itemId=SKU-100&from=2024-03-01&to=2024-03-31", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, decode[dto.ListResponse[dto.MovementResponse]](t, rec).TotalCount)
}

func TestReceiptValidation(t *testing.T) {
	s := newServer(t, nil)

	rec := s.do(t, http.MethodPost, "/api/v1/register/receipts", dto.PostReceiptRequest{
		ItemID: "SKU-100", Date: "2024-03-05", Quantity: "-1", UnitCost: "2",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/register/receipts", dto.PostReceiptRequest{
		ItemID: "SKU-100", Date: "2024-03-05", Quantity: "1", UnitCost: "abc",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newServer(t, map[string]handlers.CheckFunc{
		"database": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	})

	rec := s.do(t, http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")

	s.receive(t, "SKU-100", "2024-03-05", "10", "2")
	s.do(t, http.MethodGet, "/api/v1/valuation/average?itemId=SKU-100&periodStart=2024-03-01&periodEnd=2024-03-31", nil)

	rec = s.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "carmen_average_cache_miss_total"))
}

func TestTraceHeadersEchoed(t *testing.T) {
	s := newServer(t, nil)

	rec := s.do(t, http.MethodGet, "/health/live", nil, middleware.HeaderRequestID, "req-1")
	assert.Equal(t, "req-1", rec.Header().Get(middleware.HeaderRequestID))
	assert.NotEmpty(t, rec.Header().Get(middleware.HeaderTraceID))
}
