package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nemonet1337/zaiReplenish/internal/config"
	"github.com/nemonet1337/zaiReplenish/pkg/replenishment"
	"github.com/nemonet1337/zaiReplenish/pkg/replenishment/memory"
	"github.com/nemonet1337/zaiReplenish/pkg/schedule"
)

// MockPlanner はテスト用のPlannerモック
type MockPlanner struct {
	mock.Mock
}

func (m *MockPlanner) Plan(ctx context.Context, req replenishment.RunRequest) (*replenishment.Plan, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*replenishment.Plan), args.Error(1)
}

func (m *MockPlanner) Run(ctx context.Context, req replenishment.RunRequest) (*replenishment.Plan, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*replenishment.Plan), args.Error(1)
}

func (m *MockPlanner) RunAll(ctx context.Context, reqs []replenishment.RunRequest) ([]*replenishment.Plan, error) {
	args := m.Called(ctx, reqs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*replenishment.Plan), args.Error(1)
}

// MockPinger はテスト用の疎通確認モック
type MockPinger struct {
	mock.Mock
}

func (m *MockPinger) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

var apiConfig = config.APIConfig{EnableMetrics: true, EnableCORS: true}

func newMemoryServer(t *testing.T) (*mux.Router, *memory.Store) {
	t.Helper()

	store := memory.NewStore()
	store.AddWarehouse("WH-CHILD", "WH-ROOT")
	require.NoError(t, store.RegisterDefinition(
		replenishment.ScheduleKey{SupplierID: "SUP-1"},
		schedule.Definition{Frequency: schedule.FrequencyOnDemand, DeliveryDays: 10},
	))
	for _, wh := range []string{"WH-ROOT", "WH-CHILD"} {
		store.AddRows(replenishment.ProductCalculationRow{
			ProductID:        "X",
			WarehouseID:      wh,
			SupplierID:       "SUP-1",
			Settings:         replenishment.CalculationSettings{Type: replenishment.CalculationTypeVelocity},
			Sales:            30,
			DaysInStock:      30,
			BackorderAllowed: true,
			PackageSize:      12,
			PackagePrice:     100,
		})
	}

	registry := prometheus.NewRegistry()
	manager := replenishment.NewManager(store.Dependencies(), zap.NewNop(), nil).
		WithMetrics(replenishment.NewMetrics(registry))
	handlers := NewHandlers(manager, store, nil, zap.NewNop())
	return setupRouter(handlers, apiConfig, registry), store
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var resp APIResponse
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func TestRunReplenishment_WritesLines(t *testing.T) {
	router, store := newMemoryServer(t)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	rec, resp := doJSON(t, router, http.MethodPost, "/api/v1/replenishment/runs", replenishment.RunRequest{
		OrderID:     "PO-API-1",
		SupplierID:  "SUP-1",
		WarehouseID: "WH-ROOT",
		Now:         now,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.True(t, resp.Success)

	lines := store.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, 24.0, lines[0].Quantity)

	rec, resp = doJSON(t, router, http.MethodGet, "/api/v1/orders/PO-API-1/lines", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, resp.Data, 1)

	rec, _ = doJSON(t, router, http.MethodGet, "/api/v1/orders/PO-UNKNOWN/lines", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	metrics := httptest.NewRecorder()
	router.ServeHTTP(metrics, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, metrics.Code)
	assert.Contains(t, metrics.Body.String(), "replenishment_runs_total")
}

func TestPlanReplenishment_DoesNotWrite(t *testing.T) {
	router, store := newMemoryServer(t)

	rec, resp := doJSON(t, router, http.MethodPost, "/api/v1/replenishment/plan", replenishment.RunRequest{
		SupplierID:  "SUP-1",
		WarehouseID: "WH-ROOT",
		Now:         time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, resp.Success)
	assert.Empty(t, store.Lines())
}

func TestPlannerErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", replenishment.NewValidationError("supplier_id", "仕入先IDが空です", ""), http.StatusBadRequest},
		{"unknown warehouse", replenishment.ErrWarehouseNotFound, http.StatusNotFound},
		{"no rows", replenishment.ErrNoRows, http.StatusNotFound},
		{"cycle", replenishment.NewHierarchyError(replenishment.HierarchyReasonCycle, "WH-A", "循環"), http.StatusUnprocessableEntity},
		{"schedule", replenishment.NewScheduleError(replenishment.ScheduleKey{SupplierID: "SUP-1"}, time.Time{}, replenishment.ErrScheduleNotFound), http.StatusUnprocessableEntity},
		{"write", fmt.Errorf("%w: %w", replenishment.ErrWriteFailed, errors.New("disk full")), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			planner := new(MockPlanner)
			planner.On("Run", mock.Anything, mock.Anything).Return(nil, tt.err)
			router := setupRouter(NewHandlers(planner, nil, nil, zap.NewNop()), apiConfig, nil)

			rec, resp := doJSON(t, router, http.MethodPost, "/api/v1/replenishment/runs", replenishment.RunRequest{SupplierID: "SUP-1", WarehouseID: "WH-A"})
			assert.Equal(t, tt.status, rec.Code)
			assert.False(t, resp.Success)
			planner.AssertExpectations(t)
		})
	}
}

func TestRunBatch(t *testing.T) {
	planner := new(MockPlanner)
	reqs := []replenishment.RunRequest{
		{SupplierID: "SUP-1", WarehouseID: "WH-A"},
		{SupplierID: "SUP-2", WarehouseID: "WH-B"},
	}
	planner.On("RunAll", mock.Anything, reqs).Return([]*replenishment.Plan{{RunID: "r1"}, {RunID: "r2"}}, nil)
	router := setupRouter(NewHandlers(planner, nil, nil, zap.NewNop()), apiConfig, nil)

	rec, resp := doJSON(t, router, http.MethodPost, "/api/v1/replenishment/runs/batch", BatchRunRequest{Runs: reqs})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Len(t, resp.Data, 2)

	rec, _ = doJSON(t, router, http.MethodPost, "/api/v1/replenishment/runs/batch", BatchRunRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	planner.AssertExpectations(t)
}

func TestMalformedBody(t *testing.T) {
	router := setupRouter(NewHandlers(new(MockPlanner), nil, nil, zap.NewNop()), apiConfig, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/replenishment/plan", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthCheck(t *testing.T) {
	pinger := new(MockPinger)
	pinger.On("Ping", mock.Anything).Return(nil).Once()
	pinger.On("Ping", mock.Anything).Return(errors.New("connection refused")).Once()
	router := setupRouter(NewHandlers(new(MockPlanner), nil, pinger, zap.NewNop()), apiConfig, nil)

	rec, resp := doJSON(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)

	rec, _ = doJSON(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	pinger.AssertExpectations(t)
}
