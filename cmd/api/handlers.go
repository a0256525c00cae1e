package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/nemonet1337/zaiReplenish/pkg/replenishment"
)

// LineLister reads back the written lines of a purchase order
type LineLister interface {
	ListLines(ctx context.Context, orderID string) ([]replenishment.PurchaseLine, error)
}

// Pinger reports storage connectivity
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers holds HTTP handlers for the replenishment API
// 補充計算API用のHTTPハンドラーを保持
type Handlers struct {
	planner replenishment.Planner
	lines   LineLister
	pinger  Pinger
	logger  *zap.Logger
}

// NewHandlers creates new HTTP handlers. lines and pinger may be nil.
// 新しいHTTPハンドラーを作成
func NewHandlers(planner replenishment.Planner, lines LineLister, pinger Pinger, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		planner: planner,
		lines:   lines,
		pinger:  pinger,
		logger:  logger,
	}
}

// APIResponse represents standard API response format
// 標準的なAPIレスポンス形式を表現
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Field   string      `json:"field,omitempty"`
}

// BatchRunRequest carries several independent runs
// 一括実行リクエスト
type BatchRunRequest struct {
	Runs []replenishment.RunRequest `json:"runs"`
}

// HealthCheck handles health check requests
// ヘルスチェックリクエストを処理
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if h.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.pinger.Ping(ctx); err != nil {
			h.logger.Warn("データベース疎通確認に失敗しました", zap.Error(err))
			h.sendError(w, http.StatusServiceUnavailable, "データベースに接続できません")
			return
		}
	}

	h.sendSuccess(w, http.StatusOK, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now(),
		"service":   "zaiReplenish",
	})
}

// PlanReplenishment computes a plan without writing any line
// 補充数を計算（書き込みなし）
func (h *Handlers) PlanReplenishment(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRun(w, r)
	if !ok {
		return
	}

	plan, err := h.planner.Plan(r.Context(), req)
	if err != nil {
		h.sendPlannerError(w, err)
		return
	}
	h.sendSuccess(w, http.StatusOK, plan)
}

// RunReplenishment computes a plan and writes its purchase lines
// 補充数を計算して発注明細を書き込む
func (h *Handlers) RunReplenishment(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRun(w, r)
	if !ok {
		return
	}

	plan, err := h.planner.Run(r.Context(), req)
	if err != nil {
		h.sendPlannerError(w, err)
		return
	}
	h.sendSuccess(w, http.StatusCreated, plan)
}

// RunBatch executes independent runs concurrently
// 複数の補充計算を一括実行
func (h *Handlers) RunBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "無効なリクエスト形式です")
		return
	}
	if len(req.Runs) == 0 {
		h.sendError(w, http.StatusBadRequest, "実行対象が指定されていません")
		return
	}

	plans, err := h.planner.RunAll(r.Context(), req.Runs)
	if err != nil {
		h.sendPlannerError(w, err)
		return
	}
	h.sendSuccess(w, http.StatusCreated, plans)
}

// GetOrderLines returns the written lines of a purchase order
// 発注明細を取得
func (h *Handlers) GetOrderLines(w http.ResponseWriter, r *http.Request) {
	if h.lines == nil {
		h.sendError(w, http.StatusNotImplemented, "発注明細の照会は利用できません")
		return
	}

	orderID := mux.Vars(r)["orderId"]
	lines, err := h.lines.ListLines(r.Context(), orderID)
	if err != nil {
		h.logger.Error("発注明細の取得に失敗しました", zap.String("order_id", orderID), zap.Error(err))
		h.sendError(w, http.StatusInternalServerError, "発注明細の取得に失敗しました")
		return
	}
	if len(lines) == 0 {
		h.sendError(w, http.StatusNotFound, "発注書が見つかりません")
		return
	}
	h.sendSuccess(w, http.StatusOK, lines)
}

// ヘルパーメソッド

func (h *Handlers) decodeRun(w http.ResponseWriter, r *http.Request) (replenishment.RunRequest, bool) {
	var req replenishment.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "無効なリクエスト形式です")
		return req, false
	}
	return req, true
}

// statusOf maps engine errors to HTTP status codes
func statusOf(err error) int {
	var verr *replenishment.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, replenishment.ErrWarehouseNotFound), errors.Is(err, replenishment.ErrNoRows):
		return http.StatusNotFound
	case errors.Is(err, replenishment.ErrMalformedHierarchy),
		errors.Is(err, replenishment.ErrScheduleNotFound),
		errors.Is(err, replenishment.ErrUnresolvableSchedule):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) sendPlannerError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("補充計算APIでエラーが発生しました", zap.Error(err))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := APIResponse{Success: false, Error: err.Error()}
	var verr *replenishment.ValidationError
	if errors.As(err, &verr) {
		response.Field = verr.Field
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("エラーレスポンス送信に失敗しました", zap.Error(err))
	}
}

// sendSuccess sends a successful API response
// 成功APIレスポンスを送信
func (h *Handlers) sendSuccess(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := APIResponse{
		Success: true,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("レスポンス送信に失敗しました", zap.Error(err))
	}
}

// sendError sends an error API response
// エラーAPIレスポンスを送信
func (h *Handlers) sendError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := APIResponse{
		Success: false,
		Error:   message,
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("エラーレスポンス送信に失敗しました", zap.Error(err))
	}
}
