package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/pressdesk/internal/model"
)

// DashboardServiceInterface はダッシュボードハンドラーが必要とするインターフェース。
// dashboard.Store が満たす。
type DashboardServiceInterface interface {
	FetchDashboardData(ctx context.Context) model.DashboardStats
	Snapshot() model.DashboardStats
	Loading() bool
}

// DashboardHandler はダッシュボードのHTTPハンドラー。
type DashboardHandler struct {
	service DashboardServiceInterface
}

// NewDashboardHandler はDashboardHandlerを生成する。
func NewDashboardHandler(service DashboardServiceInterface) *DashboardHandler {
	return &DashboardHandler{service: service}
}

type dashboardResponse struct {
	Stats   model.DashboardStats `json:"stats"`
	Loading bool                 `json:"loading"`
}

// Get は直近の集計結果を返す。APIは呼ばない。
// GET /api/dashboard
func (h *DashboardHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, dashboardResponse{
		Stats:   h.service.Snapshot(),
		Loading: h.service.Loading(),
	})
}

// Refresh は集計をやり直して結果を返す。
// 個々の指標の取得失敗はフォールバック値で補うため、常に200を返す。
// POST /api/dashboard/refresh
func (h *DashboardHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	stats := h.service.FetchDashboardData(r.Context())
	writeJSON(w, http.StatusOK, dashboardResponse{Stats: stats})
}
