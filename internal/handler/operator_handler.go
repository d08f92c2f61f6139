package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/pressdesk/internal/model"
)

// OperatorServiceInterface は操作者プロフィールの取得と権限判定を行う。
// permission.Checker が満たす。
type OperatorServiceInterface interface {
	Load(ctx context.Context) (model.Operator, error)
	Operator() (model.Operator, bool)
	HasPermission(perm string) bool
}

// OperatorHandler は操作者プロフィールのHTTPハンドラー。
type OperatorHandler struct {
	service OperatorServiceInterface
	logger  *slog.Logger
}

// NewOperatorHandler はOperatorHandlerを生成する。
func NewOperatorHandler(service OperatorServiceInterface, logger *slog.Logger) *OperatorHandler {
	return &OperatorHandler{service: service, logger: logger}
}

// Me は読み込み済みのプロフィールを返す。
// GET /api/me
func (h *OperatorHandler) Me(w http.ResponseWriter, r *http.Request) {
	op, ok := h.service.Operator()
	if !ok {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}
	writeJSON(w, http.StatusOK, op)
}

// Reload はプロフィールをバックエンドから取得し直す。
// POST /api/me/reload
func (h *OperatorHandler) Reload(w http.ResponseWriter, r *http.Request) {
	op, err := h.service.Load(r.Context())
	if err != nil {
		handleServiceError(w, h.logger, errorTarget{label: "プロフィール"}, err)
		return
	}
	writeJSON(w, http.StatusOK, op)
}
