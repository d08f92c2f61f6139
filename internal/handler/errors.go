package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/pressdesk/internal/apiclient"
	"github.com/hitoshi/pressdesk/internal/chat"
	"github.com/hitoshi/pressdesk/internal/curation"
	"github.com/hitoshi/pressdesk/internal/middleware"
	"github.com/hitoshi/pressdesk/internal/model"
	"github.com/hitoshi/pressdesk/internal/store"
)

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}

// errorTarget はエラーメッセージに含める操作対象。
type errorTarget struct {
	label string // 表示名（ブログなど）
	id    string
}

// handleServiceError はストアやサービスから返されたエラーを統一フォーマットのHTTPレスポンスに変換する。
func handleServiceError(w http.ResponseWriter, logger *slog.Logger, target errorTarget, err error) {
	statusCode, apiErr := toAPIError(target, err)
	if statusCode >= http.StatusInternalServerError {
		logger.Error("request failed",
			slog.String("target", target.label),
			slog.String("id", target.id),
			slog.String("error", err.Error()),
		)
	}
	writeAPIErrorResponse(w, statusCode, apiErr)
}

func toAPIError(target errorTarget, err error) (int, *model.APIError) {
	var (
		validationErr *store.ValidationError
		backendErr    *apiclient.APIError
		transportErr  *apiclient.TransportError
		apiErr        *model.APIError
	)

	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, model.NewValidationError(validationErr.Field)
	case errors.As(err, &backendErr):
		return backendStatus(target, backendErr)
	case errors.As(err, &transportErr):
		return http.StatusBadGateway, model.NewBackendUnavailableError(transportErr.Error())
	case errors.Is(err, chat.ErrChatNotFound):
		return http.StatusNotFound, model.NewChatNotFoundError(target.id)
	case errors.Is(err, chat.ErrEmptyMessage):
		return http.StatusBadRequest, model.NewValidationError("content")
	case errors.Is(err, chat.ErrInvalidMessageType):
		return http.StatusBadRequest, model.NewInvalidMessageTypeError(err.Error())
	case errors.Is(err, curation.ErrInvalidFeedURL):
		return http.StatusBadRequest, model.NewInvalidFeedURLError(err.Error())
	case errors.As(err, &apiErr):
		return middleware.StatusForCode(apiErr.Code), apiErr
	}

	return http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// backendStatus はバックエンドのエラーレスポンスをコンソールのエラーに対応付ける。
// 4xxはバックエンドのステータスとメッセージをそのまま伝え、5xxは502にまとめる。
func backendStatus(target errorTarget, err *apiclient.APIError) (int, *model.APIError) {
	switch {
	case err.Status == http.StatusNotFound && target.id != "":
		return http.StatusNotFound, model.NewResourceNotFoundError(target.label, target.id)
	case err.Status == http.StatusUnauthorized:
		return http.StatusUnauthorized, model.NewUnauthorizedError()
	case err.Status == http.StatusForbidden:
		return http.StatusForbidden, model.NewForbiddenError(err.Message)
	case err.Status >= http.StatusBadRequest && err.Status < http.StatusInternalServerError:
		return err.Status, model.NewBackendRejectedError(err.Message)
	default:
		return http.StatusBadGateway, model.NewBackendUnavailableError(err.Message)
	}
}
