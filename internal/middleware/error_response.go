package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/pressdesk/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録する。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// StatusForCode はエラーコードに対応するHTTPステータスを返す。
func StatusForCode(code string) int {
	switch code {
	case model.ErrCodeValidationFailed, model.ErrCodeInvalidRequest,
		model.ErrCodeInvalidFeedURL, model.ErrCodeInvalidMessageType, model.ErrCodeBackendRejected:
		return http.StatusBadRequest
	case model.ErrCodeResourceNotFound, model.ErrCodeUnknownResource, model.ErrCodeRouteNotFound, model.ErrCodeChatNotFound:
		return http.StatusNotFound
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden:
		return http.StatusForbidden
	case model.ErrCodeBackendUnavailable, model.ErrCodeSuggestionFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
