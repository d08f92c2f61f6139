package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, backend, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeResourceNotFound   = "RESOURCE_NOT_FOUND"
	ErrCodeUnknownResource    = "UNKNOWN_RESOURCE"
	ErrCodeRouteNotFound      = "ROUTE_NOT_FOUND"
	ErrCodeBackendRejected    = "BACKEND_REJECTED"
	ErrCodeBackendUnavailable = "BACKEND_UNAVAILABLE"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeChatNotFound       = "CHAT_NOT_FOUND"
	ErrCodeInvalidMessageType = "INVALID_MESSAGE_TYPE"
	ErrCodeInvalidFeedURL     = "INVALID_FEED_URL"
	ErrCodeSuggestionFailed   = "SUGGESTION_FAILED"
)

// NewValidationError は入力値検証エラーを生成する。
func NewValidationError(field string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  fmt.Sprintf("必須項目が入力されていません: %s", field),
		Category: "validation",
		Action:   "タイトルと本文を入力してから再度保存してください。",
	}
}

// NewInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewResourceNotFoundError は対象リソース未検出エラーを生成する。
func NewResourceNotFoundError(kind, id string) *APIError {
	return &APIError{
		Code:     ErrCodeResourceNotFound,
		Message:  fmt.Sprintf("指定された%sが見つかりません: %s", kind, id),
		Category: "backend",
		Action:   "一覧を再読み込みしてから操作してください。",
	}
}

// NewUnknownResourceError は未対応のリソース種別エラーを生成する。
func NewUnknownResourceError(kind string) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownResource,
		Message:  fmt.Sprintf("未対応のリソース種別です: %s", kind),
		Category: "validation",
		Action:   "blogs、contents、jobs、home-contents のいずれかを指定してください。",
	}
}

// NewRouteNotFoundError は登録済みのリソース配下で未対応の操作パスが指定された場合のエラーを生成する。
func NewRouteNotFoundError(path string) *APIError {
	return &APIError{
		Code:     ErrCodeRouteNotFound,
		Message:  fmt.Sprintf("指定された操作は存在しません: %s", path),
		Category: "validation",
		Action:   "操作候補（actions）に含まれる操作のみ実行してください。",
	}
}

// NewBackendRejectedError はバックエンドが操作を拒否した場合のエラーを生成する。
// messageにはバックエンドが返したメッセージをそのまま設定する。
func NewBackendRejectedError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeBackendRejected,
		Message:  message,
		Category: "backend",
		Action:   "入力内容と対象の状態を確認してください。",
	}
}

// NewBackendUnavailableError はバックエンドへの通信失敗エラーを生成する。
func NewBackendUnavailableError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeBackendUnavailable,
		Message:  fmt.Sprintf("バックエンドとの通信に失敗しました: %s", reason),
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewUnauthorizedError は認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "token コマンドで認証トークンを保存してください。",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError(permission string) *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  fmt.Sprintf("この操作を行う権限がありません: %s", permission),
		Category: "auth",
		Action:   "管理者に権限の付与を依頼してください。",
	}
}

// NewChatNotFoundError はチャット未検出エラーを生成する。
func NewChatNotFoundError(chatID string) *APIError {
	return &APIError{
		Code:     ErrCodeChatNotFound,
		Message:  fmt.Sprintf("指定されたチャットが見つかりません: %s", chatID),
		Category: "validation",
		Action:   "チャット一覧を再読み込みしてください。",
	}
}

// NewInvalidMessageTypeError は送信できないメッセージ種別のエラーを生成する。
func NewInvalidMessageTypeError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidMessageType,
		Message:  fmt.Sprintf("送信できないメッセージ種別です: %s", reason),
		Category: "validation",
		Action:   "text、image、file のいずれかを指定してください。",
	}
}

// NewInvalidFeedURLError は無効なフィードURLエラーを生成する。
func NewInvalidFeedURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidFeedURL,
		Message:  fmt.Sprintf("無効なフィードURLです: %s", reason),
		Category: "validation",
		Action:   "公開されているRSS/AtomフィードのURLを入力してください。",
	}
}

// NewSuggestionFailedError はキュレーション候補の取得失敗エラーを生成する。
func NewSuggestionFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeSuggestionFailed,
		Message:  fmt.Sprintf("掲載候補の取得に失敗しました: %s", reason),
		Category: "backend",
		Action:   "フィードURLを確認し、しばらく待ってから再度お試しください。",
	}
}
