package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError はバックエンドが2xx以外のステータスを返したことを表す。
// Messageはレスポンスボディのmessageフィールド、なければステータステキスト。
type APIError struct {
	Status  int
	Message string
}

// Error は表示用のメッセージを返す。
func (e *APIError) Error() string {
	return e.Message
}

// newAPIError はステータスコードとボディのメッセージからAPIErrorを生成する。
func newAPIError(status int, message string) *APIError {
	if message == "" {
		message = http.StatusText(status)
	}
	if message == "" {
		message = fmt.Sprintf("HTTP %d", status)
	}
	return &APIError{Status: status, Message: message}
}

// TransportError はバックエンドへの通信自体が失敗したことを表す。
// 呼び出し側は従来どおりError()のメッセージだけで表示を行える。
type TransportError struct {
	Err error
}

// Error は表示用のメッセージを返す。
func (e *TransportError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

// Unwrap は元のエラーを返す。
func (e *TransportError) Unwrap() error {
	return e.Err
}

// StatusOf はエラーがAPIErrorの場合にそのステータスコードを返す。
// それ以外は0を返す。
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// IsNotFound はバックエンドが404を返したエラーかどうかを返す。
func IsNotFound(err error) bool {
	return StatusOf(err) == http.StatusNotFound
}

// IsTransport は通信失敗によるエラーかどうかを返す。
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
