// Package apiclient はバックエンドREST APIへの唯一の呼び出し口を提供する。
// ベースURLの解決、Bearerトークンの付与、JSONのエンコード/デコード、
// エラーの正規化を行う。リトライとキャッシュは行わない。
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// TokenSource は永続化された認証トークンの取得元。
// トークンが保存されていない場合は空文字列を返す。
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// MetricsRecorder はAPI呼び出しの計測を記録するインターフェース。
type MetricsRecorder interface {
	RecordAPIRequest(method string, statusCode int, duration time.Duration)
}

// Client はバックエンドREST APIのクライアント。
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     TokenSource
	logger     *slog.Logger
	timeout    time.Duration
	metrics    MetricsRecorder
}

// Option はClientの任意設定。
type Option func(*Client)

// WithTimeout はリクエストごとのタイムアウトを設定する。
// 0以下の場合はタイムアウトなし（デフォルト）。
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithMetrics はAPI呼び出しの計測先を設定する。
func WithMetrics(m MetricsRecorder) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient はClientの新しいインスタンスを生成する。
// tokensがnilの場合はAuthorizationヘッダーを付与しない。
func NewClient(httpClient *http.Client, baseURL string, tokens TokenSource, logger *slog.Logger, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get はGETリクエストを送信し、レスポンスをoutにデコードする。
func (c *Client) Get(ctx context.Context, endpoint string, query url.Values, out any) error {
	if len(query) > 0 {
		endpoint = endpoint + "?" + query.Encode()
	}
	return c.Request(ctx, http.MethodGet, endpoint, nil, out)
}

// Post はPOSTリクエストを送信する。
func (c *Client) Post(ctx context.Context, endpoint string, body, out any) error {
	return c.Request(ctx, http.MethodPost, endpoint, body, out)
}

// Put はPUTリクエストを送信する。
func (c *Client) Put(ctx context.Context, endpoint string, body, out any) error {
	return c.Request(ctx, http.MethodPut, endpoint, body, out)
}

// Patch はPATCHリクエストを送信する。
func (c *Client) Patch(ctx context.Context, endpoint string, body, out any) error {
	return c.Request(ctx, http.MethodPatch, endpoint, body, out)
}

// Delete はDELETEリクエストを送信する。
func (c *Client) Delete(ctx context.Context, endpoint string, out any) error {
	return c.Request(ctx, http.MethodDelete, endpoint, nil, out)
}

// Request はバックエンドにリクエストを送信する。
// bodyがnilでなければJSONとして送信し、outがnilでなければレスポンスをデコードする。
// 2xx以外のレスポンスは*APIError、通信失敗は*TransportErrorとして返す。
func (c *Client) Request(ctx context.Context, method, endpoint string, body, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	reqURL := c.resolve(endpoint)

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("リクエストボディのエンコードに失敗しました: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.token(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(method, 0, time.Since(start))
		c.logger.Error("バックエンドAPIの呼び出しに失敗しました",
			slog.String("method", method),
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()),
		)
		return &TransportError{Err: err}
	}
	defer resp.Body.Close()
	c.record(method, resp.StatusCode, time.Since(start))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Err: fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := newAPIError(resp.StatusCode, messageFromBody(respBody))
		c.logger.Warn("バックエンドAPIがエラーステータスを返しました",
			slog.String("method", method),
			slog.String("endpoint", endpoint),
			slog.Int("http_status", resp.StatusCode),
			slog.String("message", apiErr.Message),
		)
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		c.logger.Error("バックエンドAPIのレスポンスのパースに失敗しました",
			slog.String("method", method),
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	return nil
}

// resolve はエンドポイントをベースURLと結合する。
// 絶対URLが渡された場合はそのまま使用する。
func (c *Client) resolve(endpoint string) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	return c.baseURL + "/" + strings.TrimLeft(endpoint, "/")
}

// token は永続化されたトークンを取得する。取得失敗時はトークンなしで続行する。
func (c *Client) token(ctx context.Context) string {
	if c.tokens == nil {
		return ""
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		c.logger.Warn("認証トークンの読み込みに失敗しました",
			slog.String("error", err.Error()),
		)
		return ""
	}
	return token
}

func (c *Client) record(method string, status int, d time.Duration) {
	if c.metrics != nil {
		c.metrics.RecordAPIRequest(method, status, d)
	}
}

// messageFromBody はエラーレスポンスのボディからmessageフィールドを取り出す。
func messageFromBody(body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return payload.Message
}
