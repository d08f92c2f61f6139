package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/hitoshi/pressdesk/internal/middleware"
	"github.com/hitoshi/pressdesk/internal/model"
	"github.com/hitoshi/pressdesk/internal/store"
)

// --- モック定義 ---

// backendCall はモックバックエンドに届いた呼び出し。
type backendCall struct {
	Method   string
	Endpoint string
	Query    url.Values
	Body     string
}

// mockBackend はstore.APIのモック実装。
// respondFn がレスポンスボディ（JSON文字列）またはエラーを返す。
type mockBackend struct {
	mu        sync.Mutex
	calls     []backendCall
	respondFn func(call backendCall) (string, error)
}

func (m *mockBackend) do(method, endpoint string, query url.Values, body, out any) error {
	call := backendCall{Method: method, Endpoint: endpoint, Query: query}
	if body != nil {
		b, _ := json.Marshal(body)
		call.Body = string(b)
	}

	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.mu.Unlock()

	if m.respondFn == nil {
		return errors.New("unexpected backend call")
	}
	raw, err := m.respondFn(call)
	if err != nil {
		return err
	}
	if out == nil || raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), out)
}

func (m *mockBackend) Get(ctx context.Context, endpoint string, query url.Values, out any) error {
	return m.do(http.MethodGet, endpoint, query, nil, out)
}

func (m *mockBackend) Post(ctx context.Context, endpoint string, body, out any) error {
	return m.do(http.MethodPost, endpoint, nil, body, out)
}

func (m *mockBackend) Put(ctx context.Context, endpoint string, body, out any) error {
	return m.do(http.MethodPut, endpoint, nil, body, out)
}

func (m *mockBackend) Patch(ctx context.Context, endpoint string, body, out any) error {
	return m.do(http.MethodPatch, endpoint, nil, body, out)
}

func (m *mockBackend) Delete(ctx context.Context, endpoint string, out any) error {
	return m.do(http.MethodDelete, endpoint, nil, nil, out)
}

func (m *mockBackend) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockBackend) lastCall() backendCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return backendCall{}
	}
	return m.calls[len(m.calls)-1]
}

// mockOperator はOperatorServiceInterfaceのモック実装。
type mockOperator struct {
	operator *model.Operator
	perms    map[string]bool
	loadFn   func(ctx context.Context) (model.Operator, error)
}

func (m *mockOperator) Load(ctx context.Context) (model.Operator, error) {
	if m.loadFn != nil {
		return m.loadFn(ctx)
	}
	if m.operator == nil {
		return model.Operator{}, errors.New("not loaded")
	}
	return *m.operator, nil
}

func (m *mockOperator) Operator() (model.Operator, bool) {
	if m.operator == nil {
		return model.Operator{}, false
	}
	return *m.operator, true
}

func (m *mockOperator) HasPermission(perm string) bool {
	if m.operator != nil && m.operator.Role == model.RoleAdmin {
		return true
	}
	return m.perms[perm]
}

// --- テストヘルパー ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func adminOperator() *mockOperator {
	return &mockOperator{operator: &model.Operator{ID: "op-admin", Name: "Admin", Role: model.RoleAdmin}}
}

// testEnv はテスト用のルーターと依存関係。
type testEnv struct {
	backend *mockBackend
	deps    *RouterDeps
	router  http.Handler
}

// newTestEnv は実際のストアとモックバックエンドでルーターを構築する。
func newTestEnv(t *testing.T, operator *mockOperator, configure func(deps *RouterDeps)) *testEnv {
	t.Helper()

	backend := &mockBackend{}
	logger := newTestLogger()
	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig(1000))
	t.Cleanup(rl.Stop)

	deps := &RouterDeps{
		Logger:            logger,
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       rl,
		Operator:          operator,
		Blogs:             store.NewBlogStore(backend, logger),
		Contents:          store.NewContentStore(backend, logger),
		Jobs:              store.NewJobStore(backend, logger),
		HomeContents:      store.NewHomeContentStore(backend, logger),
	}
	if configure != nil {
		configure(deps)
	}

	return &testEnv{backend: backend, deps: deps, router: NewRouter(deps)}
}

// serve はルーターにリクエストを送る。
func (e *testEnv) serve(method, target, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// parseAPIErrorResponse はレスポンスボディから統一エラーレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}

// decodeResponse はレスポンスボディをvにデコードするヘルパー。
func decodeResponse(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v\nbody: %s", err, w.Body.String())
	}
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
