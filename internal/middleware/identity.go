// Package middleware はコンソールHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/hitoshi/pressdesk/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// operatorIDContextKey はリクエストコンテキストに操作者IDを格納するためのキー。
var operatorIDContextKey = contextKey("operator_id")

// OperatorSource は読み込み済みの操作者プロフィールを返す。
// permission.Checker が満たす。
type OperatorSource interface {
	Operator() (model.Operator, bool)
}

// NewIdentityMiddleware は操作者IDをリクエストコンテキストに注入するミドルウェアを返す。
// プロフィール未読み込みの場合はクライアントアドレスを識別子として使う。
// 認証そのものはバックエンドが行うため、ここではリクエストを拒否しない。
func NewIdentityMiddleware(source OperatorSource) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := ""
			if source != nil {
				if op, ok := source.Operator(); ok {
					id = op.ID.String()
				}
			}
			if id == "" {
				id = "addr:" + clientHost(r.RemoteAddr)
			}
			recordOperator(w, id)
			next.ServeHTTP(w, r.WithContext(ContextWithOperatorID(r.Context(), id)))
		})
	}
}

// OperatorIDFromContext はリクエストコンテキストから操作者IDを取得する。
func OperatorIDFromContext(ctx context.Context) (string, error) {
	id, ok := ctx.Value(operatorIDContextKey).(string)
	if !ok || id == "" {
		return "", fmt.Errorf("operator ID not found in context")
	}
	return id, nil
}

// ContextWithOperatorID はコンテキストに操作者IDを注入する。
func ContextWithOperatorID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, operatorIDContextKey, id)
}

func clientHost(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
