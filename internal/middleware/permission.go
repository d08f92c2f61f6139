package middleware

import (
	"log/slog"
	"net/http"

	"github.com/hitoshi/pressdesk/internal/model"
)

// PermissionChecker は権限判定に必要なインターフェース。
// permission.Checker が満たす。
type PermissionChecker interface {
	OperatorSource
	HasPermission(perm string) bool
}

// RequirePermission は指定された権限を持たない操作者のリクエストを拒否するミドルウェアを返す。
// プロフィール未読み込みの場合は401、権限不足の場合は403を返す。
func RequirePermission(checker PermissionChecker, perm string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := checker.Operator(); !ok {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			if !checker.HasPermission(perm) {
				operatorID, _ := OperatorIDFromContext(r.Context())
				slog.Warn("permission denied",
					slog.String("operator_id", operatorID),
					slog.String("permission", perm),
					slog.String("path", r.URL.Path),
				)
				WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError(perm))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
