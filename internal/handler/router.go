package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/pressdesk/internal/metrics"
	"github.com/hitoshi/pressdesk/internal/middleware"
	"github.com/hitoshi/pressdesk/internal/model"
	"github.com/hitoshi/pressdesk/internal/permission"
	"github.com/hitoshi/pressdesk/internal/store"
)

// HealthChecker はヘルスチェックで疎通を確認する依存先。*sql.DB が満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	HealthChecker     HealthChecker
	MetricsGatherer   prometheus.Gatherer

	// 操作者プロフィールと権限
	Operator OperatorServiceInterface

	// リソースストア
	Blogs        ResourceStore[model.Blog]
	Contents     ResourceStore[model.Content]
	Jobs         ResourceStore[model.Job]
	HomeContents ResourceStore[model.HomeContent]

	// キュレーション
	Suggester SuggesterInterface

	// チャット・ダッシュボード
	Chat      ChatServiceInterface
	Dashboard DashboardServiceInterface
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORS → SecurityHeaders → Recovery → Logging → Identity → RateLimit(General)
//
// /health と /metrics はIdentity以降のチェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger))

	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsGatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	r.NotFound(notFoundHandler(mountedPrefixes(deps)))

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewIdentityMiddleware(deps.Operator))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		operatorHandler := NewOperatorHandler(deps.Operator, logger)
		r.Get("/api/me", operatorHandler.Me)
		r.Post("/api/me/reload", operatorHandler.Reload)

		mountResource[model.Blog](r, "blogs", deps.Blogs, deps.Operator, logger, nil)
		mountResource[model.Content](r, "contents", deps.Contents, deps.Operator, logger, nil)
		mountResource[model.Job](r, "jobs", deps.Jobs, deps.Operator, logger, nil)
		mountResource[model.HomeContent](r, "home-contents", deps.HomeContents, deps.Operator, logger, func(r chi.Router) {
			if deps.Suggester == nil {
				return
			}
			h := NewSuggestionHandler(deps.Suggester, logger)
			r.With(
				deps.RateLimiter.SuggestionMiddleware(),
				middleware.RequirePermission(deps.Operator, permission.ForResource("home-contents", permission.ActionCreate)),
			).Get("/suggestions", h.Suggest)
		})

		if deps.Chat != nil {
			chatHandler := NewChatHandler(deps.Chat, logger)
			r.Route("/api/chats", func(r chi.Router) {
				r.Get("/", chatHandler.ListChats)
				r.Post("/reload", chatHandler.ReloadUsers)
				r.Get("/presence", chatHandler.Presence)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/messages", chatHandler.Messages)
					r.Post("/messages", chatHandler.SendMessage)
					r.Post("/open", chatHandler.Open)
					r.Post("/read", chatHandler.MarkAsRead)
				})
			})
		}

		if deps.Dashboard != nil {
			dashboardHandler := NewDashboardHandler(deps.Dashboard)
			r.Get("/api/dashboard", dashboardHandler.Get)
			r.Post("/api/dashboard/refresh", dashboardHandler.Refresh)
		}
	})

	return r
}

// mountResource はリソース種別のルートを登録する。
// 作成・編集・削除・公開・差し戻し・締め切りは権限で保護する。
// extraは /{id} より前に登録する追加ルート。
func mountResource[T any, P store.Entity[T]](
	r chi.Router,
	resource string,
	s ResourceStore[T],
	perms middleware.PermissionChecker,
	logger *slog.Logger,
	extra func(r chi.Router),
) {
	if s == nil {
		return
	}

	h := NewResourceHandler[T, P](s, labelFor(resource), logger)
	require := func(action string) func(http.Handler) http.Handler {
		return middleware.RequirePermission(perms, permission.ForResource(resource, action))
	}

	r.Route("/api/"+resource, func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/snapshot", h.Snapshot)
		r.With(require(permission.ActionCreate)).Post("/", h.Create)

		if extra != nil {
			extra(r)
		}

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.With(require(permission.ActionEdit)).Put("/", h.Update)
			r.With(require(permission.ActionDelete)).Delete("/", h.Delete)
			r.With(require(permission.ActionPublish)).Post("/publish", h.Publish)
			r.With(require(permission.ActionPublish)).Post("/unpublish", h.Unpublish)
			r.With(require(permission.ActionClose)).Post("/close", h.Close)
			r.With(require(permission.ActionReject)).Post("/reject", h.Reject)
		})
	})
}

// healthHandler はヘルスチェックのハンドラーを返す。
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// mountedPrefixes は /api/ 直下に登録されるパスの先頭セグメントを返す。
func mountedPrefixes(deps *RouterDeps) map[string]bool {
	mounted := map[string]bool{"me": true}
	if deps.Blogs != nil {
		mounted["blogs"] = true
	}
	if deps.Contents != nil {
		mounted["contents"] = true
	}
	if deps.Jobs != nil {
		mounted["jobs"] = true
	}
	if deps.HomeContents != nil {
		mounted["home-contents"] = true
	}
	if deps.Chat != nil {
		mounted["chats"] = true
	}
	if deps.Dashboard != nil {
		mounted["dashboard"] = true
	}
	return mounted
}

// notFoundHandler は未登録のパスに統一フォーマットの404を返す。
// /api/ 直下の先頭セグメントが未登録ならリソース種別エラー、
// 登録済みのリソース配下なら操作パスのエラーとする。
func notFoundHandler(mounted map[string]bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rest, ok := strings.CutPrefix(r.URL.Path, "/api/")
		if !ok {
			http.NotFound(w, r)
			return
		}
		kind, _, _ := strings.Cut(rest, "/")
		if mounted[kind] {
			writeAPIErrorResponse(w, http.StatusNotFound, model.NewRouteNotFoundError(r.URL.Path))
			return
		}
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewUnknownResourceError(kind))
	}
}
