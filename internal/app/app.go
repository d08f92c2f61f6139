package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/pressdesk/internal/apiclient"
	"github.com/hitoshi/pressdesk/internal/chat"
	"github.com/hitoshi/pressdesk/internal/config"
	"github.com/hitoshi/pressdesk/internal/curation"
	"github.com/hitoshi/pressdesk/internal/dashboard"
	"github.com/hitoshi/pressdesk/internal/database"
	"github.com/hitoshi/pressdesk/internal/handler"
	"github.com/hitoshi/pressdesk/internal/logger"
	"github.com/hitoshi/pressdesk/internal/metrics"
	"github.com/hitoshi/pressdesk/internal/middleware"
	"github.com/hitoshi/pressdesk/internal/permission"
	"github.com/hitoshi/pressdesk/internal/repository"
	"github.com/hitoshi/pressdesk/internal/scheduler"
	"github.com/hitoshi/pressdesk/internal/security"
	"github.com/hitoshi/pressdesk/internal/store"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再初期化
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("api_base_url", cfg.APIBaseURL),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandToken:
		return runToken(cfg, CommandArgs(args))
	default:
		return runServe(cfg)
	}
}

// services はserveモードで起動する依存関係一式。
type services struct {
	router      http.Handler
	operator    *permission.Checker
	chat        *chat.Store
	dashboard   *dashboard.Store
	rateLimiter *middleware.RateLimiter
}

// runServe はコンソールサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := database.Ping(context.Background(), db, 5*time.Second); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := buildServices(ctx, cfg, db, slog.Default())
	defer svc.rateLimiter.Stop()
	defer svc.chat.Close()

	// 2. バックグラウンド更新の開始
	presence := svc.chat.StartRealTimeUpdates(ctx)
	polling := svc.dashboard.StartPolling(ctx)

	// 3. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      svc.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("console server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serveErr:
		slog.Error("server listen error", slog.String("error", err.Error()))
		svc.stopBackground(presence, polling)
		return fmt.Errorf("server listen failed: %w", err)
	}
	slog.Info("shutting down console server...")

	svc.stopBackground(presence, polling)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("console server stopped gracefully")
	return nil
}

// buildServices はストア・ハンドラーを組み立て、起動時の読み込みを行う。
// プロフィールとユーザー一覧の読み込み失敗は記録のみ行い、起動は継続する。
func buildServices(ctx context.Context, cfg *config.Config, db *sql.DB, log *slog.Logger) *services {
	// 1. ローカル永続化ストレージと認証トークン
	storage := repository.NewPostgresLocalStorageRepo(db)
	tokens := repository.NewTokenSource(storage, cfg.AuthTokenKey)

	// 2. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	// 3. APIクライアント
	client := apiclient.NewClient(nil, cfg.APIBaseURL, tokens, log,
		apiclient.WithTimeout(cfg.APITimeout),
		apiclient.WithMetrics(collector),
	)

	// 4. セキュリティサービス
	sanitizer := security.NewContentSanitizer()
	guard := security.NewOutboundGuard()

	// 5. リソースストア
	storeOpts := []store.Option{
		store.WithTextProcessor(sanitizer),
		store.WithErrorRecorder(collector),
	}
	blogs := store.NewBlogStore(client, log, storeOpts...)
	contents := store.NewContentStore(client, log, storeOpts...)
	jobs := store.NewJobStore(client, log, storeOpts...)
	homeContents := store.NewHomeContentStore(client, log, storeOpts...)

	// 6. 操作者プロフィール
	checker := permission.NewChecker(client, log)
	if _, err := checker.Load(ctx); err != nil {
		log.Warn("failed to load operator profile", slog.String("error", err.Error()))
	}

	// 7. チャット
	chatStore := chat.NewStore(client, resolveSelfID(cfg, checker), chat.Settings{
		PresenceInterval:    cfg.PresenceInterval,
		PresenceProbability: cfg.PresenceProbability,
		ReplyDelayMin:       cfg.ReplyDelayMin,
		ReplyDelayMax:       cfg.ReplyDelayMax,
	}, log, chat.WithRecorder(collector))
	if err := chatStore.LoadUsers(ctx); err != nil {
		log.Warn("failed to load chat users", slog.String("error", err.Error()))
	}

	// 8. ダッシュボード
	dashboardOpts := []dashboard.Option{dashboard.WithRecorder(collector)}
	if cfg.StatsURL != "" {
		statsClient := guard.NewSafeClient(cfg.FetchTimeout)
		dashboardOpts = append(dashboardOpts,
			dashboard.WithStatsSource(dashboard.NewHTTPStatsSource(statsClient, cfg.StatsURL, cfg.FetchMaxSize)))
	}
	dashboardStore := dashboard.NewStore(client, cfg.DashboardPollInterval, log, dashboardOpts...)

	// 9. キュレーション
	suggester := curation.NewSuggester(guard.NewSafeClient(cfg.FetchTimeout), guard, sanitizer, log,
		cfg.FetchMaxSize, cfg.SuggestionMaxItems)

	// 10. ルーター
	rateLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig(cfg.RateLimitGeneral))
	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            log,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		HealthChecker:     db,
		MetricsGatherer:   registry,

		Operator: checker,

		Blogs:        blogs,
		Contents:     contents,
		Jobs:         jobs,
		HomeContents: homeContents,

		Suggester: suggester,
		Chat:      chatStore,
		Dashboard: dashboardStore,
	})

	return &services{
		router:      router,
		operator:    checker,
		chat:        chatStore,
		dashboard:   dashboardStore,
		rateLimiter: rateLimiter,
	}
}

// resolveSelfID はチャットでの自分のユーザーIDを決める。
// CHAT_SELF_IDが未設定の場合は操作者プロフィールのIDを使う。
func resolveSelfID(cfg *config.Config, operator handler.OperatorServiceInterface) string {
	if cfg.ChatSelfID != "" {
		return cfg.ChatSelfID
	}
	if op, ok := operator.Operator(); ok {
		return op.ID.String()
	}
	return ""
}

// stopBackground はプレゼンス更新とダッシュボードのポーリングを停止する。
func (s *services) stopBackground(presence, polling *scheduler.Handle) {
	s.chat.StopRealTimeUpdates(presence)
	s.dashboard.StopPolling(polling)
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	result, err := database.RunMigrations(cfg.DatabaseURL, slog.Default())
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	if !result.Applied {
		slog.Info("database schema is up to date",
			slog.Uint64("version", uint64(result.To)),
		)
		return nil
	}
	slog.Info("database migrations completed successfully",
		slog.Uint64("from_version", uint64(result.From)),
		slog.Uint64("to_version", uint64(result.To)),
	)
	return nil
}

// runToken はバックエンドAPIの認証トークンをローカルストレージに保存する。
// 引数が空文字の場合は保存済みのトークンを削除する。
func runToken(cfg *config.Config, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: token <bearer-token>")
	}

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	tokens := repository.NewTokenSource(repository.NewPostgresLocalStorageRepo(db), cfg.AuthTokenKey)
	if err := tokens.Save(context.Background(), args[0]); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}

	slog.Info("auth token saved", slog.String("key", cfg.AuthTokenKey))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報とクエリを取り除いてログ用に整形する。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	userinfo := ""
	if u.User != nil {
		userinfo = "***@"
	}
	return u.Scheme + "://" + userinfo + u.Host + u.Path
}
