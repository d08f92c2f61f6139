// Package dashboard はダッシュボードの集計値を定期的に取得する。
// 各指標は独立に取得し、失敗した指標だけをフォールバック値に置き換える。
package dashboard

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/hitoshi/pressdesk/internal/apiclient"
	"github.com/hitoshi/pressdesk/internal/model"
	"github.com/hitoshi/pressdesk/internal/scheduler"
)

// 指標名。メトリクスのラベルとフォールバック一覧に使用する。
const (
	MetricUsers   = "users"
	MetricBlogs   = "blogs"
	MetricRoles   = "roles"
	MetricTraffic = "traffic"
)

// 取得に失敗した場合に表示するモック値。
const (
	fallbackUsers          = 1250
	fallbackBlogs          = 342
	fallbackRoles          = 5
	fallbackPageViews      = 45230
	fallbackUniqueVisitors = 12450
	fallbackComments       = 892
)

// API はダッシュボードが使用するバックエンドAPIクライアントのインターフェース。
type API interface {
	Get(ctx context.Context, endpoint string, query url.Values, out any) error
}

// Recorder はダッシュボードの集計値を計測する。
type Recorder interface {
	SetDashboardCount(metric string, value float64)
	RecordDashboardFallback(metric string)
}

// Store はダッシュボードの集計値を保持する。
type Store struct {
	api      API
	stats    StatsSource
	logger   *slog.Logger
	metrics  Recorder
	interval time.Duration
	now      func() time.Time

	lifeMu sync.Mutex

	mu      sync.Mutex
	data    model.DashboardStats
	loading bool
	poll    *scheduler.Handle
}

// Option はStoreの任意設定。
type Option func(*Store)

// WithStatsSource はアクセス統計の取得元を設定する。未設定の場合はモック値を使用する。
func WithStatsSource(src StatsSource) Option {
	return func(s *Store) {
		s.stats = src
	}
}

// WithRecorder は計測先を設定する。
func WithRecorder(r Recorder) Option {
	return func(s *Store) {
		s.metrics = r
	}
}

// NewStore はStoreの新しいインスタンスを生成する。
// intervalが0以下の場合は30秒を使用する。
func NewStore(api API, interval time.Duration, logger *slog.Logger, opts ...Option) *Store {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	s := &Store{
		api:      api,
		logger:   logger,
		interval: interval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchDashboardData はユーザー数・ブログ数・ロール数とアクセス統計を並行して取得する。
// 個々の取得失敗はその指標のフォールバック値で置き換え、全体を失敗にはしない。
func (s *Store) FetchDashboardData(ctx context.Context) model.DashboardStats {
	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()

	var (
		wg                        sync.WaitGroup
		users, blogs, roles       int
		usersErr, blogsErr, rlErr error
		traffic                   TrafficStats
		trafficErr                error
	)

	wg.Add(4)
	go func() {
		defer wg.Done()
		users, usersErr = s.countTotal(ctx, "/users", "users")
	}()
	go func() {
		defer wg.Done()
		blogs, blogsErr = s.countTotal(ctx, "/blogs", "blogs")
	}()
	go func() {
		defer wg.Done()
		roles, rlErr = s.countRoles(ctx)
	}()
	go func() {
		defer wg.Done()
		traffic, trafficErr = s.fetchTraffic(ctx)
	}()
	wg.Wait()

	stats := model.DashboardStats{UpdatedAt: s.now()}
	stats.TotalUsers = s.pick(MetricUsers, users, usersErr, fallbackUsers, &stats.Fallbacks)
	stats.TotalBlogs = s.pick(MetricBlogs, blogs, blogsErr, fallbackBlogs, &stats.Fallbacks)
	stats.TotalRoles = s.pick(MetricRoles, roles, rlErr, fallbackRoles, &stats.Fallbacks)

	if trafficErr != nil {
		s.degrade(MetricTraffic, trafficErr, &stats.Fallbacks)
		traffic = TrafficStats{
			PageViews:      fallbackPageViews,
			UniqueVisitors: fallbackUniqueVisitors,
			Comments:       fallbackComments,
		}
	}
	stats.PageViews = traffic.PageViews
	stats.UniqueVisitors = traffic.UniqueVisitors
	stats.Comments = traffic.Comments

	if s.metrics != nil {
		s.metrics.SetDashboardCount(MetricUsers, float64(stats.TotalUsers))
		s.metrics.SetDashboardCount(MetricBlogs, float64(stats.TotalBlogs))
		s.metrics.SetDashboardCount(MetricRoles, float64(stats.TotalRoles))
	}

	s.mu.Lock()
	s.data = stats
	s.loading = false
	s.mu.Unlock()

	s.logger.Info("ダッシュボードの集計値を更新しました",
		slog.Int("total_users", stats.TotalUsers),
		slog.Int("total_blogs", stats.TotalBlogs),
		slog.Int("total_roles", stats.TotalRoles),
		slog.Int("fallback_count", len(stats.Fallbacks)),
	)
	return stats
}

// Snapshot は直近の集計値を返す。
func (s *Store) Snapshot() model.DashboardStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.data
	out.Fallbacks = append([]string(nil), s.data.Fallbacks...)
	return out
}

// Loading は取得中かどうかを返す。
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// StartPolling は起動直後と以降interval毎に集計値を取得する。
// 動作中のポーリングがあれば停止してから開始する。
func (s *Store) StartPolling(ctx context.Context) *scheduler.Handle {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	s.mu.Lock()
	prev := s.poll
	s.poll = nil
	s.mu.Unlock()
	prev.Stop()

	h := scheduler.Every(ctx, s.logger, "dashboard-poll", s.interval, func(ctx context.Context) {
		s.FetchDashboardData(ctx)
	})

	s.mu.Lock()
	s.poll = h
	s.mu.Unlock()
	return h
}

// StopPolling は指定ハンドルのポーリングを停止する。
func (s *Store) StopPolling(h *scheduler.Handle) {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	s.mu.Lock()
	if s.poll == h {
		s.poll = nil
	}
	s.mu.Unlock()
	h.Stop()
}

// countTotal は limit=1 で一覧を取得し、レスポンスの総件数を返す。
func (s *Store) countTotal(ctx context.Context, endpoint, listKey string) (int, error) {
	var raw json.RawMessage
	if err := s.api.Get(ctx, endpoint, url.Values{"limit": {"1"}}, &raw); err != nil {
		return 0, err
	}
	page, err := apiclient.DecodeList[json.RawMessage](raw, listKey)
	if err != nil {
		return 0, err
	}
	if page.Total > 0 {
		return page.Total, nil
	}
	return len(page.Items), nil
}

// countRoles はロール一覧の件数を返す。
func (s *Store) countRoles(ctx context.Context) (int, error) {
	var raw json.RawMessage
	if err := s.api.Get(ctx, "/roles", nil, &raw); err != nil {
		return 0, err
	}
	page, err := apiclient.DecodeList[json.RawMessage](raw, "roles")
	if err != nil {
		return 0, err
	}
	if len(page.Items) > 0 {
		return len(page.Items), nil
	}
	return page.Total, nil
}

func (s *Store) fetchTraffic(ctx context.Context) (TrafficStats, error) {
	if s.stats == nil {
		return TrafficStats{}, errNoStatsSource
	}
	return s.stats.Fetch(ctx)
}

func (s *Store) pick(metric string, value int, err error, fallback int, fallbacks *[]string) int {
	if err != nil {
		s.degrade(metric, err, fallbacks)
		return fallback
	}
	return value
}

func (s *Store) degrade(metric string, err error, fallbacks *[]string) {
	*fallbacks = append(*fallbacks, metric)
	if s.metrics != nil {
		s.metrics.RecordDashboardFallback(metric)
	}
	if err == errNoStatsSource {
		return
	}
	s.logger.Warn("指標の取得に失敗したためフォールバック値を使用します",
		slog.String("metric", metric),
		slog.String("error", err.Error()),
	)
}
