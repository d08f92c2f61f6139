// Package store はリソース種別ごとのインメモリストアを提供する。
// ストアは1つのエンティティ集合を排他的に所有し、バックエンドAPIを
// 唯一の正とするCRUDと状態遷移の窓口になる。
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/hitoshi/pressdesk/internal/apiclient"
	"github.com/hitoshi/pressdesk/internal/model"
	"github.com/hitoshi/pressdesk/internal/workflow"
)

// Entity はストアが扱うエンティティのポインタ型に求める振る舞い。
type Entity[T any] interface {
	*T
	Normalize()
	Key() string
	MatchesID(id string) bool
	SearchFields() []string
	GetStatus() model.Status
	Validate() error
}

// API はストアが使用するバックエンドAPIクライアントのインターフェース。
type API interface {
	Get(ctx context.Context, endpoint string, query url.Values, out any) error
	Post(ctx context.Context, endpoint string, body, out any) error
	Put(ctx context.Context, endpoint string, body, out any) error
	Patch(ctx context.Context, endpoint string, body, out any) error
	Delete(ctx context.Context, endpoint string, out any) error
}

// TextProcessor は送信前の本文サニタイズと抜粋生成を行う。
type TextProcessor interface {
	Sanitize(rawHTML string) string
	PlainText(rawHTML string) string
	Excerpt(rawHTML string, maxRunes int) string
}

// ErrorRecorder はストア操作の失敗を計測する。
type ErrorRecorder interface {
	RecordStoreError(kind, action string)
}

// Config はリソース種別ごとの設定。
type Config[T any] struct {
	// Kind はログとメトリクスで使用する種別名（blog, content, job, home_content）。
	Kind string
	// Endpoint はAPIのパス（/blogs など）。
	Endpoint string
	// EntityKey は単一エンティティのレスポンスを包むキー（blog など）。
	EntityKey string
	// ListKey は一覧レスポンスの配列キー（blogs など）。
	ListKey string
	// Workflow は状態遷移表。操作候補の提示にのみ使用する。
	Workflow workflow.Workflow
	// Prepare は作成・更新の送信前にエンティティを整える。
	Prepare func(entity *T, text TextProcessor)
	// Searchable はクライアント側の部分一致フィルタを有効にする。
	Searchable bool
}

// ValidationError は送信前の必須項目チェックの失敗を表す。
// この場合ストアの状態は変更されない。
type ValidationError struct {
	Kind  string
	Field string
}

// Error はerrorインターフェースを実装する。
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s is required", e.Kind, e.Field)
}

// State はストアの観測可能な状態のスナップショット。
type State[T any] struct {
	Items      []T              `json:"items"`
	Pagination model.Pagination `json:"pagination"`
	Loading    bool             `json:"loading"`
	Error      string           `json:"error,omitempty"`
	Current    *T               `json:"current,omitempty"`
	Filter     model.ListFilter `json:"-"`
}

// Store は1つのリソース種別のインメモリストア。
// 状態の読み書きはmuで保護するが、API呼び出し中はロックを保持しない。
// 同一操作の並行呼び出しは順序付けされず、後に届いたレスポンスが反映される。
type Store[T any, P Entity[T]] struct {
	cfg     Config[T]
	api     API
	logger  *slog.Logger
	text    TextProcessor
	metrics ErrorRecorder

	mu    sync.Mutex
	state State[T]
}

// Option はStoreの任意設定。
type Option func(*options)

type options struct {
	text    TextProcessor
	metrics ErrorRecorder
}

// WithTextProcessor は送信前の本文サニタイズを有効にする。
func WithTextProcessor(tp TextProcessor) Option {
	return func(o *options) {
		o.text = tp
	}
}

// WithErrorRecorder は失敗の計測先を設定する。
func WithErrorRecorder(r ErrorRecorder) Option {
	return func(o *options) {
		o.metrics = r
	}
}

// New はStoreの新しいインスタンスを生成する。
func New[T any, P Entity[T]](cfg Config[T], api API, logger *slog.Logger, opts ...Option) *Store[T, P] {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &Store[T, P]{
		cfg:     cfg,
		api:     api,
		logger:  logger,
		text:    o.text,
		metrics: o.metrics,
	}
}

// Kind は種別名を返す。
func (s *Store[T, P]) Kind() string {
	return s.cfg.Kind
}

// Workflow は種別の状態遷移表を返す。
func (s *Store[T, P]) Workflow() workflow.Workflow {
	return s.cfg.Workflow
}

// Snapshot は現在の状態のコピーを返す。
func (s *Store[T, P]) Snapshot() State[T] {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.state
	snap.Items = append([]T(nil), s.state.Items...)
	if s.state.Current != nil {
		cur := *s.state.Current
		snap.Current = &cur
	}
	return snap
}

// FetchList は一覧を取得し、コレクション全体をレスポンスのページで置き換える。
// 失敗時はerrorを設定し、既存のコレクションとページング情報はそのまま残す。
// 失敗は呼び出し元に返さない（状態のerrorで観測する）。
func (s *Store[T, P]) FetchList(ctx context.Context, filter model.ListFilter) {
	s.begin()

	var raw json.RawMessage
	err := s.api.Get(ctx, s.cfg.Endpoint, filter.Query(), &raw)
	var page apiclient.ListPage[T]
	if err == nil {
		page, err = apiclient.DecodeList[T](raw, s.cfg.ListKey)
	}
	if err != nil {
		s.fail("fetch", err)
		return
	}

	for i := range page.Items {
		P(&page.Items[i]).Normalize()
	}
	if page.Items == nil {
		page.Items = []T{}
	}

	pageNum, limit := page.Page, page.Limit
	if pageNum <= 0 {
		pageNum = filter.Page
	}
	if limit <= 0 {
		limit = filter.Limit
	}

	s.mu.Lock()
	s.state.Items = page.Items
	s.state.Pagination = model.NewPagination(pageNum, limit, page.Total, page.TotalPages)
	s.state.Filter = filter
	s.state.Loading = false
	s.mu.Unlock()

	s.logger.Debug("一覧を取得しました",
		slog.String("kind", s.cfg.Kind),
		slog.Int("count", len(page.Items)),
		slog.Int("total", page.Total),
	)
}

// Get は単一エンティティを取得し、選択中のエンティティとして保持する。
// コレクションに同じIDのエンティティがあれば置き換える。
func (s *Store[T, P]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	s.begin()

	var raw json.RawMessage
	if err := s.api.Get(ctx, s.entityPath(id), nil, &raw); err != nil {
		return zero, s.fail("get", err)
	}
	entity, err := s.decodeEntity(raw)
	if err != nil {
		return zero, s.fail("get", err)
	}

	s.mu.Lock()
	s.replaceLocked(id, entity)
	cur := entity
	s.state.Current = &cur
	s.state.Loading = false
	s.mu.Unlock()
	return entity, nil
}

// Create はエンティティを作成し、成功時にコレクションの先頭へ追加する。
// 一覧の再取得は行わない。
func (s *Store[T, P]) Create(ctx context.Context, data T) (T, error) {
	var zero T
	if err := s.validate(&data); err != nil {
		return zero, err
	}
	s.prepare(&data)
	P(&data).Normalize()

	s.begin()
	var raw json.RawMessage
	if err := s.api.Post(ctx, s.cfg.Endpoint, data, &raw); err != nil {
		return zero, s.fail("create", err)
	}
	created, err := s.decodeEntity(raw)
	if err != nil {
		return zero, s.fail("create", err)
	}

	s.mu.Lock()
	s.state.Items = append([]T{created}, s.state.Items...)
	s.state.Pagination.Total++
	s.state.Loading = false
	s.mu.Unlock()

	s.logger.Info("エンティティを作成しました",
		slog.String("kind", s.cfg.Kind),
		slog.String("id", P(&created).Key()),
	)
	return created, nil
}

// Update はエンティティを更新し、成功時に一致するエンティティを同じ位置で置き換える。
func (s *Store[T, P]) Update(ctx context.Context, id string, data T) (T, error) {
	var zero T
	if err := s.validate(&data); err != nil {
		return zero, err
	}
	s.prepare(&data)
	P(&data).Normalize()

	s.begin()
	var raw json.RawMessage
	if err := s.api.Put(ctx, s.entityPath(id), data, &raw); err != nil {
		return zero, s.fail("update", err)
	}
	updated, err := s.decodeEntity(raw)
	if err != nil {
		return zero, s.fail("update", err)
	}

	s.mu.Lock()
	s.replaceLocked(id, updated)
	s.state.Loading = false
	s.mu.Unlock()
	return updated, nil
}

// Delete はエンティティを削除し、成功時にコレクションから取り除く。
// 選択中のエンティティであれば選択も解除する。
// サーバーが失敗を返した場合（存在しないIDを含む）はコレクションを変更しない。
func (s *Store[T, P]) Delete(ctx context.Context, id string) error {
	s.begin()
	if err := s.api.Delete(ctx, s.entityPath(id), nil); err != nil {
		return s.fail("delete", err)
	}

	s.mu.Lock()
	kept := make([]T, 0, len(s.state.Items))
	removed := 0
	for i := range s.state.Items {
		if P(&s.state.Items[i]).MatchesID(id) {
			removed++
			continue
		}
		kept = append(kept, s.state.Items[i])
	}
	s.state.Items = kept
	s.state.Pagination.Total = max(s.state.Pagination.Total-removed, 0)
	if s.state.Current != nil && P(s.state.Current).MatchesID(id) {
		s.state.Current = nil
	}
	s.state.Loading = false
	s.mu.Unlock()

	s.logger.Info("エンティティを削除しました",
		slog.String("kind", s.cfg.Kind),
		slog.String("id", id),
	)
	return nil
}

// Publish はエンティティを公開する。targetsは求人の掲載先で、空の場合はボディを送らない。
func (s *Store[T, P]) Publish(ctx context.Context, id string, targets ...string) (T, error) {
	var body any
	if len(targets) > 0 {
		body = map[string][]string{"targets": targets}
	}
	return s.transition(ctx, id, "publish", body)
}

// Unpublish は公開を取り下げる。publishedAtはサーバーの応答どおりに保持する。
func (s *Store[T, P]) Unpublish(ctx context.Context, id string) (T, error) {
	return s.transition(ctx, id, "unpublish", nil)
}

// Close は公開を終了する。
func (s *Store[T, P]) Close(ctx context.Context, id string) (T, error) {
	return s.transition(ctx, id, "close", nil)
}

// Reject は承認待ちのエンティティを差し戻す。
func (s *Store[T, P]) Reject(ctx context.Context, id, reason string) (T, error) {
	return s.transition(ctx, id, "reject", map[string]string{"reason": reason})
}

// transition は状態遷移を要求し、サーバーが返したエンティティでローカルを置き換える。
// 遷移の妥当性はサーバーが判断する。
func (s *Store[T, P]) transition(ctx context.Context, id, action string, body any) (T, error) {
	var zero T
	s.begin()

	var raw json.RawMessage
	if err := s.api.Patch(ctx, s.entityPath(id)+"/"+action, body, &raw); err != nil {
		return zero, s.fail(action, err)
	}

	// ボディなしの応答はローカルの状態をそのまま返す
	if len(strings.TrimSpace(string(raw))) == 0 {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.state.Loading = false
		if found, ok := s.findLocked(id); ok {
			return found, nil
		}
		return zero, nil
	}

	entity, err := s.decodeEntity(raw)
	if err != nil {
		return zero, s.fail(action, err)
	}

	s.mu.Lock()
	s.replaceLocked(id, entity)
	s.state.Loading = false
	s.mu.Unlock()

	s.logger.Info("状態遷移を実行しました",
		slog.String("kind", s.cfg.Kind),
		slog.String("id", id),
		slog.String("action", action),
		slog.String("status", string(P(&entity).GetStatus())),
	)
	return entity, nil
}

// SetCurrent はコレクション内のエンティティを選択する。見つからない場合はfalseを返す。
func (s *Store[T, P]) SetCurrent(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	found, ok := s.findLocked(id)
	if !ok {
		return false
	}
	s.state.Current = &found
	return true
}

// ClearCurrent は選択を解除する。
func (s *Store[T, P]) ClearCurrent() {
	s.mu.Lock()
	s.state.Current = nil
	s.mu.Unlock()
}

// Find はコレクションからIDに一致するエンティティを返す。
func (s *Store[T, P]) Find(id string) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findLocked(id)
}

// Filter は現在読み込まれているページに対してクライアント側の部分一致フィルタを適用する。
// サーバー側の検索を補うもので、コレクション全体は対象にならない。
// 検索可能でない種別、または検索語が空の場合はページ全体を返す。
func (s *Store[T, P]) Filter(search string) []T {
	items := s.Snapshot().Items
	term := strings.ToLower(strings.TrimSpace(search))
	if term == "" || !s.cfg.Searchable {
		return items
	}

	matched := make([]T, 0, len(items))
	for i := range items {
		for _, field := range P(&items[i]).SearchFields() {
			if s.text != nil {
				field = s.text.PlainText(field)
			}
			if strings.Contains(strings.ToLower(field), term) {
				matched = append(matched, items[i])
				break
			}
		}
	}
	return matched
}

// ClearError はエラー表示をリセットする。
func (s *Store[T, P]) ClearError() {
	s.mu.Lock()
	s.state.Error = ""
	s.mu.Unlock()
}

func (s *Store[T, P]) entityPath(id string) string {
	return strings.TrimRight(s.cfg.Endpoint, "/") + "/" + url.PathEscape(id)
}

func (s *Store[T, P]) begin() {
	s.mu.Lock()
	s.state.Loading = true
	s.state.Error = ""
	s.mu.Unlock()
}

// fail はエラーを状態に記録し、同じエラーを返す。
func (s *Store[T, P]) fail(action string, err error) error {
	s.mu.Lock()
	s.state.Loading = false
	s.state.Error = err.Error()
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordStoreError(s.cfg.Kind, action)
	}

	level := slog.LevelError
	if status := apiclient.StatusOf(err); status >= http.StatusBadRequest && status < http.StatusInternalServerError {
		level = slog.LevelWarn
	}
	s.logger.Log(context.Background(), level, "ストア操作に失敗しました",
		slog.String("kind", s.cfg.Kind),
		slog.String("action", action),
		slog.String("error", err.Error()),
	)
	return err
}

func (s *Store[T, P]) validate(data *T) error {
	if err := P(data).Validate(); err != nil {
		var field string
		if fe, ok := err.(*model.FieldError); ok {
			field = fe.Field
		} else {
			field = err.Error()
		}
		return &ValidationError{Kind: s.cfg.Kind, Field: field}
	}
	return nil
}

func (s *Store[T, P]) prepare(data *T) {
	if s.cfg.Prepare != nil && s.text != nil {
		s.cfg.Prepare(data, s.text)
	}
}

func (s *Store[T, P]) decodeEntity(raw []byte) (T, error) {
	entity, err := apiclient.DecodeEntity[T](raw, s.cfg.EntityKey)
	if err != nil {
		return entity, err
	}
	P(&entity).Normalize()
	return entity, nil
}

// replaceLocked はIDに一致するエンティティを同じ位置で置き換える。
// 選択中のエンティティも同様に更新する。
func (s *Store[T, P]) replaceLocked(id string, entity T) {
	for i := range s.state.Items {
		if P(&s.state.Items[i]).MatchesID(id) {
			s.state.Items[i] = entity
			break
		}
	}
	if s.state.Current != nil && P(s.state.Current).MatchesID(id) {
		cur := entity
		s.state.Current = &cur
	}
}

func (s *Store[T, P]) findLocked(id string) (T, bool) {
	for i := range s.state.Items {
		if P(&s.state.Items[i]).MatchesID(id) {
			return s.state.Items[i], true
		}
	}
	var zero T
	return zero, false
}
