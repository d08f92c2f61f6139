package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/pressdesk/internal/model"
	"github.com/hitoshi/pressdesk/internal/store"
	"github.com/hitoshi/pressdesk/internal/workflow"
)

// ResourceStore はリソースハンドラーが必要とするストアのインターフェース。
// store.Store が満たす。
type ResourceStore[T any] interface {
	Kind() string
	Workflow() workflow.Workflow
	Snapshot() store.State[T]
	FetchList(ctx context.Context, filter model.ListFilter)
	Get(ctx context.Context, id string) (T, error)
	Create(ctx context.Context, data T) (T, error)
	Update(ctx context.Context, id string, data T) (T, error)
	Delete(ctx context.Context, id string) error
	Publish(ctx context.Context, id string, targets ...string) (T, error)
	Unpublish(ctx context.Context, id string) (T, error)
	Close(ctx context.Context, id string) (T, error)
	Reject(ctx context.Context, id, reason string) (T, error)
	Filter(search string) []T
}

// ResourceHandler は1つのリソース種別のHTTPハンドラー。
// Pはエンティティの状態とIDを読み出すために使う。
type ResourceHandler[T any, P store.Entity[T]] struct {
	store  ResourceStore[T]
	label  string
	logger *slog.Logger
}

// NewResourceHandler はResourceHandlerを生成する。
func NewResourceHandler[T any, P store.Entity[T]](s ResourceStore[T], label string, logger *slog.Logger) *ResourceHandler[T, P] {
	return &ResourceHandler[T, P]{
		store:  s,
		label:  label,
		logger: logger,
	}
}

// listResponse は一覧とストア状態のレスポンス。
type listResponse[T any] struct {
	Items      []T                          `json:"items"`
	Pagination model.Pagination             `json:"pagination"`
	Loading    bool                         `json:"loading"`
	Error      string                       `json:"error,omitempty"`
	Current    *T                           `json:"current,omitempty"`
	Workflow   string                       `json:"workflow"`
	Actions    map[string][]workflow.Action `json:"actions"`
}

// itemResponse は単一エンティティと実行可能な操作のレスポンス。
type itemResponse[T any] struct {
	Item    T                 `json:"item"`
	Actions []workflow.Action `json:"actions"`
}

type publishRequest struct {
	Targets []string `json:"targets"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

// List は一覧を取得してストアの状態を返す。
// 取得に失敗してもステータスは200で、エラーはボディのerrorに含める。
// GET /api/{kind}
func (h *ResourceHandler[T, P]) List(w http.ResponseWriter, r *http.Request) {
	h.store.FetchList(r.Context(), parseListFilter(r))
	writeJSON(w, http.StatusOK, h.toListResponse(h.store.Snapshot(), nil))
}

// Snapshot はAPIを呼ばずに現在の状態を返す。
// searchを指定すると読み込み済みのページに部分一致フィルタを適用する。
// GET /api/{kind}/snapshot
func (h *ResourceHandler[T, P]) Snapshot(w http.ResponseWriter, r *http.Request) {
	snap := h.store.Snapshot()
	var items []T
	if search := r.URL.Query().Get("search"); search != "" {
		items = h.store.Filter(search)
	}
	writeJSON(w, http.StatusOK, h.toListResponse(snap, items))
}

// Get は単一エンティティを取得する。
// GET /api/{kind}/{id}
func (h *ResourceHandler[T, P]) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	item, err := h.store.Get(r.Context(), id)
	h.respondItem(w, http.StatusOK, id, item, err)
}

// Create はエンティティを作成する。
// POST /api/{kind}
func (h *ResourceHandler[T, P]) Create(w http.ResponseWriter, r *http.Request) {
	var data T
	if !decodeBody(w, r, &data, false) {
		return
	}
	item, err := h.store.Create(r.Context(), data)
	h.respondItem(w, http.StatusCreated, "", item, err)
}

// Update はエンティティを更新する。
// PUT /api/{kind}/{id}
func (h *ResourceHandler[T, P]) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var data T
	if !decodeBody(w, r, &data, false) {
		return
	}
	item, err := h.store.Update(r.Context(), id, data)
	h.respondItem(w, http.StatusOK, id, item, err)
}

// Delete はエンティティを削除する。
// DELETE /api/{kind}/{id}
func (h *ResourceHandler[T, P]) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.Delete(r.Context(), id); err != nil {
		handleServiceError(w, h.logger, errorTarget{label: h.label, id: id}, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Publish はエンティティを公開する。ボディのtargetsは任意。
// POST /api/{kind}/{id}/publish
func (h *ResourceHandler[T, P]) Publish(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req publishRequest
	if !decodeBody(w, r, &req, true) {
		return
	}
	item, err := h.store.Publish(r.Context(), id, req.Targets...)
	h.respondItem(w, http.StatusOK, id, item, err)
}

// Unpublish は公開を取り下げる。
// POST /api/{kind}/{id}/unpublish
func (h *ResourceHandler[T, P]) Unpublish(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	item, err := h.store.Unpublish(r.Context(), id)
	h.respondItem(w, http.StatusOK, id, item, err)
}

// Close は募集を締め切る。
// POST /api/{kind}/{id}/close
func (h *ResourceHandler[T, P]) Close(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	item, err := h.store.Close(r.Context(), id)
	h.respondItem(w, http.StatusOK, id, item, err)
}

// Reject は差し戻す。ボディのreasonは任意。
// POST /api/{kind}/{id}/reject
func (h *ResourceHandler[T, P]) Reject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req rejectRequest
	if !decodeBody(w, r, &req, true) {
		return
	}
	item, err := h.store.Reject(r.Context(), id, req.Reason)
	h.respondItem(w, http.StatusOK, id, item, err)
}

func (h *ResourceHandler[T, P]) respondItem(w http.ResponseWriter, statusCode int, id string, item T, err error) {
	if err != nil {
		handleServiceError(w, h.logger, errorTarget{label: h.label, id: id}, err)
		return
	}
	writeJSON(w, statusCode, itemResponse[T]{
		Item:    item,
		Actions: h.actionsFor(&item),
	})
}

func (h *ResourceHandler[T, P]) actionsFor(item *T) []workflow.Action {
	actions := h.store.Workflow().AllowedActions(P(item).GetStatus())
	if actions == nil {
		actions = []workflow.Action{}
	}
	return actions
}

// toListResponse はスナップショットをレスポンスに変換する。filteredがnilでなければ項目を差し替える。
func (h *ResourceHandler[T, P]) toListResponse(snap store.State[T], filtered []T) listResponse[T] {
	items := snap.Items
	if filtered != nil {
		items = filtered
	}
	if items == nil {
		items = []T{}
	}

	actions := make(map[string][]workflow.Action, len(items))
	for i := range items {
		actions[P(&items[i]).Key()] = h.actionsFor(&items[i])
	}

	return listResponse[T]{
		Items:      items,
		Pagination: snap.Pagination,
		Loading:    snap.Loading,
		Error:      snap.Error,
		Current:    snap.Current,
		Workflow:   h.store.Workflow().Name,
		Actions:    actions,
	}
}

// listFilterKeys はListFilterの専用フィールドに対応するクエリキー。
var listFilterKeys = map[string]bool{"page": true, "limit": true, "search": true, "status": true}

// parseListFilter はクエリパラメータから一覧の絞り込み条件を組み立てる。
// 専用フィールド以外のキーは種別固有の条件として渡す。
func parseListFilter(r *http.Request) model.ListFilter {
	q := r.URL.Query()
	filter := model.ListFilter{
		Search: q.Get("search"),
		Status: model.Status(q.Get("status")),
	}
	if page, err := strconv.Atoi(q.Get("page")); err == nil && page > 0 {
		filter.Page = page
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil && limit > 0 {
		filter.Limit = limit
	}
	for key, values := range q {
		if listFilterKeys[key] || len(values) == 0 {
			continue
		}
		if filter.Extra == nil {
			filter.Extra = make(map[string]string)
		}
		filter.Extra[key] = values[0]
	}
	return filter
}

// decodeBody はリクエストボディをJSONとして読み込む。
// optionalがtrueの場合は空ボディを許可する。失敗時はエラーレスポンスを書き込みfalseを返す。
func decodeBody(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}
	writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
	return false
}

// resourceLabels はルートのリソース名と表示名の対応。
var resourceLabels = map[string]string{
	"blogs":         "ブログ",
	"contents":      "コンテンツ",
	"jobs":          "求人",
	"home-contents": "ホームコンテンツ",
}

func labelFor(resource string) string {
	if label, ok := resourceLabels[resource]; ok {
		return label
	}
	return strings.TrimSuffix(resource, "s")
}
