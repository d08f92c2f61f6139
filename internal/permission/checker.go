// Package permission はコンソール操作者の権限判定を提供する。
// ストア層は権限を一切判定しないため、公開・差し戻し・削除などの
// 操作可否はここで判定し、最終的な拒否はバックエンドに委ねる。
package permission

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/hitoshi/pressdesk/internal/apiclient"
	"github.com/hitoshi/pressdesk/internal/model"
)

// 操作の種類。権限文字列は "<リソース>.<操作>" の形式（例: blogs.publish）。
const (
	ActionView    = "view"
	ActionCreate  = "create"
	ActionEdit    = "edit"
	ActionDelete  = "delete"
	ActionPublish = "publish"
	ActionReject  = "reject"
	ActionClose   = "close"
)

// ForResource はリソースと操作から権限文字列を組み立てる。
func ForResource(resource, action string) string {
	return resource + "." + action
}

// ProfileSource はログインユーザーのプロフィール取得元。
type ProfileSource interface {
	Get(ctx context.Context, endpoint string, query url.Values, out any) error
}

// Checker はログインユーザーの権限を保持し、判定を行う。
type Checker struct {
	api    ProfileSource
	logger *slog.Logger

	mu       sync.RWMutex
	operator *model.Operator
}

// NewChecker はCheckerの新しいインスタンスを生成する。
func NewChecker(api ProfileSource, logger *slog.Logger) *Checker {
	return &Checker{
		api:    api,
		logger: logger,
	}
}

// Load は GET /auth/me からプロフィールを取得して保持する。
// 失敗時は保持しているプロフィールを変更しない。
func (c *Checker) Load(ctx context.Context) (model.Operator, error) {
	var raw json.RawMessage
	if err := c.api.Get(ctx, "/auth/me", nil, &raw); err != nil {
		c.logger.Warn("ログインユーザーのプロフィール取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return model.Operator{}, err
	}

	op, err := apiclient.DecodeEntity[model.Operator](raw, "user")
	if err != nil {
		return model.Operator{}, fmt.Errorf("プロフィールのパースに失敗しました: %w", err)
	}
	op.Normalize()

	c.mu.Lock()
	c.operator = &op
	c.mu.Unlock()

	c.logger.Info("ログインユーザーのプロフィールを読み込みました",
		slog.String("operator_id", op.ID.String()),
		slog.String("role", op.Role),
		slog.Int("permission_count", len(op.Permissions)),
	)
	return op, nil
}

// Operator は保持しているプロフィールを返す。未読み込みの場合はfalseを返す。
func (c *Checker) Operator() (model.Operator, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.operator == nil {
		return model.Operator{}, false
	}
	return *c.operator, true
}

// HasPermission は権限を持つかどうかを返す。
// 管理者ロールは全ての権限を持つ。プロフィール未読み込みの場合はfalse。
func (c *Checker) HasPermission(perm string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.operator == nil {
		return false
	}
	if c.operator.Role == model.RoleAdmin {
		return true
	}
	for _, p := range c.operator.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}
