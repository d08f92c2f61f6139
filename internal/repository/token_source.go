package repository

import (
	"context"
	"strings"
)

// TokenSource はローカルストレージの固定キーから認証トークンを読み出す。
// apiclient.TokenSource を満たす。
type TokenSource struct {
	storage LocalStorage
	key     string
}

// NewTokenSource はTokenSourceを生成する。
func NewTokenSource(storage LocalStorage, key string) *TokenSource {
	return &TokenSource{storage: storage, key: key}
}

// Token は保存済みのトークンを返す。未保存の場合は空文字を返す。
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	value, ok, err := s.storage.Get(ctx, s.key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	return strings.TrimSpace(value), nil
}

// Save はトークンを保存する。空文字の場合は保存済みトークンを削除する。
func (s *TokenSource) Save(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return s.storage.Delete(ctx, s.key)
	}
	return s.storage.Set(ctx, s.key, token)
}
