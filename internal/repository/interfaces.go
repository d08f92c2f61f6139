// Package repository はローカル状態の永続化を提供する。
package repository

import "context"

// LocalStorage はキー単位で文字列値を保存する永続化インターフェース。
type LocalStorage interface {
	// Get は指定キーの値を返す。存在しない場合は空文字とfalseを返す。
	Get(ctx context.Context, key string) (string, bool, error)
	// Set は指定キーに値を保存する。既存の値は上書きする。
	Set(ctx context.Context, key, value string) error
	// Delete は指定キーを削除する。存在しない場合もエラーにしない。
	Delete(ctx context.Context, key string) error
}
