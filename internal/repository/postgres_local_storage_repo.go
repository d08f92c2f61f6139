package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresLocalStorageRepo はPostgreSQLを使用したローカルストレージ。
type PostgresLocalStorageRepo struct {
	db *sql.DB
}

// NewPostgresLocalStorageRepo はPostgresLocalStorageRepoを生成する。
func NewPostgresLocalStorageRepo(db *sql.DB) *PostgresLocalStorageRepo {
	return &PostgresLocalStorageRepo{db: db}
}

// Get は指定キーの値を取得する。
func (r *PostgresLocalStorageRepo) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM local_storage WHERE key = $1`,
		key,
	).Scan(&value)

	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get local storage value: %w", err)
	}
	return value, true, nil
}

// Set は指定キーに値を保存する。
func (r *PostgresLocalStorageRepo) Set(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO local_storage (key, value, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to set local storage value: %w", err)
	}
	return nil
}

// Delete は指定キーを削除する。
func (r *PostgresLocalStorageRepo) Delete(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM local_storage WHERE key = $1`,
		key,
	)
	if err != nil {
		return fmt.Errorf("failed to delete local storage value: %w", err)
	}
	return nil
}

// compile-time interface check
var _ LocalStorage = (*PostgresLocalStorageRepo)(nil)
