// Package database はデータベース接続とマイグレーション管理を提供する。
package database

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrationResult はマイグレーション実行前後のスキーマバージョン。
// Fromが0の場合は未適用の状態から実行したことを表す。
type MigrationResult struct {
	From    uint
	To      uint
	Applied bool
}

// migrateLogger はgolang-migrateのログをslogに流す。
type migrateLogger struct {
	logger *slog.Logger
}

func (l migrateLogger) Printf(format string, v ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)), slog.String("component", "migrate"))
}

func (l migrateLogger) Verbose() bool {
	return false
}

func newSource() (source.Driver, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}
	return src, nil
}

// NewMigrator はマイグレーション実行用のmigrateインスタンスを生成する。
// loggerがnilでなければgolang-migrateのログを出力する。
func NewMigrator(databaseURL string, logger *slog.Logger) (*migrate.Migrate, error) {
	src, err := newSource()
	if err != nil {
		return nil, err
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	if logger != nil {
		m.Log = migrateLogger{logger: logger}
	}

	return m, nil
}

// LatestVersion は埋め込まれたマイグレーションの最新バージョンを返す。
func LatestVersion() (uint, error) {
	src, err := newSource()
	if err != nil {
		return 0, err
	}
	defer src.Close()

	v, err := src.First()
	if err != nil {
		return 0, fmt.Errorf("no migrations found: %w", err)
	}
	for {
		next, err := src.Next(v)
		if errors.Is(err, fs.ErrNotExist) {
			return v, nil
		}
		if err != nil {
			return 0, fmt.Errorf("failed to read migrations: %w", err)
		}
		v = next
	}
}

// RunMigrations はすべてのマイグレーションを適用し、前後のバージョンを返す。
// すでに最新の場合はApplied=falseでエラーなしで返る。
// 前回の実行が途中で失敗しdirtyになっている場合は適用せずにエラーを返す。
func RunMigrations(databaseURL string, logger *slog.Logger) (MigrationResult, error) {
	var result MigrationResult

	m, err := NewMigrator(databaseURL, logger)
	if err != nil {
		return result, err
	}
	defer m.Close()

	from, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		from = 0
	case err != nil:
		return result, fmt.Errorf("failed to read schema version: %w", err)
	case dirty:
		return result, fmt.Errorf("schema version %d is dirty; fix it manually before migrating", from)
	}
	result.From = from
	result.To = from

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return result, nil
		}
		return result, fmt.Errorf("failed to run migrations: %w", err)
	}

	to, _, err := m.Version()
	if err != nil {
		return result, fmt.Errorf("failed to read schema version: %w", err)
	}
	result.To = to
	result.Applied = true
	return result, nil
}
