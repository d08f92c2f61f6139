package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Backend API
	APIBaseURL   string
	APITimeout   time.Duration // 0の場合はタイムアウトなし
	AuthTokenKey string

	// Database (ローカル永続化ストレージ)
	DatabaseURL string

	// Dashboard
	DashboardPollInterval time.Duration
	StatsURL              string

	// Chat simulation
	ChatSelfID          string
	PresenceInterval    time.Duration
	PresenceProbability float64
	ReplyDelayMin       time.Duration
	ReplyDelayMax       time.Duration

	// Outbound fetch (統計ソース、キュレーション候補)
	FetchTimeout       time.Duration
	FetchMaxSize       int64
	SuggestionMaxItems int

	// Rate Limit
	RateLimitGeneral int

	// Logging
	LogLevel string

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.APIBaseURL = strings.TrimRight(os.Getenv("API_BASE_URL"), "/")
	if cfg.APIBaseURL == "" {
		missing = append(missing, "API_BASE_URL")
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.APITimeout = getEnvDuration("API_TIMEOUT", 0)
	cfg.AuthTokenKey = getEnvString("AUTH_TOKEN_KEY", "auth_token")
	cfg.DashboardPollInterval = getEnvDuration("DASHBOARD_POLL_INTERVAL", 30*time.Second)
	cfg.StatsURL = getEnvString("STATS_URL", "")
	cfg.ChatSelfID = getEnvString("CHAT_SELF_ID", "")
	cfg.PresenceInterval = getEnvDuration("PRESENCE_INTERVAL", 30*time.Second)
	cfg.PresenceProbability = getEnvFloat("PRESENCE_PROBABILITY", 0.6)
	cfg.ReplyDelayMin = getEnvDuration("REPLY_DELAY_MIN", 2*time.Second)
	cfg.ReplyDelayMax = getEnvDuration("REPLY_DELAY_MAX", 5*time.Second)
	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 10*time.Second)
	cfg.FetchMaxSize = getEnvInt64("FETCH_MAX_SIZE", 5242880)
	cfg.SuggestionMaxItems = getEnvInt("SUGGESTION_MAX_ITEMS", 10)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	if cfg.PresenceProbability < 0 || cfg.PresenceProbability > 1 {
		return nil, fmt.Errorf("PRESENCE_PROBABILITY must be within [0, 1]: %v", cfg.PresenceProbability)
	}
	if cfg.ReplyDelayMax <= cfg.ReplyDelayMin {
		return nil, fmt.Errorf("REPLY_DELAY_MAX (%s) must be greater than REPLY_DELAY_MIN (%s)", cfg.ReplyDelayMax, cfg.ReplyDelayMin)
	}

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
