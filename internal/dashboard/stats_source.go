package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

var errNoStatsSource = errors.New("stats source is not configured")

// TrafficStats はアクセス解析系の統計値。
type TrafficStats struct {
	PageViews      int `json:"pageViews"`
	UniqueVisitors int `json:"uniqueVisitors"`
	Comments       int `json:"comments"`
}

// StatsSource はアクセス統計の取得元。
type StatsSource interface {
	Fetch(ctx context.Context) (TrafficStats, error)
}

// HTTPStatsSource は外部の統計エンドポイントからJSONを取得する。
// 外部URLを扱うため、SSRF対策済みのHTTPクライアントを渡すこと。
type HTTPStatsSource struct {
	client  *http.Client
	url     string
	maxSize int64
}

// NewHTTPStatsSource はHTTPStatsSourceの新しいインスタンスを生成する。
func NewHTTPStatsSource(client *http.Client, statsURL string, maxSize int64) *HTTPStatsSource {
	return &HTTPStatsSource{
		client:  client,
		url:     statsURL,
		maxSize: maxSize,
	}
}

// Fetch は統計エンドポイントを1回取得する。
func (h *HTTPStatsSource) Fetch(ctx context.Context) (TrafficStats, error) {
	var stats TrafficStats

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return stats, fmt.Errorf("統計リクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return stats, fmt.Errorf("統計の取得に失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return stats, fmt.Errorf("統計エンドポイントがエラーを返しました: HTTP %d", resp.StatusCode)
	}

	var body io.Reader = resp.Body
	if h.maxSize > 0 {
		body = io.LimitReader(resp.Body, h.maxSize)
	}
	if err := json.NewDecoder(body).Decode(&stats); err != nil {
		return stats, fmt.Errorf("統計レスポンスのパースに失敗しました: %w", err)
	}
	return stats, nil
}
