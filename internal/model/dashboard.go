package model

import "time"

// DashboardStats はダッシュボードに表示する集計値。
// API由来の件数と、アクセス解析系の統計（外部ソースまたはモック値）を合わせて保持する。
type DashboardStats struct {
	TotalUsers int `json:"totalUsers"`
	TotalBlogs int `json:"totalBlogs"`
	TotalRoles int `json:"totalRoles"`

	PageViews      int `json:"pageViews"`
	UniqueVisitors int `json:"uniqueVisitors"`
	Comments       int `json:"comments"`

	// Fallbacks は取得に失敗しフォールバック値を使用した指標名。
	Fallbacks []string  `json:"fallbacks,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}
