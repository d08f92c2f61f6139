package model

import (
	"net/url"
	"strconv"
	"strings"
)

// Pagination は直近の一覧取得レスポンスから導出したページング情報。
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// NewPagination はレスポンスの値からPaginationを生成する。
// サーバーがtotalPagesを返さない場合は同じレスポンスのtotalとlimitから
// 切り上げ除算で算出する。以前の取得結果のtotalは使用しない。
func NewPagination(page, limit, total, totalPages int) Pagination {
	if page <= 0 {
		page = 1
	}
	if totalPages <= 0 && limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	return Pagination{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
	}
}

// ListFilter は一覧取得時の絞り込み条件。
type ListFilter struct {
	Page   int
	Limit  int
	Search string
	Status Status
	// Extra は種別固有の絞り込み条件（employment_type、section など）。
	Extra map[string]string
}

// Query は空でない条件のみをクエリパラメータとして組み立てる。
// 空文字列の条件は送信しない（サーバー側で「空」と「未指定」の意味が異なりうるため）。
func (f ListFilter) Query() url.Values {
	q := url.Values{}
	if f.Page > 0 {
		q.Set("page", strconv.Itoa(f.Page))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		q.Set("search", s)
	}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	for k, v := range f.Extra {
		if strings.TrimSpace(v) == "" {
			continue
		}
		q.Set(k, v)
	}
	return q
}
