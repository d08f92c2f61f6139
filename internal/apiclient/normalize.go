package apiclient

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ListPage は一覧レスポンスを正規化した結果。
type ListPage[T any] struct {
	Items      []T
	Page       int
	Limit      int
	Total      int
	TotalPages int
}

type pageFields struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      *int `json:"total"`
	TotalPages *int `json:"totalPages"`
}

// DecodeList は一覧レスポンスを正規化する。
// 次の形式を受け付ける:
//   - 配列そのもの
//   - {items: [...], page, limit, total, totalPages}
//   - {<listKey>: [...], pagination: {...}} や {data: [...]}
//
// 配列のみの場合、または件数項目（total, totalPages）がどちらもない場合は
// totalを要素数とみなす。
func DecodeList[T any](raw []byte, listKey string) (ListPage[T], error) {
	var page ListPage[T]
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return page, fmt.Errorf("一覧レスポンスが空です")
	}

	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &page.Items); err != nil {
			return page, fmt.Errorf("一覧レスポンスのパースに失敗しました: %w", err)
		}
		page.Page = 1
		page.Total = len(page.Items)
		page.TotalPages = 1
		return page, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return page, fmt.Errorf("一覧レスポンスのパースに失敗しました: %w", err)
	}

	var itemsRaw json.RawMessage
	for _, key := range []string{listKey, "items", "data"} {
		if key == "" {
			continue
		}
		if v, ok := obj[key]; ok && isArray(v) {
			itemsRaw = v
			break
		}
	}
	if itemsRaw == nil {
		return page, fmt.Errorf("一覧レスポンスに配列が含まれていません")
	}
	if err := json.Unmarshal(itemsRaw, &page.Items); err != nil {
		return page, fmt.Errorf("一覧レスポンスの要素のパースに失敗しました: %w", err)
	}

	var fields pageFields
	if v, ok := obj["pagination"]; ok {
		if err := json.Unmarshal(v, &fields); err != nil {
			return page, fmt.Errorf("ページング情報のパースに失敗しました: %w", err)
		}
	} else if err := json.Unmarshal(trimmed, &fields); err != nil {
		return page, fmt.Errorf("ページング情報のパースに失敗しました: %w", err)
	}
	page.Page = fields.Page
	page.Limit = fields.Limit
	if fields.Total == nil && fields.TotalPages == nil {
		page.Page = max(page.Page, 1)
		page.Total = len(page.Items)
		page.TotalPages = 1
		return page, nil
	}
	if fields.Total != nil {
		page.Total = *fields.Total
	}
	if fields.TotalPages != nil {
		page.TotalPages = *fields.TotalPages
	}
	return page, nil
}

// DecodeEntity は単一エンティティのレスポンスを正規化する。
// {<entityKey>: {...}} 形式であればラップを外し、そうでなければボディ全体をエンティティとして扱う。
func DecodeEntity[T any](raw []byte, entityKey string) (T, error) {
	var entity T
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return entity, fmt.Errorf("レスポンスが空です")
	}

	if trimmed[0] == '{' && entityKey != "" {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return entity, fmt.Errorf("レスポンスのパースに失敗しました: %w", err)
		}
		if v, ok := obj[entityKey]; ok && isObject(v) {
			trimmed = v
		}
	}

	if err := json.Unmarshal(trimmed, &entity); err != nil {
		return entity, fmt.Errorf("エンティティのパースに失敗しました: %w", err)
	}
	return entity, nil
}

func isArray(v json.RawMessage) bool {
	v = bytes.TrimSpace(v)
	return len(v) > 0 && v[0] == '['
}

func isObject(v json.RawMessage) bool {
	v = bytes.TrimSpace(v)
	return len(v) > 0 && v[0] == '{'
}
