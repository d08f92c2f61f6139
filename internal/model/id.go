// Package model はドメインモデルを定義する。
package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ID はバックエンドが返すエンティティ識別子。
// バックエンドは文字列と数値のどちらでも識別子を返しうるため、
// JSONデコード時にいずれの形式も文字列として受け付ける。
type ID string

// UnmarshalJSON は文字列・数値・nullのいずれの形式の識別子も受け付ける。
func (id *ID) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == "" {
		*id = ""
		return nil
	}
	if s[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return fmt.Errorf("invalid id: %w", err)
		}
		*id = ID(str)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid id: %s", s)
	}
	*id = ID(n.String())
	return nil
}

// String は識別子を文字列として返す。
func (id ID) String() string {
	return string(id)
}

// IsZero は識別子が未設定かどうかを返す。
func (id ID) IsZero() bool {
	return id == ""
}
