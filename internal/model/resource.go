package model

import (
	"encoding/json"
	"strings"
	"time"
)

// Status はリソースのワークフロー上の状態を表す。
type Status string

const (
	// StatusDraft は下書き状態。
	StatusDraft Status = "draft"
	// StatusPending は承認待ち状態（管理者以外の著者が提出したもの）。
	StatusPending Status = "pending"
	// StatusPublished は公開状態。
	StatusPublished Status = "published"
	// StatusRejected は差し戻し状態。
	StatusRejected Status = "rejected"
	// StatusClosed は募集終了・公開終了状態。
	StatusClosed Status = "closed"
)

// AuthorRef は著者への参照を表す。
// バックエンドは著者をIDの文字列、またはオブジェクトとして返す。
type AuthorRef struct {
	ID   ID     `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// UnmarshalJSON は文字列形式とオブジェクト形式の著者参照を受け付ける。
func (a *AuthorRef) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*a = AuthorRef{}
		return nil
	}
	if strings.HasPrefix(s, "{") {
		var raw struct {
			ID       ID     `json:"id"`
			LegacyID ID     `json:"_id"`
			Name     string `json:"name"`
			Username string `json:"username"`
		}
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		a.ID = raw.ID
		if a.ID.IsZero() {
			a.ID = raw.LegacyID
		}
		a.Name = raw.Name
		if a.Name == "" {
			a.Name = raw.Username
		}
		return nil
	}
	var id ID
	if err := json.Unmarshal(b, &id); err != nil {
		return err
	}
	*a = AuthorRef{ID: id}
	return nil
}

// Base は全リソース種別に共通するフィールドを保持する。
// LegacyIDはバックエンドが返す旧形式の識別子（_id）で、
// 取り込み時にNormalizeによってIDへ統合される。
type Base struct {
	ID          ID         `json:"id,omitempty"`
	LegacyID    ID         `json:"_id,omitempty"`
	Title       string     `json:"title"`
	Author      *AuthorRef `json:"author,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	Status      Status     `json:"status,omitempty"`
	CreatedAt   time.Time  `json:"createdAt,omitzero"`
	UpdatedAt   time.Time  `json:"updatedAt,omitzero"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
}

// Normalize は正規の識別子を決定する（id ?? _id）。
// 正規化後は id フィールドのみを保持する。
func (b *Base) Normalize() {
	if b.ID.IsZero() {
		b.ID = b.LegacyID
	}
	b.LegacyID = ""
}

// Key は正規化済みの識別子を返す。未正規化の場合は旧形式の識別子を返す。
func (b *Base) Key() string {
	if !b.ID.IsZero() {
		return b.ID.String()
	}
	return b.LegacyID.String()
}

// MatchesID は指定IDがこのエンティティを指すかを返す。
// 正規IDで照合し、未正規化のエンティティは旧形式の識別子で照合する。
func (b *Base) MatchesID(id string) bool {
	if id == "" {
		return false
	}
	if !b.ID.IsZero() {
		return b.ID.String() == id
	}
	return b.LegacyID.String() == id
}

// AuthorName は著者の表示名を返す。
func (b *Base) AuthorName() string {
	if b.Author == nil {
		return ""
	}
	return b.Author.Name
}

// SearchFields はクライアント側フィルタの照合対象を返す。
func (b *Base) SearchFields() []string {
	return []string{b.Title, b.AuthorName()}
}

// GetStatus は現在の状態を返す。
func (b *Base) GetStatus() Status {
	return b.Status
}

// Blog はブログ記事を表す。
type Blog struct {
	Base
	Content         string `json:"content"`
	Excerpt         string `json:"excerpt,omitempty"`
	Category        string `json:"category,omitempty"`
	FeaturedImage   string `json:"featuredImage,omitempty"`
	RejectionReason string `json:"rejectionReason,omitempty"`
}

// SearchFields はタイトル・抜粋・著者を照合対象として返す。
func (b *Blog) SearchFields() []string {
	return []string{b.Title, b.Excerpt, b.AuthorName()}
}

// Validate は送信前の必須項目チェックを行う。
func (b *Blog) Validate() error {
	return requireFields(b.Title, "content", b.Content)
}

// Content は汎用コンテンツ（記事・ページ）を表す。
type Content struct {
	Base
	Body            string `json:"body"`
	Excerpt         string `json:"excerpt,omitempty"`
	Slug            string `json:"slug,omitempty"`
	Type            string `json:"type,omitempty"`
	RejectionReason string `json:"rejectionReason,omitempty"`
}

// SearchFields はタイトル・抜粋・著者を照合対象として返す。
func (c *Content) SearchFields() []string {
	return []string{c.Title, c.Excerpt, c.AuthorName()}
}

// Validate は送信前の必須項目チェックを行う。
func (c *Content) Validate() error {
	return requireFields(c.Title, "body", c.Body)
}

// Job は求人情報を表す。
type Job struct {
	Base
	Description     string     `json:"description"`
	Company         string     `json:"company,omitempty"`
	Location        string     `json:"location,omitempty"`
	EmploymentType  string     `json:"employment_type,omitempty"`
	ExperienceLevel string     `json:"experience_level,omitempty"`
	SalaryRange     string     `json:"salary_range,omitempty"`
	PublishTargets  []string   `json:"publish_targets,omitempty"`
	Deadline        *time.Time `json:"deadline,omitempty"`
}

// Validate は送信前の必須項目チェックを行う。
func (j *Job) Validate() error {
	return requireFields(j.Title, "description", j.Description)
}

// HomeContent はホームページに掲載するキュレーション枠を表す。
type HomeContent struct {
	Base
	Body            string   `json:"body"`
	Excerpt         string   `json:"excerpt,omitempty"`
	Section         string   `json:"section,omitempty"`
	Pages           []string `json:"pages,omitempty"`
	Featured        bool     `json:"featured"`
	Position        int      `json:"position,omitempty"`
	LinkURL         string   `json:"linkUrl,omitempty"`
	ImageURL        string   `json:"imageUrl,omitempty"`
	RejectionReason string   `json:"rejectionReason,omitempty"`
}

// SearchFields はタイトル・抜粋・著者を照合対象として返す。
func (h *HomeContent) SearchFields() []string {
	return []string{h.Title, h.Excerpt, h.AuthorName()}
}

// Validate は送信前の必須項目チェックを行う。
func (h *HomeContent) Validate() error {
	return requireFields(h.Title, "body", h.Body)
}

// FieldError は必須項目の未入力を表す。
type FieldError struct {
	Field string
}

// Error はerrorインターフェースを実装する。
func (e *FieldError) Error() string {
	return e.Field + " is required"
}

func requireFields(title, bodyField, body string) error {
	if strings.TrimSpace(title) == "" {
		return &FieldError{Field: "title"}
	}
	if strings.TrimSpace(body) == "" {
		return &FieldError{Field: bodyField}
	}
	return nil
}
