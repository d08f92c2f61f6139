package model

import "time"

// 権限判定とチャット生成で使用するロール名。
const (
	RoleAdmin     = "Admin"
	RoleEditor    = "Editor"
	RoleAuthor    = "Author"
	RoleModerator = "Moderator"
)

// User はバックエンドのユーザー一覧の1件を表す。
type User struct {
	ID       ID     `json:"id,omitempty"`
	LegacyID ID     `json:"_id,omitempty"`
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role"`
	Status   string `json:"status"`
	Avatar   string `json:"avatar,omitempty"`
}

// Normalize は正規の識別子を決定する（id ?? _id）。
func (u *User) Normalize() {
	if u.ID.IsZero() {
		u.ID = u.LegacyID
	}
	u.LegacyID = ""
}

// IsActive はアクティブなユーザーかどうかを返す。
func (u User) IsActive() bool {
	return u.Status == "active"
}

// IsAdmin は管理者ロールかどうかを返す。
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// IsPrivileged は編集系ロール（管理者・編集者・著者・モデレーター）かどうかを返す。
func (u User) IsPrivileged() bool {
	switch u.Role {
	case RoleAdmin, RoleEditor, RoleAuthor, RoleModerator:
		return true
	default:
		return false
	}
}

// ChatType はチャットの種別を表す。
type ChatType string

const (
	ChatTypeDirect  ChatType = "direct"
	ChatTypeGroup   ChatType = "group"
	ChatTypeChannel ChatType = "channel"
)

// MessageType はメッセージの種別を表す。
type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeImage  MessageType = "image"
	MessageTypeFile   MessageType = "file"
	MessageTypeSystem MessageType = "system"
)

// Participant はチャット参加者を表す。
type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// Chat はチャットを表す。
// UnreadCountは常に0以上で、チャットが表示中になった時点で0にリセットされる。
type Chat struct {
	ID           string        `json:"id"`
	Type         ChatType      `json:"type"`
	Name         string        `json:"name"`
	Participants []Participant `json:"participants"`
	LastMessage  *Message      `json:"lastMessage,omitempty"`
	UnreadCount  int           `json:"unreadCount"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// Message はチャットメッセージを表す。
// ReadByは和集合でのみ拡張され、縮小しない。
type Message struct {
	ID        string      `json:"id"`
	ChatID    string      `json:"chatId"`
	SenderID  string      `json:"senderId"`
	Content   string      `json:"content"`
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	ReadBy    []string    `json:"readBy"`
}

// MarkReadBy は既読者を追加する。既に含まれている場合は何もしない。
func (m *Message) MarkReadBy(participantID string) {
	for _, id := range m.ReadBy {
		if id == participantID {
			return
		}
	}
	m.ReadBy = append(m.ReadBy, participantID)
}
