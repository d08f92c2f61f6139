// Package chat はバックエンドを持たない社内チャットのシミュレーションを提供する。
// チャット一覧はユーザー名簿から決定的に導出し、自動返信とオンライン状態は
// 乱数とタイマーで擬似的に再現する。実際のプレゼンス情報ではない。
package chat

import (
	"time"

	"github.com/hitoshi/pressdesk/internal/model"
)

// 導出されるチャットのIDの形式。
const (
	GeneralChatID   = "general"
	supportPrefix   = "support-"
	directPrefix    = "direct-"
	maxDirectChats  = 3
	minGeneralUsers = 3
)

// DeriveChats はユーザー名簿と自分のIDから固定のチャット一覧を組み立てる。
// 同じ入力からは常に同じ結果（ID・参加者・順序）を返す。
//
//   - サポート: 名簿順で最初のアクティブな管理者（自分以外）との個別チャット
//   - 全体: アクティブユーザーが3人以上いる場合、全アクティブユーザーのグループ
//   - 個別: サポート相手と自分を除く編集系ロールのアクティブユーザー、名簿順で最大3件
//
// チャットの作成・更新時刻にはnowを使用する。
func DeriveChats(users []model.User, selfID string, now time.Time) []model.Chat {
	self := selfParticipant(users, selfID)

	var active []model.User
	for _, u := range users {
		if u.IsActive() {
			active = append(active, u)
		}
	}

	var chats []model.Chat

	supportID := ""
	for _, u := range active {
		if u.IsAdmin() && u.ID.String() != selfID {
			supportID = u.ID.String()
			chats = append(chats, model.Chat{
				ID:           supportPrefix + supportID,
				Type:         model.ChatTypeDirect,
				Name:         "Support: " + displayName(u),
				Participants: []model.Participant{self, participantOf(u)},
				CreatedAt:    now,
				UpdatedAt:    now,
			})
			break
		}
	}

	if len(active) >= minGeneralUsers {
		participants := make([]model.Participant, 0, len(active)+1)
		selfIncluded := false
		for _, u := range active {
			if u.ID.String() == selfID {
				selfIncluded = true
			}
			participants = append(participants, participantOf(u))
		}
		if !selfIncluded {
			participants = append([]model.Participant{self}, participants...)
		}
		chats = append(chats, model.Chat{
			ID:           GeneralChatID,
			Type:         model.ChatTypeGroup,
			Name:         "General",
			Participants: participants,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}

	directs := 0
	for _, u := range active {
		if directs >= maxDirectChats {
			break
		}
		id := u.ID.String()
		if id == selfID || id == supportID || !u.IsPrivileged() {
			continue
		}
		chats = append(chats, model.Chat{
			ID:           directPrefix + id,
			Type:         model.ChatTypeDirect,
			Name:         displayName(u),
			Participants: []model.Participant{self, participantOf(u)},
			CreatedAt:    now,
			UpdatedAt:    now,
		})
		directs++
	}

	return chats
}

func selfParticipant(users []model.User, selfID string) model.Participant {
	for _, u := range users {
		if u.ID.String() == selfID {
			return participantOf(u)
		}
	}
	return model.Participant{ID: selfID, Name: "You"}
}

func participantOf(u model.User) model.Participant {
	return model.Participant{
		ID:   u.ID.String(),
		Name: displayName(u),
		Role: u.Role,
	}
}

func displayName(u model.User) string {
	if u.Name != "" {
		return u.Name
	}
	if u.Email != "" {
		return u.Email
	}
	return u.ID.String()
}
