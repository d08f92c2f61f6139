package chat

import "github.com/hitoshi/pressdesk/internal/model"

// 自動返信の定型文。返信者のロールで使い分ける。
var (
	adminReplies = []string{
		"Thanks for the heads-up. I'll take a look shortly.",
		"Got it. I've noted this for the next review.",
		"Please open a ticket if this blocks publishing.",
		"Understood. Let me check the permissions on my side.",
		"I'll get back to you once I've checked the logs.",
	}

	memberReplies = []string{
		"Sounds good to me!",
		"Sure, I'll have a draft ready soon.",
		"Thanks! I'll update the post.",
		"Could you share the link?",
		"On it.",
		"Let me ask the editor and come back to you.",
	}
)

// seedGreeting は初回表示時に投入する挨拶文を返す。
func seedGreeting(chatType model.ChatType, senderRole string) string {
	switch {
	case chatType == model.ChatTypeGroup:
		return "Welcome to the general channel. Share updates with the whole team here."
	case senderRole == model.RoleAdmin:
		return "Hi! This is the support line. Ask me anything about publishing or permissions."
	default:
		return "Hey! Ping me here if you need a hand with your drafts."
	}
}
