package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/pressdesk/internal/model"
)

// ChatServiceInterface はチャットハンドラーが必要とするインターフェース。
// chat.Store が満たす。
type ChatServiceInterface interface {
	SelfID() string
	LoadUsers(ctx context.Context) error
	Chats() []model.Chat
	ActiveChatID() string
	Messages(chatID string) ([]model.Message, error)
	SetActiveChat(chatID string) ([]model.Message, error)
	MarkAsRead(chatID string) error
	SendMessage(chatID, content string, msgType model.MessageType) (model.Message, error)
	OnlineUsers() []string
}

// ChatHandler はチャットのHTTPハンドラー。
type ChatHandler struct {
	service ChatServiceInterface
	logger  *slog.Logger
}

// NewChatHandler はChatHandlerを生成する。
func NewChatHandler(service ChatServiceInterface, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{service: service, logger: logger}
}

type chatListResponse struct {
	SelfID       string       `json:"selfId"`
	ActiveChatID string       `json:"activeChatId,omitempty"`
	Chats        []model.Chat `json:"chats"`
}

type messagesResponse struct {
	ChatID   string          `json:"chatId"`
	Messages []model.Message `json:"messages"`
}

type sendMessageRequest struct {
	Content string            `json:"content"`
	Type    model.MessageType `json:"type"`
}

type presenceResponse struct {
	Online []string `json:"online"`
	Count  int      `json:"count"`
}

// ListChats はチャット一覧を返す。
// GET /api/chats
func (h *ChatHandler) ListChats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.chatList())
}

// ReloadUsers はユーザー名簿を再取得してチャット一覧を作り直す。
// POST /api/chats/reload
func (h *ChatHandler) ReloadUsers(w http.ResponseWriter, r *http.Request) {
	if err := h.service.LoadUsers(r.Context()); err != nil {
		handleServiceError(w, h.logger, errorTarget{label: "ユーザー一覧"}, err)
		return
	}
	writeJSON(w, http.StatusOK, h.chatList())
}

// Messages はチャットのメッセージを返す。
// GET /api/chats/{id}/messages
func (h *ChatHandler) Messages(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "id")
	msgs, err := h.service.Messages(chatID)
	h.respondMessages(w, chatID, msgs, err)
}

// Open はチャットを表示中にして既読にし、メッセージを返す。
// POST /api/chats/{id}/open
func (h *ChatHandler) Open(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "id")
	msgs, err := h.service.SetActiveChat(chatID)
	h.respondMessages(w, chatID, msgs, err)
}

// SendMessage はメッセージを送信する。
// POST /api/chats/{id}/messages
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "id")

	var req sendMessageRequest
	if !decodeBody(w, r, &req, false) {
		return
	}

	msg, err := h.service.SendMessage(chatID, req.Content, req.Type)
	if err != nil {
		handleServiceError(w, h.logger, errorTarget{label: "チャット", id: chatID}, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// MarkAsRead はチャットを既読にする。
// POST /api/chats/{id}/read
func (h *ChatHandler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "id")
	if err := h.service.MarkAsRead(chatID); err != nil {
		handleServiceError(w, h.logger, errorTarget{label: "チャット", id: chatID}, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Presence はオンラインのユーザーIDを返す。
// GET /api/chats/presence
func (h *ChatHandler) Presence(w http.ResponseWriter, r *http.Request) {
	online := h.service.OnlineUsers()
	if online == nil {
		online = []string{}
	}
	writeJSON(w, http.StatusOK, presenceResponse{Online: online, Count: len(online)})
}

func (h *ChatHandler) chatList() chatListResponse {
	chats := h.service.Chats()
	if chats == nil {
		chats = []model.Chat{}
	}
	return chatListResponse{
		SelfID:       h.service.SelfID(),
		ActiveChatID: h.service.ActiveChatID(),
		Chats:        chats,
	}
}

func (h *ChatHandler) respondMessages(w http.ResponseWriter, chatID string, msgs []model.Message, err error) {
	if err != nil {
		handleServiceError(w, h.logger, errorTarget{label: "チャット", id: chatID}, err)
		return
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	writeJSON(w, http.StatusOK, messagesResponse{ChatID: chatID, Messages: msgs})
}
