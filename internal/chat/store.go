package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/pressdesk/internal/apiclient"
	"github.com/hitoshi/pressdesk/internal/model"
	"github.com/hitoshi/pressdesk/internal/scheduler"
)

var (
	// ErrChatNotFound は指定IDのチャットが存在しないことを表す。
	ErrChatNotFound       = errors.New("chat not found")
	// ErrEmptyMessage は空のメッセージ送信を表す。
	ErrEmptyMessage       = errors.New("message content is empty")
	// ErrInvalidMessageType は送信できないメッセージ種別を表す。
	// system は初回表示時の挨拶専用のため送信できない。
	ErrInvalidMessageType = errors.New("invalid message type")
)

// sendableTypes は SendMessage で送信できるメッセージ種別。
var sendableTypes = map[model.MessageType]bool{
	model.MessageTypeText:  true,
	model.MessageTypeImage: true,
	model.MessageTypeFile:  true,
}

// UserSource はユーザー名簿の取得元。
type UserSource interface {
	Get(ctx context.Context, endpoint string, query url.Values, out any) error
}

// Recorder はチャットのシミュレーション状況を計測する。
type Recorder interface {
	RecordAutoReply()
	SetOnlineUsers(n int)
}

// Timer は停止可能な遅延実行。
type Timer interface {
	Stop() bool
}

// AfterFunc はdの経過後にfを実行するタイマーを生成する。
type AfterFunc func(d time.Duration, f func()) Timer

// Settings はシミュレーションの確率と遅延の設定。
type Settings struct {
	PresenceInterval    time.Duration
	PresenceProbability float64
	ReplyDelayMin       time.Duration
	ReplyDelayMax       time.Duration
}

// DefaultSettings は既定値（30秒ごと・オンライン確率0.6・返信遅延2〜5秒）。
func DefaultSettings() Settings {
	return Settings{
		PresenceInterval:    30 * time.Second,
		PresenceProbability: 0.6,
		ReplyDelayMin:       2 * time.Second,
		ReplyDelayMax:       5 * time.Second,
	}
}

// Store はチャットのシミュレーション状態を保持する。
type Store struct {
	api      UserSource
	logger   *slog.Logger
	metrics  Recorder
	settings Settings
	selfID   string

	now       func() time.Time
	afterFunc AfterFunc

	// lifeMu はプレゼンスタイマーの開始・停止を直列化する。
	lifeMu sync.Mutex

	mu           sync.Mutex
	rng          *rand.Rand
	users        []model.User
	chats        []model.Chat
	messages     map[string][]model.Message
	seeded       map[string]bool
	activeChatID string
	online       map[string]bool
	presence     *scheduler.Handle
	replies      map[uuid.UUID]Timer
	closed       bool
}

// Option はStoreの任意設定。
type Option func(*Store)

// WithRand は乱数源を差し替える。
func WithRand(r *rand.Rand) Option {
	return func(s *Store) {
		s.rng = r
	}
}

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithAfterFunc は自動返信のタイマー生成関数を差し替える。
func WithAfterFunc(f AfterFunc) Option {
	return func(s *Store) {
		s.afterFunc = f
	}
}

// WithRecorder は計測先を設定する。
func WithRecorder(r Recorder) Option {
	return func(s *Store) {
		s.metrics = r
	}
}

// NewStore はStoreの新しいインスタンスを生成する。
func NewStore(api UserSource, selfID string, settings Settings, logger *slog.Logger, opts ...Option) *Store {
	s := &Store{
		api:      api,
		logger:   logger,
		settings: settings,
		selfID:   selfID,
		now:      time.Now,
		afterFunc: func(d time.Duration, f func()) Timer {
			return time.AfterFunc(d, f)
		},
		rng:      rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
		messages: make(map[string][]model.Message),
		seeded:   make(map[string]bool),
		online:   make(map[string]bool),
		replies:  make(map[uuid.UUID]Timer),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SelfID は自分のユーザーIDを返す。
func (s *Store) SelfID() string {
	return s.selfID
}

// LoadUsers は GET /users から名簿を取得し、チャット一覧を導出し直す。
// 既存のチャットと同じIDのものは最終メッセージと未読数を引き継ぐ。
func (s *Store) LoadUsers(ctx context.Context) error {
	var raw json.RawMessage
	if err := s.api.Get(ctx, "/users", nil, &raw); err != nil {
		s.logger.Warn("ユーザー名簿の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return err
	}
	page, err := apiclient.DecodeList[model.User](raw, "users")
	if err != nil {
		return fmt.Errorf("ユーザー名簿のパースに失敗しました: %w", err)
	}
	for i := range page.Items {
		page.Items[i].Normalize()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	derived := DeriveChats(page.Items, s.selfID, s.now())
	for i := range derived {
		if prev, ok := s.findChatLocked(derived[i].ID); ok {
			derived[i].LastMessage = prev.LastMessage
			derived[i].UnreadCount = prev.UnreadCount
			derived[i].CreatedAt = prev.CreatedAt
			derived[i].UpdatedAt = prev.UpdatedAt
		}
	}
	s.users = page.Items
	s.chats = derived

	s.logger.Info("チャット一覧を導出しました",
		slog.Int("user_count", len(page.Items)),
		slog.Int("chat_count", len(derived)),
	)
	return nil
}

// Chats はチャット一覧のコピーを返す。
func (s *Store) Chats() []model.Chat {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Chat, len(s.chats))
	for i, c := range s.chats {
		out[i] = copyChat(c)
	}
	return out
}

// ActiveChatID は表示中のチャットIDを返す。
func (s *Store) ActiveChatID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeChatID
}

// Messages はチャットのメッセージを返す。初回参照時に挨拶メッセージを投入する。
func (s *Store) Messages(chatID string) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.chatIndexLocked(chatID)
	if !ok {
		return nil, ErrChatNotFound
	}
	s.seedLocked(idx)
	return copyMessages(s.messages[chatID]), nil
}

// SetActiveChat はチャットを表示中にし、既読にする。
func (s *Store) SetActiveChat(chatID string) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.chatIndexLocked(chatID)
	if !ok {
		return nil, ErrChatNotFound
	}
	s.activeChatID = chatID
	s.seedLocked(idx)
	s.markReadLocked(idx)
	return copyMessages(s.messages[chatID]), nil
}

// MarkAsRead はチャットの未読数を0にする。他のチャットの未読数は変更しない。
func (s *Store) MarkAsRead(chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.chatIndexLocked(chatID)
	if !ok {
		return ErrChatNotFound
	}
	s.markReadLocked(idx)
	return nil
}

// SendMessage は自分のメッセージを同期的に追加し、自動返信を予約する。
// 返信は [ReplyDelayMin, ReplyDelayMax) の一様乱数の遅延後に、
// 自分以外の参加者から一様に選ばれた1人が送信する。
// 種別が空の場合は text とし、text・image・file 以外は ErrInvalidMessageType を返す。
func (s *Store) SendMessage(chatID, content string, msgType model.MessageType) (model.Message, error) {
	if strings.TrimSpace(content) == "" {
		return model.Message{}, ErrEmptyMessage
	}
	if msgType == "" {
		msgType = model.MessageTypeText
	}
	if !sendableTypes[msgType] {
		return model.Message{}, fmt.Errorf("%w: %q", ErrInvalidMessageType, msgType)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.chatIndexLocked(chatID)
	if !ok {
		return model.Message{}, ErrChatNotFound
	}
	s.seedLocked(idx)

	msg := model.Message{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		SenderID:  s.selfID,
		Content:   content,
		Type:      msgType,
		Timestamp: s.now(),
		ReadBy:    []string{s.selfID},
	}
	s.appendLocked(idx, msg)

	if !s.closed {
		s.scheduleReplyLocked(idx)
	}
	return copyMessage(msg), nil
}

// scheduleReplyLocked は自動返信を予約する。自分以外の参加者がいなければ何もしない。
func (s *Store) scheduleReplyLocked(idx int) {
	chat := s.chats[idx]
	var others []model.Participant
	for _, p := range chat.Participants {
		if p.ID != s.selfID {
			others = append(others, p)
		}
	}
	if len(others) == 0 {
		return
	}

	replier := others[s.rng.IntN(len(others))]
	pool := memberReplies
	if replier.Role == model.RoleAdmin {
		pool = adminReplies
	}
	text := pool[s.rng.IntN(len(pool))]
	delay := s.replyDelayLocked()

	timerID := uuid.New()
	chatID := chat.ID
	s.replies[timerID] = s.afterFunc(delay, func() {
		s.deliverReply(timerID, chatID, replier.ID, text)
	})

	s.logger.Debug("自動返信を予約しました",
		slog.String("chat_id", chatID),
		slog.String("replier_id", replier.ID),
		slog.Duration("delay", delay),
	)
}

func (s *Store) replyDelayLocked() time.Duration {
	lo, hi := s.settings.ReplyDelayMin, s.settings.ReplyDelayMax
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(s.rng.Int64N(int64(hi-lo)))
}

// deliverReply は予約された自動返信を追加し、チャットの未読数を1増やす。
func (s *Store) deliverReply(timerID uuid.UUID, chatID, senderID, content string) {
	s.mu.Lock()
	delete(s.replies, timerID)
	if s.closed {
		s.mu.Unlock()
		return
	}
	idx, ok := s.chatIndexLocked(chatID)
	if !ok {
		// 名簿の再読み込みでチャットが消えた場合は破棄する
		s.mu.Unlock()
		return
	}
	s.appendLocked(idx, model.Message{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		SenderID:  senderID,
		Content:   content,
		Type:      model.MessageTypeText,
		Timestamp: s.now(),
		ReadBy:    []string{senderID},
	})
	s.chats[idx].UnreadCount++
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordAutoReply()
	}
}

// StartRealTimeUpdates はオンライン状態のシミュレーションを開始する。
// 既に動作中のタイマーがあれば停止してから新しいタイマーを開始するため、
// 同時に動作するタイマーは常に1つ。
func (s *Store) StartRealTimeUpdates(ctx context.Context) *scheduler.Handle {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	s.mu.Lock()
	prev := s.presence
	s.presence = nil
	s.mu.Unlock()
	prev.Stop()

	h := scheduler.Every(ctx, s.logger, "chat-presence", s.settings.PresenceInterval, s.tickPresence)

	s.mu.Lock()
	s.presence = h
	s.mu.Unlock()
	return h
}

// StopRealTimeUpdates は指定ハンドルのタイマーを停止する。
// 現在のタイマーであれば保持しているハンドルも解除する。
func (s *Store) StopRealTimeUpdates(h *scheduler.Handle) {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	s.mu.Lock()
	if s.presence == h {
		s.presence = nil
	}
	s.mu.Unlock()
	h.Stop()
}

// tickPresence はアクティブユーザーごとに独立にオンライン状態を抽選する。
// 自分は常にオンラインとして扱う。
func (s *Store) tickPresence(ctx context.Context) {
	s.mu.Lock()
	online := make(map[string]bool)
	if s.selfID != "" {
		online[s.selfID] = true
	}
	for _, u := range s.users {
		id := u.ID.String()
		if !u.IsActive() || id == s.selfID {
			continue
		}
		if s.rng.Float64() < s.settings.PresenceProbability {
			online[id] = true
		}
	}
	s.online = online
	n := len(online)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SetOnlineUsers(n)
	}
}

// OnlineUsers はオンラインのユーザーIDを名簿順で返す。
func (s *Store) OnlineUsers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	if s.online[s.selfID] && !s.inRosterLocked(s.selfID) {
		ids = append(ids, s.selfID)
	}
	for _, u := range s.users {
		if s.online[u.ID.String()] {
			ids = append(ids, u.ID.String())
		}
	}
	return ids
}

// IsOnline はユーザーがオンラインかどうかを返す。
func (s *Store) IsOnline(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online[userID]
}

// Close はプレゼンスタイマーと予約済みの自動返信を全て停止する。
func (s *Store) Close() {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	s.mu.Lock()
	s.closed = true
	prev := s.presence
	s.presence = nil
	for id, t := range s.replies {
		t.Stop()
		delete(s.replies, id)
	}
	s.mu.Unlock()
	prev.Stop()
}

// PendingReplies は未配信の自動返信の数を返す。
func (s *Store) PendingReplies() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.replies)
}

// seedLocked は初回参照時に相手からの挨拶メッセージを投入する。
// 挨拶は既読扱いとし、未読数は変更しない。
func (s *Store) seedLocked(idx int) {
	chat := &s.chats[idx]
	if s.seeded[chat.ID] {
		return
	}
	s.seeded[chat.ID] = true

	var sender model.Participant
	for _, p := range chat.Participants {
		if p.ID != s.selfID {
			sender = p
			break
		}
	}
	if sender.ID == "" {
		return
	}

	msgType := model.MessageTypeText
	if chat.Type == model.ChatTypeGroup {
		msgType = model.MessageTypeSystem
	}
	seed := model.Message{
		ID:        uuid.NewString(),
		ChatID:    chat.ID,
		SenderID:  sender.ID,
		Content:   seedGreeting(chat.Type, sender.Role),
		Type:      msgType,
		Timestamp: chat.CreatedAt,
		ReadBy:    []string{sender.ID, s.selfID},
	}
	s.messages[chat.ID] = append([]model.Message{seed}, s.messages[chat.ID]...)
	if chat.LastMessage == nil {
		last := seed
		chat.LastMessage = &last
	}
}

func (s *Store) appendLocked(idx int, msg model.Message) {
	chat := &s.chats[idx]
	s.messages[chat.ID] = append(s.messages[chat.ID], msg)
	last := copyMessage(msg)
	chat.LastMessage = &last
	chat.UpdatedAt = msg.Timestamp
}

func (s *Store) markReadLocked(idx int) {
	chat := &s.chats[idx]
	chat.UnreadCount = 0
	msgs := s.messages[chat.ID]
	for i := range msgs {
		msgs[i].MarkReadBy(s.selfID)
	}
	if chat.LastMessage != nil {
		chat.LastMessage.MarkReadBy(s.selfID)
	}
}

func (s *Store) chatIndexLocked(chatID string) (int, bool) {
	for i := range s.chats {
		if s.chats[i].ID == chatID {
			return i, true
		}
	}
	return -1, false
}

func (s *Store) findChatLocked(chatID string) (model.Chat, bool) {
	if idx, ok := s.chatIndexLocked(chatID); ok {
		return s.chats[idx], true
	}
	return model.Chat{}, false
}

func (s *Store) inRosterLocked(userID string) bool {
	for _, u := range s.users {
		if u.ID.String() == userID {
			return true
		}
	}
	return false
}

func copyMessage(m model.Message) model.Message {
	m.ReadBy = append([]string(nil), m.ReadBy...)
	return m
}

func copyMessages(msgs []model.Message) []model.Message {
	out := make([]model.Message, len(msgs))
	for i, m := range msgs {
		out[i] = copyMessage(m)
	}
	return out
}

func copyChat(c model.Chat) model.Chat {
	c.Participants = append([]model.Participant(nil), c.Participants...)
	if c.LastMessage != nil {
		last := copyMessage(*c.LastMessage)
		c.LastMessage = &last
	}
	return c
}
