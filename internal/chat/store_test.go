package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/pressdesk/internal/model"
)

// --- モック定義 ---

// mockUserSource はUserSourceのテスト用モック。
type mockUserSource struct {
	getFunc func(endpoint string) (string, error)
}

func (m *mockUserSource) Get(ctx context.Context, endpoint string, query url.Values, out any) error {
	raw, err := m.getFunc(endpoint)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(raw), out)
}

// fakeTimers は予約された関数を保持し、テストから任意のタイミングで実行する。
type fakeTimers struct {
	mu      sync.Mutex
	delays  []time.Duration
	pending []func()
	stopped int
}

type fakeTimer struct {
	owner *fakeTimers
}

func (t *fakeTimer) Stop() bool {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()
	t.owner.stopped++
	return true
}

func (f *fakeTimers) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delays = append(f.delays, d)
	f.pending = append(f.pending, fn)
	return &fakeTimer{owner: f}
}

func (f *fakeTimers) fireAll() {
	f.mu.Lock()
	fns := f.pending
	f.pending = nil
	f.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// mockRecorder はRecorderのテスト用モック。
type mockRecorder struct {
	mu      sync.Mutex
	replies int
	online  []int
}

func (r *mockRecorder) RecordAutoReply() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies++
}

func (r *mockRecorder) SetOnlineUsers(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.online = append(r.online, n)
}

const rosterJSON = `{"users":[
	{"_id":"a","name":"Aiko","role":"Admin","status":"active"},
	{"_id":"b","name":"Ben","role":"Author","status":"active"},
	{"_id":"c","name":"Chie","role":"Editor","status":"active"},
	{"_id":"d","name":"Dan","role":"Viewer","status":"inactive"}
],"total":4}`

func newTestLogger() *slog.Logger {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, nil))
}

func newTestStore(t *testing.T, settings Settings, opts ...Option) (*Store, *fakeTimers) {
	t.Helper()
	timers := &fakeTimers{}
	src := &mockUserSource{
		getFunc: func(endpoint string) (string, error) {
			if endpoint != "/users" {
				t.Errorf("endpoint = %q, want /users", endpoint)
			}
			return rosterJSON, nil
		},
	}
	base := []Option{
		WithAfterFunc(timers.AfterFunc),
		WithRand(rand.New(rand.NewPCG(1, 2))),
		WithClock(func() time.Time { return time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC) }),
	}
	s := NewStore(src, "c", settings, newTestLogger(), append(base, opts...)...)
	if err := s.LoadUsers(context.Background()); err != nil {
		t.Fatalf("LoadUsers がエラーを返した: %v", err)
	}
	t.Cleanup(s.Close)
	return s, timers
}

func unreadCounts(chats []model.Chat) map[string]int {
	out := make(map[string]int)
	for _, c := range chats {
		out[c.ID] = c.UnreadCount
	}
	return out
}

func TestLoadUsers_DerivesChats(t *testing.T) {
	s, _ := newTestStore(t, DefaultSettings())

	got := chatIDs(s.Chats())
	want := []string{"support-a", "general", "direct-b"}
	if !slices.Equal(got, want) {
		t.Errorf("chat ids = %v, want %v", got, want)
	}
}

func TestLoadUsers_FailureKeepsChats(t *testing.T) {
	s, _ := newTestStore(t, DefaultSettings())
	s.api = &mockUserSource{
		getFunc: func(endpoint string) (string, error) {
			return "", errors.New("network error")
		},
	}

	if err := s.LoadUsers(context.Background()); err == nil {
		t.Fatal("取得失敗時はエラーを返すべき")
	}
	if len(s.Chats()) != 3 {
		t.Errorf("取得失敗時に既存のチャットを消してはならない: %v", chatIDs(s.Chats()))
	}
}

func TestMessages_SeedsOnFirstView(t *testing.T) {
	s, _ := newTestStore(t, DefaultSettings())

	msgs, err := s.Messages("support-a")
	if err != nil {
		t.Fatalf("Messages がエラーを返した: %v", err)
	}
	if len(msgs) != 1 || msgs[0].SenderID != "a" {
		t.Fatalf("初回表示で挨拶が投入されるべき: %+v", msgs)
	}

	again, _ := s.Messages("support-a")
	if len(again) != 1 {
		t.Errorf("挨拶は1回だけ投入されるべき: %d件", len(again))
	}

	if _, err := s.Messages("missing"); !errors.Is(err, ErrChatNotFound) {
		t.Errorf("存在しないチャットは ErrChatNotFound を返すべき: %v", err)
	}
}

func TestMessages_OrderedByTimestamp(t *testing.T) {
	base := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	var ticks int
	clock := func() time.Time {
		ticks++
		return base.Add(time.Duration(ticks) * time.Second)
	}
	s, timers := newTestStore(t, DefaultSettings(), WithClock(clock))

	if _, err := s.Messages("direct-b"); err != nil {
		t.Fatalf("Messages がエラーを返した: %v", err)
	}
	for _, content := range []string{"first", "second"} {
		if _, err := s.SendMessage("direct-b", content, model.MessageTypeText); err != nil {
			t.Fatalf("SendMessage がエラーを返した: %v", err)
		}
	}
	timers.fireAll()
	if _, err := s.SendMessage("direct-b", "third", model.MessageTypeText); err != nil {
		t.Fatalf("SendMessage がエラーを返した: %v", err)
	}

	msgs, _ := s.Messages("direct-b")
	if len(msgs) != 6 {
		t.Fatalf("len(messages) = %d, want 6 (挨拶+送信3件+返信2件)", len(msgs))
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].Timestamp.Before(msgs[i-1].Timestamp) {
			t.Errorf("messages[%d] (%v) が messages[%d] (%v) より前の時刻", i, msgs[i].Timestamp, i-1, msgs[i-1].Timestamp)
		}
	}
	if msgs[len(msgs)-1].Content != "third" {
		t.Errorf("最後のメッセージ = %q, want third", msgs[len(msgs)-1].Content)
	}
}

func TestMessages_SeedPrecedesMessagesSentBeforeFirstView(t *testing.T) {
	base := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	var ticks int
	clock := func() time.Time {
		ticks++
		return base.Add(time.Duration(ticks) * time.Minute)
	}
	s, _ := newTestStore(t, DefaultSettings(), WithClock(clock))

	sent, err := s.SendMessage("support-a", "help", model.MessageTypeText)
	if err != nil {
		t.Fatalf("SendMessage がエラーを返した: %v", err)
	}

	msgs, _ := s.Messages("support-a")
	if len(msgs) != 2 || msgs[1].ID != sent.ID {
		t.Fatalf("挨拶の後に送信メッセージが並ぶべき: %+v", msgs)
	}
	if msgs[1].Timestamp.Before(msgs[0].Timestamp) {
		t.Errorf("挨拶 %v が送信 %v より後の時刻", msgs[0].Timestamp, msgs[1].Timestamp)
	}
}

func TestSendMessage_AppendsAndSchedulesReply(t *testing.T) {
	settings := DefaultSettings()
	s, timers := newTestStore(t, settings)

	msg, err := s.SendMessage("direct-b", "draft is ready", "")
	if err != nil {
		t.Fatalf("SendMessage がエラーを返した: %v", err)
	}
	if msg.SenderID != "c" || msg.Type != model.MessageTypeText || !slices.Equal(msg.ReadBy, []string{"c"}) {
		t.Errorf("送信メッセージが不正: %+v", msg)
	}

	var chat model.Chat
	for _, c := range s.Chats() {
		if c.ID == "direct-b" {
			chat = c
		}
	}
	if chat.LastMessage == nil || chat.LastMessage.ID != msg.ID {
		t.Errorf("lastMessage が更新されていない: %+v", chat.LastMessage)
	}
	if !chat.UpdatedAt.Equal(msg.Timestamp) {
		t.Errorf("updatedAt が更新されていない: %v", chat.UpdatedAt)
	}

	if len(timers.delays) != 1 {
		t.Fatalf("自動返信が1件予約されるべき: %d", len(timers.delays))
	}
	d := timers.delays[0]
	if d < settings.ReplyDelayMin || d >= settings.ReplyDelayMax {
		t.Errorf("返信遅延 %v が [%v, %v) の範囲外", d, settings.ReplyDelayMin, settings.ReplyDelayMax)
	}
}

func TestSendMessage_ReplyIncrementsUnread(t *testing.T) {
	recorder := &mockRecorder{}
	s, timers := newTestStore(t, DefaultSettings(), WithRecorder(recorder))

	if _, err := s.SendMessage("direct-b", "hello", model.MessageTypeText); err != nil {
		t.Fatalf("SendMessage がエラーを返した: %v", err)
	}
	timers.fireAll()

	msgs, _ := s.Messages("direct-b")
	reply := msgs[len(msgs)-1]
	if reply.SenderID != "b" {
		t.Errorf("返信者は自分以外の参加者であるべき: %q", reply.SenderID)
	}
	if !slices.Contains(memberReplies, reply.Content) {
		t.Errorf("管理者以外の返信は一般向けの定型文から選ばれるべき: %q", reply.Content)
	}
	if counts := unreadCounts(s.Chats()); counts["direct-b"] != 1 {
		t.Errorf("未読数 = %d, want 1", counts["direct-b"])
	}
	if recorder.replies != 1 {
		t.Errorf("自動返信が計測されるべき: %d", recorder.replies)
	}
	if s.PendingReplies() != 0 {
		t.Errorf("配信済みの返信は予約から外れるべき: %d", s.PendingReplies())
	}
}

func TestSendMessage_AdminRepliesFromAdminPool(t *testing.T) {
	s, timers := newTestStore(t, DefaultSettings())

	for i := 0; i < 5; i++ {
		if _, err := s.SendMessage("support-a", "help", model.MessageTypeText); err != nil {
			t.Fatalf("SendMessage がエラーを返した: %v", err)
		}
	}
	timers.fireAll()

	msgs, _ := s.Messages("support-a")
	for _, m := range msgs {
		if m.SenderID == "a" && m.Type == model.MessageTypeText && !slices.Contains(adminReplies, m.Content) && m.Content != seedGreeting(model.ChatTypeDirect, model.RoleAdmin) {
			t.Errorf("管理者の返信は管理者向けの定型文から選ばれるべき: %q", m.Content)
		}
	}
}

func TestSendMessage_GroupReplierIsOtherParticipant(t *testing.T) {
	s, timers := newTestStore(t, DefaultSettings())

	for i := 0; i < 10; i++ {
		if _, err := s.SendMessage(GeneralChatID, "hi all", model.MessageTypeText); err != nil {
			t.Fatalf("SendMessage がエラーを返した: %v", err)
		}
	}
	timers.fireAll()

	msgs, _ := s.Messages(GeneralChatID)
	replies := 0
	for _, m := range msgs[1:] {
		if m.SenderID == "c" {
			continue
		}
		replies++
		if m.SenderID != "a" && m.SenderID != "b" {
			t.Errorf("返信者は参加者から選ばれるべき: %q", m.SenderID)
		}
	}
	if replies != 10 {
		t.Errorf("返信数 = %d, want 10", replies)
	}
}

func TestSendMessage_Errors(t *testing.T) {
	s, _ := newTestStore(t, DefaultSettings())

	if _, err := s.SendMessage("direct-b", "   ", model.MessageTypeText); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("空メッセージは ErrEmptyMessage を返すべき: %v", err)
	}
	if _, err := s.SendMessage("nope", "hi", model.MessageTypeText); !errors.Is(err, ErrChatNotFound) {
		t.Errorf("存在しないチャットは ErrChatNotFound を返すべき: %v", err)
	}
}

func TestSendMessage_MessageTypes(t *testing.T) {
	tests := []struct {
		name     string
		msgType  model.MessageType
		wantType model.MessageType
		wantErr  bool
	}{
		{"未指定はtext", "", model.MessageTypeText, false},
		{"text", model.MessageTypeText, model.MessageTypeText, false},
		{"image", model.MessageTypeImage, model.MessageTypeImage, false},
		{"file", model.MessageTypeFile, model.MessageTypeFile, false},
		{"systemは送信不可", model.MessageTypeSystem, "", true},
		{"未定義の種別", "bogus", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, timers := newTestStore(t, DefaultSettings())

			msg, err := s.SendMessage("direct-b", "hi", tt.msgType)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidMessageType) {
					t.Fatalf("ErrInvalidMessageType が返されるべき: %v", err)
				}
				if msgs, _ := s.Messages("direct-b"); len(msgs) != 1 {
					t.Errorf("拒否したメッセージが追加された: %d件", len(msgs))
				}
				if len(timers.pending) != 0 {
					t.Error("拒否したメッセージに返信を予約してはならない")
				}
				return
			}
			if err != nil {
				t.Fatalf("SendMessage がエラーを返した: %v", err)
			}
			if msg.Type != tt.wantType {
				t.Errorf("type = %q, want %q", msg.Type, tt.wantType)
			}
		})
	}
}

func TestMarkAsRead_OnlyTargetChat(t *testing.T) {
	s, timers := newTestStore(t, DefaultSettings())

	for _, id := range []string{"support-a", "general", "direct-b"} {
		if _, err := s.SendMessage(id, "ping", model.MessageTypeText); err != nil {
			t.Fatalf("SendMessage がエラーを返した: %v", err)
		}
	}
	timers.fireAll()

	if err := s.MarkAsRead("general"); err != nil {
		t.Fatalf("MarkAsRead がエラーを返した: %v", err)
	}

	counts := unreadCounts(s.Chats())
	want := map[string]int{"support-a": 1, "general": 0, "direct-b": 1}
	for id, n := range want {
		if counts[id] != n {
			t.Errorf("unread[%s] = %d, want %d", id, counts[id], n)
		}
	}

	msgs, _ := s.Messages("general")
	for _, m := range msgs {
		if !slices.Contains(m.ReadBy, "c") {
			t.Errorf("既読にしたチャットのメッセージは自分が既読であるべき: %+v", m)
		}
	}
}

func TestSetActiveChat_MarksRead(t *testing.T) {
	s, timers := newTestStore(t, DefaultSettings())

	if _, err := s.SendMessage("direct-b", "ping", model.MessageTypeText); err != nil {
		t.Fatalf("SendMessage がエラーを返した: %v", err)
	}
	timers.fireAll()

	if _, err := s.SetActiveChat("direct-b"); err != nil {
		t.Fatalf("SetActiveChat がエラーを返した: %v", err)
	}
	if s.ActiveChatID() != "direct-b" {
		t.Errorf("ActiveChatID = %q", s.ActiveChatID())
	}
	if counts := unreadCounts(s.Chats()); counts["direct-b"] != 0 {
		t.Errorf("表示したチャットの未読数は0になるべき: %d", counts["direct-b"])
	}
}

func TestPresence_BernoulliExtremes(t *testing.T) {
	settings := DefaultSettings()
	settings.PresenceInterval = time.Hour

	settings.PresenceProbability = 1
	recorder := &mockRecorder{}
	s, _ := newTestStore(t, settings, WithRecorder(recorder))
	s.tickPresence(context.Background())

	if got := s.OnlineUsers(); !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Errorf("確率1では全アクティブユーザーがオンラインになるべき: %v", got)
	}
	if s.IsOnline("d") {
		t.Error("非アクティブユーザーはオンラインにならない")
	}
	if recorder.online[len(recorder.online)-1] != 3 {
		t.Errorf("オンライン数が計測されるべき: %v", recorder.online)
	}

	settings.PresenceProbability = 0
	s2, _ := newTestStore(t, settings)
	s2.tickPresence(context.Background())
	if got := s2.OnlineUsers(); !slices.Equal(got, []string{"c"}) {
		t.Errorf("確率0では自分だけがオンラインになるべき: %v", got)
	}
}

func TestStartRealTimeUpdates_ReplacesPreviousTimer(t *testing.T) {
	settings := DefaultSettings()
	settings.PresenceInterval = time.Hour
	s, _ := newTestStore(t, settings)

	first := s.StartRealTimeUpdates(context.Background())
	second := s.StartRealTimeUpdates(context.Background())

	if !first.Stopped() {
		t.Error("2回目の開始で以前のタイマーは停止されるべき")
	}
	if second.Stopped() {
		t.Error("新しいタイマーは動作中であるべき")
	}
	if first.ID == second.ID {
		t.Error("ハンドルは開始ごとに新しく発行されるべき")
	}

	s.StopRealTimeUpdates(second)
	if !second.Stopped() {
		t.Error("StopRealTimeUpdates でタイマーが停止されるべき")
	}
}

func TestClose_StopsPendingReplies(t *testing.T) {
	s, timers := newTestStore(t, DefaultSettings())

	if _, err := s.SendMessage("direct-b", "ping", model.MessageTypeText); err != nil {
		t.Fatalf("SendMessage がエラーを返した: %v", err)
	}
	s.Close()

	if timers.stopped != 1 {
		t.Errorf("予約済みの返信タイマーが停止されるべき: stopped = %d", timers.stopped)
	}
	// 停止後に発火しても追加されない
	timers.fireAll()
	msgs, _ := s.Messages("direct-b")
	if msgs[len(msgs)-1].SenderID != "c" {
		t.Error("Close後に自動返信を追加してはならない")
	}
}
