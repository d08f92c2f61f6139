package scheduler

import (
	"bytes"
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// discard はゴルーチンから書き込まれるログ出力を捨てるライター。
type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(discard{}, nil))
}

func TestEvery_RunsImmediately(t *testing.T) {
	var calls atomic.Int32
	ran := make(chan struct{}, 1)

	h := Every(context.Background(), discardLogger(), "test", time.Hour, func(ctx context.Context) {
		calls.Add(1)
		select {
		case ran <- struct{}{}:
		default:
		}
	})
	defer h.Stop()

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("起動直後に1回実行されるべき")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestEvery_RunsOnTick(t *testing.T) {
	var calls atomic.Int32
	h := Every(context.Background(), discardLogger(), "tick", 10*time.Millisecond, func(ctx context.Context) {
		calls.Add(1)
	})

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	h.Stop()

	if calls.Load() < 3 {
		t.Errorf("ティックごとに実行されるべき: calls = %d", calls.Load())
	}
}

func TestHandle_StopIsIdempotent(t *testing.T) {
	h := Every(context.Background(), discardLogger(), "stop", time.Hour, func(ctx context.Context) {})

	h.Stop()
	h.Stop()

	if !h.Stopped() {
		t.Error("Stop後はStoppedがtrueを返すべき")
	}

	var nilHandle *Handle
	nilHandle.Stop()
	if !nilHandle.Stopped() {
		t.Error("nilハンドルは停止済みとして扱うべき")
	}
}

func TestEvery_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := Every(ctx, discardLogger(), "cancel", time.Hour, func(ctx context.Context) {})

	cancel()

	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("コンテキストのキャンセルで停止するべき")
	}
}

func TestEvery_LogsStartAndStop(t *testing.T) {
	var buf bytes.Buffer
	h := Every(context.Background(), newTestLogger(&buf), "logged", time.Hour, func(ctx context.Context) {})
	h.Stop()

	out := buf.String()
	if !bytes.Contains([]byte(out), []byte("定期タスクを開始しました")) {
		t.Errorf("開始ログが出力されていない: %s", out)
	}
	if !bytes.Contains([]byte(out), []byte(h.ID.String())) {
		t.Errorf("ハンドルIDがログに含まれていない: %s", out)
	}
}

func TestEvery_UniqueHandleIDs(t *testing.T) {
	a := Every(context.Background(), discardLogger(), "a", time.Hour, func(ctx context.Context) {})
	b := Every(context.Background(), discardLogger(), "b", time.Hour, func(ctx context.Context) {})
	defer a.Stop()
	defer b.Stop()

	if a.ID == b.ID {
		t.Error("ハンドルIDは一意であるべき")
	}
}
