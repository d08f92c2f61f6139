// Package scheduler は定期実行タイマーを所有可能なハンドルとして提供する。
// 起動元がハンドルを保持し、停止時にそのハンドルを渡すことで
// モジュールレベルの可変状態を持たずにタイマーのライフサイクルを管理する。
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Handle は実行中の定期タスクへの参照。
type Handle struct {
	ID       uuid.UUID
	Name     string
	Interval time.Duration

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Every は起動直後に1回fnを実行し、その後intervalごとにfnを実行する。
// intervalが0以下の場合は初回の実行のみ行い、Stopまで待機する。
// ctxがキャンセルされるかStopが呼ばれると終了する。
func Every(ctx context.Context, logger *slog.Logger, name string, interval time.Duration, fn func(ctx context.Context)) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		ID:       uuid.New(),
		Name:     name,
		Interval: interval,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go func() {
		defer close(h.done)

		logger.Info("定期タスクを開始しました",
			slog.String("task", name),
			slog.String("handle_id", h.ID.String()),
			slog.Duration("interval", interval),
		)

		// 起動直後に1回実行
		fn(ctx)

		var tick <-chan time.Time
		if interval > 0 {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			tick = ticker.C
		}

		for {
			select {
			case <-ctx.Done():
				logger.Info("定期タスクを停止しました",
					slog.String("task", name),
					slog.String("handle_id", h.ID.String()),
				)
				return
			case <-tick:
				fn(ctx)
			}
		}
	}()

	return h
}

// Stop はタスクを停止し、実行中のfnの終了を待つ。
// nilハンドルや停止済みハンドルに対して呼んでも安全。
func (h *Handle) Stop() {
	if h == nil {
		return
	}
	h.once.Do(h.cancel)
	<-h.done
}

// Done はタスクの終了時にクローズされるチャネルを返す。
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Stopped はタスクが終了済みかどうかを返す。
func (h *Handle) Stopped() bool {
	if h == nil {
		return true
	}
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}
