package companion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// ErrSessionRevoked は端末が削除されたか、セッションが無効になったため監視を終了したことを表す。
var ErrSessionRevoked = errors.New("端末セッションが取り消されました")

// DefaultPollInterval はメッセージ一覧を再取得する間隔のデフォルト値。
const DefaultPollInterval = 3 * time.Second

// Watcher は端末宛てのメッセージを監視し、新しいメッセージを出力する。
// 端末削除イベントか401を受けた場合は保存済みセッションを削除して終了する。
type Watcher struct {
	client   *Client
	store    *SessionStore
	out      io.Writer
	logger   *slog.Logger
	interval time.Duration

	mu     sync.Mutex
	seen   map[string]struct{}
	poller *Poller

	revoked   chan struct{}
	revokeOne sync.Once
}

// NewWatcher はWatcherを生成する。clientには端末セッションのトークンを設定しておくこと。
func NewWatcher(client *Client, store *SessionStore, out io.Writer, interval time.Duration, logger *slog.Logger) *Watcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		client:   client,
		store:    store,
		out:      newLockedWriter(out),
		logger:   logger,
		interval: interval,
		seen:     make(map[string]struct{}),
		revoked:  make(chan struct{}),
	}
}

// Run はctxが終了するかセッションが取り消されるまで監視を続ける。
// 終了時はタイマーとイベント購読を必ず停止する。
// セッションが取り消された場合はErrSessionRevokedを返す。
func (w *Watcher) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	poller := NewPoller(w.interval, w.fetch, w.handleError)
	w.mu.Lock()
	w.poller = poller
	w.mu.Unlock()

	poller.Start(ctx)
	defer poller.Stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.listen(ctx)
	}()
	defer wg.Wait()
	defer cancel()

	select {
	case <-ctx.Done():
		return nil
	case <-w.revoked:
	}

	w.logger.Warn("device session revoked; clearing local session")
	if err := w.store.Clear(); err != nil {
		w.logger.Error("failed to clear session", slog.String("error", err.Error()))
	}
	return ErrSessionRevoked
}

// DeleteMessage はポーリングを止めてからメッセージを削除し、成否に関わらず再開する。
func (w *Watcher) DeleteMessage(ctx context.Context, id string) error {
	resume := w.pause()
	defer resume()

	if err := w.client.DeleteMessage(ctx, id); err != nil {
		w.checkRevoked(err)
		return fmt.Errorf("failed to delete message %s: %w", id, err)
	}

	w.mu.Lock()
	delete(w.seen, id)
	w.mu.Unlock()
	return nil
}

// DeleteAll はポーリングを止めてから全メッセージを削除し、成否に関わらず再開する。
func (w *Watcher) DeleteAll(ctx context.Context) (int64, error) {
	resume := w.pause()
	defer resume()

	n, err := w.client.DeleteAll(ctx)
	if err != nil {
		w.checkRevoked(err)
		return 0, fmt.Errorf("failed to delete messages: %w", err)
	}

	w.mu.Lock()
	w.seen = make(map[string]struct{})
	w.mu.Unlock()
	return n, nil
}

func (w *Watcher) pause() func() {
	w.mu.Lock()
	p := w.poller
	w.mu.Unlock()
	if p == nil {
		return func() {}
	}
	p.Pause()
	return p.Resume
}

func (w *Watcher) fetch(ctx context.Context) (func(), error) {
	msgs, err := w.client.ListMessages(ctx)
	if err != nil {
		return nil, err
	}
	return func() { w.show(msgs) }, nil
}

// show は未表示のメッセージだけを出力し、表示済み集合を最新の一覧で置き換える。
func (w *Watcher) show(msgs []Message) {
	w.mu.Lock()
	defer w.mu.Unlock()

	current := make(map[string]struct{}, len(msgs))
	for _, m := range msgs {
		current[m.ID] = struct{}{}
		if _, ok := w.seen[m.ID]; ok {
			continue
		}
		fmt.Fprintf(w.out, "[%s] %s\n%s\n\n", m.ID, m.CreatedAt.Local().Format(time.DateTime), m.Content)
	}
	w.seen = current
}

func (w *Watcher) handleError(err error) {
	if w.checkRevoked(err) {
		return
	}
	w.logger.Error("failed to poll messages", slog.String("error", err.Error()))
}

func (w *Watcher) checkRevoked(err error) bool {
	if !errors.Is(err, ErrUnauthorized) {
		return false
	}
	w.revoke()
	return true
}

func (w *Watcher) revoke() {
	w.revokeOne.Do(func() { close(w.revoked) })
}

// listen はイベントストリームを購読する。切断された場合は再接続せずポーリングのみで続ける。
func (w *Watcher) listen(ctx context.Context) {
	err := w.client.StreamEvents(ctx, func(ev Event) bool {
		if ev.Type == EventDeviceRemoved {
			w.revoke()
			return false
		}
		return true
	})
	switch {
	case err == nil, ctx.Err() != nil:
	case w.checkRevoked(err):
	default:
		w.logger.Warn("event stream closed", slog.String("error", err.Error()))
	}
}
