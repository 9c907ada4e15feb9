package batch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// timerWriteTimeout は遅延書き込み1件あたりのタイムアウト。
const timerWriteTimeout = 10 * time.Second

// WriteFunc は保留中の編集を永続化する関数。
type WriteFunc func(ctx context.Context, userID, batchID string, edit BatchEdit) error

// Coalescer はバッチごとの編集をまとめて遅延書き込みする。
//
// 1バッチにつき保留中の編集は1件で、後から来た編集のnilでないフィールドが優先される。
// 保留中の編集は最後の編集からdelay経過後、Flush、またはCloseのいずれかで書き込まれ、
// 書き込みに失敗した編集は破棄される。
type Coalescer struct {
	delay time.Duration
	write WriteFunc

	// writeMu は保留の取り出しと書き込みを直列化し、取り出した順に書き込ませる
	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]*pendingEdit
	closed  bool
}

type pendingEdit struct {
	userID string
	edit   BatchEdit
	timer  *time.Timer
}

// ErrCoalescerClosed はClose後に編集が追加された場合のエラー。
var ErrCoalescerClosed = errors.New("coalescer is closed")

// NewCoalescer はCoalescerを生成する。
func NewCoalescer(delay time.Duration, write WriteFunc) *Coalescer {
	return &Coalescer{
		delay:   delay,
		write:   write,
		pending: make(map[string]*pendingEdit),
	}
}

// Add は編集を保留に加え、マージ後の保留内容を返す。
// 同じバッチのタイマーは編集のたびにリセットされる。
func (c *Coalescer) Add(userID, batchID string, edit BatchEdit) (BatchEdit, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return BatchEdit{}, ErrCoalescerClosed
	}

	p, ok := c.pending[batchID]
	if ok {
		p.edit = p.edit.Merge(edit)
		p.timer.Reset(c.delay)
		return p.edit, nil
	}

	p = &pendingEdit{userID: userID, edit: edit}
	p.timer = time.AfterFunc(c.delay, func() { c.flushOne(batchID, p) })
	c.pending[batchID] = p
	return p.edit, nil
}

// Pending は保留中の編集を返す。
func (c *Coalescer) Pending(batchID string) (BatchEdit, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.pending[batchID]
	if !ok {
		return BatchEdit{}, false
	}
	return p.edit, true
}

// Discard は保留中の編集を書き込まずに破棄する。
func (c *Coalescer) Discard(batchID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.pending[batchID]; ok {
		p.timer.Stop()
		delete(c.pending, batchID)
	}
}

// Flush はユーザーの保留中の編集を全て書き込む。
// 失敗した編集も破棄され、最初のエラーが返る。
func (c *Coalescer) Flush(ctx context.Context, userID string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return c.writeAll(ctx, c.take(func(p *pendingEdit) bool { return p.userID == userID }))
}

// Close は全ての保留中の編集を書き込み、以降の編集を受け付けなくする。
func (c *Coalescer) Close(ctx context.Context) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	return c.writeAll(ctx, c.take(func(*pendingEdit) bool { return true }))
}

type takenEdit struct {
	batchID string
	*pendingEdit
}

// take は条件に一致する保留を取り出し、タイマーを停止する。
func (c *Coalescer) take(match func(*pendingEdit) bool) []takenEdit {
	c.mu.Lock()
	defer c.mu.Unlock()

	var taken []takenEdit
	for id, p := range c.pending {
		if !match(p) {
			continue
		}
		p.timer.Stop()
		delete(c.pending, id)
		taken = append(taken, takenEdit{batchID: id, pendingEdit: p})
	}
	return taken
}

func (c *Coalescer) writeAll(ctx context.Context, edits []takenEdit) error {
	var first error
	for _, e := range edits {
		if err := c.write(ctx, e.userID, e.batchID, e.edit); err != nil {
			slog.Error("failed to write batch edit",
				slog.String("user_id", e.userID),
				slog.String("batch_id", e.batchID),
				slog.String("error", err.Error()),
			)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// flushOne はタイマー満了時に呼ばれる。
// 既に取り出された、または別の保留に置き換わっている場合は何もしない。
func (c *Coalescer) flushOne(batchID string, p *pendingEdit) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	current, ok := c.pending[batchID]
	if !ok || current != p {
		c.mu.Unlock()
		return
	}
	delete(c.pending, batchID)
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), timerWriteTimeout)
	defer cancel()
	_ = c.writeAll(ctx, []takenEdit{{batchID: batchID, pendingEdit: p}})
}
