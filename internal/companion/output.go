package companion

import (
	"io"
	"sync"
)

// lockedWriter は複数のゴルーチンからの書き込みを直列化するio.Writer。
// watch中はメッセージ表示とコマンド入力の応答が同じ出力先を共有する。
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

// newLockedWriter はwをlockedWriterで包む。既に包まれている場合はそのまま返す。
func newLockedWriter(w io.Writer) *lockedWriter {
	if lw, ok := w.(*lockedWriter); ok {
		return lw
	}
	return &lockedWriter{w: w}
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
