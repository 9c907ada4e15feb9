package companion

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrNoSession は保存済みの端末セッションがないか、期限切れであることを表す。
var ErrNoSession = errors.New("保存済みの端末セッションがありません")

// StoredSession はローカルに保存する端末セッション。
type StoredSession struct {
	Token      string    `json:"token"`
	DeviceID   string    `json:"device_id"`
	DeviceName string    `json:"device_name"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// SessionStore は端末セッションをJSONファイルとして永続化する。
// ファイルは所有者のみ読み書きできる権限(0600)で作成する。
type SessionStore struct {
	path string
	now  func() time.Time
}

// NewSessionStore はSessionStoreを生成する。
func NewSessionStore(path string) *SessionStore {
	return &SessionStore{path: path, now: time.Now}
}

// Path は保存先のファイルパスを返す。
func (s *SessionStore) Path() string {
	return s.path
}

// Save はセッションを保存する。一時ファイルに書いてからリネームする。
func (s *SessionStore) Save(session *StoredSession) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace session: %w", err)
	}
	return nil
}

// Load は保存済みのセッションを読み込む。
// ファイルがない場合と期限切れの場合はErrNoSessionを返す。期限切れのファイルは削除する。
func (s *SessionStore) Load() (*StoredSession, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var session StoredSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	if session.Token == "" {
		return nil, ErrNoSession
	}

	if !s.now().Before(session.ExpiresAt) {
		if err := s.Clear(); err != nil {
			return nil, err
		}
		return nil, ErrNoSession
	}
	return &session, nil
}

// Clear は保存済みのセッションを削除する。ファイルがなくてもエラーにしない。
func (s *SessionStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	return nil
}
