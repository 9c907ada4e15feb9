// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// User はダッシュボードを利用するアカウントを表す。
// Emailは小文字に正規化して保存する。
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DisplayName は表示名を返す。Nameが未設定の場合はメールアドレスのローカル部を使う。
func (u *User) DisplayName() string {
	if name := strings.TrimSpace(u.Name); name != "" {
		return name
	}
	local, _, _ := strings.Cut(u.Email, "@")
	return local
}

// Session はダッシュボードのログインセッションを表す。
// IDはCookieに載せる不透明トークンそのもの。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// NewSession はnowからttlの間有効なセッションを生成する。
func NewSession(id, userID string, now time.Time, ttl time.Duration) *Session {
	return &Session{
		ID:        id,
		UserID:    userID,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
}

// ExpiredAt はtの時点でセッションが失効しているかを返す。
func (s *Session) ExpiredAt(t time.Time) bool {
	return !t.Before(s.ExpiresAt)
}
