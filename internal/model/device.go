package model

import "time"

// Device はリンクの配信先として登録された端末を表す。
// VerificationCodeはコンパニオンクライアントの接続に使う6桁の数字。
type Device struct {
	ID               string
	UserID           string
	Name             string
	VerificationCode string
	CreatedAt        time.Time
}

// DeviceSession はコンパニオンクライアントが保持する端末セッションを表す。
// 有効期限を過ぎたセッションは無効として扱う。
type DeviceSession struct {
	ID        string
	DeviceID  string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Message は端末に配信されたメッセージを表す。
type Message struct {
	ID        string
	DeviceID  string
	Content   string
	CreatedAt time.Time
}
