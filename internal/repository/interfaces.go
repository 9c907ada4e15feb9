// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/linkdist/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。メールアドレスが重複する場合はErrDuplicateを返す。
	Create(ctx context.Context, user *model.User) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するセッション、端末、倉庫、バッチはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// SessionRepository はダッシュボードセッションの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
	// DeleteExpired は期限切れのセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// DeviceRepository は端末データの永続化インターフェース。
type DeviceRepository interface {
	// ListByUserID はユーザーの端末一覧を作成日時の降順で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Device, error)

	// FindByUserAndID はユーザーが所有する端末を取得する。見つからない場合はnilを返す。
	FindByUserAndID(ctx context.Context, userID, id string) (*model.Device, error)

	// FindByID は指定IDの端末を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Device, error)

	// FindByVerificationCode は認証コードで端末を取得する。見つからない場合はnilを返す。
	FindByVerificationCode(ctx context.Context, code string) (*model.Device, error)

	// Create は端末を作成する。認証コードが重複する場合はErrDuplicateを返す。
	Create(ctx context.Context, device *model.Device) error

	// UpdateName は端末名を更新する。該当がない場合はErrNotFoundを返す。
	UpdateName(ctx context.Context, userID, id, name string) error

	// Delete は端末を削除する。メッセージと端末セッションはCASCADE削除される。
	// 該当がない場合はErrNotFoundを返す。
	Delete(ctx context.Context, userID, id string) error
}

// DeviceSessionRepository は端末セッションの永続化インターフェース。
type DeviceSessionRepository interface {
	// Create は端末セッションを作成する。
	Create(ctx context.Context, session *model.DeviceSession) error
	// FindByID は指定IDの端末セッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.DeviceSession, error)
	// DeleteByID は指定IDの端末セッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteExpired は期限切れの端末セッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// MessageRepository はメッセージの永続化インターフェース。
type MessageRepository interface {
	// Create はメッセージを作成する。
	Create(ctx context.Context, message *model.Message) error
	// ListByDeviceID は端末宛てのメッセージを作成日時の昇順で返す。
	ListByDeviceID(ctx context.Context, deviceID string) ([]*model.Message, error)
	// DeleteByID は端末宛ての指定メッセージを削除する。該当がない場合はErrNotFoundを返す。
	DeleteByID(ctx context.Context, deviceID, id string) error
	// DeleteByDeviceID は端末宛ての全メッセージを削除し、削除件数を返す。
	DeleteByDeviceID(ctx context.Context, deviceID string) (int64, error)
}

// LinkPoolRepository は倉庫（ユーザーごとのリンクプール）の永続化インターフェース。
type LinkPoolRepository interface {
	// Get は倉庫を取得する。行が存在しない場合は空の倉庫を返す。
	Get(ctx context.Context, userID string) (*model.LinkPool, error)
	// Lock は倉庫の行を確保したうえで行ロックを取得し、現在のリンクを返す。
	// トランザクション内でのみ意味を持つ。
	Lock(ctx context.Context, userID string) ([]string, error)
	// Save は倉庫のリンクを置き換える。
	Save(ctx context.Context, userID string, links []string) error
}

// ExclusionRepository は配信済みリンク（除外セット）の永続化インターフェース。
type ExclusionRepository interface {
	// FilterExisting はlinksのうち除外セットに含まれるものを返す。
	FilterExisting(ctx context.Context, userID string, links []string) ([]string, error)
	// AddAll はリンクを除外セットに追加する。既存のリンクは無視される。
	AddAll(ctx context.Context, userID string, links []string) error
	// Count は除外セットの件数を返す。
	Count(ctx context.Context, userID string) (int, error)
}

// BatchRepository はバッチの永続化インターフェース。
type BatchRepository interface {
	// ListByUserID はユーザーのバッチをインデックスの昇順で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Batch, error)
	// ListForUpdate はユーザーのバッチを行ロック付きでインデックスの昇順に返す。
	ListForUpdate(ctx context.Context, userID string) ([]*model.Batch, error)
	// FindByID はユーザーのバッチを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, userID, id string) (*model.Batch, error)
	// FindForUpdate はユーザーのバッチを行ロック付きで取得する。見つからない場合はnilを返す。
	FindForUpdate(ctx context.Context, userID, id string) (*model.Batch, error)
	// Create はバッチを作成する。
	Create(ctx context.Context, batch *model.Batch) error
	// Update はバッチの容量、配信先、リンクを更新する。該当がない場合はErrNotFoundを返す。
	Update(ctx context.Context, batch *model.Batch) error
	// UpdateLinks はバッチのリンクのみを更新する。
	UpdateLinks(ctx context.Context, userID, id, links string) error
	// DeleteByID はユーザーのバッチを削除する。該当がない場合はErrNotFoundを返す。
	DeleteByID(ctx context.Context, userID, id string) error
	// DeleteByIndices は指定インデックスのバッチを削除する。
	DeleteByIndices(ctx context.Context, userID string, indices []int) error
}
