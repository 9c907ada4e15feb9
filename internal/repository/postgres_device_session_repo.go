package repository

import (
	"context"

	"github.com/hitoshi/linkdist/internal/model"
)

// PostgresDeviceSessionRepo はPostgreSQLを使用した端末セッションリポジトリ。
// 端末の削除時はON DELETE CASCADEで同時に消える。
type PostgresDeviceSessionRepo struct {
	t sessionTable
}

// NewPostgresDeviceSessionRepo はPostgresDeviceSessionRepoを生成する。
func NewPostgresDeviceSessionRepo(db DBTX) *PostgresDeviceSessionRepo {
	return &PostgresDeviceSessionRepo{t: sessionTable{db: db, table: "device_sessions", owner: "device_id", noun: "device session"}}
}

// Create は端末セッションを作成する。
func (r *PostgresDeviceSessionRepo) Create(ctx context.Context, session *model.DeviceSession) error {
	return r.t.insert(ctx, sessionRow{
		id:        session.ID,
		owner:     session.DeviceID,
		expiresAt: session.ExpiresAt,
		createdAt: session.CreatedAt,
	})
}

// FindByID は指定IDの端末セッションを取得する。期限切れの場合はnilを返す。
func (r *PostgresDeviceSessionRepo) FindByID(ctx context.Context, id string) (*model.DeviceSession, error) {
	row, ok, err := r.t.findValid(ctx, id)
	if err != nil || !ok {
		return nil, err
	}
	return &model.DeviceSession{ID: row.id, DeviceID: row.owner, ExpiresAt: row.expiresAt, CreatedAt: row.createdAt}, nil
}

// DeleteByID は指定IDの端末セッションを削除する。存在しない場合も成功とする。
func (r *PostgresDeviceSessionRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.t.deleteWhere(ctx, "id", id)
	return err
}

// DeleteExpired は期限切れの端末セッションを削除し、削除件数を返す。
func (r *PostgresDeviceSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	return r.t.deleteExpired(ctx)
}

var _ DeviceSessionRepository = (*PostgresDeviceSessionRepo)(nil)
