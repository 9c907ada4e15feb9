package repository

import (
	"context"

	"github.com/hitoshi/linkdist/internal/model"
)

// PostgresSessionRepo はPostgreSQLを使用したダッシュボードセッションリポジトリ。
type PostgresSessionRepo struct {
	t sessionTable
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db DBTX) *PostgresSessionRepo {
	return &PostgresSessionRepo{t: sessionTable{db: db, table: "sessions", owner: "user_id", noun: "session"}}
}

// Create はセッションを作成する。IDが衝突した場合はErrDuplicateを返す。
func (r *PostgresSessionRepo) Create(ctx context.Context, session *model.Session) error {
	return r.t.insert(ctx, sessionRow{
		id:        session.ID,
		owner:     session.UserID,
		expiresAt: session.ExpiresAt,
		createdAt: session.CreatedAt,
	})
}

// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
func (r *PostgresSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	row, ok, err := r.t.findValid(ctx, id)
	if err != nil || !ok {
		return nil, err
	}
	return &model.Session{ID: row.id, UserID: row.owner, ExpiresAt: row.expiresAt, CreatedAt: row.createdAt}, nil
}

// DeleteByID は指定IDのセッションを削除する。存在しない場合も成功とする。
func (r *PostgresSessionRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.t.deleteWhere(ctx, "id", id)
	return err
}

// DeleteByUserID は指定ユーザーの全セッションを削除する。
func (r *PostgresSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	_, err := r.t.deleteWhere(ctx, "user_id", userID)
	return err
}

// DeleteExpired は期限切れのセッションを削除し、削除件数を返す。
func (r *PostgresSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	return r.t.deleteExpired(ctx)
}

var _ SessionRepository = (*PostgresSessionRepo)(nil)
