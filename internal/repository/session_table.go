package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// sessionTable はsessionsとdevice_sessionsに共通する不透明トークン表の操作をまとめる。
// 両表は (id, <owner>, expires_at, created_at) の同じ形をとる。
type sessionTable struct {
	db    DBTX
	table string
	owner string
	noun  string // エラーメッセージ用
}

// sessionRow はトークン表の1行。ownerはuser_idまたはdevice_id。
type sessionRow struct {
	id        string
	owner     string
	expiresAt time.Time
	createdAt time.Time
}

func (t sessionTable) insert(ctx context.Context, row sessionRow) error {
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO `+t.table+` (id, `+t.owner+`, expires_at, created_at)
		 VALUES ($1, $2, $3, $4)`,
		row.id, row.owner, row.expiresAt, row.createdAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", t.noun, err)
	}
	return nil
}

// findValid は期限内のトークンを取得する。見つからないか期限切れの場合はfalseを返す。
func (t sessionTable) findValid(ctx context.Context, id string) (sessionRow, bool, error) {
	var row sessionRow
	err := t.db.QueryRowContext(ctx,
		`SELECT id, `+t.owner+`, expires_at, created_at
		 FROM `+t.table+`
		 WHERE id = $1 AND expires_at > now()`,
		id,
	).Scan(&row.id, &row.owner, &row.expiresAt, &row.createdAt)

	if err == sql.ErrNoRows {
		return sessionRow{}, false, nil
	}
	if err != nil {
		return sessionRow{}, false, fmt.Errorf("failed to find %s: %w", t.noun, err)
	}
	return row, true, nil
}

// deleteWhere はcolumn = valueに一致する行を削除して件数を返す。存在しない場合も成功とする。
func (t sessionTable) deleteWhere(ctx context.Context, column, value string) (int64, error) {
	result, err := t.db.ExecContext(ctx,
		`DELETE FROM `+t.table+` WHERE `+column+` = $1`,
		value,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete %s: %w", t.noun, err)
	}
	return result.RowsAffected()
}

func (t sessionTable) deleteExpired(ctx context.Context) (int64, error) {
	result, err := t.db.ExecContext(ctx,
		`DELETE FROM `+t.table+` WHERE expires_at <= now()`,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired %s: %w", t.noun, err)
	}
	return result.RowsAffected()
}
