package repository

import (
	"context"
	"fmt"

	"github.com/hitoshi/linkdist/internal/model"
)

// PostgresMessageRepo はPostgreSQLを使用したメッセージリポジトリ。
type PostgresMessageRepo struct {
	db DBTX
}

// NewPostgresMessageRepo はPostgresMessageRepoを生成する。
func NewPostgresMessageRepo(db DBTX) *PostgresMessageRepo {
	return &PostgresMessageRepo{db: db}
}

// Create はメッセージを作成する。
func (r *PostgresMessageRepo) Create(ctx context.Context, message *model.Message) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO messages (id, device_id, content, created_at)
		 VALUES ($1, $2, $3, $4)`,
		message.ID, message.DeviceID, message.Content, message.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

// ListByDeviceID は端末宛てのメッセージを作成日時の昇順で返す。
func (r *PostgresMessageRepo) ListByDeviceID(ctx context.Context, deviceID string) ([]*model.Message, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, device_id, content, created_at
		 FROM messages
		 WHERE device_id = $1
		 ORDER BY created_at ASC, id ASC`,
		deviceID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []*model.Message
	for rows.Next() {
		m := &model.Message{}
		if err := rows.Scan(&m.ID, &m.DeviceID, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return messages, nil
}

// DeleteByID は端末宛ての指定メッセージを削除する。
func (r *PostgresMessageRepo) DeleteByID(ctx context.Context, deviceID, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM messages WHERE id = $1 AND device_id = $2`,
		id, deviceID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return requireAffected(result)
}

// DeleteByDeviceID は端末宛ての全メッセージを削除する。
func (r *PostgresMessageRepo) DeleteByDeviceID(ctx context.Context, deviceID string) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM messages WHERE device_id = $1`,
		deviceID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete messages: %w", err)
	}
	return result.RowsAffected()
}

// compile-time interface check
var _ MessageRepository = (*PostgresMessageRepo)(nil)
