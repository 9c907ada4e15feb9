package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/linkdist/internal/model"
)

// PostgresBatchRepo はPostgreSQLを使用したバッチリポジトリ。
type PostgresBatchRepo struct {
	db DBTX
}

// NewPostgresBatchRepo はPostgresBatchRepoを生成する。
func NewPostgresBatchRepo(db DBTX) *PostgresBatchRepo {
	return &PostgresBatchRepo{db: db}
}

const batchColumns = `id, user_id, batch_index, capacity, destination, links, created_at, updated_at`

func scanBatch(row rowScanner) (*model.Batch, error) {
	b := &model.Batch{}
	var dest sql.NullString
	if err := row.Scan(&b.ID, &b.UserID, &b.Index, &b.Capacity, &dest, &b.Links, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	if dest.Valid {
		b.Destination = &dest.String
	}
	return b, nil
}

func (r *PostgresBatchRepo) list(ctx context.Context, query string, args ...any) ([]*model.Batch, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	defer rows.Close()

	var batches []*model.Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate batches: %w", err)
	}
	return batches, nil
}

func (r *PostgresBatchRepo) findOne(ctx context.Context, query string, args ...any) (*model.Batch, error) {
	b, err := scanBatch(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find batch: %w", err)
	}
	return b, nil
}

// ListByUserID はユーザーのバッチをインデックスの昇順で返す。
func (r *PostgresBatchRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Batch, error) {
	return r.list(ctx,
		`SELECT `+batchColumns+` FROM batches WHERE user_id = $1 ORDER BY batch_index ASC`,
		userID,
	)
}

// ListForUpdate はユーザーのバッチを行ロック付きでインデックスの昇順に返す。
func (r *PostgresBatchRepo) ListForUpdate(ctx context.Context, userID string) ([]*model.Batch, error) {
	return r.list(ctx,
		`SELECT `+batchColumns+` FROM batches WHERE user_id = $1 ORDER BY batch_index ASC FOR UPDATE`,
		userID,
	)
}

// FindByID はユーザーのバッチを取得する。見つからない場合はnilを返す。
func (r *PostgresBatchRepo) FindByID(ctx context.Context, userID, id string) (*model.Batch, error) {
	return r.findOne(ctx,
		`SELECT `+batchColumns+` FROM batches WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
}

// FindForUpdate はユーザーのバッチを行ロック付きで取得する。見つからない場合はnilを返す。
func (r *PostgresBatchRepo) FindForUpdate(ctx context.Context, userID, id string) (*model.Batch, error) {
	return r.findOne(ctx,
		`SELECT `+batchColumns+` FROM batches WHERE id = $1 AND user_id = $2 FOR UPDATE`,
		id, userID,
	)
}

// Create はバッチを作成する。
func (r *PostgresBatchRepo) Create(ctx context.Context, batch *model.Batch) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO batches (id, user_id, batch_index, capacity, destination, links, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		batch.ID, batch.UserID, batch.Index, batch.Capacity, batch.Destination, batch.Links,
		batch.CreatedAt, batch.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert batch: %w", err)
	}
	return nil
}

// Update はバッチの容量、配信先、リンクを更新する。
func (r *PostgresBatchRepo) Update(ctx context.Context, batch *model.Batch) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE batches
		 SET capacity = $1, destination = $2, links = $3, updated_at = now()
		 WHERE id = $4 AND user_id = $5`,
		batch.Capacity, batch.Destination, batch.Links, batch.ID, batch.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to update batch: %w", err)
	}
	return requireAffected(result)
}

// UpdateLinks はバッチのリンクのみを更新する。
func (r *PostgresBatchRepo) UpdateLinks(ctx context.Context, userID, id, links string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE batches SET links = $1, updated_at = now() WHERE id = $2 AND user_id = $3`,
		links, id, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to update batch links: %w", err)
	}
	return requireAffected(result)
}

// DeleteByID はユーザーのバッチを削除する。
func (r *PostgresBatchRepo) DeleteByID(ctx context.Context, userID, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM batches WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete batch: %w", err)
	}
	return requireAffected(result)
}

// DeleteByIndices は指定インデックスのバッチを削除する。
func (r *PostgresBatchRepo) DeleteByIndices(ctx context.Context, userID string, indices []int) error {
	if len(indices) == 0 {
		return nil
	}

	idx := make([]int64, len(indices))
	for i, v := range indices {
		idx[i] = int64(v)
	}
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM batches WHERE user_id = $1 AND batch_index = ANY($2)`,
		userID, pq.Array(idx),
	)
	if err != nil {
		return fmt.Errorf("failed to delete batches: %w", err)
	}
	return nil
}

// compile-time interface check
var _ BatchRepository = (*PostgresBatchRepo)(nil)
