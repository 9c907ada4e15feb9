package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/linkdist/internal/model"
)

// PostgresLinkPoolRepo はPostgreSQLを使用した倉庫リポジトリ。
// リンクはtext[]として1ユーザー1行で保持する。
type PostgresLinkPoolRepo struct {
	db DBTX
}

// NewPostgresLinkPoolRepo はPostgresLinkPoolRepoを生成する。
func NewPostgresLinkPoolRepo(db DBTX) *PostgresLinkPoolRepo {
	return &PostgresLinkPoolRepo{db: db}
}

// Get は倉庫を取得する。行が存在しない場合は空の倉庫を返す。
func (r *PostgresLinkPoolRepo) Get(ctx context.Context, userID string) (*model.LinkPool, error) {
	pool := &model.LinkPool{UserID: userID}
	var links pq.StringArray
	err := r.db.QueryRowContext(ctx,
		`SELECT links, updated_at FROM link_pools WHERE user_id = $1`,
		userID,
	).Scan(&links, &pool.UpdatedAt)

	if err == sql.ErrNoRows {
		pool.Links = []string{}
		return pool, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get link pool: %w", err)
	}

	pool.Links = []string(links)
	if pool.Links == nil {
		pool.Links = []string{}
	}
	return pool, nil
}

// Lock は倉庫の行を確保したうえで行ロックを取得し、現在のリンクを返す。
func (r *PostgresLinkPoolRepo) Lock(ctx context.Context, userID string) ([]string, error) {
	// 行がないとFOR UPDATEでロックできないため先に確保する
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO link_pools (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`,
		userID,
	); err != nil {
		return nil, fmt.Errorf("failed to ensure link pool: %w", err)
	}

	var links pq.StringArray
	err := r.db.QueryRowContext(ctx,
		`SELECT links FROM link_pools WHERE user_id = $1 FOR UPDATE`,
		userID,
	).Scan(&links)
	if err != nil {
		return nil, fmt.Errorf("failed to lock link pool: %w", err)
	}
	return []string(links), nil
}

// Save は倉庫のリンクを置き換える。
func (r *PostgresLinkPoolRepo) Save(ctx context.Context, userID string, links []string) error {
	if links == nil {
		links = []string{}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO link_pools (user_id, links, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (user_id) DO UPDATE SET links = EXCLUDED.links, updated_at = now()`,
		userID, pq.Array(links),
	)
	if err != nil {
		return fmt.Errorf("failed to save link pool: %w", err)
	}
	return nil
}

// compile-time interface check
var _ LinkPoolRepository = (*PostgresLinkPoolRepo)(nil)
