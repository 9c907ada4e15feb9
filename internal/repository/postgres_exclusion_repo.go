package repository

import (
	"context"
	"fmt"

	"github.com/lib/pq"
)

// PostgresExclusionRepo はPostgreSQLを使用した除外セットリポジトリ。
type PostgresExclusionRepo struct {
	db DBTX
}

// NewPostgresExclusionRepo はPostgresExclusionRepoを生成する。
func NewPostgresExclusionRepo(db DBTX) *PostgresExclusionRepo {
	return &PostgresExclusionRepo{db: db}
}

// FilterExisting はlinksのうち除外セットに含まれるものを返す。
func (r *PostgresExclusionRepo) FilterExisting(ctx context.Context, userID string, links []string) ([]string, error) {
	if len(links) == 0 {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT link FROM exclusion_links WHERE user_id = $1 AND link = ANY($2)`,
		userID, pq.Array(links),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query exclusion links: %w", err)
	}
	defer rows.Close()

	var existing []string
	for rows.Next() {
		var link string
		if err := rows.Scan(&link); err != nil {
			return nil, fmt.Errorf("failed to scan exclusion link: %w", err)
		}
		existing = append(existing, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate exclusion links: %w", err)
	}
	return existing, nil
}

// AddAll はリンクを除外セットに追加する。既存のリンクは無視される。
func (r *PostgresExclusionRepo) AddAll(ctx context.Context, userID string, links []string) error {
	if len(links) == 0 {
		return nil
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO exclusion_links (user_id, link)
		 SELECT $1, unnest($2::text[])
		 ON CONFLICT (user_id, link) DO NOTHING`,
		userID, pq.Array(links),
	)
	if err != nil {
		return fmt.Errorf("failed to insert exclusion links: %w", err)
	}
	return nil
}

// Count は除外セットの件数を返す。
func (r *PostgresExclusionRepo) Count(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM exclusion_links WHERE user_id = $1`,
		userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count exclusion links: %w", err)
	}
	return n, nil
}

// compile-time interface check
var _ ExclusionRepository = (*PostgresExclusionRepo)(nil)
