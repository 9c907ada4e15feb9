// Package warehouse はリサーチ結果を倉庫（ユーザーごとのリンクプール）へ取り込む。
//
// 取り込みは「全ファイル解析 → ランキング → シャッフル → 除外・重複排除 → 保存」の順で行い、
// 除外セットの参照と倉庫の更新は1トランザクション内で行う。
package warehouse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/hitoshi/linkdist/internal/metrics"
	"github.com/hitoshi/linkdist/internal/model"
	"github.com/hitoshi/linkdist/internal/ranking"
	"github.com/hitoshi/linkdist/internal/repository"
)

// Upload はアップロードされた1ファイルを表す。
type Upload struct {
	Name   string
	Reader io.Reader
}

// IngestResult は取り込み結果を表す。
// Candidatesはシャッフル後のランキング結果、Addedは実際に倉庫へ追加されたリンク。
type IngestResult struct {
	Candidates []string
	Added      []string
}

// ServiceConfig は倉庫サービスの設定。
type ServiceConfig struct {
	MaxFiles int // 1回のアップロードで受け付けるファイル数の上限。0以下は無制限
}

// Service は倉庫のビジネスロジックを提供する。
type Service struct {
	pools      repository.LinkPoolRepository
	exclusions repository.ExclusionRepository
	tx         repository.Transactor
	metrics metrics.MetricsCollector
	config  ServiceConfig

	// rnd がnilの場合はグローバルな乱数源を使う
	rnd *rand.Rand
}

// NewService はServiceを生成する。
func NewService(
	pools repository.LinkPoolRepository,
	exclusions repository.ExclusionRepository,
	tx repository.Transactor,
	collector metrics.MetricsCollector,
	config ServiceConfig,
) *Service {
	return &Service{
		pools:      pools,
		exclusions: exclusions,
		tx:         tx,
		metrics:    collector,
		config:     config,
	}
}

// Ingest はアップロードされたファイル群をランキングし、倉庫へ追加する。
// 1ファイルでも解析に失敗した場合は何も保存せずUPLOAD_PARSE_FAILEDを返す。
// 追加件数が0件でもエラーにはならない。
func (s *Service) Ingest(ctx context.Context, userID string, files []Upload, threshold int) (*IngestResult, error) {
	start := time.Now()

	// 1. 入力検証（DBアクセス前）
	if len(files) == 0 {
		return nil, model.NewUploadNoFilesError()
	}
	if s.config.MaxFiles > 0 && len(files) > s.config.MaxFiles {
		return nil, model.NewUploadTooManyFilesError(s.config.MaxFiles)
	}
	if threshold < 1 {
		return nil, model.NewInvalidRankThresholdError(threshold)
	}

	// 2. 全ファイルを解析
	datasets := make([]ranking.Dataset, 0, len(files))
	rows := 0
	for _, f := range files {
		ds, err := ranking.Parse(f.Name, f.Reader)
		if err != nil {
			s.recordParseFailure()
			slog.Warn("failed to parse upload",
				slog.String("user_id", userID),
				slog.String("file", f.Name),
				slog.String("error", err.Error()),
			)
			return nil, model.NewUploadParseFailedError(f.Name)
		}
		rows += len(ds.Rows)
		datasets = append(datasets, ds)
	}

	// 3. ランキングとシャッフル
	candidates, err := ranking.Run(datasets, threshold, s.rnd)
	if err != nil {
		if errors.Is(err, ranking.ErrInvalidThreshold) {
			return nil, model.NewInvalidRankThresholdError(threshold)
		}
		return nil, fmt.Errorf("failed to rank links: %w", err)
	}

	// 4. 除外セットと既存の倉庫を参照して追加分を確定し、保存
	var added []string
	err = s.tx.WithinTx(ctx, func(repos repository.TxRepositories) error {
		current, err := repos.Pools.Lock(ctx, userID)
		if err != nil {
			return err
		}
		excluded, err := repos.Exclusions.FilterExisting(ctx, userID, candidates)
		if err != nil {
			return err
		}

		added = mergeNew(current, candidates, excluded)
		if len(added) == 0 {
			return nil
		}
		next := make([]string, 0, len(current)+len(added))
		next = append(next, current...)
		next = append(next, added...)
		return repos.Pools.Save(ctx, userID, next)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update warehouse: %w", err)
	}

	if added == nil {
		added = []string{}
	}
	if s.metrics != nil {
		s.metrics.RecordResearchRows(rows)
		s.metrics.RecordWarehouseLinksAdded(len(added))
		s.metrics.RecordResearchDuration(time.Since(start))
	}

	slog.Info("research ingested",
		slog.String("user_id", userID),
		slog.Int("files", len(files)),
		slog.Int("rows", rows),
		slog.Int("candidates", len(candidates)),
		slog.Int("added", len(added)),
	)

	return &IngestResult{Candidates: candidates, Added: added}, nil
}

// Get は倉庫の内容と除外セットの件数を返す。
func (s *Service) Get(ctx context.Context, userID string) (*model.LinkPool, error) {
	pool, err := s.pools.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get warehouse: %w", err)
	}
	excluded, err := s.exclusions.Count(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count excluded links: %w", err)
	}
	pool.ExcludedCount = excluded
	return pool, nil
}

// Clear は倉庫を空にする。除外セットは変更しない。
func (s *Service) Clear(ctx context.Context, userID string) error {
	if err := s.pools.Save(ctx, userID, []string{}); err != nil {
		return fmt.Errorf("failed to clear warehouse: %w", err)
	}
	slog.Info("warehouse cleared", slog.String("user_id", userID))
	return nil
}

func (s *Service) recordParseFailure() {
	if s.metrics != nil {
		s.metrics.RecordUploadParseFailure()
	}
}

// mergeNew はcandidatesのうち、倉庫にも除外セットにもないリンクを順序を保って返す。
func mergeNew(current, candidates, excluded []string) []string {
	skip := make(map[string]struct{}, len(current)+len(excluded))
	for _, l := range current {
		skip[l] = struct{}{}
	}
	for _, l := range excluded {
		skip[l] = struct{}{}
	}

	var added []string
	for _, l := range candidates {
		if _, ok := skip[l]; ok {
			continue
		}
		skip[l] = struct{}{}
		added = append(added, l)
	}
	return added
}
