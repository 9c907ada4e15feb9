// Package batch はバッチの管理、倉庫からの分配、端末への送信を提供する。
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/linkdist/internal/allocation"
	"github.com/hitoshi/linkdist/internal/metrics"
	"github.com/hitoshi/linkdist/internal/model"
	"github.com/hitoshi/linkdist/internal/repository"
)

const (
	// DefaultCapacity は新規バッチの容量。
	DefaultCapacity = 10
	// MaxCount はユーザーあたりのバッチ数の上限。
	MaxCount = 100
	// DefaultFlushDelay は編集を書き込むまでの既定の遅延。
	DefaultFlushDelay = 800 * time.Millisecond
)

// BatchEdit はバッチに対する部分的な編集を表す。nilのフィールドは変更しない。
// Destinationに空文字列を指定すると配信先を解除する。
type BatchEdit struct {
	Capacity    *int
	Destination *string
	Links       *string
}

// Merge はeに後続の編集nextを重ねた結果を返す。
func (e BatchEdit) Merge(next BatchEdit) BatchEdit {
	if next.Capacity != nil {
		e.Capacity = next.Capacity
	}
	if next.Destination != nil {
		e.Destination = next.Destination
	}
	if next.Links != nil {
		e.Links = next.Links
	}
	return e
}

// Apply は編集をバッチに反映する。
func (e BatchEdit) Apply(b *model.Batch) {
	if e.Capacity != nil {
		b.Capacity = *e.Capacity
	}
	if e.Destination != nil {
		if *e.Destination == "" {
			b.Destination = nil
		} else {
			dest := *e.Destination
			b.Destination = &dest
		}
	}
	if e.Links != nil {
		b.Links = model.JoinLinks(model.SplitLinks(*e.Links))
	}
}

// DistributionResult は倉庫からバッチへの分配結果を表す。
type DistributionResult struct {
	Assigned    []allocation.Assignment
	Distributed int
	Remaining   int
}

// SendResult はバッチ送信の結果を表す。
type SendResult struct {
	BatchID   string
	DeviceID  string
	MessageID string
	Count     int
}

// DeviceFinder はユーザーが所有する端末を取得するインターフェース。
type DeviceFinder interface {
	FindByUserAndID(ctx context.Context, userID, id string) (*model.Device, error)
}

// ServiceConfig はバッチサービスの設定。
type ServiceConfig struct {
	FlushDelay time.Duration
}

// Service はバッチのビジネスロジックを提供する。
type Service struct {
	batches   repository.BatchRepository
	devices   DeviceFinder
	tx        repository.Transactor
	metrics   metrics.MetricsCollector
	coalescer *Coalescer
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	batches repository.BatchRepository,
	devices DeviceFinder,
	tx repository.Transactor,
	collector metrics.MetricsCollector,
	config ServiceConfig,
) *Service {
	delay := config.FlushDelay
	if delay <= 0 {
		delay = DefaultFlushDelay
	}
	s := &Service{
		batches: batches,
		devices: devices,
		tx:      tx,
		metrics: collector,
		now:     time.Now,
	}
	s.coalescer = NewCoalescer(delay, s.writeEdit)
	return s
}

// List はユーザーのバッチをインデックス順に返す。保留中の編集は先に書き込まれる。
func (s *Service) List(ctx context.Context, userID string) ([]*model.Batch, error) {
	if err := s.Flush(ctx, userID); err != nil {
		return nil, err
	}
	batches, err := s.batches.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	if batches == nil {
		batches = []*model.Batch{}
	}
	return batches, nil
}

// Resize はバッチ数をtargetに合わせる。
// 追加は既存の最大インデックスの次から、削除は最大インデックスから行う。
func (s *Service) Resize(ctx context.Context, userID string, target int) ([]*model.Batch, error) {
	// 1. 入力検証
	if target < 0 || target > MaxCount {
		return nil, model.NewInvalidBatchCountError(target, MaxCount)
	}

	// 2. 保留中の編集を書き込む
	if err := s.Flush(ctx, userID); err != nil {
		return nil, err
	}

	// 3. 行ロックを取得して差分を適用
	var plan allocation.ResizePlan
	err := s.tx.WithinTx(ctx, func(repos repository.TxRepositories) error {
		current, err := repos.Batches.ListForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		indices := make([]int, len(current))
		for i, b := range current {
			indices[i] = b.Index
		}

		plan, err = allocation.Resize(indices, target)
		if err != nil {
			return model.NewInvalidBatchCountError(target, MaxCount)
		}

		if len(plan.Remove) > 0 {
			if err := repos.Batches.DeleteByIndices(ctx, userID, plan.Remove); err != nil {
				return err
			}
		}
		now := s.now()
		for _, idx := range plan.Add {
			b := &model.Batch{
				ID:        uuid.New().String(),
				UserID:    userID,
				Index:     idx,
				Capacity:  DefaultCapacity,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := repos.Batches.Create(ctx, b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			return nil, apiErr
		}
		return nil, fmt.Errorf("failed to resize batches: %w", err)
	}

	slog.Info("batches resized",
		slog.String("user_id", userID),
		slog.Int("target", target),
		slog.Int("added", len(plan.Add)),
		slog.Int("removed", len(plan.Remove)),
	)

	return s.List(ctx, userID)
}

// Edit は編集を検証して保留に加え、保留内容を反映したバッチを返す。
// 書き込みは遅延して行われる。
func (s *Service) Edit(ctx context.Context, userID, batchID string, edit BatchEdit) (*model.Batch, error) {
	// 1. 入力検証
	if edit.Capacity != nil && *edit.Capacity < 0 {
		return nil, model.NewInvalidCapacityError(*edit.Capacity)
	}

	// 2. バッチと配信先の所有確認
	b, err := s.batches.FindByID(ctx, userID, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to find batch: %w", err)
	}
	if b == nil {
		return nil, model.NewBatchNotFoundError(batchID)
	}
	if edit.Destination != nil && *edit.Destination != "" {
		d, err := s.devices.FindByUserAndID(ctx, userID, *edit.Destination)
		if err != nil {
			return nil, fmt.Errorf("failed to find device: %w", err)
		}
		if d == nil {
			return nil, model.NewDeviceNotFoundError(*edit.Destination)
		}
	}

	// 3. 保留に加え、マージ後の内容を返す
	merged, err := s.coalescer.Add(userID, batchID, edit)
	if err != nil {
		return nil, fmt.Errorf("failed to buffer batch edit: %w", err)
	}
	merged.Apply(b)
	return b, nil
}

// Flush はユーザーの保留中の編集を直ちに書き込む。
func (s *Service) Flush(ctx context.Context, userID string) error {
	if err := s.coalescer.Flush(ctx, userID); err != nil {
		return fmt.Errorf("failed to flush batch edits: %w", err)
	}
	return nil
}

// Delete はバッチを1件削除する。保留中の編集は破棄される。
func (s *Service) Delete(ctx context.Context, userID, batchID string) error {
	s.coalescer.Discard(batchID)
	if err := s.batches.DeleteByID(ctx, userID, batchID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewBatchNotFoundError(batchID)
		}
		return fmt.Errorf("failed to delete batch: %w", err)
	}
	slog.Info("batch deleted",
		slog.String("user_id", userID),
		slog.String("batch_id", batchID),
	)
	return nil
}

// Distribute は倉庫のリンクをインデックス順にバッチへ割り当てる。
// 倉庫とバッチは同一トランザクション内で行ロックされるため、同じリンクが二重に割り当てられることはない。
func (s *Service) Distribute(ctx context.Context, userID string) (*DistributionResult, error) {
	if err := s.Flush(ctx, userID); err != nil {
		return nil, err
	}

	var res allocation.Result
	err := s.tx.WithinTx(ctx, func(repos repository.TxRepositories) error {
		pool, err := repos.Pools.Lock(ctx, userID)
		if err != nil {
			return err
		}
		batches, err := repos.Batches.ListForUpdate(ctx, userID)
		if err != nil {
			return err
		}

		slots := make([]allocation.Slot, len(batches))
		for i, b := range batches {
			slots[i] = allocation.Slot{
				ID:       b.ID,
				Index:    b.Index,
				Capacity: b.Capacity,
				Links:    b.LinkList(),
			}
		}
		res = allocation.Allocate(pool, slots)
		if len(res.Assigned) == 0 {
			return nil
		}

		for _, a := range res.Assigned {
			if err := repos.Batches.UpdateLinks(ctx, userID, a.SlotID, model.JoinLinks(a.Links)); err != nil {
				return err
			}
		}
		return repos.Pools.Save(ctx, userID, res.Remaining)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to distribute links: %w", err)
	}

	distributed := 0
	for _, a := range res.Assigned {
		distributed += len(a.Links)
	}
	if s.metrics != nil {
		s.metrics.RecordLinksDistributed(distributed)
	}

	slog.Info("links distributed",
		slog.String("user_id", userID),
		slog.Int("batches", len(res.Assigned)),
		slog.Int("distributed", distributed),
		slog.Int("remaining", len(res.Remaining)),
	)

	assigned := res.Assigned
	if assigned == nil {
		assigned = []allocation.Assignment{}
	}
	return &DistributionResult{
		Assigned:    assigned,
		Distributed: distributed,
		Remaining:   len(res.Remaining),
	}, nil
}

// Send はバッチのリンクを配信先の端末へ1件のメッセージとして送信する。
// メッセージ作成、バッチのリンク消去、除外セットへの登録は1トランザクションで行い、
// いずれかが失敗した場合はバッチの内容は変更されない。
func (s *Service) Send(ctx context.Context, userID, batchID string) (*SendResult, error) {
	if err := s.Flush(ctx, userID); err != nil {
		return nil, err
	}

	var result *SendResult
	err := s.tx.WithinTx(ctx, func(repos repository.TxRepositories) error {
		// 1. バッチを行ロック付きで取得して検証
		b, err := repos.Batches.FindForUpdate(ctx, userID, batchID)
		if err != nil {
			return err
		}
		if b == nil {
			return model.NewBatchNotFoundError(batchID)
		}
		if b.Destination == nil {
			return model.NewBatchNoDestinationError()
		}
		links := b.LinkList()
		if len(links) == 0 {
			return model.NewBatchEmptyError()
		}

		// 2. メッセージを作成
		m := &model.Message{
			ID:        uuid.New().String(),
			DeviceID:  *b.Destination,
			Content:   model.JoinLinks(links),
			CreatedAt: s.now(),
		}
		if err := repos.Messages.Create(ctx, m); err != nil {
			return err
		}

		// 3. バッチを空にし、送信済みリンクを除外セットへ登録
		if err := repos.Batches.UpdateLinks(ctx, userID, b.ID, ""); err != nil {
			return err
		}
		if err := repos.Exclusions.AddAll(ctx, userID, links); err != nil {
			return err
		}

		result = &SendResult{
			BatchID:   b.ID,
			DeviceID:  *b.Destination,
			MessageID: m.ID,
			Count:     len(links),
		}
		return nil
	})
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			return nil, apiErr
		}
		return nil, fmt.Errorf("failed to send batch: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordLinksDelivered(result.Count)
	}
	slog.Info("batch sent",
		slog.String("user_id", userID),
		slog.String("batch_id", result.BatchID),
		slog.String("device_id", result.DeviceID),
		slog.Int("count", result.Count),
	)
	return result, nil
}

// Close は保留中の全ての編集を書き込む。サーバー停止時に呼ぶ。
func (s *Service) Close(ctx context.Context) error {
	return s.coalescer.Close(ctx)
}

// writeEdit は保留中の編集を行ロック下で読み直したバッチに反映して保存する。
func (s *Service) writeEdit(ctx context.Context, userID, batchID string, edit BatchEdit) error {
	return s.tx.WithinTx(ctx, func(repos repository.TxRepositories) error {
		b, err := repos.Batches.FindForUpdate(ctx, userID, batchID)
		if err != nil {
			return err
		}
		if b == nil {
			return model.NewBatchNotFoundError(batchID)
		}
		edit.Apply(b)
		return repos.Batches.Update(ctx, b)
	})
}
