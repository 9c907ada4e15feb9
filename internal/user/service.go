// Package user はアカウントの退会処理を提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/linkdist/internal/model"
	"github.com/hitoshi/linkdist/internal/notify"
	"github.com/hitoshi/linkdist/internal/repository"
)

// Service はユーザー管理のサービス層。
type Service struct {
	tx        repository.Transactor
	publisher notify.Publisher
}

// NewService はServiceを生成する。publisherがnilの場合は通知を行わない。
func NewService(tx repository.Transactor, publisher notify.Publisher) *Service {
	return &Service{tx: tx, publisher: publisher}
}

// Withdraw はユーザーの退会処理を実行する。
//
// 1トランザクション内で端末を控え、セッションとユーザーを削除する。
// 端末、メッセージ、端末セッション、倉庫、除外リスト、バッチはCASCADEで消える。
// コミット後、控えた端末ごとに device_removed を通知する。通知の失敗は退会を失敗させない。
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	var removed []*model.Device

	err := s.tx.WithinTx(ctx, func(repos repository.TxRepositories) error {
		u, err := repos.Users.FindByID(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to find user: %w", err)
		}
		if u == nil {
			return model.NewUserNotFoundError()
		}

		// CASCADE削除後は参照できないため先に取得する
		removed, err = repos.Devices.ListByUserID(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to list devices: %w", err)
		}
		if err := repos.Sessions.DeleteByUserID(ctx, userID); err != nil {
			return fmt.Errorf("failed to delete sessions: %w", err)
		}
		if err := repos.Users.DeleteByID(ctx, userID); err != nil {
			return fmt.Errorf("failed to delete user: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.notifyRemoved(ctx, removed)

	slog.Info("user withdrawal completed",
		slog.String("user_id", userID),
		slog.Int("devices", len(removed)),
	)
	return nil
}

func (s *Service) notifyRemoved(ctx context.Context, devices []*model.Device) {
	if s.publisher == nil {
		return
	}
	for _, d := range devices {
		if err := s.publisher.Publish(ctx, notify.DeviceRemoved(d.ID)); err != nil {
			slog.Warn("failed to publish device removal",
				slog.String("device_id", d.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}
