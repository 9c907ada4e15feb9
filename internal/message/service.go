// Package message は端末宛てメッセージの手動送信とコンパニオンからの取得・削除を提供する。
package message

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/linkdist/internal/model"
	"github.com/hitoshi/linkdist/internal/repository"
	"github.com/hitoshi/linkdist/internal/security"
)

// DeviceFinder はユーザーが所有する端末を取得するインターフェース。
type DeviceFinder interface {
	FindByUserAndID(ctx context.Context, userID, id string) (*model.Device, error)
}

// Service はメッセージのビジネスロジックを提供する。
type Service struct {
	messages  repository.MessageRepository
	devices   DeviceFinder
	sanitizer security.MessageSanitizer
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	messages repository.MessageRepository,
	devices DeviceFinder,
	sanitizer security.MessageSanitizer,
) *Service {
	return &Service{
		messages:  messages,
		devices:   devices,
		sanitizer: sanitizer,
		now:       time.Now,
	}
}

// Send はユーザーの端末へメッセージを1件送信する。
// 本文はプレーンテキストにサニタイズされ、空になった場合は保存しない。
func (s *Service) Send(ctx context.Context, userID, deviceID, content string) (*model.Message, error) {
	// 1. 入力検証（DBアクセス前）
	if deviceID == "" {
		return nil, model.NewMessageContentRequiredError()
	}
	text := s.sanitizer.Sanitize(content)
	if text == "" {
		return nil, model.NewMessageContentRequiredError()
	}

	// 2. 端末の所有確認
	d, err := s.devices.FindByUserAndID(ctx, userID, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to find device: %w", err)
	}
	if d == nil {
		return nil, model.NewDeviceNotFoundError(deviceID)
	}

	// 3. 保存
	m := &model.Message{
		ID:        uuid.New().String(),
		DeviceID:  d.ID,
		Content:   text,
		CreatedAt: s.now(),
	}
	if err := s.messages.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}

	slog.Info("message sent",
		slog.String("user_id", userID),
		slog.String("device_id", d.ID),
		slog.String("message_id", m.ID),
	)
	return m, nil
}

// ListForDevice は端末宛てのメッセージを古い順に返す。
func (s *Service) ListForDevice(ctx context.Context, deviceID string) ([]*model.Message, error) {
	messages, err := s.messages.ListByDeviceID(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	if messages == nil {
		messages = []*model.Message{}
	}
	return messages, nil
}

// Delete は端末宛ての指定メッセージを削除する。
func (s *Service) Delete(ctx context.Context, deviceID, messageID string) error {
	if err := s.messages.DeleteByID(ctx, deviceID, messageID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewMessageNotFoundError(messageID)
		}
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

// DeleteAll は端末宛ての全メッセージを削除し、削除件数を返す。
func (s *Service) DeleteAll(ctx context.Context, deviceID string) (int64, error) {
	n, err := s.messages.DeleteByDeviceID(ctx, deviceID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete messages: %w", err)
	}
	slog.Info("messages cleared",
		slog.String("device_id", deviceID),
		slog.Int64("count", n),
	)
	return n, nil
}
