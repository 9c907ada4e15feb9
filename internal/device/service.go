// Package device は配信先端末の管理とコンパニオンクライアントの接続認証を提供する。
package device

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/linkdist/internal/auth"
	"github.com/hitoshi/linkdist/internal/model"
	"github.com/hitoshi/linkdist/internal/notify"
	"github.com/hitoshi/linkdist/internal/repository"
)

// 認証コードは100000〜999999の6桁の数字。
const (
	codeMin   = 100000
	codeRange = 900000
	codeLen   = 6
)

// ServiceConfig は端末サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // 端末セッション有効期間（秒）
}

// Service は端末管理のビジネスロジックを提供する。
type Service struct {
	devices   repository.DeviceRepository
	sessions  repository.DeviceSessionRepository
	publisher notify.Publisher
	config    ServiceConfig

	generateCode func() (string, error)
	now          func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	devices repository.DeviceRepository,
	sessions repository.DeviceSessionRepository,
	publisher notify.Publisher,
	config ServiceConfig,
) *Service {
	return &Service{
		devices:      devices,
		sessions:     sessions,
		publisher:    publisher,
		config:       config,
		generateCode: GenerateVerificationCode,
		now:          time.Now,
	}
}

// GenerateVerificationCode は100000〜999999の一様乱数を6桁の文字列で返す。
func GenerateVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeRange))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+codeMin), nil
}

// IsValidVerificationCode はcodeがちょうど6桁の数字かどうかを返す。
func IsValidVerificationCode(code string) bool {
	if len(code) != codeLen {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

// List はユーザーの端末一覧を新しい順に返す。
func (s *Service) List(ctx context.Context, userID string) ([]*model.Device, error) {
	devices, err := s.devices.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	if devices == nil {
		devices = []*model.Device{}
	}
	return devices, nil
}

// Create は端末を登録し、認証コードを発行する。
// 認証コードが既存のものと衝突した場合は自動で再試行せずエラーを返す。
func (s *Service) Create(ctx context.Context, userID, name string) (*model.Device, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, model.NewDeviceNameRequiredError()
	}

	code, err := s.generateCode()
	if err != nil {
		return nil, fmt.Errorf("failed to generate verification code: %w", err)
	}

	d := &model.Device{
		ID:               uuid.New().String(),
		UserID:           userID,
		Name:             name,
		VerificationCode: code,
		CreatedAt:        s.now(),
	}
	if err := s.devices.Create(ctx, d); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewVerificationCodeConflictError()
		}
		return nil, fmt.Errorf("failed to create device: %w", err)
	}

	slog.Info("device created",
		slog.String("user_id", userID),
		slog.String("device_id", d.ID),
	)
	return d, nil
}

// Rename は端末名を変更する。
func (s *Service) Rename(ctx context.Context, userID, deviceID, name string) (*model.Device, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, model.NewDeviceNameRequiredError()
	}

	if err := s.devices.UpdateName(ctx, userID, deviceID, name); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewDeviceNotFoundError(deviceID)
		}
		return nil, fmt.Errorf("failed to rename device: %w", err)
	}

	d, err := s.devices.FindByUserAndID(ctx, userID, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to find device: %w", err)
	}
	if d == nil {
		return nil, model.NewDeviceNotFoundError(deviceID)
	}
	return d, nil
}

// Delete は端末を削除し、接続中のコンパニオンクライアントへ通知する。
// メッセージと端末セッションはCASCADE削除される。
func (s *Service) Delete(ctx context.Context, userID, deviceID string) error {
	if err := s.devices.Delete(ctx, userID, deviceID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewDeviceNotFoundError(deviceID)
		}
		return fmt.Errorf("failed to delete device: %w", err)
	}

	slog.Info("device deleted",
		slog.String("user_id", userID),
		slog.String("device_id", deviceID),
	)

	// 通知はベストエフォート。コンパニオンは次回のポーリングで401を受けてもログアウトする
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, notify.DeviceRemoved(deviceID)); err != nil {
			slog.Warn("failed to publish device removal",
				slog.String("device_id", deviceID),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// Verify は認証コードを検証し、端末セッションを発行する。
func (s *Service) Verify(ctx context.Context, code string) (*model.DeviceSession, *model.Device, error) {
	code = strings.TrimSpace(code)
	if !IsValidVerificationCode(code) {
		return nil, nil, model.NewInvalidVerificationCodeError()
	}

	d, err := s.devices.FindByVerificationCode(ctx, code)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find device: %w", err)
	}
	if d == nil {
		return nil, nil, model.NewVerificationCodeNotFoundError()
	}

	token, err := auth.GenerateToken()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate device session token: %w", err)
	}

	now := s.now()
	session := &model.DeviceSession{
		ID:        token,
		DeviceID:  d.ID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, nil, fmt.Errorf("failed to create device session: %w", err)
	}

	slog.Info("companion logged in", slog.String("device_id", d.ID))
	return session, d, nil
}

// Logout は端末セッションを破棄する。
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("device session token is required")
	}
	if err := s.sessions.DeleteByID(ctx, token); err != nil {
		return fmt.Errorf("failed to delete device session: %w", err)
	}
	return nil
}

// Resolve はトークンから有効な端末セッションを取得する。無効な場合はnilを返す。
func (s *Service) Resolve(ctx context.Context, token string) (*model.DeviceSession, error) {
	if token == "" {
		return nil, nil
	}
	session, err := s.sessions.FindByID(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to find device session: %w", err)
	}
	return session, nil
}
