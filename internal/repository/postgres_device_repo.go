package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/linkdist/internal/model"
)

// PostgresDeviceRepo はPostgreSQLを使用した端末リポジトリ。
type PostgresDeviceRepo struct {
	db DBTX
}

// NewPostgresDeviceRepo はPostgresDeviceRepoを生成する。
func NewPostgresDeviceRepo(db DBTX) *PostgresDeviceRepo {
	return &PostgresDeviceRepo{db: db}
}

const deviceColumns = `id, user_id, device_name, verification_code, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*model.Device, error) {
	d := &model.Device{}
	if err := row.Scan(&d.ID, &d.UserID, &d.Name, &d.VerificationCode, &d.CreatedAt); err != nil {
		return nil, err
	}
	return d, nil
}

func (r *PostgresDeviceRepo) findOne(ctx context.Context, query string, args ...any) (*model.Device, error) {
	d, err := scanDevice(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find device: %w", err)
	}
	return d, nil
}

// ListByUserID はユーザーの端末一覧を作成日時の降順で返す。
func (r *PostgresDeviceRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Device, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	defer rows.Close()

	var devices []*model.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate devices: %w", err)
	}
	return devices, nil
}

// FindByUserAndID はユーザーが所有する端末を取得する。見つからない場合はnilを返す。
func (r *PostgresDeviceRepo) FindByUserAndID(ctx context.Context, userID, id string) (*model.Device, error) {
	return r.findOne(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
}

// FindByID は指定IDの端末を取得する。見つからない場合はnilを返す。
func (r *PostgresDeviceRepo) FindByID(ctx context.Context, id string) (*model.Device, error) {
	return r.findOne(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE id = $1`,
		id,
	)
}

// FindByVerificationCode は認証コードで端末を取得する。見つからない場合はnilを返す。
func (r *PostgresDeviceRepo) FindByVerificationCode(ctx context.Context, code string) (*model.Device, error) {
	return r.findOne(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE verification_code = $1`,
		code,
	)
}

// Create は端末を作成する。認証コードが重複する場合はErrDuplicateを返す。
func (r *PostgresDeviceRepo) Create(ctx context.Context, device *model.Device) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO devices (id, user_id, device_name, verification_code, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		device.ID, device.UserID, device.Name, device.VerificationCode, device.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert device: %w", err)
	}
	return nil
}

// UpdateName は端末名を更新する。
func (r *PostgresDeviceRepo) UpdateName(ctx context.Context, userID, id, name string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE devices SET device_name = $1 WHERE id = $2 AND user_id = $3`,
		name, id, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to update device name: %w", err)
	}
	return requireAffected(result)
}

// Delete は端末を削除する。
func (r *PostgresDeviceRepo) Delete(ctx context.Context, userID, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM devices WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete device: %w", err)
	}
	return requireAffected(result)
}

// compile-time interface check
var _ DeviceRepository = (*PostgresDeviceRepo)(nil)
