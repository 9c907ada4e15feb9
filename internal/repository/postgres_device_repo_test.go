package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/hitoshi/linkdist/internal/model"
)

var deviceCols = []string{"id", "user_id", "device_name", "verification_code", "created_at"}

func TestPostgresDeviceRepo_ListByUserID(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresDeviceRepo(db)
	now := time.Now()

	rows := sqlmock.NewRows(deviceCols).
		AddRow("d2", "u1", "Phone B", "222222", now).
		AddRow("d1", "u1", "Phone A", "111111", now.Add(-time.Hour))
	mock.ExpectQuery("SELECT (.+) FROM devices WHERE user_id = (.+) ORDER BY created_at DESC").
		WithArgs("u1").
		WillReturnRows(rows)

	devices, err := repo.ListByUserID(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ListByUserID() error = %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("len(devices) = %d, want 2", len(devices))
	}
	if devices[0].ID != "d2" || devices[0].VerificationCode != "222222" {
		t.Errorf("devices[0] = %+v", devices[0])
	}
	assertExpectations(t, mock)
}

func TestPostgresDeviceRepo_FindByVerificationCode_NotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresDeviceRepo(db)

	mock.ExpectQuery("SELECT (.+) FROM devices WHERE verification_code").
		WithArgs("123456").
		WillReturnError(sql.ErrNoRows)

	d, err := repo.FindByVerificationCode(context.Background(), "123456")
	if err != nil || d != nil {
		t.Errorf("FindByVerificationCode() = %+v, %v; want nil, nil", d, err)
	}
	assertExpectations(t, mock)
}

func TestPostgresDeviceRepo_Create_CodeConflict(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresDeviceRepo(db)

	mock.ExpectExec("INSERT INTO devices").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "devices_verification_code_unique"})

	err := repo.Create(context.Background(), &model.Device{ID: "d1", UserID: "u1", Name: "A", VerificationCode: "123456"})
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("Create() error = %v, want ErrDuplicate", err)
	}
	assertExpectations(t, mock)
}

func TestPostgresDeviceRepo_Delete(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		wantErr  error
	}{
		{name: "削除成功", affected: 1},
		{name: "他ユーザーの端末は削除できない", affected: 0, wantErr: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMock(t)
			repo := NewPostgresDeviceRepo(db)

			mock.ExpectExec("DELETE FROM devices WHERE id = (.+) AND user_id = (.+)").
				WithArgs("d1", "u1").
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			err := repo.Delete(context.Background(), "u1", "d1")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Delete() error = %v, want %v", err, tt.wantErr)
			}
			assertExpectations(t, mock)
		})
	}
}

func TestPostgresDeviceSessionRepo_FindByID(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresDeviceSessionRepo(db)
	exp := time.Now().Add(time.Hour)

	rows := sqlmock.NewRows([]string{"id", "device_id", "expires_at", "created_at"}).
		AddRow("tok", "d1", exp, time.Now())
	mock.ExpectQuery("SELECT (.+) FROM device_sessions WHERE id = (.+) AND expires_at > now()").
		WithArgs("tok").
		WillReturnRows(rows)

	s, err := repo.FindByID(context.Background(), "tok")
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if s == nil || s.DeviceID != "d1" {
		t.Errorf("FindByID() = %+v", s)
	}
	assertExpectations(t, mock)
}

func TestPostgresMessageRepo_ListByDeviceID_Ascending(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresMessageRepo(db)
	now := time.Now()

	rows := sqlmock.NewRows([]string{"id", "device_id", "content", "created_at"}).
		AddRow("m1", "d1", "first", now.Add(-time.Minute)).
		AddRow("m2", "d1", "second", now)
	mock.ExpectQuery("SELECT (.+) FROM messages WHERE device_id = (.+) ORDER BY created_at ASC").
		WithArgs("d1").
		WillReturnRows(rows)

	msgs, err := repo.ListByDeviceID(context.Background(), "d1")
	if err != nil {
		t.Fatalf("ListByDeviceID() error = %v", err)
	}
	if len(msgs) != 2 || msgs[0].Content != "first" || msgs[1].Content != "second" {
		t.Errorf("ListByDeviceID() = %+v", msgs)
	}
	assertExpectations(t, mock)
}

func TestPostgresMessageRepo_DeleteByDeviceID(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresMessageRepo(db)

	mock.ExpectExec("DELETE FROM messages WHERE device_id").
		WithArgs("d1").
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := repo.DeleteByDeviceID(context.Background(), "d1")
	if err != nil || n != 4 {
		t.Errorf("DeleteByDeviceID() = %d, %v; want 4, nil", n, err)
	}
	assertExpectations(t, mock)
}
