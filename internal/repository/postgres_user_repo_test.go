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

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func assertExpectations(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresUserRepo_FindByEmail(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresUserRepo(db)
	now := time.Now()

	tests := []struct {
		name      string
		setupMock func()
		wantUser  bool
		wantErr   bool
	}{
		{
			name: "存在するユーザーを返す",
			setupMock: func() {
				rows := sqlmock.NewRows([]string{"id", "email", "name", "password_hash", "created_at", "updated_at"}).
					AddRow("user-1", "a@example.com", "A", "hash", now, now)
				mock.ExpectQuery("SELECT (.+) FROM users WHERE email").
					WithArgs("a@example.com").
					WillReturnRows(rows)
			},
			wantUser: true,
		},
		{
			name: "見つからない場合はnilを返す",
			setupMock: func() {
				mock.ExpectQuery("SELECT (.+) FROM users WHERE email").
					WithArgs("a@example.com").
					WillReturnError(sql.ErrNoRows)
			},
		},
		{
			name: "DBエラーを返す",
			setupMock: func() {
				mock.ExpectQuery("SELECT (.+) FROM users WHERE email").
					WithArgs("a@example.com").
					WillReturnError(sql.ErrConnDone)
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setupMock()

			user, err := repo.FindByEmail(context.Background(), "a@example.com")
			if (err != nil) != tt.wantErr {
				t.Fatalf("FindByEmail() error = %v, wantErr %v", err, tt.wantErr)
			}
			if (user != nil) != tt.wantUser {
				t.Errorf("FindByEmail() user = %+v, wantUser %v", user, tt.wantUser)
			}
			if user != nil && user.PasswordHash != "hash" {
				t.Errorf("PasswordHash = %q, want %q", user.PasswordHash, "hash")
			}
			assertExpectations(t, mock)
		})
	}
}

func TestPostgresUserRepo_Create_Duplicate(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresUserRepo(db)

	mock.ExpectExec("INSERT INTO users").
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), &model.User{ID: "u1", Email: "dup@example.com"})
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("Create() error = %v, want ErrDuplicate", err)
	}
	assertExpectations(t, mock)
}

func TestPostgresUserRepo_DeleteByID_NotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresUserRepo(db)

	mock.ExpectExec("DELETE FROM users").
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.DeleteByID(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteByID() error = %v, want ErrNotFound", err)
	}
	assertExpectations(t, mock)
}

func TestPostgresUserRepo_FindByID(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresUserRepo(db)
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM users WHERE id = \\$1").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name", "password_hash", "created_at", "updated_at"}).
			AddRow("user-1", "a@example.com", "", "hash", now, now))

	user, err := repo.FindByID(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if user == nil || user.Email != "a@example.com" {
		t.Fatalf("FindByID() = %+v", user)
	}
	assertExpectations(t, mock)
}

func TestPostgresUserRepo_Create_LowercasesEmail(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresUserRepo(db)
	now := time.Now()

	mock.ExpectExec("INSERT INTO users").
		WithArgs("u1", "mixed@example.com", "Mixed", "hash", now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	user := &model.User{ID: "u1", Email: " Mixed@Example.COM ", Name: "Mixed", PasswordHash: "hash", CreatedAt: now, UpdatedAt: now}
	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if user.Email != "mixed@example.com" {
		t.Errorf("user.Email = %q, want normalized", user.Email)
	}
	assertExpectations(t, mock)
}
