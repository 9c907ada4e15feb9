package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/linkdist/internal/model"
	"github.com/hitoshi/linkdist/internal/repository"
)

// --- モック定義 ---

type mockUserRepo struct {
	findByIDFn    func(ctx context.Context, id string) (*model.User, error)
	findByEmailFn func(ctx context.Context, email string) (*model.User, error)
	createFn      func(ctx context.Context, user *model.User) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}

func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return nil
}

func (m *mockUserRepo) DeleteByID(_ context.Context, _ string) error {
	return nil
}

type mockSessionRepo struct {
	createFn     func(ctx context.Context, session *model.Session) error
	findByIDFn   func(ctx context.Context, id string) (*model.Session, error)
	deleteByIDFn func(ctx context.Context, id string) error
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	if m.createFn != nil {
		return m.createFn(ctx, session)
	}
	return nil
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

func (m *mockSessionRepo) DeleteByUserID(_ context.Context, _ string) error {
	return nil
}

func (m *mockSessionRepo) DeleteExpired(_ context.Context) (int64, error) {
	return 0, nil
}

// --- compile-time interface checks ---
var _ repository.UserRepository = (*mockUserRepo)(nil)
var _ repository.SessionRepository = (*mockSessionRepo)(nil)

func testConfig() ServiceConfig {
	return ServiceConfig{SessionMaxAge: 86400, BcryptCost: bcrypt.MinCost}
}

func assertAPIErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError %s, got %v", code, err)
	}
	if apiErr.Code != code {
		t.Errorf("error code = %q, want %q", apiErr.Code, code)
	}
}

// --- テスト ---

func TestRegister_CreatesUserAndSession(t *testing.T) {
	var createdUser *model.User
	var createdSession *model.Session

	userRepo := &mockUserRepo{
		createFn: func(ctx context.Context, user *model.User) error {
			createdUser = user
			return nil
		},
	}
	sessionRepo := &mockSessionRepo{
		createFn: func(ctx context.Context, session *model.Session) error {
			createdSession = session
			return nil
		},
	}
	svc := NewService(userRepo, sessionRepo, testConfig())

	user, session, err := svc.Register(context.Background(), " Test@Example.com ", "password123", "Tester")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if createdUser == nil || user.ID != createdUser.ID {
		t.Fatal("expected user to be created")
	}
	if createdUser.Email != "test@example.com" {
		t.Errorf("email = %q, want normalized %q", createdUser.Email, "test@example.com")
	}
	if createdUser.PasswordHash == "password123" || createdUser.PasswordHash == "" {
		t.Error("password must be stored as a hash")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(createdUser.PasswordHash), []byte("password123")); err != nil {
		t.Errorf("stored hash does not match password: %v", err)
	}
	if createdSession == nil || session.UserID != user.ID {
		t.Fatal("expected session for new user")
	}
	if !session.ExpiresAt.After(time.Now().Add(23 * time.Hour)) {
		t.Errorf("ExpiresAt = %v, want ~24h from now", session.ExpiresAt)
	}
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		password string
	}{
		{name: "メールアドレスが空", email: "", password: "password123"},
		{name: "メールアドレスの形式が不正", email: "not-an-email", password: "password123"},
		{name: "パスワードが短い", email: "a@example.com", password: "short"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			userRepo := &mockUserRepo{
				createFn: func(ctx context.Context, user *model.User) error {
					t.Fatal("Create should not be called on validation error")
					return nil
				},
			}
			svc := NewService(userRepo, &mockSessionRepo{}, testConfig())

			_, _, err := svc.Register(context.Background(), tt.email, tt.password, "")
			assertAPIErrorCode(t, err, model.ErrCodeInvalidRegistration)
		})
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	userRepo := &mockUserRepo{
		createFn: func(ctx context.Context, user *model.User) error {
			return repository.ErrDuplicate
		},
	}
	svc := NewService(userRepo, &mockSessionRepo{}, testConfig())

	_, _, err := svc.Register(context.Background(), "dup@example.com", "password123", "")
	assertAPIErrorCode(t, err, model.ErrCodeEmailAlreadyRegistered)
}

func TestLogin(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	existing := &model.User{ID: "user-1", Email: "a@example.com", PasswordHash: string(hash)}

	tests := []struct {
		name     string
		email    string
		password string
		wantCode string
	}{
		{name: "正しい認証情報", email: "A@example.com", password: "password123"},
		{name: "パスワード不一致", email: "a@example.com", password: "wrong-password", wantCode: model.ErrCodeInvalidCredentials},
		{name: "未登録ユーザー", email: "b@example.com", password: "password123", wantCode: model.ErrCodeInvalidCredentials},
		{name: "空のパスワード", email: "a@example.com", password: "", wantCode: model.ErrCodeInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			userRepo := &mockUserRepo{
				findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
					if email == existing.Email {
						return existing, nil
					}
					return nil, nil
				},
			}
			svc := NewService(userRepo, &mockSessionRepo{}, testConfig())

			session, err := svc.Login(context.Background(), tt.email, tt.password)
			if tt.wantCode != "" {
				assertAPIErrorCode(t, err, tt.wantCode)
				return
			}
			if err != nil {
				t.Fatalf("Login() error = %v", err)
			}
			if session.UserID != existing.ID || session.ID == "" {
				t.Errorf("Login() session = %+v", session)
			}
		})
	}
}

func TestLogout_DeletesSession(t *testing.T) {
	var deletedID string
	sessionRepo := &mockSessionRepo{
		deleteByIDFn: func(ctx context.Context, id string) error {
			deletedID = id
			return nil
		},
	}
	svc := NewService(&mockUserRepo{}, sessionRepo, testConfig())

	if err := svc.Logout(context.Background(), "session-123"); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if deletedID != "session-123" {
		t.Errorf("deleted session ID = %q, want %q", deletedID, "session-123")
	}

	if err := svc.Logout(context.Background(), ""); err == nil {
		t.Error("Logout(\"\") should return error")
	}
}

func TestGetCurrentUser(t *testing.T) {
	sessionRepo := &mockSessionRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			if id == "valid" {
				return &model.Session{ID: id, UserID: "user-1", ExpiresAt: time.Now().Add(time.Hour)}, nil
			}
			return nil, nil
		},
	}
	userRepo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Email: "a@example.com"}, nil
		},
	}
	svc := NewService(userRepo, sessionRepo, testConfig())

	user, err := svc.GetCurrentUser(context.Background(), "valid")
	if err != nil {
		t.Fatalf("GetCurrentUser() error = %v", err)
	}
	if user.ID != "user-1" {
		t.Errorf("user.ID = %q, want user-1", user.ID)
	}

	_, err = svc.GetCurrentUser(context.Background(), "expired")
	assertAPIErrorCode(t, err, model.ErrCodeUnauthorized)
}

func TestGenerateToken_Unique(t *testing.T) {
	a, err := GenerateToken()
	if err != nil {
		t.Fatal(err)
	}
	b, _ := GenerateToken()
	if len(a) != 64 || a == b {
		t.Errorf("GenerateToken() = %q, %q", a, b)
	}
}
