package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/linkdist/internal/middleware"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	// Withdraw はユーザーの退会処理を実行する。
	// 端末、メッセージ、倉庫、キャッシュ、バッチはユーザーと共に削除される。
	Withdraw(ctx context.Context, userID string) error
}

// UserHandlerConfig は退会後に破棄するCookieの設定。
type UserHandlerConfig struct {
	Auth AuthHandlerConfig
	CSRF middleware.CSRFConfig
}

// UserHandler はアカウント管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
	config  UserHandlerConfig
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface, config UserHandlerConfig) *UserHandler {
	return &UserHandler{service: service, config: config}
}

// Withdraw はユーザーの退会処理を実行し、セッションとCSRFトークンのCookieを破棄する。
// 所有していた端末には device_removed が通知され、コンパニオンはログアウトする。
// DELETE /api/users/me
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Withdraw(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}

	slog.InfoContext(r.Context(), "user withdrawn", slog.String("user_id", userID))
	setSessionCookie(w, h.config.Auth, "", -1)
	middleware.ClearCSRFCookie(w, h.config.CSRF)
	w.WriteHeader(http.StatusNoContent)
}
