package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/linkdist/internal/middleware"
	"github.com/hitoshi/linkdist/internal/model"
	"github.com/hitoshi/linkdist/internal/notify"
)

// DefaultHeartbeatInterval はSSEのハートビート間隔。
const DefaultHeartbeatInterval = 25 * time.Second

// DeviceAuthInterface はコンパニオンクライアントのログインに必要なサービスインターフェース。
type DeviceAuthInterface interface {
	Verify(ctx context.Context, code string) (*model.DeviceSession, *model.Device, error)
	Logout(ctx context.Context, token string) error
}

// DeviceMessageInterface は端末宛てメッセージの取得と削除に必要なサービスインターフェース。
type DeviceMessageInterface interface {
	ListForDevice(ctx context.Context, deviceID string) ([]*model.Message, error)
	Delete(ctx context.Context, deviceID, messageID string) error
	DeleteAll(ctx context.Context, deviceID string) (int64, error)
}

// CompanionHandler はコンパニオンクライアント(/pwa/*)向けのHTTPハンドラー。
type CompanionHandler struct {
	auth      DeviceAuthInterface
	messages  DeviceMessageInterface
	notifier  notify.Notifier
	heartbeat time.Duration
}

// NewCompanionHandler はCompanionHandlerを生成する。
func NewCompanionHandler(auth DeviceAuthInterface, messages DeviceMessageInterface, notifier notify.Notifier) *CompanionHandler {
	return &CompanionHandler{
		auth:      auth,
		messages:  messages,
		notifier:  notifier,
		heartbeat: DefaultHeartbeatInterval,
	}
}

type verifyRequest struct {
	Code string `json:"code"`
}

// verifyResponse は認証コードによるログイン結果。
type verifyResponse struct {
	Token      string    `json:"token"`
	DeviceID   string    `json:"device_id"`
	DeviceName string    `json:"device_name"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Verify は認証コードを検証し、端末セッションを発行する。
// POST /pwa/verify
func (h *CompanionHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	session, device, err := h.auth.Verify(r.Context(), req.Code)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, verifyResponse{
		Token:      session.ID,
		DeviceID:   device.ID,
		DeviceName: device.Name,
		ExpiresAt:  session.ExpiresAt,
	})
}

// Logout は端末セッションを破棄する。
// POST /pwa/logout
func (h *CompanionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := middleware.DeviceTokenFromContext(r.Context())
	if err := h.auth.Logout(r.Context(), token); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListMessages は端末宛てのメッセージを古い順に返す。
// GET /pwa/messages
func (h *CompanionHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := requireDeviceID(w, r)
	if !ok {
		return
	}

	msgs, err := h.messages.ListForDevice(r.Context(), deviceID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]messageResponse, len(msgs))
	for i, m := range msgs {
		resp[i] = toMessageResponse(m)
	}
	writeJSON(w, http.StatusOK, resp)
}

// DeleteMessage はメッセージを1件削除する。
// DELETE /pwa/messages/{id}
func (h *CompanionHandler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := requireDeviceID(w, r)
	if !ok {
		return
	}

	if err := h.messages.Delete(r.Context(), deviceID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteAllMessages は端末宛てのメッセージをすべて削除する。
// DELETE /pwa/messages
func (h *CompanionHandler) DeleteAllMessages(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := requireDeviceID(w, r)
	if !ok {
		return
	}

	n, err := h.messages.DeleteAll(r.Context(), deviceID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

// Events は端末の変更通知をServer-Sent Eventsで配信する。
// 端末が削除された場合はdevice_removedイベントを送ってストリームを閉じる。
// GET /pwa/events
func (h *CompanionHandler) Events(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := requireDeviceID(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		slog.Error("streaming unsupported", slog.String("device_id", deviceID))
		middleware.WriteInternalServerError(w)
		return
	}

	// サーバーのWriteTimeoutでストリームが切れないよう書き込み期限を外す
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	ctx := r.Context()
	events, cancel := h.notifier.Subscribe(ctx, deviceID)
	defer cancel()

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				slog.Error("failed to encode event", slog.String("error", err.Error()))
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
				return
			}
			flusher.Flush()

			if ev.Type == notify.EventDeviceRemoved {
				slog.Info("device removed, closing event stream", slog.String("device_id", deviceID))
				return
			}
		}
	}
}
