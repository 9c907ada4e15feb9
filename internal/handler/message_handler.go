package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/linkdist/internal/model"
)

// MessageSenderInterface はダッシュボードからの手動送信に必要なサービスインターフェース。
type MessageSenderInterface interface {
	Send(ctx context.Context, userID, deviceID, content string) (*model.Message, error)
}

// MessageHandler は手動メッセージ送信のHTTPハンドラー。
type MessageHandler struct {
	service MessageSenderInterface
}

// NewMessageHandler はMessageHandlerを生成する。
func NewMessageHandler(service MessageSenderInterface) *MessageHandler {
	return &MessageHandler{service: service}
}

type sendMessageRequest struct {
	DeviceID string `json:"device_id"`
	Content  string `json:"content"`
}

// messageResponse はメッセージのAPIレスポンス。
type messageResponse struct {
	ID        string    `json:"id"`
	DeviceID  string    `json:"device_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func toMessageResponse(m *model.Message) messageResponse {
	return messageResponse{
		ID:        m.ID,
		DeviceID:  m.DeviceID,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}

// Send は指定端末へメッセージを送信する。
// POST /api/messages
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req sendMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	msg, err := h.service.Send(r.Context(), userID, req.DeviceID, req.Content)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toMessageResponse(msg))
}
