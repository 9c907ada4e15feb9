package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/linkdist/internal/model"
)

// DeviceServiceInterface は端末ハンドラーが必要とするサービスインターフェース。
type DeviceServiceInterface interface {
	List(ctx context.Context, userID string) ([]*model.Device, error)
	Create(ctx context.Context, userID, name string) (*model.Device, error)
	Rename(ctx context.Context, userID, deviceID, name string) (*model.Device, error)
	Delete(ctx context.Context, userID, deviceID string) error
}

// DeviceHandler は端末管理のHTTPハンドラー。
type DeviceHandler struct {
	service DeviceServiceInterface
}

// NewDeviceHandler はDeviceHandlerを生成する。
func NewDeviceHandler(service DeviceServiceInterface) *DeviceHandler {
	return &DeviceHandler{service: service}
}

type deviceNameRequest struct {
	Name string `json:"name"`
}

// deviceResponse は端末情報のAPIレスポンス。
type deviceResponse struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	VerificationCode string    `json:"verification_code"`
	CreatedAt        time.Time `json:"created_at"`
}

func toDeviceResponse(d *model.Device) deviceResponse {
	return deviceResponse{
		ID:               d.ID,
		Name:             d.Name,
		VerificationCode: d.VerificationCode,
		CreatedAt:        d.CreatedAt,
	}
}

// List はユーザーの端末一覧を返す。
// GET /api/devices
func (h *DeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	devices, err := h.service.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]deviceResponse, len(devices))
	for i, d := range devices {
		resp[i] = toDeviceResponse(d)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Create は端末を登録する。
// POST /api/devices
func (h *DeviceHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req deviceNameRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	device, err := h.service.Create(r.Context(), userID, req.Name)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toDeviceResponse(device))
}

// Rename は端末名を変更する。
// PATCH /api/devices/{id}
func (h *DeviceHandler) Rename(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req deviceNameRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	device, err := h.service.Rename(r.Context(), userID, chi.URLParam(r, "id"), req.Name)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toDeviceResponse(device))
}

// Delete は端末を削除する。接続中のコンパニオンクライアントには削除が通知される。
// DELETE /api/devices/{id}
func (h *DeviceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
