package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/linkdist/internal/batch"
	"github.com/hitoshi/linkdist/internal/model"
)

// BatchServiceInterface はバッチハンドラーが必要とするサービスインターフェース。
type BatchServiceInterface interface {
	List(ctx context.Context, userID string) ([]*model.Batch, error)
	Resize(ctx context.Context, userID string, target int) ([]*model.Batch, error)
	Edit(ctx context.Context, userID, batchID string, edit batch.BatchEdit) (*model.Batch, error)
	Flush(ctx context.Context, userID string) error
	Delete(ctx context.Context, userID, batchID string) error
	Distribute(ctx context.Context, userID string) (*batch.DistributionResult, error)
	Send(ctx context.Context, userID, batchID string) (*batch.SendResult, error)
}

// BatchHandler はバッチ管理のHTTPハンドラー。
type BatchHandler struct {
	service BatchServiceInterface
}

// NewBatchHandler はBatchHandlerを生成する。
func NewBatchHandler(service BatchServiceInterface) *BatchHandler {
	return &BatchHandler{service: service}
}

type resizeBatchesRequest struct {
	Count *int `json:"count"`
}

// editBatchRequest はバッチ編集リクエストのボディ。省略したフィールドは変更しない。
type editBatchRequest struct {
	Capacity    *int    `json:"capacity"`
	Destination *string `json:"destination"`
	Links       *string `json:"links"`
}

// batchResponse はバッチのAPIレスポンス。
type batchResponse struct {
	ID          string    `json:"id"`
	Index       int       `json:"index"`
	Capacity    int       `json:"capacity"`
	Destination *string   `json:"destination"`
	Links       string    `json:"links"`
	LinkCount   int       `json:"link_count"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type assignmentResponse struct {
	BatchID string `json:"batch_id"`
	Index   int    `json:"index"`
	Count   int    `json:"count"`
}

type distributeResponse struct {
	Distributed int                  `json:"distributed"`
	Remaining   int                  `json:"remaining"`
	Assigned    []assignmentResponse `json:"assigned"`
}

type sendBatchResponse struct {
	BatchID   string `json:"batch_id"`
	DeviceID  string `json:"device_id"`
	MessageID string `json:"message_id"`
	Count     int    `json:"count"`
}

func toBatchResponse(b *model.Batch) batchResponse {
	return batchResponse{
		ID:          b.ID,
		Index:       b.Index,
		Capacity:    b.Capacity,
		Destination: b.Destination,
		Links:       b.Links,
		LinkCount:   len(b.LinkList()),
		UpdatedAt:   b.UpdatedAt,
	}
}

func writeBatches(w http.ResponseWriter, batches []*model.Batch) {
	resp := make([]batchResponse, len(batches))
	for i, b := range batches {
		resp[i] = toBatchResponse(b)
	}
	writeJSON(w, http.StatusOK, resp)
}

// List はバッチ一覧を返す。
// GET /api/batches
func (h *BatchHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	batches, err := h.service.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeBatches(w, batches)
}

// Resize はバッチ数を変更し、変更後の一覧を返す。
// PUT /api/batches/count
func (h *BatchHandler) Resize(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req resizeBatchesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Count == nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	batches, err := h.service.Resize(r.Context(), userID, *req.Count)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeBatches(w, batches)
}

// Edit はバッチを編集する。書き込みは短い遅延の後にまとめて行われる。
// PATCH /api/batches/{id}
func (h *BatchHandler) Edit(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req editBatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	b, err := h.service.Edit(r.Context(), userID, chi.URLParam(r, "id"), batch.BatchEdit{
		Capacity:    req.Capacity,
		Destination: req.Destination,
		Links:       req.Links,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBatchResponse(b))
}

// Flush は保留中の編集を直ちに書き込む。
// POST /api/batches/flush
func (h *BatchHandler) Flush(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Flush(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Delete はバッチを1件削除する。
// DELETE /api/batches/{id}
func (h *BatchHandler) Delete(w http.ResponseWriter, r *http.Request) {
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

// Distribute は倉庫のリンクをバッチへ分配する。
// POST /api/batches/distribute
func (h *BatchHandler) Distribute(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	result, err := h.service.Distribute(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := distributeResponse{
		Distributed: result.Distributed,
		Remaining:   result.Remaining,
		Assigned:    make([]assignmentResponse, len(result.Assigned)),
	}
	for i, a := range result.Assigned {
		resp.Assigned[i] = assignmentResponse{BatchID: a.SlotID, Index: a.Index, Count: len(a.Links)}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Send はバッチのリンクを配信先の端末へ送信する。
// POST /api/batches/{id}/send
func (h *BatchHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	result, err := h.service.Send(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sendBatchResponse{
		BatchID:   result.BatchID,
		DeviceID:  result.DeviceID,
		MessageID: result.MessageID,
		Count:     result.Count,
	})
}
