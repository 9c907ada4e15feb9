package handler

import (
	"context"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/linkdist/internal/model"
	"github.com/hitoshi/linkdist/internal/warehouse"
)

// multipartMemory はマルチパート解析時にメモリへ保持する上限。超過分は一時ファイルへ書き出される。
const multipartMemory = 8 << 20

// WarehouseServiceInterface は倉庫ハンドラーが必要とするサービスインターフェース。
type WarehouseServiceInterface interface {
	Ingest(ctx context.Context, userID string, files []warehouse.Upload, threshold int) (*warehouse.IngestResult, error)
	Get(ctx context.Context, userID string) (*model.LinkPool, error)
	Clear(ctx context.Context, userID string) error
}

// WarehouseHandlerConfig は倉庫ハンドラーの設定。
type WarehouseHandlerConfig struct {
	MaxUploadSize        int64 // リクエスト全体のバイト数上限
	DefaultRankThreshold int
}

// WarehouseHandler は倉庫（リサーチ結果の保管庫）のHTTPハンドラー。
type WarehouseHandler struct {
	service WarehouseServiceInterface
	config  WarehouseHandlerConfig
}

// NewWarehouseHandler はWarehouseHandlerを生成する。
func NewWarehouseHandler(service WarehouseServiceInterface, config WarehouseHandlerConfig) *WarehouseHandler {
	return &WarehouseHandler{service: service, config: config}
}

// warehouseResponse は倉庫の内容のAPIレスポンス。
type warehouseResponse struct {
	Links         []string   `json:"links"`
	Count         int        `json:"count"`
	ExcludedCount int        `json:"excluded_count"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
}

// researchResponse はリサーチ取り込み結果のAPIレスポンス。
type researchResponse struct {
	Candidates int      `json:"candidates"`
	Added      []string `json:"added"`
	AddedCount int      `json:"added_count"`
}

// Get は倉庫の内容を返す。
// GET /api/warehouse
func (h *WarehouseHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	pool, err := h.service.Get(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := warehouseResponse{Links: []string{}}
	if pool != nil {
		if pool.Links != nil {
			resp.Links = pool.Links
		}
		if !pool.UpdatedAt.IsZero() {
			resp.UpdatedAt = &pool.UpdatedAt
		}
		resp.ExcludedCount = pool.ExcludedCount
	}
	resp.Count = len(resp.Links)
	writeJSON(w, http.StatusOK, resp)
}

// Clear は倉庫を空にする。
// DELETE /api/warehouse
func (h *WarehouseHandler) Clear(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Clear(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Research はアップロードされたリサーチファイルをランキングし、倉庫へ追加する。
// POST /api/warehouse/research (multipart/form-data: files, rank)
func (h *WarehouseHandler) Research(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if h.config.MaxUploadSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxUploadSize)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		if isBodyTooLarge(err) {
			handleServiceError(w, model.NewUploadTooLargeError(h.config.MaxUploadSize))
			return
		}
		if errors.Is(err, http.ErrNotMultipart) {
			handleServiceError(w, model.NewUploadNoFilesError())
			return
		}
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}
	defer r.MultipartForm.RemoveAll()

	threshold, err := h.rankThreshold(r.FormValue("rank"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	headers := r.MultipartForm.File["files"]
	uploads := make([]warehouse.Upload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			slog.Warn("failed to open uploaded file",
				slog.String("user_id", userID),
				slog.String("filename", fh.Filename),
				slog.String("error", err.Error()),
			)
			handleServiceError(w, model.NewUploadParseFailedError(fh.Filename))
			return
		}
		defer closeUpload(f)
		uploads = append(uploads, warehouse.Upload{Name: fh.Filename, Reader: f})
	}

	result, err := h.service.Ingest(r.Context(), userID, uploads, threshold)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, researchResponse{
		Candidates: len(result.Candidates),
		Added:      result.Added,
		AddedCount: len(result.Added),
	})
}

// rankThreshold はrankフォーム値を解釈する。空の場合は既定値を使う。
func (h *WarehouseHandler) rankThreshold(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return h.config.DefaultRankThreshold, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, model.NewInvalidRankThresholdError(n)
	}
	return n, nil
}

// isBodyTooLarge はMaxBytesReaderの上限超過によるエラーかどうかを判定する。
// multipartパッケージが原因をラップしない経路があるため、メッセージでも判定する。
func isBodyTooLarge(err error) bool {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return true
	}
	return strings.Contains(err.Error(), "request body too large")
}

func closeUpload(f multipart.File) {
	if err := f.Close(); err != nil {
		slog.Warn("failed to close uploaded file", slog.String("error", err.Error()))
	}
}
