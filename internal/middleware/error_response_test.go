package middleware

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/linkdist/internal/model"
)

func decodeErrorBody(t *testing.T, w *httptest.ResponseRecorder) ErrorResponseBody {
	t.Helper()
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	return body
}

// TestWriteErrorResponse はドメインエラーがステータスとともに統一フォーマットで書き込まれることを検証する。
func TestWriteErrorResponse(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		apiErr     *model.APIError
	}{
		{"未認証", http.StatusUnauthorized, model.NewUnauthorizedError()},
		{"CSRF", http.StatusForbidden, model.NewCSRFTokenInvalidError()},
		{"バッチなし", http.StatusNotFound, model.NewBatchNotFoundError("b-9")},
		{"コード衝突", http.StatusConflict, model.NewVerificationCodeConflictError()},
		{"サイズ超過", http.StatusRequestEntityTooLarge, model.NewUploadTooLargeError(1024)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteErrorResponse(w, tt.statusCode, tt.apiErr)

			if w.Code != tt.statusCode {
				t.Errorf("status = %d, want %d", w.Code, tt.statusCode)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", ct)
			}
			if got, want := decodeErrorBody(t, w), NewErrorResponseBody(tt.apiErr); got != want {
				t.Errorf("body = %+v, want %+v", got, want)
			}
		})
	}
}

// TestErrorResponseBody_JSONKeys はレスポンスのJSONキーが小文字の4項目であることを検証する。
func TestErrorResponseBody_JSONKeys(t *testing.T) {
	w := httptest.NewRecorder()
	WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())

	var raw map[string]any
	if err := json.NewDecoder(w.Body).Decode(&raw); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if len(raw) != 4 {
		t.Errorf("keys = %v, want exactly 4", raw)
	}
	for _, key := range []string{"code", "message", "category", "action"} {
		if v, ok := raw[key].(string); !ok || v == "" {
			t.Errorf("%s should be a non-empty string, got %v", key, raw[key])
		}
	}
}

// TestWriteInternalServerError は内部エラーが詳細を含まない一般的な応答になることを検証する。
func TestWriteInternalServerError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteInternalServerError(w)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	body := decodeErrorBody(t, w)
	if body.Code != model.ErrCodeInternal || body.Category != "system" {
		t.Errorf("body = %+v, want INTERNAL_ERROR/system", body)
	}
}

// TestWriteErrorResponse_NilFallsBackToInternal はnilのAPIErrorを内部エラーとして書き込むことを検証する。
func TestWriteErrorResponse_NilFallsBackToInternal(t *testing.T) {
	w := httptest.NewRecorder()
	WriteErrorResponse(w, http.StatusInternalServerError, nil)

	if body := decodeErrorBody(t, w); body.Code != model.ErrCodeInternal {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeInternal)
	}
}

// TestWriteJSON_EncodeFailureKeepsStatus はエンコードできない値でもステータスは書き込み済みであることを検証する。
func TestWriteJSON_EncodeFailureKeepsStatus(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusOK, map[string]float64{"x": math.NaN()})

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}
