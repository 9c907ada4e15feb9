package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func csrfCookieFrom(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == csrfCookieName {
			return c
		}
	}
	return nil
}

// TestCSRFMiddleware_SafeMethods は安全なメソッドが検証なしで通過し、Cookieが発行されることを検証する。
func TestCSRFMiddleware_SafeMethods(t *testing.T) {
	mw := NewCSRFMiddleware(CSRFConfig{})

	for _, method := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		t.Run(method, func(t *testing.T) {
			called := false
			handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(method, "/api/batches", nil))

			if !called {
				t.Error("next handler should be called")
			}
			c := csrfCookieFrom(w.Result())
			if c == nil || len(c.Value) != 64 {
				t.Fatalf("expected 64-char csrf cookie, got %+v", c)
			}
			if c.HttpOnly {
				t.Error("csrf cookie must be readable by the frontend")
			}
		})
	}
}

// TestCSRFMiddleware_ExistingCookieNotReplaced は既存のCookieを置き換えないことを検証する。
func TestCSRFMiddleware_ExistingCookieNotReplaced(t *testing.T) {
	handler := NewCSRFMiddleware(CSRFConfig{})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/batches", nil)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "existing"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if c := csrfCookieFrom(w.Result()); c != nil {
		t.Errorf("cookie should not be reissued, got %q", c.Value)
	}
}

// TestCSRFMiddleware_StateChangingMethods は状態変更メソッドでトークン検証が行われることを検証する。
func TestCSRFMiddleware_StateChangingMethods(t *testing.T) {
	tests := []struct {
		name       string
		cookie     string
		header     string
		wantStatus int
	}{
		{"Cookieなし", "", "tok", http.StatusForbidden},
		{"ヘッダーなし", "tok", "", http.StatusForbidden},
		{"不一致", "tok", "other", http.StatusForbidden},
		{"一致", "tok", "tok", http.StatusOK},
	}
	methods := []string{http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete}

	for _, tt := range tests {
		for _, method := range methods {
			t.Run(tt.name+"/"+method, func(t *testing.T) {
				handler := NewCSRFMiddleware(CSRFConfig{})(okHandler())

				req := httptest.NewRequest(method, "/api/batches/distribute", nil)
				if tt.cookie != "" {
					req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: tt.cookie})
				}
				if tt.header != "" {
					req.Header.Set(csrfHeaderName, tt.header)
				}
				w := httptest.NewRecorder()
				handler.ServeHTTP(w, req)

				if w.Code != tt.wantStatus {
					t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
				}
				if tt.wantStatus == http.StatusForbidden {
					var body ErrorResponseBody
					if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
						t.Fatalf("failed to decode body: %v", err)
					}
					if body.Code != "CSRF_TOKEN_INVALID" {
						t.Errorf("code = %q, want CSRF_TOKEN_INVALID", body.Code)
					}
				}
			})
		}
	}
}

// TestCSRFTokenHandler はトークン取得エンドポイントの挙動を検証する。
func TestCSRFTokenHandler(t *testing.T) {
	handler := NewCSRFTokenHandler(CSRFConfig{CookieSecure: true, CookieDomain: "example.com"})

	t.Run("新規発行", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil))

		var body map[string]string
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode body: %v", err)
		}
		c := csrfCookieFrom(w.Result())
		if c == nil || c.Value != body["token"] {
			t.Fatalf("cookie and body token should match: cookie=%+v body=%v", c, body)
		}
		if !c.Secure || c.Domain != "example.com" {
			t.Errorf("cookie attributes not applied: %+v", c)
		}
	})

	t.Run("既存のトークンを返す", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil)
		req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "existing"})
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		var body map[string]string
		_ = json.NewDecoder(w.Body).Decode(&body)
		if body["token"] != "existing" {
			t.Errorf("token = %q, want existing", body["token"])
		}
	})
}

// TestClearCSRFCookie はCSRFトークンCookieを期限切れで上書きすることを検証する。
func TestClearCSRFCookie(t *testing.T) {
	w := httptest.NewRecorder()
	ClearCSRFCookie(w, CSRFConfig{CookieSecure: true, CookieDomain: "example.com"})

	cookies := w.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("cookies = %d, want 1", len(cookies))
	}
	c := cookies[0]
	if c.Name != csrfCookieName || c.Value != "" || c.MaxAge >= 0 {
		t.Errorf("cookie = %+v, want cleared %s", c, csrfCookieName)
	}
	if !c.Secure || c.Domain != "example.com" {
		t.Errorf("cookie attributes not preserved: %+v", c)
	}
}
