package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/linkdist/internal/middleware"
	"github.com/hitoshi/linkdist/internal/model"
	"github.com/hitoshi/linkdist/internal/notify"
)

type mockDeviceAuth struct {
	verifyFn func(ctx context.Context, code string) (*model.DeviceSession, *model.Device, error)
	logoutFn func(ctx context.Context, token string) error
}

func (m *mockDeviceAuth) Verify(ctx context.Context, code string) (*model.DeviceSession, *model.Device, error) {
	return m.verifyFn(ctx, code)
}

func (m *mockDeviceAuth) Logout(ctx context.Context, token string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, token)
	}
	return nil
}

type mockDeviceMessages struct {
	listFn      func(ctx context.Context, deviceID string) ([]*model.Message, error)
	deleteFn    func(ctx context.Context, deviceID, messageID string) error
	deleteAllFn func(ctx context.Context, deviceID string) (int64, error)
}

func (m *mockDeviceMessages) ListForDevice(ctx context.Context, deviceID string) ([]*model.Message, error) {
	if m.listFn != nil {
		return m.listFn(ctx, deviceID)
	}
	return []*model.Message{}, nil
}

func (m *mockDeviceMessages) Delete(ctx context.Context, deviceID, messageID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, deviceID, messageID)
	}
	return nil
}

func (m *mockDeviceMessages) DeleteAll(ctx context.Context, deviceID string) (int64, error) {
	if m.deleteAllFn != nil {
		return m.deleteAllFn(ctx, deviceID)
	}
	return 0, nil
}

func newTestBroker() *notify.Broker {
	return notify.NewBroker(slog.New(slog.NewTextHandler(io.Discard, nil)), 4)
}

func TestCompanionHandler_Verify(t *testing.T) {
	expires := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	auth := &mockDeviceAuth{
		verifyFn: func(ctx context.Context, code string) (*model.DeviceSession, *model.Device, error) {
			switch code {
			case "123456":
				return &model.DeviceSession{ID: "tok", DeviceID: "dev-1", ExpiresAt: expires},
					&model.Device{ID: "dev-1", Name: "Phone A"}, nil
			case "12ab":
				return nil, nil, model.NewInvalidVerificationCodeError()
			default:
				return nil, nil, model.NewVerificationCodeNotFoundError()
			}
		},
	}
	h := NewCompanionHandler(auth, &mockDeviceMessages{}, newTestBroker())

	t.Run("成功", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.Verify(w, httptest.NewRequest(http.MethodPost, "/pwa/verify", strings.NewReader(`{"code":"123456"}`)))
		var body verifyResponse
		decodeBody(t, w, &body)
		if body.Token != "tok" || body.DeviceID != "dev-1" || body.DeviceName != "Phone A" || !body.ExpiresAt.Equal(expires) {
			t.Errorf("body = %+v", body)
		}
	})

	t.Run("形式不正", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.Verify(w, httptest.NewRequest(http.MethodPost, "/pwa/verify", strings.NewReader(`{"code":"12ab"}`)))
		assertError(t, w, http.StatusBadRequest, model.ErrCodeInvalidVerificationCode)
	})

	t.Run("見つからない", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.Verify(w, httptest.NewRequest(http.MethodPost, "/pwa/verify", strings.NewReader(`{"code":"999999"}`)))
		assertError(t, w, http.StatusNotFound, model.ErrCodeVerificationCodeNotFound)
	})
}

func TestCompanionHandler_Logout_UsesVerifiedToken(t *testing.T) {
	var got string
	auth := &mockDeviceAuth{
		logoutFn: func(ctx context.Context, token string) error {
			got = token
			return nil
		},
	}
	resolver := deviceResolverFunc(func(ctx context.Context, token string) (*model.DeviceSession, error) {
		return &model.DeviceSession{ID: token, DeviceID: "dev-1"}, nil
	})
	h := NewCompanionHandler(auth, &mockDeviceMessages{}, newTestBroker())
	handler := middleware.NewDeviceSessionMiddleware(resolver)(http.HandlerFunc(h.Logout))

	req := httptest.NewRequest(http.MethodPost, "/pwa/logout", nil)
	req.Header.Set("Authorization", "Bearer tok-1")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent || got != "tok-1" {
		t.Errorf("status = %d, token = %q", w.Code, got)
	}
}

func TestCompanionHandler_Messages(t *testing.T) {
	msgs := &mockDeviceMessages{
		listFn: func(ctx context.Context, deviceID string) ([]*model.Message, error) {
			return []*model.Message{{ID: "m1", DeviceID: deviceID, Content: "https://s/a"}}, nil
		},
		deleteFn: func(ctx context.Context, deviceID, messageID string) error {
			if messageID != "m1" {
				return model.NewMessageNotFoundError(messageID)
			}
			return nil
		},
		deleteAllFn: func(ctx context.Context, deviceID string) (int64, error) {
			return 3, nil
		},
	}
	h := NewCompanionHandler(&mockDeviceAuth{}, msgs, newTestBroker())

	t.Run("一覧", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ListMessages(w, withDeviceID(httptest.NewRequest(http.MethodGet, "/pwa/messages", nil), "dev-1"))
		var body []messageResponse
		decodeBody(t, w, &body)
		if len(body) != 1 || body[0].DeviceID != "dev-1" {
			t.Errorf("body = %+v", body)
		}
	})

	t.Run("1件削除", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.DeleteMessage(w, withChiURLParam(withDeviceID(httptest.NewRequest(http.MethodDelete, "/pwa/messages/m1", nil), "dev-1"), "id", "m1"))
		if w.Code != http.StatusNoContent {
			t.Errorf("status = %d, want 204", w.Code)
		}
	})

	t.Run("存在しないメッセージ", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.DeleteMessage(w, withChiURLParam(withDeviceID(httptest.NewRequest(http.MethodDelete, "/pwa/messages/mx", nil), "dev-1"), "id", "mx"))
		assertError(t, w, http.StatusNotFound, model.ErrCodeMessageNotFound)
	})

	t.Run("全件削除", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.DeleteAllMessages(w, withDeviceID(httptest.NewRequest(http.MethodDelete, "/pwa/messages", nil), "dev-1"))
		var body map[string]int64
		decodeBody(t, w, &body)
		if body["deleted"] != 3 {
			t.Errorf("deleted = %d, want 3", body["deleted"])
		}
	})

	t.Run("端末セッションなし", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ListMessages(w, httptest.NewRequest(http.MethodGet, "/pwa/messages", nil))
		assertError(t, w, http.StatusUnauthorized, model.ErrCodeUnauthorized)
	})
}

func TestCompanionHandler_Events_DeviceRemoved(t *testing.T) {
	broker := newTestBroker()
	h := NewCompanionHandler(&mockDeviceAuth{}, &mockDeviceMessages{}, broker)

	w := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.Events(w, withDeviceID(httptest.NewRequest(http.MethodGet, "/pwa/events", nil), "dev-1"))
	}()

	// 購読が登録されるまで待つ
	deadline := time.Now().Add(2 * time.Second)
	for broker.SubscriberCount("dev-1") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber was not registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := broker.Publish(context.Background(), notify.DeviceRemoved("dev-1")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("event stream did not close after device_removed")
	}

	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	body := w.Body.String()
	if !strings.HasPrefix(body, ": connected\n\n") {
		t.Errorf("body should start with connected comment: %q", body)
	}
	if !strings.Contains(body, "event: device_removed\ndata: {") || !strings.Contains(body, `"device_id":"dev-1"`) {
		t.Errorf("body = %q", body)
	}
	if broker.SubscriberCount("dev-1") != 0 {
		t.Error("subscription should be released")
	}
}

func TestCompanionHandler_Events_HeartbeatAndDisconnect(t *testing.T) {
	h := NewCompanionHandler(&mockDeviceAuth{}, &mockDeviceMessages{}, newTestBroker())
	h.heartbeat = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	req := withDeviceID(httptest.NewRequest(http.MethodGet, "/pwa/events", nil).WithContext(ctx), "dev-1")

	w := httptest.NewRecorder()
	h.Events(w, req)

	if !strings.Contains(w.Body.String(), ": heartbeat\n\n") {
		t.Errorf("expected heartbeat comment, body = %q", w.Body.String())
	}
}

type deviceResolverFunc func(ctx context.Context, token string) (*model.DeviceSession, error)

func (f deviceResolverFunc) Resolve(ctx context.Context, token string) (*model.DeviceSession, error) {
	return f(ctx, token)
}
