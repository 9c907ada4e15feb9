package companion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestCLI(t *testing.T, srvURL string, in io.Reader) (*CLI, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	return &CLI{
		Client:       NewClient(srvURL, nil),
		Store:        newTestStore(t, time.Now()),
		PollInterval: 10 * time.Millisecond,
		In:           in,
		Out:          &out,
		Logger:       slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}, &out
}

func saveValidSession(t *testing.T, store *SessionStore) {
	t.Helper()
	if err := store.Save(&StoredSession{Token: "tok", DeviceID: "dev-1", DeviceName: "Phone", ExpiresAt: time.Now().Add(time.Hour)}); err != nil {
		t.Fatal(err)
	}
}

func TestCLI_UsageErrors(t *testing.T) {
	cli, _ := newTestCLI(t, "http://127.0.0.1:1", nil)

	for _, args := range [][]string{nil, {"unknown"}, {"login"}, {"delete"}, {"login", "1", "2"}} {
		if err := cli.Run(context.Background(), args); !errors.Is(err, ErrUsage) {
			t.Errorf("Run(%v) error = %v, want ErrUsage", args, err)
		}
	}
}

func TestCLI_Login_SavesSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"token":"tok","device_id":"dev-1","device_name":"Phone","expires_at":%q}`,
			time.Now().Add(time.Hour).UTC().Format(time.RFC3339))
	}))
	defer srv.Close()

	cli, out := newTestCLI(t, srv.URL, nil)
	if err := cli.Run(context.Background(), []string{"login", "123456"}); err != nil {
		t.Fatalf("login error = %v", err)
	}

	s, err := cli.Store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.Token != "tok" || s.DeviceName != "Phone" {
		t.Errorf("saved session = %+v", s)
	}
	if !strings.Contains(out.String(), "Phone") {
		t.Errorf("output = %q", out.String())
	}
}

func TestCLI_Delete_WithoutSession_ReturnsErrNoSession(t *testing.T) {
	cli, _ := newTestCLI(t, "http://127.0.0.1:1", nil)

	if err := cli.Run(context.Background(), []string{"delete", "m1"}); !errors.Is(err, ErrNoSession) {
		t.Errorf("error = %v, want ErrNoSession", err)
	}
}

func TestCLI_Clear_Unauthorized_ClearsSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	cli, _ := newTestCLI(t, srv.URL, nil)
	saveValidSession(t, cli.Store)

	if err := cli.Run(context.Background(), []string{"clear"}); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("error = %v, want ErrSessionRevoked", err)
	}
	if _, err := cli.Store.Load(); !errors.Is(err, ErrNoSession) {
		t.Errorf("session should be cleared, Load() error = %v", err)
	}
}

func TestCLI_DeleteAndClear(t *testing.T) {
	fake := newFakeCompanionServer("m1", "m2")
	srv := httptest.NewServer(fake)
	defer srv.Close()

	cli, out := newTestCLI(t, srv.URL, nil)
	saveValidSession(t, cli.Store)

	if err := cli.Run(context.Background(), []string{"delete", "m1"}); err != nil {
		t.Fatalf("delete error = %v", err)
	}
	if err := cli.Run(context.Background(), []string{"clear"}); err != nil {
		t.Fatalf("clear error = %v", err)
	}
	if !strings.Contains(out.String(), "deleted m1") || !strings.Contains(out.String(), "deleted 1 messages") {
		t.Errorf("output = %q", out.String())
	}
}

func TestCLI_Logout_ClearsSessionEvenIfServerFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cli, _ := newTestCLI(t, srv.URL, nil)
	saveValidSession(t, cli.Store)

	if err := cli.Run(context.Background(), []string{"logout"}); err == nil {
		t.Error("logout should report the server failure")
	}
	if _, err := cli.Store.Load(); !errors.Is(err, ErrNoSession) {
		t.Errorf("session should be cleared, Load() error = %v", err)
	}
}

func TestCLI_Logout_WithoutSession_IsNoop(t *testing.T) {
	cli, _ := newTestCLI(t, "http://127.0.0.1:1", nil)

	if err := cli.Run(context.Background(), []string{"logout"}); err != nil {
		t.Errorf("logout error = %v, want nil", err)
	}
}

func TestCLI_Watch_HandlesCommandsAndQuits(t *testing.T) {
	fake := newFakeCompanionServer("m1", "m2")
	srv := httptest.NewServer(fake)
	defer srv.Close()

	pr, pw := io.Pipe()
	cli, _ := newTestCLI(t, srv.URL, pr)
	var out syncBuffer
	cli.Out = &out
	saveValidSession(t, cli.Store)

	errCh := make(chan error, 1)
	go func() { errCh <- cli.Run(context.Background(), []string{"watch"}) }()

	waitFor(t, func() bool { return strings.Contains(out.String(), "link-m2") })
	fmt.Fprintln(pw, "d m1")
	fmt.Fprintln(pw, "clear")
	waitFor(t, func() bool { return strings.Contains(out.String(), "deleted 1 messages") })
	fmt.Fprintln(pw, "q")

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("watch error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop on q")
	}
	_ = pw.Close()

	if _, err := cli.Store.Load(); err != nil {
		t.Errorf("session should be kept after quitting, Load() error = %v", err)
	}
}
