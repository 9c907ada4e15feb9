// Package companion は端末側で動くコンパニオンクライアントを提供する。
// /pwa/* APIのクライアント、端末セッションの保存、メッセージのポーリングを含む。
package companion

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrUnauthorized は端末セッションが無効になったことを表す。
var ErrUnauthorized = errors.New("端末セッションが無効です")

// ResponseError はAPIがエラーステータスを返した場合のエラー。
type ResponseError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
	Action     string `json:"action"`
}

// Error はerrorインターフェースを実装する。
func (e *ResponseError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("APIがステータス %d を返しました", e.StatusCode)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は401の場合にErrUnauthorizedを返す。
func (e *ResponseError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// Message は端末宛てのメッセージ。
type Message struct {
	ID        string    `json:"id"`
	DeviceID  string    `json:"device_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Event はSSEで受信したイベント。
type Event struct {
	Type string
	Data string
}

// EventDeviceRemoved は端末が削除されたことを表すイベント種別。
const EventDeviceRemoved = "device_removed"

// Client はコンパニオンAPIのクライアント。
// Verify以外の呼び出しにはBearerトークンとして端末セッションを付与する。
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
}

// NewClient はClientを生成する。httpClientがnilの場合は10秒タイムアウトのクライアントを使う。
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// SetToken はリクエストに付与する端末セッショントークンを設定する。
func (c *Client) SetToken(token string) {
	c.token = token
}

// Verify は認証コードで端末セッションを発行する。
func (c *Client) Verify(ctx context.Context, code string) (*StoredSession, error) {
	var s StoredSession
	if err := c.do(ctx, http.MethodPost, "/pwa/verify", map[string]string{"code": code}, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Logout はサーバー側の端末セッションを破棄する。
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/pwa/logout", nil, nil)
}

// ListMessages は端末宛てのメッセージを古い順に取得する。
func (c *Client) ListMessages(ctx context.Context) ([]Message, error) {
	var msgs []Message
	if err := c.do(ctx, http.MethodGet, "/pwa/messages", nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// DeleteMessage はメッセージを1件削除する。
func (c *Client) DeleteMessage(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/pwa/messages/"+id, nil, nil)
}

// DeleteAll は端末宛ての全メッセージを削除し、削除件数を返す。
func (c *Client) DeleteAll(ctx context.Context) (int64, error) {
	var resp struct {
		Deleted int64 `json:"deleted"`
	}
	if err := c.do(ctx, http.MethodDelete, "/pwa/messages", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Deleted, nil
}

// StreamEvents は/pwa/eventsに接続し、受信したイベントごとにhandleを呼ぶ。
// handleがfalseを返すか、ストリームが終了するか、ctxが終了すると戻る。
// コメント行(ハートビート)は無視する。
func (c *Client) StreamEvents(ctx context.Context, handle func(Event) bool) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/pwa/events", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	// ストリームは長時間接続のため全体タイムアウトを外す
	stream := *c.httpClient
	stream.Timeout = 0

	resp, err := stream.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("イベントストリームへの接続に失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}

	var ev Event
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if ev.Type == "" && ev.Data == "" {
				continue
			}
			if !handle(ev) {
				return nil
			}
			ev = Event{}
		case strings.HasPrefix(line, ":"):
			// comment
		case strings.HasPrefix(line, "event:"):
			ev.Type = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data := strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " ")
			if ev.Data != "" {
				ev.Data += "\n"
			}
			ev.Data += data
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("イベントストリームの読み取りに失敗しました: %w", err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("リクエストのエンコードに失敗しました: %w", err)
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("User-Agent", "linkdist-companion/1.0")
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s に失敗しました: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	e := &ResponseError{StatusCode: resp.StatusCode}
	// ボディが読めない場合もステータスだけで判断できる
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(e)
	return e
}
