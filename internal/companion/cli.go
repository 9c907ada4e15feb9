package companion

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

// CLI はコンパニオンのサブコマンドを実行する。
type CLI struct {
	Client       *Client
	Store        *SessionStore
	PollInterval time.Duration
	In           io.Reader
	Out          io.Writer
	Logger       *slog.Logger
}

const usage = `usage: companion <command>

commands:
  login <code>   6桁の認証コードで端末セッションを発行する
  watch          メッセージを監視する (d <id> で削除, clear で全削除, q で終了)
  delete <id>    メッセージを1件削除する
  clear          全メッセージを削除する
  logout         端末セッションを破棄する`

// ErrUsage はサブコマンドの指定が不正な場合のエラー。
var ErrUsage = errors.New(usage)

// Run はargsで指定されたサブコマンドを実行する。
func (c *CLI) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return ErrUsage
	}

	switch args[0] {
	case "login":
		if len(args) != 2 {
			return ErrUsage
		}
		return c.login(ctx, args[1])
	case "watch":
		return c.watch(ctx)
	case "delete":
		if len(args) != 2 {
			return ErrUsage
		}
		return c.withSession(ctx, func(ctx context.Context) error {
			if err := c.Client.DeleteMessage(ctx, args[1]); err != nil {
				return err
			}
			fmt.Fprintf(c.Out, "deleted %s\n", args[1])
			return nil
		})
	case "clear":
		return c.withSession(ctx, func(ctx context.Context) error {
			n, err := c.Client.DeleteAll(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.Out, "deleted %d messages\n", n)
			return nil
		})
	case "logout":
		return c.logout(ctx)
	default:
		return ErrUsage
	}
}

func (c *CLI) login(ctx context.Context, code string) error {
	session, err := c.Client.Verify(ctx, strings.TrimSpace(code))
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	if err := c.Store.Save(session); err != nil {
		return err
	}
	fmt.Fprintf(c.Out, "logged in as %s\n", session.DeviceName)
	return nil
}

func (c *CLI) logout(ctx context.Context) error {
	session, err := c.Store.Load()
	if errors.Is(err, ErrNoSession) {
		return nil
	}
	if err != nil {
		return err
	}

	c.Client.SetToken(session.Token)
	// サーバー側の失敗に関わらずローカルのセッションは削除する
	logoutErr := c.Client.Logout(ctx)
	if err := c.Store.Clear(); err != nil {
		return err
	}
	if logoutErr != nil && !errors.Is(logoutErr, ErrUnauthorized) {
		return fmt.Errorf("logout failed: %w", logoutErr)
	}
	fmt.Fprintln(c.Out, "logged out")
	return nil
}

// withSession は保存済みセッションでfnを実行する。401の場合はセッションを削除する。
func (c *CLI) withSession(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := c.loadToken(); err != nil {
		return err
	}
	err := fn(ctx)
	if errors.Is(err, ErrUnauthorized) {
		if clearErr := c.Store.Clear(); clearErr != nil {
			return clearErr
		}
		return ErrSessionRevoked
	}
	return err
}

func (c *CLI) loadToken() error {
	session, err := c.Store.Load()
	if errors.Is(err, ErrNoSession) {
		return fmt.Errorf("%w: run `companion login <code>` first", err)
	}
	if err != nil {
		return err
	}
	c.Client.SetToken(session.Token)
	return nil
}

func (c *CLI) watch(ctx context.Context) error {
	if err := c.loadToken(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// メッセージ表示とコマンドの応答は同じロックを通して書き込む
	out := newLockedWriter(c.Out)
	w := NewWatcher(c.Client, c.Store, out, c.PollInterval, c.Logger)

	if c.In != nil {
		go func() {
			scanner := bufio.NewScanner(c.In)
			for scanner.Scan() {
				if !runWatchCommand(ctx, w, out, scanner.Text()) {
					cancel()
					return
				}
			}
		}()
	}

	return w.Run(ctx)
}

// runWatchCommand は監視中に入力された1行を処理する。終了する場合はfalseを返す。
func runWatchCommand(ctx context.Context, w *Watcher, out io.Writer, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return true
	}

	switch fields[0] {
	case "q", "quit", "exit":
		return false
	case "d", "delete":
		if len(fields) != 2 {
			fmt.Fprintln(out, "usage: d <message-id>")
			return true
		}
		if err := w.DeleteMessage(ctx, fields[1]); err != nil {
			fmt.Fprintln(out, err)
		}
	case "clear":
		n, err := w.DeleteAll(ctx)
		if err != nil {
			fmt.Fprintln(out, err)
			return true
		}
		fmt.Fprintf(out, "deleted %d messages\n", n)
	default:
		fmt.Fprintf(out, "unknown command: %s\n", fields[0])
	}
	return true
}
