// Command companion は端末側でメッセージを受け取るコンパニオンクライアント。
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hitoshi/linkdist/internal/companion"
	"github.com/hitoshi/linkdist/internal/config"
	"github.com/hitoshi/linkdist/internal/logger"
)

func main() {
	cfg := config.LoadCompanion()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cli := &companion.CLI{
		Client:       companion.NewClient(cfg.ServerURL, nil),
		Store:        companion.NewSessionStore(cfg.SessionFile),
		PollInterval: cfg.PollInterval,
		In:           os.Stdin,
		Out:          os.Stdout,
		Logger:       logger.Setup(os.Stderr, slog.String("component", "companion")),
	}

	err := cli.Run(ctx, os.Args[1:])
	switch {
	case err == nil:
	case errors.Is(err, companion.ErrSessionRevoked):
		fmt.Fprintln(os.Stderr, "この端末は削除されたか、セッションが無効になりました。再度ログインしてください。")
		os.Exit(2)
	default:
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
