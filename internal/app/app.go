package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/linkdist/internal/auth"
	"github.com/hitoshi/linkdist/internal/batch"
	"github.com/hitoshi/linkdist/internal/config"
	"github.com/hitoshi/linkdist/internal/database"
	"github.com/hitoshi/linkdist/internal/device"
	"github.com/hitoshi/linkdist/internal/handler"
	"github.com/hitoshi/linkdist/internal/logger"
	"github.com/hitoshi/linkdist/internal/message"
	"github.com/hitoshi/linkdist/internal/metrics"
	"github.com/hitoshi/linkdist/internal/middleware"
	"github.com/hitoshi/linkdist/internal/notify"
	"github.com/hitoshi/linkdist/internal/repository"
	"github.com/hitoshi/linkdist/internal/security"
	"github.com/hitoshi/linkdist/internal/user"
	"github.com/hitoshi/linkdist/internal/warehouse"
	"github.com/hitoshi/linkdist/internal/worker/cleanup"
)

// shutdownTimeout はグレースフルシャットダウンの待ち時間。
const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// newNotifier はREDIS_URLが設定されていればRedis経由の通知を、
// 未設定ならプロセス内のBrokerを返す。返された関数で後始末を行う。
func newNotifier(ctx context.Context, cfg *config.Config) (notify.Notifier, func(), error) {
	if cfg.RedisURL == "" {
		slog.Info("using in-process notifier")
		return notify.NewBroker(slog.Default(), notify.DefaultSubscriberBuffer), func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	n := notify.NewRedisNotifier(client, cfg.NotifyChannel, slog.Default())
	if err := n.Start(ctx); err != nil {
		_ = client.Close()
		return nil, nil, err
	}

	slog.Info("using redis notifier", slog.String("channel", cfg.NotifyChannel))
	return n, func() {
		if err := n.Close(); err != nil {
			slog.Error("failed to close notifier", slog.String("error", err.Error()))
		}
		_ = client.Close()
	}, nil
}

// newRegistry はプロセス標準のコレクターを登録したPrometheusレジストリを返す。
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Connect(context.Background(), cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. 通知とメトリクス
	notifier, closeNotifier, err := newNotifier(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer closeNotifier()

	reg := newRegistry()
	collector := metrics.NewCollector(reg)

	// 3. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	deviceRepo := repository.NewPostgresDeviceRepo(db)
	deviceSessionRepo := repository.NewPostgresDeviceSessionRepo(db)
	messageRepo := repository.NewPostgresMessageRepo(db)
	poolRepo := repository.NewPostgresLinkPoolRepo(db)
	exclusionRepo := repository.NewPostgresExclusionRepo(db)
	batchRepo := repository.NewPostgresBatchRepo(db)
	tx := repository.NewPostgresTransactor(db)

	// 4. ドメインサービスの初期化
	authService := auth.NewService(userRepo, sessionRepo, auth.ServiceConfig{
		SessionMaxAge: cfg.SessionMaxAge,
	})
	userService := user.NewService(tx, notifier)
	deviceService := device.NewService(deviceRepo, deviceSessionRepo, notifier, device.ServiceConfig{
		SessionMaxAge: cfg.DeviceSessionMaxAge,
	})
	messageService := message.NewService(messageRepo, deviceRepo, security.NewMessageSanitizer())
	warehouseService := warehouse.NewService(poolRepo, exclusionRepo, tx, collector, warehouse.ServiceConfig{
		MaxFiles: cfg.UploadMaxFiles,
	})
	batchService := batch.NewService(batchRepo, deviceRepo, tx, collector, batch.ServiceConfig{
		FlushDelay: cfg.BatchFlushDelay,
	})

	// 5. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitVerify),
	)
	defer rateLimiter.Stop()

	authConfig := handler.AuthHandlerConfig{
		CookieDomain:  cfg.CookieDomain,
		CookieSecure:  cfg.CookieSecure,
		SessionMaxAge: cfg.SessionMaxAge,
	}

	deps := &handler.RouterDeps{
		HealthChecker:   db,
		MetricsGatherer: reg,
		StatusRecorder:  collector,
		Logger:          slog.Default(),

		SessionFinder:         sessionRepo,
		DeviceSessionResolver: deviceService,
		CORSAllowedOrigin:     cfg.CORSAllowedOrigin,
		SecurityHeaders:       securityHeadersConfig(cfg),
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter: rateLimiter,

		AuthService: authService,
		AuthConfig:  authConfig,

		UserService:      userService,
		DeviceService:    deviceService,
		MessageSender:    messageService,
		WarehouseService: warehouseService,
		WarehouseConfig: handler.WarehouseHandlerConfig{
			MaxUploadSize:        cfg.UploadMaxSize,
			DefaultRankThreshold: cfg.DefaultRankThreshold,
		},
		BatchService: batchService,

		DeviceAuth:     deviceService,
		DeviceMessages: messageService,
		Notifier:       notifier,
	}

	router := handler.NewRouter(deps)

	// 6. HTTPサーバーの起動
	// WriteTimeoutはSSEのハンドラー側で個別に解除する
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-stop:
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
	}
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	// 保留中のバッチ編集を書き出してから終了する
	if err := batchService.Close(ctx); err != nil {
		slog.Error("failed to flush pending batch edits", slog.String("error", err.Error()))
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、期限切れセッションのクリーンアップを定期実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	db, err := database.Connect(context.Background(), cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	job := cleanup.NewCleanupJob(slog.Default(),
		cleanup.Target{Name: "sessions", Purger: repository.NewPostgresSessionRepo(db)},
		cleanup.Target{Name: "device_sessions", Purger: repository.NewPostgresDeviceSessionRepo(db)},
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("worker starting", slog.Duration("cleanup_interval", cfg.CleanupInterval))

	// ctxが終了するまでブロックする
	job.Start(ctx, cfg.CleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}

// hstsMaxAge はHTTPSで公開する場合に付与するHSTSの有効期間。
const hstsMaxAge = 365 * 24 * time.Hour

// securityHeadersConfig はBASE_URLがHTTPSの場合のみHSTSを有効にする。
func securityHeadersConfig(cfg *config.Config) middleware.SecurityHeadersConfig {
	if !cfg.CookieSecure {
		return middleware.SecurityHeadersConfig{}
	}
	return middleware.SecurityHeadersConfig{HSTSMaxAge: hstsMaxAge}
}
