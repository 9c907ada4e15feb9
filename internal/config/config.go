package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	DatabaseURL string

	SessionSecret       string // 予約。現状のセッションは不透明トークンのため署名に使わない
	SessionMaxAge       int    // ダッシュボードのセッション有効期間（秒）
	DeviceSessionMaxAge int    // 端末セッション有効期間（秒）

	DefaultRankThreshold int
	UploadMaxSize        int64 // multipart全体の上限（バイト）
	UploadMaxFiles       int

	BatchFlushDelay time.Duration

	// RedisURLが空の場合、端末イベントはプロセス内で配信する
	RedisURL      string
	NotifyChannel string

	// req/min
	RateLimitGeneral int
	RateLimitVerify  int

	CleanupInterval time.Duration

	ServerPort string
	BaseURL    string

	// CookieSecureはBASE_URLがhttps://で始まる場合にtrue
	CookieSecure bool
	CookieDomain string

	CORSAllowedOrigin string
}

// 既定値
const (
	defaultSessionMaxAge       = 86400
	defaultDeviceSessionMaxAge = 30 * 86400
	defaultRankThreshold       = 30
	defaultUploadMaxSize       = 10 << 20
	defaultUploadMaxFiles      = 20
	defaultBatchFlushDelay     = 800 * time.Millisecond
	defaultNotifyChannel       = "linkdist:device-events"
	defaultRateLimitGeneral    = 120
	defaultRateLimitVerify     = 10
	defaultCleanupInterval     = 24 * time.Hour
	defaultServerPort          = "8080"
	defaultCORSAllowedOrigin   = "http://localhost:5173"
)

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。解釈できない任意項目は警告を出して既定値を使う。
func Load() (*Config, error) {
	env := newEnvReader()

	cfg := &Config{
		DatabaseURL:   env.required("DATABASE_URL"),
		SessionSecret: env.required("SESSION_SECRET"),
		BaseURL:       env.required("BASE_URL"),
	}
	if len(env.missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", env.missing)
	}

	cfg.SessionMaxAge = env.getInt("SESSION_MAX_AGE", defaultSessionMaxAge)
	cfg.DeviceSessionMaxAge = env.getInt("DEVICE_SESSION_MAX_AGE", defaultDeviceSessionMaxAge)
	cfg.DefaultRankThreshold = env.getInt("DEFAULT_RANK_THRESHOLD", defaultRankThreshold)
	cfg.UploadMaxSize = env.getInt64("UPLOAD_MAX_SIZE", defaultUploadMaxSize)
	cfg.UploadMaxFiles = env.getInt("UPLOAD_MAX_FILES", defaultUploadMaxFiles)
	cfg.BatchFlushDelay = env.getDuration("BATCH_FLUSH_DELAY", defaultBatchFlushDelay)
	cfg.RedisURL = env.getString("REDIS_URL", "")
	cfg.NotifyChannel = env.getString("NOTIFY_CHANNEL", defaultNotifyChannel)
	cfg.RateLimitGeneral = env.getInt("RATE_LIMIT_GENERAL", defaultRateLimitGeneral)
	cfg.RateLimitVerify = env.getInt("RATE_LIMIT_VERIFY", defaultRateLimitVerify)
	cfg.CleanupInterval = env.getDuration("CLEANUP_INTERVAL", defaultCleanupInterval)
	cfg.ServerPort = env.getString("SERVER_PORT", defaultServerPort)
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = env.getString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = env.getString("CORS_ALLOWED_ORIGIN", defaultCORSAllowedOrigin)

	if len(env.invalid) > 0 {
		slog.Warn("ignoring invalid environment variables, using defaults",
			slog.Any("keys", env.invalid))
	}

	return cfg, nil
}
