package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/linkdist/internal/metrics"
	"github.com/hitoshi/linkdist/internal/middleware"
	"github.com/hitoshi/linkdist/internal/notify"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// インフラ
	HealthChecker   HealthChecker
	MetricsGatherer prometheus.Gatherer // nilの場合は/metricsを公開しない
	StatusRecorder  middleware.StatusRecorder
	Logger          *slog.Logger

	// ミドルウェア依存
	SessionFinder         middleware.SessionFinder
	DeviceSessionResolver middleware.DeviceSessionResolver
	CORSAllowedOrigin     string // カンマ区切りで複数指定可
	SecurityHeaders       middleware.SecurityHeadersConfig
	CSRFConfig            middleware.CSRFConfig
	RateLimiter           *middleware.RateLimiter

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// ダッシュボード
	UserService      UserServiceInterface
	DeviceService    DeviceServiceInterface
	MessageSender    MessageSenderInterface
	WarehouseService WarehouseServiceInterface
	WarehouseConfig  WarehouseHandlerConfig
	BatchService     BatchServiceInterface

	// コンパニオンクライアント
	DeviceAuth     DeviceAuthInterface
	DeviceMessages DeviceMessageInterface
	Notifier       notify.Notifier
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// 全ルート共通のミドルウェア:
//
//	Recovery → Logging → Metrics → SecurityHeaders → CORS
//
// ダッシュボードAPI(/api/*)は Session → CSRF → RateLimit(General) の順に検証する。
// コンパニオンAPI(/pwa/*)はBearerトークンで認証するためCSRF検証を行わない。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.StatusRecorder != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.StatusRecorder))
	}
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.SecurityHeaders))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	userHandler := NewUserHandler(deps.UserService, UserHandlerConfig{Auth: deps.AuthConfig, CSRF: deps.CSRFConfig})
	deviceHandler := NewDeviceHandler(deps.DeviceService)
	messageHandler := NewMessageHandler(deps.MessageSender)
	warehouseHandler := NewWarehouseHandler(deps.WarehouseService, deps.WarehouseConfig)
	batchHandler := NewBatchHandler(deps.BatchService)
	companionHandler := NewCompanionHandler(deps.DeviceAuth, deps.DeviceMessages, deps.Notifier)

	// --- 認証不要のルート ---

	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsGatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
	})

	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	// --- ダッシュボードAPI ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/api/devices", func(r chi.Router) {
			r.Get("/", deviceHandler.List)
			r.Post("/", deviceHandler.Create)
			r.Patch("/{id}", deviceHandler.Rename)
			r.Delete("/{id}", deviceHandler.Delete)
		})

		r.Post("/api/messages", messageHandler.Send)

		r.Route("/api/warehouse", func(r chi.Router) {
			r.Get("/", warehouseHandler.Get)
			r.Delete("/", warehouseHandler.Clear)
			r.Post("/research", warehouseHandler.Research)
		})

		r.Route("/api/batches", func(r chi.Router) {
			r.Get("/", batchHandler.List)
			r.Put("/count", batchHandler.Resize)
			r.Post("/flush", batchHandler.Flush)
			r.Post("/distribute", batchHandler.Distribute)

			r.Route("/{id}", func(r chi.Router) {
				r.Patch("/", batchHandler.Edit)
				r.Delete("/", batchHandler.Delete)
				r.Post("/send", batchHandler.Send)
			})
		})

		r.Delete("/api/users/me", userHandler.Withdraw)
	})

	// --- コンパニオンAPI ---
	r.Route("/pwa", func(r chi.Router) {
		r.With(deps.RateLimiter.VerifyMiddleware()).Post("/verify", companionHandler.Verify)

		r.Group(func(r chi.Router) {
			r.Use(middleware.NewDeviceSessionMiddleware(deps.DeviceSessionResolver))

			r.Post("/logout", companionHandler.Logout)
			r.Get("/messages", companionHandler.ListMessages)
			r.Delete("/messages", companionHandler.DeleteAllMessages)
			r.Delete("/messages/{id}", companionHandler.DeleteMessage)
			r.Get("/events", companionHandler.Events)
		})
	})

	return r
}
