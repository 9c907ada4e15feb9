package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
)

// NewRecoveryMiddleware はpanicを回復して500レスポンスを返すミドルウェアを生成する。
//
// 最も外側に置く前提で、ロギングと認証が共有するholderをここで用意する。
// これによりpanicしたリクエストでも解決済みのユーザーIDや端末IDをログに残せる。
// レスポンスが書き込み済みの場合はボディを追記せずログのみ出力する。
// http.ErrAbortHandlerは意図的な中断なので再度panicさせる。
func NewRecoveryMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := wrapStatus(w)
			holder := identityHolderFrom(r.Context())
			if holder == nil {
				holder = &identityHolder{}
				r = r.WithContext(contextWithIdentityHolder(r.Context(), holder))
			}

			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				args := []any{
					slog.Any("panic", rec),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Bool("response_started", sw.written),
					slog.String("stack", string(debug.Stack())),
				}
				if holder.userID != "" {
					args = append(args, slog.String("user_id", holder.userID))
				}
				if holder.deviceID != "" {
					args = append(args, slog.String("device_id", holder.deviceID))
				}
				logger.ErrorContext(r.Context(), "panic recovered", args...)

				if !sw.written {
					WriteInternalServerError(sw)
				}
			}()
			next.ServeHTTP(sw, r)
		})
	}
}
