package auth

import (
	"log/slog"
	"net/http"
	"time"

	loggerpkg "ProofChain/pkg/logger"
)

// MiddlewareConfig 配置身份解析中间件的行为。
type MiddlewareConfig struct {
	// OnError 在凭证无效时写出响应，默认使用 http.Error。
	OnError func(w http.ResponseWriter, r *http.Request, err error)
	// Audit 指定审计日志输出，默认使用 logger.Audit()。
	Audit *slog.Logger
}

// Middleware 返回一个 HTTP 中间件：解析调用方身份并写入上下文，
// 同时为每个请求记录一条审计日志。未携带凭证的请求照常放行，由具体接口决定是否需要身份。
func (s *Service) Middleware(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	onError := cfg.OnError
	if onError == nil {
		onError = func(w http.ResponseWriter, _ *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusUnauthorized)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			audit := cfg.Audit
			if audit == nil {
				audit = loggerpkg.Audit()
			}

			caller, ok, err := s.Resolve(r)
			if err != nil {
				audit.Warn("access_denied",
					"path", r.URL.Path,
					"method", r.Method,
					"status", http.StatusUnauthorized,
					"error", err.Error(),
				)
				onError(w, r, err)
				return
			}

			start := time.Now()
			aw := &auditWriter{ResponseWriter: w, status: http.StatusOK}
			ctx := r.Context()
			if ok {
				ctx = WithCaller(ctx, caller)
			}
			next.ServeHTTP(aw, r.WithContext(ctx))

			who := "anonymous"
			if ok {
				who = caller.Hex()
			}
			audit.Info("api_request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", aw.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"caller", who,
			)
		})
	}
}

// auditWriter 包装 http.ResponseWriter 以捕获响应状态码。
type auditWriter struct {
	http.ResponseWriter
	status int
}

// WriteHeader 捕获响应状态码并调用底层的 WriteHeader 方法。
func (w *auditWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
