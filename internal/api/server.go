package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"ProofChain/internal/auth"
	"ProofChain/internal/host"
	"ProofChain/internal/observability/metrics"
	"ProofChain/pkg/logger"
)

const maxBodyBytes = 1 << 20

// Options 为 API 服务提供可选依赖。
type Options struct {
	Auth              *auth.Service
	Metrics           *metrics.Metrics
	ExposeMetrics     bool
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
	Logger            *slog.Logger
}

// Server 负责暴露 REST 接口，供外部登记、更新和查询证明。
type Server struct {
	addr string
	host *host.Host
	opts Options
	log  *slog.Logger
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, h *host.Host, opts Options) *Server {
	if opts.ReadHeaderTimeout <= 0 {
		opts.ReadHeaderTimeout = 5 * time.Second
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}
	l := opts.Logger
	if l == nil {
		l = logger.Named("api")
	}
	return &Server{addr: addr, host: h, opts: opts, log: l}
}

// Handler 构建路由，便于测试直接挂载。
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(s.observe)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.opts.ExposeMetrics && s.opts.Metrics != nil {
		r.Handle("/metrics", s.opts.Metrics.Handler())
	}

	r.Route("/api/v1", func(api chi.Router) {
		if s.opts.Auth != nil {
			api.Use(s.opts.Auth.Middleware(auth.MiddlewareConfig{
				OnError: func(w http.ResponseWriter, _ *http.Request, err error) { writeError(w, err) },
			}))
		}
		api.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
				next.ServeHTTP(w, r)
			})
		})

		api.Post("/proofs", s.handleCertify)
		api.Put("/proofs/{proofID}", s.handleUpdate)
		api.Get("/proofs/{proofID}/owner", s.handleProofOwner)
		api.Get("/proofs/{proofID}/exists", s.handleProofExists)

		api.Get("/owners/{owner}/proofs", s.handleUserProofs)
		api.Get("/owners/{owner}/proofs/{proofID}", s.handleProof)
		api.Get("/owners/{owner}/proof-ids", s.handleUserProofIDs)
		api.Get("/owners/{owner}/count", s.handleUserProofCount)

		api.Get("/stats", s.handleStats)
		api.Get("/receipts", s.handleListReceipts)
		api.Get("/receipts/{txID}", s.handleGetReceipt)
	})
	return r
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: s.opts.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("API 服务已启动", slog.String("addr", s.addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// observe 按路由模板记录请求指标。
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.opts.Metrics.ObserveHTTPRequest(route, r.Method, status, time.Since(start))
	})
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			writeError(w, errShuttingDown)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
