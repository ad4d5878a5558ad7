package chi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	logpkg "github.com/kailas-cloud/docqa/internal/logger"
)

// JSONRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func JSONRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					if rvr == http.ErrAbortHandler {
						panic(rvr)
					}
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.String("path", r.URL.Path),
						zap.Stack("stacktrace"),
					)
					writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// WideEvent writes one log line per request and echoes X-Request-ID.
// The request-scoped logger is stored in the context for downstream code.
// It must run after chi's RequestID middleware.
func WideEvent(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			id := chiMiddleware.GetReqID(r.Context())
			if id != "" {
				w.Header().Set("X-Request-ID", id)
			}

			ctx, reqLogger := logpkg.With(r.Context(), logger, zap.String("request_id", id))
			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			level := zap.InfoLevel
			switch {
			case status >= http.StatusInternalServerError:
				level = zap.ErrorLevel
			case status >= http.StatusBadRequest:
				level = zap.WarnLevel
			}
			reqLogger.Log(level, "http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("route", routePattern(r)),
				zap.Int("status", status),
				zap.Duration("latency", time.Since(started)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}

// RouterConfig configures NewRouter.
type RouterConfig struct {
	APIKeys []string
	Logger  *zap.Logger
	// Middlewares run after auth, e.g. metrics.
	Middlewares []func(http.Handler) http.Handler
}

// NewRouter builds the full middleware stack and mounts s.
func NewRouter(s *Server, cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(JSONRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(WideEvent(logger))
	r.Use(BearerAuthMiddleware(cfg.APIKeys))
	for _, mw := range cfg.Middlewares {
		r.Use(mw)
	}
	s.Routes(r)
	return r
}
