package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/dreamware/tilepaint/internal/logger"
	"github.com/dreamware/tilepaint/internal/metrics"
)

const allowHeaders = "Origin, X-Requested-With, Content-Type, Accept, Cache-Control"

// withHeaders sets the cross-origin and caching headers every response carries.
// Tiles change whenever a color does, so clients must revalidate.
func withHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Headers", allowHeaders)
		h.Set("Cache-Control", "max-age=0")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withLogging logs each request and records it in m. The request-scoped
// logger is stored in the context for handlers.
func withLogging(log *zap.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			m.RequestStarted()

			reqLog := log.With(logger.RequestID(middleware.GetReqID(r.Context())))
			r = r.WithContext(logger.ToContext(r.Context(), reqLog))

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := routePattern(r)
			dur := time.Since(start)
			m.RequestDone(r.Method, route, status, dur)

			fields := []zap.Field{
				logger.Method(r.Method),
				logger.Path(r.URL.Path),
				logger.Status(status),
				logger.Bytes(ww.BytesWritten()),
				logger.Duration(dur),
			}
			if status >= http.StatusInternalServerError {
				reqLog.Warn("http", fields...)
			} else {
				reqLog.Debug("http", fields...)
			}
		})
	}
}

// routePattern returns the matched chi pattern, which keeps metric label
// cardinality bounded.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

func newRouter(log *zap.Logger, m *metrics.Metrics) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(withLogging(log, m))
	r.Use(middleware.Recoverer)
	r.Use(withHeaders)
	return r
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
