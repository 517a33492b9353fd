package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/xid"

	"github.com/wujiyu305/worker-mailer/internal/logger"
)

const requestIDHeader = "X-Request-ID"

// requestIDMiddleware assigns every request an id, echoes it in the response
// and binds it to the request context's log attributes.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = xid.New().String()
		}

		w.Header().Set(requestIDHeader, id)
		ctx := logger.WithAttrs(r.Context(), slog.String("request_id", id))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		attrs := []any{
			slog.String("method", r.Method),
			slog.Int("status", status),
			slog.String("route", r.URL.Path),
			slog.String("remote", r.RemoteAddr),
			slog.Duration("duration", time.Since(start)),
		}

		msg := strconv.Itoa(status) + " " + http.StatusText(status)
		if status >= http.StatusInternalServerError {
			slog.ErrorContext(r.Context(), msg, attrs...)
			return
		}
		slog.InfoContext(r.Context(), msg, attrs...)
	})
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := strconv.Itoa(ww.Status())

		metrics.GetOrCreateSummaryExt(
			`http_request_duration_seconds{method="`+r.Method+`",route="`+route+`",code="`+status+`"}`,
			5*time.Minute, []float64{0.95, 0.99},
		).UpdateDuration(start)
		metrics.GetOrCreateCounter(
			`http_requests_total{method="` + r.Method + `",route="` + route + `",code="` + status + `"}`,
		).Inc()
	})
}
