// Package api exposes message composition and delivery over HTTP.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/wujiyu305/worker-mailer/internal/transport"
)

// maxRequestBytes bounds a request body; attachments travel inline as base64.
const maxRequestBytes = 32 << 20

// Option configures the router.
type Option func(*options)

type options struct {
	allowedOrigins []string
}

// WithAllowedOrigins enables CORS for the given origins.
func WithAllowedOrigins(origins ...string) Option {
	return func(o *options) { o.allowedOrigins = append(o.allowedOrigins, origins...) }
}

// NewRouter returns the HTTP handler serving:
//
//	POST /send     compose and deliver a message through t
//	POST /compose  return the composed payload without delivering it
//	GET  /healthz  liveness probe
//	GET  /metrics  Prometheus text exposition
func NewRouter(t transport.Transport, opts ...Option) http.Handler {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	h := &handlers{transport: t}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware)
	r.Use(metricsMiddleware)

	if len(o.allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: o.allowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
			ExposedHeaders: []string{requestIDHeader, messageIDHeader},
			MaxAge:         300,
		}))
	}

	r.Post("/send", h.send)
	r.Post("/compose", h.compose)
	r.Get("/healthz", h.health)
	r.Get("/metrics", h.metrics)

	return r
}
