package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"crypto-keystore/internal/metrics"
	"crypto-keystore/internal/middleware"
)

// NewRouter はルーターを生成する。m が nil の場合は /metrics を公開しない。
func NewRouter(h *KeyHandler, m *metrics.Metrics, otelEnabled bool) http.Handler {
	r := chi.NewRouter()

	// ミドルウェア
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	if m != nil {
		r.Use(middleware.Metrics(m))
	}

	// ルート定義
	r.Get("/healthz", h.Health)
	if m != nil {
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}
	r.Route("/v1", func(r chi.Router) {
		r.Post("/accounts/{account}/key-id", h.GetKeyID)
		r.Get("/keys/{key_id}", h.GetKey)
	})

	if otelEnabled {
		return otelhttp.NewHandler(r, "keystore")
	}
	return r
}
