package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"filehub/internal/config"
	fhmiddleware "filehub/internal/middleware"
)

// NewRouter 构建 HTTP 路由，集中注册所有对外服务的端点。
func NewRouter(cfg *config.Config, logger zerolog.Logger, fileHandler *FileHandler, hub *Hub) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(fhmiddleware.RequestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(fhmiddleware.CORS(fhmiddleware.NewOriginPolicy(cfg.CORSAllowedOrigins)))
	r.Use(fhmiddleware.RateLimit(fhmiddleware.RateLimitOptions{
		MaxRequests: cfg.RateLimitRequests,
		Window:      cfg.RateLimitWindow,
		Exempt:      []string{"/healthz", "/metrics"},
	}))
	r.Use(fhmiddleware.Metrics())

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Prometheus 指标端点
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(fhmiddleware.Identity())
		if fileHandler != nil {
			fileHandler.RegisterRoutes(r)
		}
		if hub != nil {
			r.Get("/transfers/ws", hub.ServeHTTP)
		}
	})

	return r
}
