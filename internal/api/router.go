// Package api exposes the memory services over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Voork1144/just-memory/internal/api/handlers"
	mw "github.com/Voork1144/just-memory/internal/api/middleware"
	"github.com/Voork1144/just-memory/internal/buildconfig"
	"github.com/Voork1144/just-memory/internal/config"
	"github.com/Voork1144/just-memory/internal/metrics"
	"github.com/Voork1144/just-memory/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures the HTTP surface. A RateLimitRPS of zero or less
// disables rate limiting.
type Options struct {
	APIKey         string
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
}

func OptionsFromConfig() Options {
	return Options{
		APIKey:         config.APIKey(),
		CORSOrigins:    config.CORSAllowedOrigins(),
		RateLimitRPS:   config.RateLimitRPS(),
		RateLimitBurst: config.RateLimitBurst(),
	}
}

// App holds the router and the pieces that need shutting down with it.
type App struct {
	Router  *chi.Mux
	Metrics *metrics.Collector

	stopLimiter func()
}

func NewApp(db Pinger, svcs *service.Services, collector *metrics.Collector, opts Options, logger *zap.Logger) *App {
	memoryHandler := handlers.NewMemoryHandler(svcs.Memories, svcs.Edges, logger)
	edgeHandler := handlers.NewEdgeHandler(svcs.Edges, logger)
	activationHandler := handlers.NewActivationHandler(svcs.Activation, logger)

	r := chi.NewRouter()
	app := &App{Router: r, Metrics: collector, stopLimiter: func() {}}

	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Metrics(collector))
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", mw.ProjectHeader, mw.RequestIDHeader},
		ExposedHeaders: []string{mw.RequestIDHeader},
		MaxAge:         300,
	}))
	if opts.RateLimitRPS > 0 {
		limiter := mw.NewRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst)
		app.stopLimiter = limiter.StartCleanup(10*time.Minute, 10*time.Minute)
		r.Use(limiter.Middleware)
	}

	// Health and metrics (no auth)
	r.Get("/health", healthHandler(db))
	r.Method(http.MethodGet, "/metrics", collector.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(opts.APIKey))
		r.Use(mw.Project)

		r.Route("/memories", func(r chi.Router) {
			r.Post("/", memoryHandler.Create)
			r.Get("/", memoryHandler.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", memoryHandler.Get)
				r.Patch("/", memoryHandler.Update)
				r.Delete("/", memoryHandler.Delete)
				r.Post("/recall", memoryHandler.Recall)
				r.Post("/confirm", memoryHandler.Confirm)
				r.Post("/contradict", memoryHandler.Contradict)
				r.Post("/supersede", memoryHandler.Supersede)
				r.Get("/scores", memoryHandler.Scores)
				r.Get("/edges", memoryHandler.Edges)
			})
		})

		r.Route("/edges", func(r chi.Router) {
			r.Post("/", edgeHandler.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", edgeHandler.Get)
				r.Post("/invalidate", edgeHandler.Invalidate)
			})
		})

		r.Post("/activate", activationHandler.Activate)
	})

	return app
}

// Close stops background work owned by the router.
func (app *App) Close() {
	app.stopLimiter()
}

func healthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := db.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
			return
		}

		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok", "version": buildconfig.Version()})
	}
}
