package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Router handles HTTP routing for the resource cache API.
type Router struct {
	resourceHandler *ResourceHandler
	authMiddleware  func(http.Handler) http.Handler
	metricsHandler  http.Handler
	logger          zerolog.Logger
}

// RouterConfig contains configuration for the router.
type RouterConfig struct {
	ResourceHandler *ResourceHandler
	AuthMiddleware  func(http.Handler) http.Handler
	MetricsHandler  http.Handler
	Logger          zerolog.Logger
}

// NewRouter creates a new Router.
func NewRouter(cfg RouterConfig) *Router {
	return &Router{
		resourceHandler: cfg.ResourceHandler,
		authMiddleware:  cfg.AuthMiddleware,
		metricsHandler:  cfg.MetricsHandler,
		logger:          cfg.Logger.With().Str("component", "router").Logger(),
	}
}

// Handler returns the main HTTP handler.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(rt.requestLogger)

	r.Get("/healthz", rt.handleHealth)
	if rt.metricsHandler != nil {
		r.Handle("/metrics", rt.metricsHandler)
	}

	r.Group(func(api chi.Router) {
		if rt.authMiddleware != nil {
			api.Use(rt.authMiddleware)
		}
		api.Route("/{type}", func(sub chi.Router) {
			sub.Get("/*", rt.resourceHandler.GetResource)
			sub.Head("/*", rt.resourceHandler.HeadResource)
			sub.Put("/*", rt.resourceHandler.PutResource)
			sub.Delete("/*", rt.resourceHandler.DeleteResource)
			sub.Get("/", rt.resourceHandler.GetResource)
		})
	})

	return r
}

func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (rt *Router) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rt.logger.Debug().Str("method", r.Method).Str("path", r.URL.Path).Msg("request")
		next.ServeHTTP(w, r)
	})
}
