package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/eurocoin-catalog/api/internal/platform/httpx"
)

const (
	apiPrefix      = "/api/v1"
	requestTimeout = 60 * time.Second
)

// RouteRegistrar mounts a group of routes.
type RouteRegistrar func(r chi.Router)

// Option customises NewRouter.
type Option func(*routerConfig)

type routerConfig struct {
	middlewares      []func(http.Handler) http.Handler
	health           *HealthHandlers
	public           []RouteRegistrar
	admin            []RouteRegistrar
	adminMiddlewares []func(http.Handler) http.Handler
}

// WithMiddlewares appends global middleware. They run after request id, real ip and timeout.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) { cfg.middlewares = append(cfg.middlewares, mw...) }
}

// WithHealthHandlers serves /healthz and /readyz from h.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) { cfg.health = h }
}

// WithPublicRoutes mounts reg under /api/v1. It may be given more than once.
func WithPublicRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.public = append(cfg.public, reg) }
}

// WithAdminRoutes mounts reg under /api/v1/admin.
func WithAdminRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.admin = append(cfg.admin, reg) }
}

// WithAdminMiddlewares wraps only the /api/v1/admin subtree.
func WithAdminMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) { cfg.adminMiddlewares = append(cfg.adminMiddlewares, mw...) }
}

// NewRouter builds the HTTP surface: probes at the root, catalog routes under /api/v1 and
// administration under /api/v1/admin. Unknown paths and methods answer with the JSON error envelope.
func NewRouter(opts ...Option) chi.Router {
	var cfg routerConfig
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Timeout(requestTimeout))
	useAll(r, cfg.middlewares)
	r.NotFound(routeNotFound)
	r.MethodNotAllowed(methodNotAllowed)

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	r.Route(apiPrefix, func(api chi.Router) {
		for _, reg := range cfg.public {
			if reg != nil {
				api.Group(reg)
			}
		}
		api.Route("/admin", func(admin chi.Router) {
			useAll(admin, cfg.adminMiddlewares)
			for _, reg := range cfg.admin {
				if reg != nil {
					admin.Group(reg)
				}
			}
			if len(cfg.admin) == 0 {
				// chi skips group middleware on a subrouter without routes
				admin.HandleFunc("/*", routeNotFound)
			}
		})
	})
	return r
}

func useAll(r chi.Router, mws []func(http.Handler) http.Handler) {
	for _, mw := range mws {
		if mw != nil {
			r.Use(mw)
		}
	}
}

func routeNotFound(w http.ResponseWriter, r *http.Request) {
	httpx.WriteError(r.Context(), w, httpx.NewError("route_not_found", fmt.Sprintf("no route for %s", r.URL.Path), http.StatusNotFound))
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	httpx.WriteError(r.Context(), w, httpx.NewError("method_not_allowed", fmt.Sprintf("method %s not allowed on %s", r.Method, r.URL.Path), http.StatusMethodNotAllowed))
}
