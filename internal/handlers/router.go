package handlers

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/openstats/data-api/internal/platform/httpx"
	"github.com/openstats/data-api/internal/platform/requestctx"
)

// RouteRegistrar registers a set of routes against the provided router.
type RouteRegistrar func(r chi.Router)

type routerConfig struct {
	basePath    string
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers

	admin    RouteRegistrar
	internal RouteRegistrar

	adminMiddlewares    []func(http.Handler) http.Handler
	internalMiddlewares []func(http.Handler) http.Handler
}

// Option customises the router configuration before construction.
type Option func(*routerConfig)

const (
	defaultAPIPrefix  = "/api/v1"
	defaultTimeout    = 60 * time.Second
	errorNotFoundCode = "route_not_found"

	actorHeader = "X-Actor-Id"
)

// NewRouter constructs the chi router with shared middleware and the admin
// and internal route groups.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		basePath: defaultAPIPrefix,
		middlewares: []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Timeout(defaultTimeout),
			ActorMiddleware(),
		},
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	r := chi.NewRouter()

	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError(errorNotFoundCode, fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	r.Route(cfg.basePath, func(api chi.Router) {
		mount := func(path string, registrar RouteRegistrar, name string, groupMW []func(http.Handler) http.Handler) {
			api.Route(path, func(group chi.Router) {
				for _, mw := range groupMW {
					if mw != nil {
						group.Use(mw)
					}
				}
				if registrar != nil {
					registrar(group)
					return
				}
				registerNotImplemented(group, name)
			})
		}

		mount("/admin", cfg.admin, "admin", cfg.adminMiddlewares)
		mount("/internal", cfg.internal, "internal", cfg.internalMiddlewares)
	})

	return r
}

// WithMiddlewares appends additional global middleware to the router.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithHealthHandlers overrides the handlers used for /healthz and /readyz endpoints.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.health = h
	}
}

// WithAdminRoutes configures the registrar responsible for reviewer endpoints.
func WithAdminRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.admin = reg
	}
}

// WithAdminMiddlewares configures middlewares applied to the /admin group.
func WithAdminMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.adminMiddlewares = append(cfg.adminMiddlewares, mw...)
	}
}

// WithInternalRoutes configures the registrar responsible for pipeline endpoints.
func WithInternalRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.internal = reg
	}
}

// WithInternalMiddlewares configures middlewares applied to the /internal group.
func WithInternalMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.internalMiddlewares = append(cfg.internalMiddlewares, mw...)
	}
}

// ActorMiddleware copies the caller identity header onto the request context
// so handlers and the audit trail can attribute mutations.
func ActorMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if actor := strings.TrimSpace(r.Header.Get(actorHeader)); actor != "" {
				r = r.WithContext(requestctx.WithActor(r.Context(), actor))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitMiddleware applies a fixed-window limit keyed by actor, falling
// back to the remote address for unattributed callers. A nil limiter disables
// the check.
func RateLimitMiddleware(limiter rateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
		}
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := requestctx.Actor(r.Context())
			if key == "" {
				key = remoteHost(r)
			}
			if !limiter.Allow(key) {
				httpx.WriteError(r.Context(), w, httpx.NewError("rate_limited", "too many requests", http.StatusTooManyRequests))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NewRateLimiter builds the fixed-window limiter used by the admin group.
// A non-positive limit disables rate limiting.
func NewRateLimiter(perMinute int) func(http.Handler) http.Handler {
	return RateLimitMiddleware(newSimpleRateLimiter(perMinute, time.Minute, nil))
}

func remoteHost(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func registerNotImplemented(r chi.Router, name string) {
	handler := func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("not_implemented", fmt.Sprintf("%s routes not implemented", name), http.StatusNotImplemented))
	}
	r.HandleFunc("/*", handler)
	r.HandleFunc("/", handler)
	r.NotFound(handler)
	r.MethodNotAllowed(handler)
}
