package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/marketline/api/internal/platform/httpx"
)

// RouteRegistrar mounts a resource's routes.
type RouteRegistrar func(r chi.Router)

const (
	apiPrefix          = "/api/v1"
	requestTimeout     = 60 * time.Second
	defaultMaxBodySize = 1 << 20
)

// resources are mounted in this order. The cart registers at the API root because it owns
// /cart:sync beside /cart.
var resources = []struct {
	name   string
	prefix string
	atRoot bool
}{
	{name: "cart", prefix: "/cart", atRoot: true},
	{name: "orders", prefix: "/orders"},
	{name: "products", prefix: "/products"},
	{name: "webhooks", prefix: "/webhooks"},
}

type routerSettings struct {
	maxBody    int64
	middleware []func(http.Handler) http.Handler
	health     *HealthHandlers
	registrars map[string]RouteRegistrar
}

// Option customises NewRouter.
type Option func(*routerSettings)

// NewRouter serves the probes at the root and the marketplace resources under /api/v1. A
// resource with no registrar answers 501.
func NewRouter(opts ...Option) chi.Router {
	s := routerSettings{
		maxBody:    defaultMaxBodySize,
		registrars: map[string]RouteRegistrar{},
		middleware: []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Timeout(requestTimeout),
		},
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.health == nil {
		s.health = NewHealthHandlers()
	}

	r := chi.NewRouter()
	for _, mw := range s.middleware {
		if mw != nil {
			r.Use(mw)
		}
	}
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		writeRouteError(w, req, "route_not_found", http.StatusNotFound, "no route for %s", req.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		writeRouteError(w, req, "method_not_allowed", http.StatusMethodNotAllowed, "method %s not allowed on %s", req.Method, req.URL.Path)
	})
	r.Get("/healthz", s.health.Healthz)
	r.Get("/readyz", s.health.Readyz)

	r.Route(apiPrefix, func(api chi.Router) {
		if s.maxBody > 0 {
			api.Use(middleware.RequestSize(s.maxBody))
		}
		for _, res := range resources {
			register, ok := s.registrars[res.name]
			switch {
			case !ok || register == nil:
				unimplemented := func(w http.ResponseWriter, req *http.Request) {
					writeRouteError(w, req, "not_implemented", http.StatusNotImplemented, "%s routes not implemented", res.name)
				}
				api.HandleFunc(res.prefix, unimplemented)
				api.HandleFunc(res.prefix+"/*", unimplemented)
			case res.atRoot:
				api.Group(func(g chi.Router) { register(g) })
			default:
				api.Route(res.prefix, func(g chi.Router) { register(g) })
			}
		}
	})
	return r
}

func writeRouteError(w http.ResponseWriter, r *http.Request, code string, status int, format string, args ...any) {
	httpx.WriteError(r.Context(), w, httpx.NewError(code, fmt.Sprintf(format, args...), status))
}

// WithMiddlewares appends global middleware after the request id, real ip and timeout layers.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(s *routerSettings) { s.middleware = append(s.middleware, mw...) }
}

// WithHealthHandlers replaces the /healthz and /readyz handlers.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(s *routerSettings) { s.health = h }
}

// WithMaxBodySize caps request bodies under /api/v1. Zero disables the cap.
func WithMaxBodySize(n int64) Option {
	return func(s *routerSettings) { s.maxBody = n }
}

func WithCartRoutes(reg RouteRegistrar) Option    { return withRegistrar("cart", reg) }
func WithOrderRoutes(reg RouteRegistrar) Option   { return withRegistrar("orders", reg) }
func WithProductRoutes(reg RouteRegistrar) Option { return withRegistrar("products", reg) }
func WithWebhookRoutes(reg RouteRegistrar) Option { return withRegistrar("webhooks", reg) }

func withRegistrar(name string, reg RouteRegistrar) Option {
	return func(s *routerSettings) { s.registrars[name] = reg }
}
