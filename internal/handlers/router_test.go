package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/marketline/api/internal/domain"
	"github.com/marketline/api/internal/platform/auth"
	"github.com/marketline/api/internal/services"
)

func noContent(r chi.Router) {
	r.HandleFunc("/*", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	r.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body), rr.Body.String())
	code, _ := body["error"].(string)
	return code
}

func TestNewRouterRoutes(t *testing.T) {
	ready := fixedSystemService{report: services.HealthReport{
		Status: domain.HealthStatusOK,
		Checks: map[string]domain.DependencyHealth{"firestore": {Status: domain.HealthStatusOK}},
	}}

	tests := []struct {
		name     string
		opts     []Option
		method   string
		path     string
		wantCode int
		wantErr  string
	}{
		{name: "liveness", method: http.MethodGet, path: "/healthz", wantCode: http.StatusOK},
		{name: "readiness", opts: []Option{WithHealthHandlers(NewHealthHandlers(WithHealthSystemService(ready)))},
			method: http.MethodGet, path: "/readyz", wantCode: http.StatusOK},
		{name: "orders unwired", method: http.MethodGet, path: "/api/v1/orders", wantCode: http.StatusNotImplemented, wantErr: "not_implemented"},
		{name: "product unwired", method: http.MethodGet, path: "/api/v1/products/prd-1", wantCode: http.StatusNotImplemented, wantErr: "not_implemented"},
		{name: "cart unwired", method: http.MethodGet, path: "/api/v1/cart", wantCode: http.StatusNotImplemented, wantErr: "not_implemented"},
		{name: "orders wired", opts: []Option{WithOrderRoutes(noContent)}, method: http.MethodGet, path: "/api/v1/orders", wantCode: http.StatusNoContent},
		{name: "order action wired", opts: []Option{WithOrderRoutes(noContent)}, method: http.MethodPost, path: "/api/v1/orders/ord_1:transition", wantCode: http.StatusNoContent},
		{name: "unknown path", method: http.MethodGet, path: "/does/not/exist", wantCode: http.StatusNotFound, wantErr: "route_not_found"},
		{name: "wrong method", method: http.MethodPost, path: "/healthz", wantCode: http.StatusMethodNotAllowed, wantErr: "method_not_allowed"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			NewRouter(tc.opts...).ServeHTTP(rr, httptest.NewRequest(tc.method, tc.path, nil))

			require.Equal(t, tc.wantCode, rr.Code, rr.Body.String())
			if tc.wantErr != "" {
				assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
				assert.Equal(t, tc.wantErr, errorCode(t, rr))
			}
		})
	}
}

func TestNewRouterCartRoutesAtAPIRoot(t *testing.T) {
	router := NewRouter(WithCartRoutes(NewCartHandlers(nil, &stubCartService{}).Routes))

	for _, tc := range []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/cart"},
		{http.MethodGet, "/api/v1/cart:validate"},
		{http.MethodPost, "/api/v1/cart:sync"},
	} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, newJSONRequest(t, tc.method, tc.path, nil, &auth.Identity{UID: "buyer-1"}))
		assert.Equal(t, http.StatusOK, rr.Code, "%s %s: %s", tc.method, tc.path, rr.Body.String())
	}
}

func TestNewRouterGlobalMiddleware(t *testing.T) {
	tag := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Marketplace", "on")
			next.ServeHTTP(w, r)
		})
	}
	rr := httptest.NewRecorder()
	NewRouter(WithMiddlewares(tag)).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, "on", rr.Header().Get("X-Marketplace"))
}

func TestNewRouterMaxBodySize(t *testing.T) {
	readAll := func(r chi.Router) {
		r.Post("/", func(w http.ResponseWriter, r *http.Request) {
			if _, err := io.ReadAll(r.Body); err != nil {
				w.WriteHeader(http.StatusRequestEntityTooLarge)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
	router := NewRouter(WithProductRoutes(readAll), WithMaxBodySize(8))

	for body, want := range map[string]int{
		"tiny":                  http.StatusNoContent,
		strings.Repeat("x", 64): http.StatusRequestEntityTooLarge,
	} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/products", strings.NewReader(body)))
		assert.Equal(t, want, rr.Code, "body of %d bytes", len(body))
	}
}
