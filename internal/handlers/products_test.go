package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/marketline/api/internal/domain"
	"github.com/marketline/api/internal/platform/auth"
	"github.com/marketline/api/internal/services"
)

func newProductRouter(catalog services.ProductCatalog) chi.Router {
	router := chi.NewRouter()
	router.Route("/products", NewProductHandlers(nil, catalog).Routes)
	return router
}

func sampleProduct() services.Product {
	return services.Product{
		ID:       "prd-1",
		SellerID: "seller-1",
		Name:     "Mango",
		Price:    1000,
		Currency: "USD",
		Stock:    3,
		Status:   domain.ProductStatusActive,
	}
}

func TestProductHandlersGetProduct(t *testing.T) {
	catalog := &stubCatalog{
		getFn: func(_ context.Context, id string) (services.Product, error) {
			if id != "prd-1" {
				return services.Product{}, services.ErrNotFound
			}
			return sampleProduct(), nil
		},
	}
	router := newProductRouter(catalog)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, newJSONRequest(t, http.MethodGet, "/products/prd-1", nil, nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp productResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Product.Available || resp.Product.Stock != 3 {
		t.Fatalf("unexpected product %#v", resp.Product)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, newJSONRequest(t, http.MethodGet, "/products/missing", nil, nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestProductHandlersGetRemovedProduct(t *testing.T) {
	removed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	catalog := &stubCatalog{
		getFn: func(context.Context, string) (services.Product, error) {
			p := sampleProduct()
			p.DeletedAt = &removed
			return p, nil
		},
	}
	rr := httptest.NewRecorder()
	newProductRouter(catalog).ServeHTTP(rr, newJSONRequest(t, http.MethodGet, "/products/prd-1", nil, nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestProductHandlersCreateProductUsesCallerAsSeller(t *testing.T) {
	var captured services.CreateProductCommand
	catalog := &stubCatalog{
		createFn: func(_ context.Context, cmd services.CreateProductCommand) (services.Product, error) {
			captured = cmd
			p := sampleProduct()
			p.SellerID = cmd.SellerID
			return p, nil
		},
	}
	body := map[string]any{"name": "Mango", "price": 1000, "stock": 3, "status": "Active"}
	rr := httptest.NewRecorder()
	newProductRouter(catalog).ServeHTTP(rr, newJSONRequest(t, http.MethodPost, "/products", body, &auth.Identity{UID: "seller-9", Roles: []string{auth.RoleSeller}}))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.SellerID != "seller-9" || captured.Status != domain.ProductStatusActive {
		t.Fatalf("unexpected command %#v", captured)
	}
	if loc := rr.Header().Get("Location"); loc != "/api/v1/products/prd-1" {
		t.Fatalf("unexpected Location %q", loc)
	}
}

func TestProductHandlersAdjustStockOwnership(t *testing.T) {
	var captured services.StockAdjustment
	catalog := &stubCatalog{
		getFn: func(context.Context, string) (services.Product, error) { return sampleProduct(), nil },
		adjustFn: func(_ context.Context, adj services.StockAdjustment) (services.Product, error) {
			captured = adj
			if adj.Reason == domain.StockReasonSubtract && adj.Quantity > 3 {
				return services.Product{}, fmt.Errorf("%w: prd-1", services.ErrInsufficientStock)
			}
			p := sampleProduct()
			p.Stock += adj.Quantity
			return p, nil
		},
	}
	router := newProductRouter(catalog)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, newJSONRequest(t, http.MethodPost, "/products/prd-1:adjust-stock", map[string]any{"quantity": 5, "reason": "add"}, &auth.Identity{UID: "seller-2", Roles: []string{auth.RoleSeller}}))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("other seller: expected 403, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, newJSONRequest(t, http.MethodPost, "/products/prd-1:adjust-stock", map[string]any{"quantity": 5, "reason": "add"}, &auth.Identity{UID: "seller-1", Roles: []string{auth.RoleSeller}}))
	if rr.Code != http.StatusOK {
		t.Fatalf("owner: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.ActorID != "seller-1" || captured.Reason != domain.StockReasonAdd {
		t.Fatalf("unexpected adjustment %#v", captured)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, newJSONRequest(t, http.MethodPost, "/products/prd-1:adjust-stock", map[string]any{"quantity": 10, "reason": "subtract"}, &auth.Identity{UID: "seller-1", Roles: []string{auth.RoleSeller}}))
	if rr.Code != http.StatusConflict {
		t.Fatalf("oversubtract: expected 409, got %d", rr.Code)
	}
}

func TestProductHandlersSetStatusAndRemove(t *testing.T) {
	var status domain.ProductStatus
	var removedBy string
	catalog := &stubCatalog{
		getFn: func(context.Context, string) (services.Product, error) { return sampleProduct(), nil },
		statusFn: func(_ context.Context, cmd services.SetProductStatusCommand) (services.Product, error) {
			status = cmd.Status
			p := sampleProduct()
			p.Status = cmd.Status
			return p, nil
		},
		removeFn: func(_ context.Context, _ string, actorID string) (services.Product, error) {
			removedBy = actorID
			p := sampleProduct()
			p.Status = domain.ProductStatusInactive
			return p, nil
		},
	}
	router := newProductRouter(catalog)
	admin := &auth.Identity{UID: "admin-1", Roles: []string{auth.RoleAdmin}}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, newJSONRequest(t, http.MethodPost, "/products/prd-1:status", map[string]any{"status": "inactive"}, admin))
	if rr.Code != http.StatusOK || status != domain.ProductStatusInactive {
		t.Fatalf("status: expected 200 inactive, got %d %q", rr.Code, status)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, newJSONRequest(t, http.MethodDelete, "/products/prd-1", nil, admin))
	if rr.Code != http.StatusOK || removedBy != "admin-1" {
		t.Fatalf("remove: expected 200 by admin-1, got %d %q", rr.Code, removedBy)
	}
}

func TestProductHandlersListSellerProducts(t *testing.T) {
	var seller string
	catalog := &stubCatalog{
		listFn: func(_ context.Context, sellerID string, _ services.Pagination) (domain.CursorPage[services.Product], error) {
			seller = sellerID
			return domain.CursorPage[services.Product]{Items: []services.Product{sampleProduct()}}, nil
		},
	}
	router := newProductRouter(catalog)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, newJSONRequest(t, http.MethodGet, "/products/?seller_id=seller-2", nil, &auth.Identity{UID: "seller-1", Roles: []string{auth.RoleSeller}}))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("foreign listing: expected 403, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, newJSONRequest(t, http.MethodGet, "/products/", nil, &auth.Identity{UID: "seller-1", Roles: []string{auth.RoleSeller}}))
	if rr.Code != http.StatusOK || seller != "seller-1" {
		t.Fatalf("own listing: expected 200 for seller-1, got %d %q", rr.Code, seller)
	}
}
