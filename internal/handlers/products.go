package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/marketline/api/internal/domain"
	"github.com/marketline/api/internal/platform/auth"
	"github.com/marketline/api/internal/platform/httpx"
	"github.com/marketline/api/internal/services"
)

// ProductHandlers exposes product reads to everyone and catalogue management to sellers.
type ProductHandlers struct {
	authn   *auth.Authenticator
	catalog services.ProductCatalog
}

// NewProductHandlers constructs a new ProductHandlers instance.
func NewProductHandlers(authn *auth.Authenticator, catalog services.ProductCatalog) *ProductHandlers {
	return &ProductHandlers{
		authn:   authn,
		catalog: catalog,
	}
}

// Routes registers the /products endpoints. Reads are public; writes require a seller or admin token.
func (h *ProductHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/{productID}", h.getProduct)

	r.Group(func(sellers chi.Router) {
		if h.authn != nil {
			sellers.Use(h.authn.RequireFirebaseAuth(auth.RoleSeller, auth.RoleAdmin))
		}
		sellers.Get("/", h.listSellerProducts)
		sellers.Post("/", h.createProduct)
		sellers.Post("/{productID}:adjust-stock", h.adjustStock)
		sellers.Post("/{productID}:status", h.setStatus)
		sellers.Delete("/{productID}", h.removeProduct)
	})
}

type createProductRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url"`
	Price       int64  `json:"price"`
	Currency    string `json:"currency"`
	Stock       int    `json:"stock"`
	Status      string `json:"status"`
}

type adjustStockRequest struct {
	Quantity int    `json:"quantity"`
	Reason   string `json:"reason"`
}

type setStatusRequest struct {
	Status string `json:"status"`
}

type productPayload struct {
	ID          string `json:"id"`
	SellerID    string `json:"seller_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	Price       int64  `json:"price"`
	Currency    string `json:"currency"`
	Stock       int    `json:"stock"`
	Status      string `json:"status"`
	Available   bool   `json:"available"`
	CreatedAt   string `json:"created_at,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
	DeletedAt   string `json:"deleted_at,omitempty"`
}

type productResponse struct {
	Product productPayload `json:"product"`
}

type productListResponse struct {
	Items         []productPayload `json:"items"`
	NextPageToken string           `json:"next_page_token,omitempty"`
}

func (h *ProductHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeUnavailable(ctx, w, "catalog")
		return
	}
	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}
	product, err := h.catalog.GetProduct(ctx, productID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	if product.DeletedAt != nil {
		httpx.WriteError(ctx, w, httpx.NewError("not_found", "resource not found", http.StatusNotFound))
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=30")
	writeJSONResponse(w, http.StatusOK, productResponse{Product: buildProductPayload(product)})
}

func (h *ProductHandlers) listSellerProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeUnavailable(ctx, w, "catalog")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	pager, ok := parsePagination(ctx, w, r)
	if !ok {
		return
	}
	sellerID := identity.UID
	if requested := strings.TrimSpace(r.URL.Query().Get("seller_id")); requested != "" && requested != sellerID {
		if !identity.IsAdmin() {
			writeForbidden(ctx, w, "only admins may list another seller's products")
			return
		}
		sellerID = requested
	}
	page, err := h.catalog.ListSellerProducts(ctx, sellerID, pager)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	items := make([]productPayload, 0, len(page.Items))
	for _, product := range page.Items {
		items = append(items, buildProductPayload(product))
	}
	writeJSONResponse(w, http.StatusOK, productListResponse{Items: items, NextPageToken: page.NextPageToken})
}

func (h *ProductHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeUnavailable(ctx, w, "catalog")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req createProductRequest
	if herr := httpx.DecodeJSON(w, r, &req); herr != nil {
		httpx.WriteError(ctx, w, *herr)
		return
	}
	product, err := h.catalog.CreateProduct(ctx, services.CreateProductCommand{
		SellerID:    identity.UID,
		Name:        req.Name,
		Description: req.Description,
		ImageURL:    req.ImageURL,
		Price:       req.Price,
		Currency:    req.Currency,
		Stock:       req.Stock,
		Status:      domain.ProductStatus(strings.ToLower(strings.TrimSpace(req.Status))),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.Header().Set("Location", "/api/v1/products/"+product.ID)
	writeJSONResponse(w, http.StatusCreated, productResponse{Product: buildProductPayload(product)})
}

func (h *ProductHandlers) adjustStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	product, identity, ok := h.loadOwnedProduct(ctx, w, r)
	if !ok {
		return
	}
	var req adjustStockRequest
	if herr := httpx.DecodeJSON(w, r, &req); herr != nil {
		httpx.WriteError(ctx, w, *herr)
		return
	}
	updated, err := h.catalog.AdjustStock(ctx, services.StockAdjustment{
		ProductID: product.ID,
		Quantity:  req.Quantity,
		Reason:    domain.StockReason(strings.ToLower(strings.TrimSpace(req.Reason))),
		ActorID:   identity.UID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, productResponse{Product: buildProductPayload(updated)})
}

func (h *ProductHandlers) setStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	product, identity, ok := h.loadOwnedProduct(ctx, w, r)
	if !ok {
		return
	}
	var req setStatusRequest
	if herr := httpx.DecodeJSON(w, r, &req); herr != nil {
		httpx.WriteError(ctx, w, *herr)
		return
	}
	updated, err := h.catalog.SetStatus(ctx, services.SetProductStatusCommand{
		ProductID: product.ID,
		Status:    domain.ProductStatus(strings.ToLower(strings.TrimSpace(req.Status))),
		ActorID:   identity.UID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, productResponse{Product: buildProductPayload(updated)})
}

func (h *ProductHandlers) removeProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	product, identity, ok := h.loadOwnedProduct(ctx, w, r)
	if !ok {
		return
	}
	updated, err := h.catalog.RemoveProduct(ctx, product.ID, identity.UID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, productResponse{Product: buildProductPayload(updated)})
}

// loadOwnedProduct resolves the product in the path and requires the caller to own it unless they are an admin.
func (h *ProductHandlers) loadOwnedProduct(ctx context.Context, w http.ResponseWriter, r *http.Request) (services.Product, *auth.Identity, bool) {
	if h.catalog == nil {
		writeUnavailable(ctx, w, "catalog")
		return services.Product{}, nil, false
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return services.Product{}, nil, false
	}
	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return services.Product{}, nil, false
	}
	product, err := h.catalog.GetProduct(ctx, productID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return services.Product{}, nil, false
	}
	if !identity.Owns(product.SellerID) {
		writeForbidden(ctx, w, "product belongs to another seller")
		return services.Product{}, nil, false
	}
	return product, identity, true
}

func buildProductPayload(p services.Product) productPayload {
	return productPayload{
		ID:          p.ID,
		SellerID:    p.SellerID,
		Name:        p.Name,
		Description: p.Description,
		ImageURL:    p.ImageURL,
		Price:       p.Price,
		Currency:    p.Currency,
		Stock:       p.Stock,
		Status:      string(p.Status),
		Available:   p.Purchasable(),
		CreatedAt:   formatTime(p.CreatedAt),
		UpdatedAt:   formatTime(p.UpdatedAt),
		DeletedAt:   formatTimePtr(p.DeletedAt),
	}
}
