package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/marketline/api/internal/platform/auth"
	"github.com/marketline/api/internal/platform/httpx"
	"github.com/marketline/api/internal/services"
)

// CartHandlers exposes the caller's cart.
type CartHandlers struct {
	authn *auth.Authenticator
	carts services.CartManager
}

// NewCartHandlers constructs a new CartHandlers instance.
func NewCartHandlers(authn *auth.Authenticator, carts services.CartManager) *CartHandlers {
	return &CartHandlers{
		authn: authn,
		carts: carts,
	}
}

// Routes registers the /cart endpoints relative to the API root.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/cart", h.getCart)
	r.Delete("/cart", h.clearCart)
	r.Post("/cart/items", h.addItem)
	r.Patch("/cart/items/{productID}", h.updateItem)
	r.Delete("/cart/items/{productID}", h.removeItem)
	r.Get("/cart:validate", h.validateCart)
	r.Post("/cart:sync", h.syncCart)
}

type cartItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

type cartResponse struct {
	Cart cartPayload `json:"cart"`
}

type cartPayload struct {
	UserID      string            `json:"user_id"`
	Currency    string            `json:"currency,omitempty"`
	Items       []cartItemPayload `json:"items"`
	TotalItems  int               `json:"total_items"`
	Subtotal    int64             `json:"subtotal"`
	Tax         int64             `json:"tax"`
	DeliveryFee int64             `json:"delivery_fee"`
	Total       int64             `json:"total"`
	UpdatedAt   string            `json:"updated_at,omitempty"`
}

type cartItemPayload struct {
	ProductID string          `json:"product_id"`
	Product   snapshotPayload `json:"product"`
	Quantity  int             `json:"quantity"`
	LineTotal int64           `json:"line_total"`
	AddedAt   string          `json:"added_at,omitempty"`
	UpdatedAt string          `json:"updated_at,omitempty"`
}

type snapshotPayload struct {
	ProductID  string `json:"product_id"`
	SellerID   string `json:"seller_id"`
	Name       string `json:"name"`
	ImageURL   string `json:"image_url,omitempty"`
	Price      int64  `json:"price"`
	Currency   string `json:"currency"`
	Status     string `json:"status,omitempty"`
	Stock      int    `json:"stock"`
	CapturedAt string `json:"captured_at,omitempty"`
}

type cartValidationResponse struct {
	IsValid                bool     `json:"is_valid"`
	Errors                 []string `json:"errors"`
	UnavailableProductIDs  []string `json:"unavailable_product_ids"`
	PriceChangedProductIDs []string `json:"price_changed_product_ids"`
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeUnavailable(ctx, w, "cart")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	cart, err := h.carts.GetOrCreateCart(ctx, identity.UID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeCart(w, http.StatusOK, cart)
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeUnavailable(ctx, w, "cart")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req cartItemRequest
	if herr := httpx.DecodeJSON(w, r, &req); herr != nil {
		httpx.WriteError(ctx, w, *herr)
		return
	}
	productID := strings.TrimSpace(req.ProductID)
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product_id is required", http.StatusBadRequest))
		return
	}
	if req.Quantity <= 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_quantity", "quantity must be positive", http.StatusBadRequest))
		return
	}
	cart, err := h.carts.AddItem(ctx, services.CartItemCommand{
		UserID:    identity.UID,
		ProductID: productID,
		Quantity:  req.Quantity,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeCart(w, http.StatusOK, cart)
}

func (h *CartHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeUnavailable(ctx, w, "cart")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}
	var req updateCartItemRequest
	if herr := httpx.DecodeJSON(w, r, &req); herr != nil {
		httpx.WriteError(ctx, w, *herr)
		return
	}
	if req.Quantity < 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_quantity", "quantity must not be negative", http.StatusBadRequest))
		return
	}
	cart, err := h.carts.UpdateQuantity(ctx, services.CartItemCommand{
		UserID:    identity.UID,
		ProductID: productID,
		Quantity:  req.Quantity,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeCart(w, http.StatusOK, cart)
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeUnavailable(ctx, w, "cart")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}
	cart, err := h.carts.RemoveItem(ctx, identity.UID, productID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeCart(w, http.StatusOK, cart)
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeUnavailable(ctx, w, "cart")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	cart, err := h.carts.Clear(ctx, identity.UID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeCart(w, http.StatusOK, cart)
}

func (h *CartHandlers) validateCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeUnavailable(ctx, w, "cart")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	validation, err := h.carts.ValidateForCheckout(ctx, identity.UID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSONResponse(w, http.StatusOK, cartValidationResponse{
		IsValid:                validation.IsValid,
		Errors:                 nonNilStrings(validation.Errors),
		UnavailableProductIDs:  nonNilStrings(validation.UnavailableProductIDs),
		PriceChangedProductIDs: nonNilStrings(validation.PriceChangedProductIDs),
	})
}

func (h *CartHandlers) syncCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeUnavailable(ctx, w, "cart")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	cart, err := h.carts.SyncWithLatestData(ctx, identity.UID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeCart(w, http.StatusOK, cart)
}

func writeCart(w http.ResponseWriter, status int, cart services.Cart) {
	setCartResponseHeaders(w, cart)
	writeJSONResponse(w, status, cartResponse{Cart: buildCartPayload(cart)})
}

func setCartResponseHeaders(w http.ResponseWriter, cart services.Cart) {
	w.Header().Set("Cache-Control", "no-store, no-cache, max-age=0, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	if !cart.UpdatedAt.IsZero() {
		w.Header().Set("Last-Modified", cart.UpdatedAt.UTC().Format(http.TimeFormat))
	}
	if etag := buildCartETag(cart); etag != "" {
		w.Header().Set("ETag", etag)
	}
}

func buildCartETag(cart services.Cart) string {
	if strings.TrimSpace(cart.UserID) == "" || cart.UpdatedAt.IsZero() {
		return ""
	}
	input := fmt.Sprintf("%s:%d:%d", strings.TrimSpace(cart.UserID), cart.UpdatedAt.UTC().UnixNano(), cart.TotalItems)
	sum := sha256.Sum256([]byte(input))
	return fmt.Sprintf(`W/"%s"`, hex.EncodeToString(sum[:8]))
}

func buildCartPayload(cart services.Cart) cartPayload {
	items := make([]cartItemPayload, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, cartItemPayload{
			ProductID: item.ProductID,
			Product:   buildSnapshotPayload(item.Product),
			Quantity:  item.Quantity,
			LineTotal: item.LineTotal(),
			AddedAt:   formatTime(item.AddedAt),
			UpdatedAt: formatTimePtr(item.UpdatedAt),
		})
	}
	return cartPayload{
		UserID:      cart.UserID,
		Currency:    strings.ToUpper(strings.TrimSpace(cart.Currency)),
		Items:       items,
		TotalItems:  cart.TotalItems,
		Subtotal:    cart.Totals.Subtotal,
		Tax:         cart.Totals.Tax,
		DeliveryFee: cart.Totals.DeliveryFee,
		Total:       cart.Totals.Total,
		UpdatedAt:   formatTime(cart.UpdatedAt),
	}
}

func buildSnapshotPayload(s services.ProductSnapshot) snapshotPayload {
	return snapshotPayload{
		ProductID:  s.ProductID,
		SellerID:   s.SellerID,
		Name:       s.Name,
		ImageURL:   s.ImageURL,
		Price:      s.Price,
		Currency:   s.Currency,
		Status:     string(s.Status),
		Stock:      s.Stock,
		CapturedAt: formatTime(s.CapturedAt),
	}
}
