package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/marketline/api/internal/domain"
	"github.com/marketline/api/internal/platform/auth"
	"github.com/marketline/api/internal/platform/httpx"
	"github.com/marketline/api/internal/platform/requestctx"
	"github.com/marketline/api/internal/services"
)

const defaultIdempotencyHeader = "Idempotency-Key"

// OrderHandlers exposes checkout and the order lifecycle to buyers, sellers, riders and admins.
type OrderHandlers struct {
	authn    *auth.Authenticator
	orders   services.OrderLifecycle
	tracking services.OrderTrackingLog
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderLifecycle, tracking services.OrderTrackingLog) *OrderHandlers {
	return &OrderHandlers{
		authn:    authn,
		orders:   orders,
		tracking: tracking,
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/", h.checkout)
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Get("/{orderID}/tracking", h.listTracking)
	r.Post("/{orderID}:transition", h.transitionOrder)
	r.Post("/{orderID}:verify-delivery", h.verifyDelivery)
	r.Post("/{orderID}:cancel", h.cancelOrder)
}

type geoPointPayload struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type deliveryInfoPayload struct {
	RecipientName string           `json:"recipient_name"`
	Phone         string           `json:"phone,omitempty"`
	AddressLine1  string           `json:"address_line1"`
	AddressLine2  string           `json:"address_line2,omitempty"`
	City          string           `json:"city,omitempty"`
	Region        string           `json:"region,omitempty"`
	PostalCode    string           `json:"postal_code,omitempty"`
	Country       string           `json:"country,omitempty"`
	Location      *geoPointPayload `json:"location,omitempty"`
}

type riderInfoPayload struct {
	Name      string `json:"name"`
	Phone     string `json:"phone,omitempty"`
	VehicleID string `json:"vehicle_id,omitempty"`
}

type checkoutRequest struct {
	Delivery         deliveryInfoPayload `json:"delivery"`
	PaymentMethod    string              `json:"payment_method"`
	PaymentReference string              `json:"payment_reference"`
	Instructions     string              `json:"instructions"`
}

type transitionRequest struct {
	Status    string            `json:"status"`
	Message   string            `json:"message"`
	RiderID   string            `json:"rider_id"`
	RiderInfo *riderInfoPayload `json:"rider_info"`
	Location  *geoPointPayload  `json:"location"`
}

type verifyDeliveryRequest struct {
	Code     string           `json:"code"`
	Location *geoPointPayload `json:"location"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

type orderItemPayload struct {
	ProductID string          `json:"product_id"`
	Product   snapshotPayload `json:"product"`
	Quantity  int             `json:"quantity"`
	LineTotal int64           `json:"line_total"`
}

type orderPayload struct {
	ID                string              `json:"id"`
	OrderNumber       string              `json:"order_number"`
	BuyerID           string              `json:"buyer_id"`
	SellerID          string              `json:"seller_id"`
	Status            string              `json:"status"`
	Items             []orderItemPayload  `json:"items"`
	Currency          string              `json:"currency"`
	Subtotal          int64               `json:"subtotal"`
	Tax               int64               `json:"tax"`
	DeliveryFee       int64               `json:"delivery_fee"`
	TotalAmount       int64               `json:"total_amount"`
	Delivery          deliveryInfoPayload `json:"delivery"`
	Instructions      string              `json:"instructions,omitempty"`
	VerificationCode  string              `json:"verification_code,omitempty"`
	RiderID           string              `json:"rider_id,omitempty"`
	RiderInfo         *riderInfoPayload   `json:"rider_info,omitempty"`
	PaymentMethod     string              `json:"payment_method,omitempty"`
	CancelReason      string              `json:"cancel_reason,omitempty"`
	CancelledBy       string              `json:"cancelled_by,omitempty"`
	CreatedAt         string              `json:"created_at"`
	UpdatedAt         string              `json:"updated_at"`
	PaymentVerifiedAt string              `json:"payment_verified_at,omitempty"`
	RiderAssignedAt   string              `json:"rider_assigned_at,omitempty"`
	PickedUpAt        string              `json:"picked_up_at,omitempty"`
	InTransitAt       string              `json:"in_transit_at,omitempty"`
	DeliveredAt       string              `json:"delivered_at,omitempty"`
	CancelledAt       string              `json:"cancelled_at,omitempty"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderListResponse struct {
	Items         []orderPayload `json:"items"`
	NextPageToken string         `json:"next_page_token,omitempty"`
}

type checkoutFailurePayload struct {
	SellerID   string   `json:"seller_id"`
	ProductIDs []string `json:"product_ids"`
	Error      string   `json:"error"`
	Message    string   `json:"message"`
}

type checkoutResponse struct {
	Orders   []orderPayload           `json:"orders"`
	Failures []checkoutFailurePayload `json:"failures,omitempty"`
}

type trackingEntryPayload struct {
	ID        string           `json:"id"`
	Status    string           `json:"status"`
	Message   string           `json:"message,omitempty"`
	UpdatedBy string           `json:"updated_by"`
	Location  *geoPointPayload `json:"location,omitempty"`
	Timestamp string           `json:"timestamp"`
}

type trackingListResponse struct {
	Items         []trackingEntryPayload `json:"items"`
	NextPageToken string                 `json:"next_page_token,omitempty"`
}

func (h *OrderHandlers) checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req checkoutRequest
	if herr := httpx.DecodeJSON(w, r, &req); herr != nil {
		httpx.WriteError(ctx, w, *herr)
		return
	}

	key := requestctx.IdempotencyKey(ctx)
	if key == "" {
		key = strings.TrimSpace(r.Header.Get(defaultIdempotencyHeader))
	}

	result, err := h.orders.CreateFromCart(ctx, services.CreateOrdersCommand{
		UserID:           identity.UID,
		DeliveryInfo:     req.Delivery.toDomain(),
		PaymentMethod:    req.PaymentMethod,
		PaymentReference: req.PaymentReference,
		Instructions:     req.Instructions,
		IdempotencyKey:   key,
	})

	var partial *services.PartialCheckoutError
	switch {
	case err == nil:
		writeJSONResponse(w, http.StatusCreated, checkoutResponse{Orders: buildOrderPayloads(result.Orders, identity)})
	case errors.As(err, &partial):
		resp := checkoutResponse{Orders: buildOrderPayloads(partial.Created, identity)}
		for _, failure := range partial.Failures {
			classified := classifyServiceError(failure.Err)
			resp.Failures = append(resp.Failures, checkoutFailurePayload{
				SellerID:   failure.SellerID,
				ProductIDs: nonNilStrings(failure.ProductIDs),
				Error:      classified.Code,
				Message:    classified.Message,
			})
		}
		writeJSONResponse(w, http.StatusMultiStatus, resp)
	default:
		writeServiceError(ctx, w, err)
	}
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
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

	query := r.URL.Query()
	filter := services.OrderListFilter{Pagination: pager}
	switch view := strings.ToLower(strings.TrimSpace(query.Get("as"))); view {
	case "", auth.RoleBuyer:
		filter.BuyerID = identity.UID
	case auth.RoleSeller:
		if !identity.CanActAs(auth.RoleSeller) {
			writeForbidden(ctx, w, "seller role required")
			return
		}
		filter.SellerID = identity.UID
	case auth.RoleRider:
		if !identity.CanActAs(auth.RoleRider) {
			writeForbidden(ctx, w, "rider role required")
			return
		}
		filter.RiderID = identity.UID
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "as must be one of buyer, seller or rider", http.StatusBadRequest))
		return
	}
	for _, raw := range query["status"] {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				filter.Statuses = append(filter.Statuses, domain.OrderStatus(strings.ToLower(part)))
			}
		}
	}

	page, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderListResponse{
		Items:         buildOrderPayloads(page.Items, identity),
		NextPageToken: page.NextPageToken,
	})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	order, identity, ok := h.loadVisibleOrder(ctx, w, r)
	if !ok {
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order, identity)})
}

func (h *OrderHandlers) listTracking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.tracking == nil {
		writeUnavailable(ctx, w, "tracking")
		return
	}
	order, _, ok := h.loadVisibleOrder(ctx, w, r)
	if !ok {
		return
	}
	pager, ok := parsePagination(ctx, w, r)
	if !ok {
		return
	}
	page, err := h.tracking.History(ctx, order.ID, pager)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	items := make([]trackingEntryPayload, 0, len(page.Items))
	for _, entry := range page.Items {
		items = append(items, trackingEntryPayload{
			ID:        entry.ID,
			Status:    string(entry.Status),
			Message:   entry.Message,
			UpdatedBy: entry.UpdatedBy,
			Location:  geoPointFromDomain(entry.Location),
			Timestamp: formatTime(entry.Timestamp),
		})
	}
	writeJSONResponse(w, http.StatusOK, trackingListResponse{Items: items, NextPageToken: page.NextPageToken})
}

func (h *OrderHandlers) transitionOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	order, identity, ok := h.loadVisibleOrder(ctx, w, r)
	if !ok {
		return
	}
	var req transitionRequest
	if herr := httpx.DecodeJSON(w, r, &req); herr != nil {
		httpx.WriteError(ctx, w, *herr)
		return
	}
	target := domain.OrderStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if !target.IsValid() {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status is not a known order status", http.StatusBadRequest))
		return
	}
	if !canTransition(identity, order, target) {
		writeForbidden(ctx, w, "caller may not move this order to "+string(target))
		return
	}

	riderID := strings.TrimSpace(req.RiderID)
	if riderID != "" && !identity.Owns(riderID) {
		writeForbidden(ctx, w, "only admins may assign another rider")
		return
	}
	cmd := services.TransitionCommand{
		OrderID:  order.ID,
		ToStatus: target,
		ActorID:  identity.UID,
		Message:  req.Message,
		RiderID:  riderID,
		Location: req.Location.toDomain(),
	}
	if req.RiderInfo != nil {
		cmd.RiderInfo = &services.RiderInfo{
			Name:      strings.TrimSpace(req.RiderInfo.Name),
			Phone:     strings.TrimSpace(req.RiderInfo.Phone),
			VehicleID: strings.TrimSpace(req.RiderInfo.VehicleID),
		}
	}
	updated, err := h.orders.Transition(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(updated, identity)})
}

func (h *OrderHandlers) verifyDelivery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	order, identity, ok := h.loadVisibleOrder(ctx, w, r)
	if !ok {
		return
	}
	if !identity.Owns(order.RiderID) {
		writeForbidden(ctx, w, "only the assigned rider may verify delivery")
		return
	}
	var req verifyDeliveryRequest
	if herr := httpx.DecodeJSON(w, r, &req); herr != nil {
		httpx.WriteError(ctx, w, *herr)
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "code is required", http.StatusBadRequest))
		return
	}
	updated, err := h.orders.VerifyDelivery(ctx, services.VerifyDeliveryCommand{
		OrderID:    order.ID,
		Code:       req.Code,
		VerifiedBy: identity.UID,
		Location:   req.Location.toDomain(),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(updated, identity)})
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	order, identity, ok := h.loadVisibleOrder(ctx, w, r)
	if !ok {
		return
	}
	if !canTransition(identity, order, domain.OrderStatusCancelled) {
		writeForbidden(ctx, w, "caller may not cancel this order")
		return
	}
	var req cancelOrderRequest
	if r.ContentLength != 0 {
		if herr := httpx.DecodeJSON(w, r, &req); herr != nil {
			httpx.WriteError(ctx, w, *herr)
			return
		}
	}
	updated, err := h.orders.Cancel(ctx, services.CancelCommand{
		OrderID:     order.ID,
		CancelledBy: identity.UID,
		Reason:      req.Reason,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(updated, identity)})
}

// loadVisibleOrder fetches the order named in the path and hides it from callers who are not a
// participant. Strangers get 404 so order ids cannot be probed.
func (h *OrderHandlers) loadVisibleOrder(ctx context.Context, w http.ResponseWriter, r *http.Request) (services.Order, *auth.Identity, bool) {
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return services.Order{}, nil, false
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return services.Order{}, nil, false
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return services.Order{}, nil, false
	}
	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return services.Order{}, nil, false
	}
	if !canViewOrder(identity, order) {
		httpx.WriteError(ctx, w, httpx.NewError("not_found", "resource not found", http.StatusNotFound))
		return services.Order{}, nil, false
	}
	return order, identity, true
}

func canViewOrder(identity *auth.Identity, order services.Order) bool {
	if identity.Owns(order.BuyerID, order.SellerID, order.RiderID) {
		return true
	}
	// Riders see paid orders waiting for assignment.
	return order.RiderID == "" && order.Status == domain.OrderStatusPaymentVerified && identity.HasRole(auth.RoleRider)
}

// canTransition applies the per-status actor rules. Legality of the move itself is checked by the service.
func canTransition(identity *auth.Identity, order services.Order, target domain.OrderStatus) bool {
	if identity.IsAdmin() {
		return true
	}
	switch target {
	case domain.OrderStatusPaymentVerified:
		return identity.IsParty(order.SellerID)
	case domain.OrderStatusRiderAssigned:
		return identity.HasRole(auth.RoleRider)
	case domain.OrderStatusPickedUp, domain.OrderStatusInTransit:
		return identity.IsParty(order.RiderID)
	case domain.OrderStatusCancelled:
		return identity.IsParty(order.BuyerID, order.SellerID)
	default:
		// delivered goes through verify-delivery; refunded is admin only.
		return false
	}
}

func (p deliveryInfoPayload) toDomain() services.DeliveryInfo {
	return services.DeliveryInfo{
		RecipientName: p.RecipientName,
		Phone:         p.Phone,
		AddressLine1:  p.AddressLine1,
		AddressLine2:  p.AddressLine2,
		City:          p.City,
		Region:        p.Region,
		PostalCode:    p.PostalCode,
		Country:       p.Country,
		Location:      p.Location.toDomain(),
	}
}

func (p *geoPointPayload) toDomain() *services.GeoPoint {
	if p == nil {
		return nil
	}
	return &services.GeoPoint{Latitude: p.Latitude, Longitude: p.Longitude}
}

func geoPointFromDomain(p *services.GeoPoint) *geoPointPayload {
	if p == nil {
		return nil
	}
	return &geoPointPayload{Latitude: p.Latitude, Longitude: p.Longitude}
}

func buildOrderPayloads(orders []services.Order, identity *auth.Identity) []orderPayload {
	items := make([]orderPayload, 0, len(orders))
	for _, order := range orders {
		items = append(items, buildOrderPayload(order, identity))
	}
	return items
}

// buildOrderPayload renders an order for the caller. The delivery code is only shown to the buyer,
// who hands it to the rider at the door.
func buildOrderPayload(order services.Order, identity *auth.Identity) orderPayload {
	items := make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemPayload{
			ProductID: item.ProductID,
			Product:   buildSnapshotPayload(item.Product),
			Quantity:  item.Quantity,
			LineTotal: item.LineTotal,
		})
	}
	d := order.DeliveryInfo
	payload := orderPayload{
		ID:          order.ID,
		OrderNumber: order.OrderNumber,
		BuyerID:     order.BuyerID,
		SellerID:    order.SellerID,
		Status:      string(order.Status),
		Items:       items,
		Currency:    order.Currency,
		Subtotal:    order.Subtotal,
		Tax:         order.Tax,
		DeliveryFee: order.DeliveryFee,
		TotalAmount: order.TotalAmount,
		Delivery: deliveryInfoPayload{
			RecipientName: d.RecipientName,
			Phone:         d.Phone,
			AddressLine1:  d.AddressLine1,
			AddressLine2:  d.AddressLine2,
			City:          d.City,
			Region:        d.Region,
			PostalCode:    d.PostalCode,
			Country:       d.Country,
			Location:      geoPointFromDomain(d.Location),
		},
		Instructions:      order.Instructions,
		RiderID:           order.RiderID,
		PaymentMethod:     order.PaymentMethod,
		CancelReason:      order.CancelReason,
		CancelledBy:       order.CancelledBy,
		CreatedAt:         formatTime(order.CreatedAt),
		UpdatedAt:         formatTime(order.UpdatedAt),
		PaymentVerifiedAt: formatTimePtr(order.PaymentVerifiedAt),
		RiderAssignedAt:   formatTimePtr(order.RiderAssignedAt),
		PickedUpAt:        formatTimePtr(order.PickedUpAt),
		InTransitAt:       formatTimePtr(order.InTransitAt),
		DeliveredAt:       formatTimePtr(order.DeliveredAt),
		CancelledAt:       formatTimePtr(order.CancelledAt),
	}
	if order.RiderInfo != nil {
		payload.RiderInfo = &riderInfoPayload{
			Name:      order.RiderInfo.Name,
			Phone:     order.RiderInfo.Phone,
			VehicleID: order.RiderInfo.VehicleID,
		}
	}
	if identity != nil && identity.UID == order.BuyerID {
		payload.VerificationCode = order.VerificationCode
	}
	return payload
}
