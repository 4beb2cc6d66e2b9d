package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/marketline/api/internal/domain"
	"github.com/marketline/api/internal/platform/auth"
	"github.com/marketline/api/internal/platform/httpx"
	"github.com/marketline/api/internal/services"
)

// PaymentHandlers accepts signed "payment confirmed" callbacks and moves the order to
// payment_verified on behalf of the payment provider.
type PaymentHandlers struct {
	verifier *auth.SignatureVerifier
	orders   services.OrderLifecycle
	actorID  string
}

func NewPaymentHandlers(verifier *auth.SignatureVerifier, orders services.OrderLifecycle, actorID string) *PaymentHandlers {
	return &PaymentHandlers{verifier: verifier, orders: orders, actorID: strings.TrimSpace(actorID)}
}

// Routes registers the /webhooks endpoints.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Use(h.verifier.RequireSignature())
	r.Post("/payments:confirm", h.confirmPayment)
}

type paymentConfirmationRequest struct {
	OrderID          string `json:"order_id"`
	PaymentReference string `json:"payment_reference"`
}

type paymentConfirmationResponse struct {
	OrderID  string `json:"order_id"`
	Status   string `json:"status"`
	Replayed bool   `json:"replayed"`
}

func (h *PaymentHandlers) confirmPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}
	var req paymentConfirmationRequest
	if herr := httpx.DecodeJSON(w, r, &req); herr != nil {
		httpx.WriteError(ctx, w, *herr)
		return
	}
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order_id is required", http.StatusBadRequest))
		return
	}
	reference := strings.TrimSpace(req.PaymentReference)

	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	if order.PaymentReference != "" && reference != "" && order.PaymentReference != reference {
		httpx.WriteError(ctx, w, httpx.NewError("payment_reference_mismatch", "payment reference does not match the order", http.StatusConflict))
		return
	}
	// Providers redeliver callbacks; a confirmed order answers 200 without a second transition.
	if order.PaymentVerifiedAt != nil {
		writeJSONResponse(w, http.StatusOK, paymentConfirmationResponse{OrderID: order.ID, Status: string(order.Status), Replayed: true})
		return
	}

	message := "Payment confirmed"
	if reference != "" {
		message += " (" + reference + ")"
	}
	updated, err := h.orders.Transition(ctx, services.TransitionCommand{
		OrderID:  order.ID,
		ToStatus: domain.OrderStatusPaymentVerified,
		ActorID:  h.actorID,
		Message:  message,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, paymentConfirmationResponse{OrderID: updated.ID, Status: string(updated.Status)})
}
