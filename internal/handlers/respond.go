package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/marketline/api/internal/platform/auth"
	"github.com/marketline/api/internal/platform/httpx"
	"github.com/marketline/api/internal/platform/pagination"
	"github.com/marketline/api/internal/services"
)

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

// requireIdentity writes a 401 and returns false when the request carries no verified caller.
func requireIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func writeForbidden(ctx context.Context, w http.ResponseWriter, message string) {
	httpx.WriteError(ctx, w, httpx.NewError("forbidden", message, http.StatusForbidden))
}

func writeUnavailable(ctx context.Context, w http.ResponseWriter, name string) {
	httpx.WriteError(ctx, w, httpx.NewError(name+"_service_unavailable", name+" service unavailable", http.StatusServiceUnavailable))
}

func parsePagination(ctx context.Context, w http.ResponseWriter, r *http.Request) (services.Pagination, bool) {
	pager, err := pagination.FromRequest(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return services.Pagination{}, false
	}
	return pager, true
}

func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	var validationErr *services.CheckoutValidationError
	if errors.As(err, &validationErr) {
		httpx.WriteError(ctx, w, httpx.NewError("cart_invalid", "cart cannot be checked out", http.StatusUnprocessableEntity).
			WithDetails(map[string]any{
				"reasons":                 nonNilStrings(validationErr.Reasons),
				"unavailable_product_ids": nonNilStrings(validationErr.UnavailableProductIDs),
			}))
		return
	}

	httpx.WriteError(ctx, w, classifyServiceError(err))
}

// classifyServiceError maps service sentinels onto the JSON error envelope.
func classifyServiceError(err error) httpx.Error {
	switch {
	case errors.Is(err, services.ErrInsufficientStock):
		return httpx.NewError("insufficient_stock", "this item just sold out", http.StatusConflict)
	case errors.Is(err, services.ErrProductUnavailable):
		return httpx.NewError("product_unavailable", "product is not available", http.StatusConflict)
	case errors.Is(err, services.ErrInvalidQuantity):
		return httpx.NewError("invalid_quantity", err.Error(), http.StatusBadRequest)
	case errors.Is(err, services.ErrInvalidInput):
		return httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest)
	case errors.Is(err, services.ErrNotFound):
		return httpx.NewError("not_found", "resource not found", http.StatusNotFound)
	case errors.Is(err, services.ErrIllegalTransition):
		return httpx.NewError("illegal_transition", err.Error(), http.StatusConflict)
	case errors.Is(err, services.ErrInvalidVerificationCode):
		return httpx.NewError("invalid_verification_code", "verification code does not match", http.StatusUnprocessableEntity)
	case errors.Is(err, services.ErrConflict):
		return httpx.NewError("conflict", "resource was modified; refresh and retry", http.StatusConflict)
	case errors.Is(err, services.ErrUnavailable):
		return httpx.NewError("service_unavailable", "backing store unavailable", http.StatusServiceUnavailable)
	default:
		return httpx.NewError("internal_error", "request failed", http.StatusInternalServerError)
	}
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
