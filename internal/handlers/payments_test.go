package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/marketline/api/internal/domain"
	"github.com/marketline/api/internal/platform/auth"
	"github.com/marketline/api/internal/services"
)

const paymentConfirmPath = "/api/v1/webhooks/payments:confirm"

var webhookNow = time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)

func newPaymentRouter(t *testing.T, orders services.OrderLifecycle) (http.Handler, *auth.SignatureVerifier) {
	t.Helper()
	verifier, err := auth.NewSignatureVerifier("whsec-test", auth.WithSignatureClock(func() time.Time { return webhookNow }))
	require.NoError(t, err)
	router := NewRouter(WithWebhookRoutes(NewPaymentHandlers(verifier, orders, "payment-gateway").Routes))
	return router, verifier
}

func confirmPayment(router http.Handler, verifier *auth.SignatureVerifier, nonce, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, paymentConfirmPath, strings.NewReader(body))
	ts := strconv.FormatInt(webhookNow.Unix(), 10)
	req.Header.Set(auth.SignatureHeader, verifier.Sign(http.MethodPost, req.URL.EscapedPath(), ts, nonce, []byte(body)))
	req.Header.Set(auth.SignatureTimestampHeader, ts)
	req.Header.Set(auth.SignatureNonceHeader, nonce)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestPaymentHandlersConfirmVerifiesPendingOrder(t *testing.T) {
	var captured services.TransitionCommand
	svc := &stubOrderService{
		getFn: func(context.Context, string) (services.Order, error) {
			order := sampleOrder(domain.OrderStatusPending)
			order.PaymentReference = "pi_123"
			return order, nil
		},
		transitionFn: func(_ context.Context, cmd services.TransitionCommand) (services.Order, error) {
			captured = cmd
			order := sampleOrder(cmd.ToStatus)
			verifiedAt := webhookNow
			order.PaymentVerifiedAt = &verifiedAt
			return order, nil
		},
	}
	router, verifier := newPaymentRouter(t, svc)

	rr := confirmPayment(router, verifier, "n-1", `{"order_id":"ord_1","payment_reference":"pi_123"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	assert.Equal(t, "ord_1", captured.OrderID)
	assert.Equal(t, domain.OrderStatusPaymentVerified, captured.ToStatus)
	assert.Equal(t, "payment-gateway", captured.ActorID)
	assert.Equal(t, "Payment confirmed (pi_123)", captured.Message)

	var resp paymentConfirmationResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, paymentConfirmationResponse{OrderID: "ord_1", Status: "payment_verified"}, resp)
}

func TestPaymentHandlersConfirmIsIdempotent(t *testing.T) {
	svc := &stubOrderService{
		getFn: func(context.Context, string) (services.Order, error) {
			order := sampleOrder(domain.OrderStatusRiderAssigned)
			verifiedAt := webhookNow.Add(-time.Hour)
			order.PaymentVerifiedAt = &verifiedAt
			return order, nil
		},
		transitionFn: func(context.Context, services.TransitionCommand) (services.Order, error) {
			return services.Order{}, fmt.Errorf("unexpected transition")
		},
	}
	router, verifier := newPaymentRouter(t, svc)

	rr := confirmPayment(router, verifier, "n-2", `{"order_id":"ord_1"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp paymentConfirmationResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.Replayed)
	assert.Equal(t, "rider_assigned", resp.Status)
}

func TestPaymentHandlersConfirmRejections(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		get      func(context.Context, string) (services.Order, error)
		wantCode int
		wantErr  string
	}{
		{name: "missing order id", body: `{}`, wantCode: http.StatusBadRequest, wantErr: "invalid_request"},
		{name: "unknown order", body: `{"order_id":"ord_x"}`, wantCode: http.StatusNotFound, wantErr: "not_found"},
		{
			name: "reference mismatch",
			body: `{"order_id":"ord_1","payment_reference":"pi_other"}`,
			get: func(context.Context, string) (services.Order, error) {
				order := sampleOrder(domain.OrderStatusPending)
				order.PaymentReference = "pi_123"
				return order, nil
			},
			wantCode: http.StatusConflict,
			wantErr:  "payment_reference_mismatch",
		},
		{
			name: "cancelled order",
			body: `{"order_id":"ord_1"}`,
			get: func(context.Context, string) (services.Order, error) {
				return sampleOrder(domain.OrderStatusCancelled), nil
			},
			wantCode: http.StatusConflict,
			wantErr:  "illegal_transition",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubOrderService{
				getFn: tc.get,
				transitionFn: func(context.Context, services.TransitionCommand) (services.Order, error) {
					return services.Order{}, fmt.Errorf("%w: cancelled -> payment_verified", services.ErrIllegalTransition)
				},
			}
			router, verifier := newPaymentRouter(t, svc)
			rr := confirmPayment(router, verifier, "n-"+tc.name, tc.body)
			assert.Equal(t, tc.wantCode, rr.Code, rr.Body.String())
			assert.Equal(t, tc.wantErr, errorCode(t, rr))
		})
	}
}

func TestPaymentHandlersRequireSignature(t *testing.T) {
	called := false
	svc := &stubOrderService{getFn: func(context.Context, string) (services.Order, error) {
		called = true
		return sampleOrder(domain.OrderStatusPending), nil
	}}
	router, _ := newPaymentRouter(t, svc)

	req := httptest.NewRequest(http.MethodPost, paymentConfirmPath, strings.NewReader(`{"order_id":"ord_1"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "signature_missing", errorCode(t, rr))
	assert.False(t, called)
}

func TestWebhooksUnwiredWithoutSecret(t *testing.T) {
	rr := httptest.NewRecorder()
	NewRouter().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, paymentConfirmPath, nil))
	assert.Equal(t, http.StatusNotImplemented, rr.Code)
}
