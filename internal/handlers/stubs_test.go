package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	domain "github.com/marketline/api/internal/domain"
	"github.com/marketline/api/internal/platform/auth"
	"github.com/marketline/api/internal/services"
)

type stubCartService struct {
	getOrCreateFunc func(ctx context.Context, userID string) (services.Cart, error)
	addFunc         func(ctx context.Context, cmd services.CartItemCommand) (services.Cart, error)
	updateFunc      func(ctx context.Context, cmd services.CartItemCommand) (services.Cart, error)
	removeFunc      func(ctx context.Context, userID, productID string) (services.Cart, error)
	clearFunc       func(ctx context.Context, userID string) (services.Cart, error)
	validateFunc    func(ctx context.Context, userID string) (services.CheckoutValidation, error)
	syncFunc        func(ctx context.Context, userID string) (services.Cart, error)
}

func (s *stubCartService) GetOrCreateCart(ctx context.Context, userID string) (services.Cart, error) {
	if s.getOrCreateFunc != nil {
		return s.getOrCreateFunc(ctx, userID)
	}
	return services.Cart{UserID: userID}, nil
}

func (s *stubCartService) AddItem(ctx context.Context, cmd services.CartItemCommand) (services.Cart, error) {
	if s.addFunc != nil {
		return s.addFunc(ctx, cmd)
	}
	return services.Cart{}, errors.New("not implemented")
}

func (s *stubCartService) UpdateQuantity(ctx context.Context, cmd services.CartItemCommand) (services.Cart, error) {
	if s.updateFunc != nil {
		return s.updateFunc(ctx, cmd)
	}
	return services.Cart{}, errors.New("not implemented")
}

func (s *stubCartService) RemoveItem(ctx context.Context, userID, productID string) (services.Cart, error) {
	if s.removeFunc != nil {
		return s.removeFunc(ctx, userID, productID)
	}
	return services.Cart{}, errors.New("not implemented")
}

func (s *stubCartService) Clear(ctx context.Context, userID string) (services.Cart, error) {
	if s.clearFunc != nil {
		return s.clearFunc(ctx, userID)
	}
	return services.Cart{UserID: userID}, nil
}

func (s *stubCartService) ValidateForCheckout(ctx context.Context, userID string) (services.CheckoutValidation, error) {
	if s.validateFunc != nil {
		return s.validateFunc(ctx, userID)
	}
	return services.CheckoutValidation{IsValid: true}, nil
}

func (s *stubCartService) SyncWithLatestData(ctx context.Context, userID string) (services.Cart, error) {
	if s.syncFunc != nil {
		return s.syncFunc(ctx, userID)
	}
	return services.Cart{UserID: userID}, nil
}

type stubOrderService struct {
	createFn     func(context.Context, services.CreateOrdersCommand) (services.CheckoutResult, error)
	transitionFn func(context.Context, services.TransitionCommand) (services.Order, error)
	verifyFn     func(context.Context, services.VerifyDeliveryCommand) (services.Order, error)
	cancelFn     func(context.Context, services.CancelCommand) (services.Order, error)
	getFn        func(context.Context, string) (services.Order, error)
	listFn       func(context.Context, services.OrderListFilter) (domain.CursorPage[services.Order], error)
}

func (s *stubOrderService) CreateFromCart(ctx context.Context, cmd services.CreateOrdersCommand) (services.CheckoutResult, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.CheckoutResult{}, errors.New("not implemented")
}

func (s *stubOrderService) Transition(ctx context.Context, cmd services.TransitionCommand) (services.Order, error) {
	if s.transitionFn != nil {
		return s.transitionFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) VerifyDelivery(ctx context.Context, cmd services.VerifyDeliveryCommand) (services.Order, error) {
	if s.verifyFn != nil {
		return s.verifyFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) Cancel(ctx context.Context, cmd services.CancelCommand) (services.Order, error) {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID string) (services.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, orderID)
	}
	return services.Order{}, services.ErrNotFound
}

func (s *stubOrderService) ListOrders(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[services.Order]{}, nil
}

type stubTrackingLog struct {
	historyFn func(context.Context, string, services.Pagination) (domain.CursorPage[services.TrackingEntry], error)
}

func (s *stubTrackingLog) Append(_ context.Context, entry services.TrackingEntry) (services.TrackingEntry, error) {
	return entry, nil
}

func (s *stubTrackingLog) History(ctx context.Context, orderID string, pager services.Pagination) (domain.CursorPage[services.TrackingEntry], error) {
	if s.historyFn != nil {
		return s.historyFn(ctx, orderID, pager)
	}
	return domain.CursorPage[services.TrackingEntry]{}, nil
}

type stubCatalog struct {
	getFn    func(context.Context, string) (services.Product, error)
	createFn func(context.Context, services.CreateProductCommand) (services.Product, error)
	listFn   func(context.Context, string, services.Pagination) (domain.CursorPage[services.Product], error)
	adjustFn func(context.Context, services.StockAdjustment) (services.Product, error)
	statusFn func(context.Context, services.SetProductStatusCommand) (services.Product, error)
	removeFn func(context.Context, string, string) (services.Product, error)
}

func (s *stubCatalog) GetProduct(ctx context.Context, productID string) (services.Product, error) {
	if s.getFn != nil {
		return s.getFn(ctx, productID)
	}
	return services.Product{}, services.ErrNotFound
}

func (s *stubCatalog) CreateProduct(ctx context.Context, cmd services.CreateProductCommand) (services.Product, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.Product{}, errors.New("not implemented")
}

func (s *stubCatalog) ListSellerProducts(ctx context.Context, sellerID string, pager services.Pagination) (domain.CursorPage[services.Product], error) {
	if s.listFn != nil {
		return s.listFn(ctx, sellerID, pager)
	}
	return domain.CursorPage[services.Product]{}, nil
}

func (s *stubCatalog) AdjustStock(ctx context.Context, adj services.StockAdjustment) (services.Product, error) {
	if s.adjustFn != nil {
		return s.adjustFn(ctx, adj)
	}
	return services.Product{}, errors.New("not implemented")
}

func (s *stubCatalog) SetStatus(ctx context.Context, cmd services.SetProductStatusCommand) (services.Product, error) {
	if s.statusFn != nil {
		return s.statusFn(ctx, cmd)
	}
	return services.Product{}, errors.New("not implemented")
}

func (s *stubCatalog) RemoveProduct(ctx context.Context, productID, actorID string) (services.Product, error) {
	if s.removeFn != nil {
		return s.removeFn(ctx, productID, actorID)
	}
	return services.Product{}, errors.New("not implemented")
}

var (
	_ services.CartManager      = (*stubCartService)(nil)
	_ services.OrderLifecycle   = (*stubOrderService)(nil)
	_ services.OrderTrackingLog = (*stubTrackingLog)(nil)
	_ services.ProductCatalog   = (*stubCatalog)(nil)
)

func newJSONRequest(t *testing.T, method, target string, body any, identity *auth.Identity) *http.Request {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	if identity != nil {
		req = req.WithContext(auth.WithIdentity(req.Context(), identity))
	}
	return req
}

func decodeErrorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, rr.Body.String())
	}
	return body.Error
}
