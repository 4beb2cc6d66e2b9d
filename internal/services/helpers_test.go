package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domain "github.com/marketline/api/internal/domain"
	"github.com/marketline/api/internal/repositories/memory"
)

var testEpoch = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

// tickingClock advances one second on every read so stored entries order deterministically.
type tickingClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTickingClock() *tickingClock { return &tickingClock{now: testEpoch} }

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func sequentialIDs() func() string {
	var n atomic.Int64
	return func() string { return fmt.Sprintf("ID%06d", n.Add(1)) }
}

type recordingDispatcher struct {
	mu      sync.Mutex
	created []Order
	changed []TrackingEntry
}

func (r *recordingDispatcher) OrderCreated(_ context.Context, order Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, order)
}

func (r *recordingDispatcher) OrderStatusChanged(_ context.Context, _ Order, entry TrackingEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changed = append(r.changed, entry)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []OrderEvent
	err    error
}

func (r *recordingPublisher) PublishOrderEvent(_ context.Context, event OrderEvent) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return "", r.err
	}
	r.events = append(r.events, event)
	return fmt.Sprintf("msg-%d", len(r.events)), nil
}

type recordingLogger struct {
	mu     sync.Mutex
	events []string
}

func (l *recordingLogger) Log(_ context.Context, event string, _ map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *recordingLogger) has(event string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.events {
		if e == event {
			return true
		}
	}
	return false
}

type marketplace struct {
	store      *memory.Store
	clock      *tickingClock
	catalog    ProductCatalog
	carts      CartManager
	orders     OrderLifecycle
	tracking   OrderTrackingLog
	dispatcher *recordingDispatcher
	events     *recordingPublisher
	logger     *recordingLogger
}

type marketplaceOption func(*OrderServiceDeps)

func withVerificationCode(code string) marketplaceOption {
	return func(deps *OrderServiceDeps) {
		deps.CodeGenerator = func() (string, error) { return code, nil }
	}
}

func withCartManager(wrap func(CartManager) CartManager) marketplaceOption {
	return func(deps *OrderServiceDeps) { deps.Carts = wrap(deps.Carts) }
}

func newMarketplace(t *testing.T, opts ...marketplaceOption) *marketplace {
	t.Helper()
	m := &marketplace{
		store:      memory.NewStore(),
		clock:      newTickingClock(),
		dispatcher: &recordingDispatcher{},
		events:     &recordingPublisher{},
		logger:     &recordingLogger{},
	}
	ids := sequentialIDs()

	catalog, err := NewCatalogService(CatalogServiceDeps{
		Products:    m.store.Products(),
		Clock:       m.clock.Now,
		IDGenerator: ids,
		Logger:      m.logger.Log,
	})
	require.NoError(t, err)
	m.catalog = catalog

	carts, err := NewCartService(CartServiceDeps{
		Carts:    m.store.Carts(),
		Products: m.store.Products(),
		Clock:    m.clock.Now,
		Logger:   m.logger.Log,
	})
	require.NoError(t, err)
	m.carts = carts

	deps := OrderServiceDeps{
		Orders:        m.store.Orders(),
		Counters:      m.store.Counters(),
		Carts:         carts,
		Notifications: m.dispatcher,
		Events:        m.events,
		Clock:         m.clock.Now,
		IDGenerator:   ids,
		Logger:        m.logger.Log,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	orders, err := NewOrderService(deps)
	require.NoError(t, err)
	m.orders = orders

	tracking, err := NewTrackingService(TrackingServiceDeps{
		Tracking:    m.store.Tracking(),
		Orders:      m.store.Orders(),
		Clock:       m.clock.Now,
		IDGenerator: ids,
	})
	require.NoError(t, err)
	m.tracking = tracking
	return m
}

func (m *marketplace) seedProduct(t *testing.T, id, sellerID string, price int64, stock int) Product {
	t.Helper()
	product, err := m.catalog.CreateProduct(context.Background(), CreateProductCommand{
		ProductID: id,
		SellerID:  sellerID,
		Name:      "Product " + id,
		Price:     price,
		Stock:     stock,
		Status:    domain.ProductStatusActive,
	})
	require.NoError(t, err)
	return product
}

func (m *marketplace) addToCart(t *testing.T, userID, productID string, qty int) Cart {
	t.Helper()
	cart, err := m.carts.AddItem(context.Background(), CartItemCommand{UserID: userID, ProductID: productID, Quantity: qty})
	require.NoError(t, err)
	return cart
}

func (m *marketplace) stock(t *testing.T, productID string) int {
	t.Helper()
	product, err := m.store.Products().FindByID(context.Background(), productID)
	require.NoError(t, err)
	return product.Stock
}

func (m *marketplace) history(t *testing.T, orderID string) []TrackingEntry {
	t.Helper()
	page, err := m.tracking.History(context.Background(), orderID, Pagination{})
	require.NoError(t, err)
	return page.Items
}

func testDelivery() DeliveryInfo {
	return DeliveryInfo{
		RecipientName: "Ada Buyer",
		Phone:         "+1 555 0100",
		AddressLine1:  "1 Market Street",
		City:          "Springfield",
		Country:       "us",
	}
}

func (m *marketplace) checkout(t *testing.T, userID string) Order {
	t.Helper()
	result, err := m.orders.CreateFromCart(context.Background(), CreateOrdersCommand{UserID: userID, DeliveryInfo: testDelivery()})
	require.NoError(t, err)
	require.Len(t, result.Orders, 1)
	return result.Orders[0]
}

var errSendFailed = errors.New("push: device unreachable")
