package services

import (
	"context"
	"time"

	domain "github.com/marketline/api/internal/domain"
	"github.com/marketline/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	Product            = domain.Product
	ProductStatus      = domain.ProductStatus
	ProductSnapshot    = domain.ProductSnapshot
	StockAdjustment    = domain.StockAdjustment
	Cart               = domain.Cart
	CartItem           = domain.CartItem
	CheckoutValidation = domain.CheckoutValidation
	Order              = domain.Order
	OrderItem          = domain.OrderItem
	OrderStatus        = domain.OrderStatus
	DeliveryInfo       = domain.DeliveryInfo
	RiderInfo          = domain.RiderInfo
	GeoPoint           = domain.GeoPoint
	TrackingEntry      = domain.TrackingEntry
	Notification       = domain.Notification
	HealthReport       = domain.HealthReport
)

// Logger is the structured logging hook every service accepts.
type Logger func(ctx context.Context, event string, fields map[string]any)

// ProductCatalog owns products and is the only writer of their stock outside order placement.
type ProductCatalog interface {
	GetProduct(ctx context.Context, productID string) (Product, error)
	CreateProduct(ctx context.Context, cmd CreateProductCommand) (Product, error)
	ListSellerProducts(ctx context.Context, sellerID string, pager Pagination) (domain.CursorPage[Product], error)
	AdjustStock(ctx context.Context, adj StockAdjustment) (Product, error)
	SetStatus(ctx context.Context, cmd SetProductStatusCommand) (Product, error)
	RemoveProduct(ctx context.Context, productID string, actorID string) (Product, error)
}

// CreateProductCommand carries the seller supplied fields of a new product.
type CreateProductCommand struct {
	ProductID   string
	SellerID    string
	Name        string
	Description string
	ImageURL    string
	Price       int64
	Currency    string
	Stock       int
	Status      ProductStatus
}

// SetProductStatusCommand changes product visibility.
type SetProductStatusCommand struct {
	ProductID string
	Status    ProductStatus
	ActorID   string
}

// CartManager maintains one cart per buyer. Totals are recomputed from the lines on every mutation.
type CartManager interface {
	GetOrCreateCart(ctx context.Context, userID string) (Cart, error)
	AddItem(ctx context.Context, cmd CartItemCommand) (Cart, error)
	UpdateQuantity(ctx context.Context, cmd CartItemCommand) (Cart, error)
	RemoveItem(ctx context.Context, userID string, productID string) (Cart, error)
	Clear(ctx context.Context, userID string) (Cart, error)
	ValidateForCheckout(ctx context.Context, userID string) (CheckoutValidation, error)
	SyncWithLatestData(ctx context.Context, userID string) (Cart, error)
}

// CartItemCommand identifies a cart line and its requested quantity.
type CartItemCommand struct {
	UserID    string
	ProductID string
	Quantity  int
}

// OrderLifecycle turns carts into per-seller orders and drives them through the status table.
type OrderLifecycle interface {
	CreateFromCart(ctx context.Context, cmd CreateOrdersCommand) (CheckoutResult, error)
	Transition(ctx context.Context, cmd TransitionCommand) (Order, error)
	VerifyDelivery(ctx context.Context, cmd VerifyDeliveryCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelCommand) (Order, error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
}

// CreateOrdersCommand checks out the buyer's cart.
type CreateOrdersCommand struct {
	UserID           string
	DeliveryInfo     DeliveryInfo
	PaymentMethod    string
	PaymentReference string
	Instructions     string
	IdempotencyKey   string
}

// CheckoutResult lists the orders committed by a checkout, one per seller.
type CheckoutResult struct {
	Orders []Order
}

// TransitionCommand moves an order to ToStatus.
type TransitionCommand struct {
	OrderID   string
	ToStatus  OrderStatus
	ActorID   string
	Message   string
	RiderID   string
	RiderInfo *RiderInfo
	Location  *GeoPoint
}

// VerifyDeliveryCommand completes an in-transit order with the buyer's code.
type VerifyDeliveryCommand struct {
	OrderID    string
	Code       string
	VerifiedBy string
	Location   *GeoPoint
}

// CancelCommand cancels an order and returns its stock.
type CancelCommand struct {
	OrderID     string
	CancelledBy string
	Reason      string
}

// OrderListFilter scopes an order listing to one participant.
type OrderListFilter = repositories.OrderListFilter

// OrderTrackingLog records and serves the append-only status history of orders.
type OrderTrackingLog interface {
	Append(ctx context.Context, entry TrackingEntry) (TrackingEntry, error)
	History(ctx context.Context, orderID string, pager Pagination) (domain.CursorPage[TrackingEntry], error)
}

// NotificationDispatcher informs order participants about order events. Delivery is best-effort:
// implementations log failures and never return them.
type NotificationDispatcher interface {
	OrderCreated(ctx context.Context, order Order)
	OrderStatusChanged(ctx context.Context, order Order, entry TrackingEntry)
}

// PushSender delivers a notification to a single user.
type PushSender interface {
	Send(ctx context.Context, userID string, notification Notification) error
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) (string, error)
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string    `json:"type"`
	OrderID        string    `json:"orderId"`
	OrderNumber    string    `json:"orderNumber,omitempty"`
	BuyerID        string    `json:"buyerId,omitempty"`
	SellerID       string    `json:"sellerId,omitempty"`
	PreviousStatus string    `json:"previousStatus,omitempty"`
	CurrentStatus  string    `json:"currentStatus"`
	ActorID        string    `json:"actorId,omitempty"`
	TotalAmount    int64     `json:"totalAmount,omitempty"`
	Currency       string    `json:"currency,omitempty"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// SystemService reports readiness of downstream dependencies.
type SystemService interface {
	HealthReport(ctx context.Context) (HealthReport, error)
}
