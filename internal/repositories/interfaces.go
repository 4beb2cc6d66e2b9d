package repositories

import (
	"context"
	"strings"
	"time"

	domain "github.com/marketline/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Products() ProductRepository
	Carts() CartRepository
	Orders() OrderRepository
	Tracking() TrackingRepository
	Counters() CounterRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// ProductRepository persists catalogue entries. Stock only changes through AdjustStock or the
// order operations, each of which checks and writes inside one store transaction.
type ProductRepository interface {
	Insert(ctx context.Context, product domain.Product) error
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
	ListBySeller(ctx context.Context, sellerID string, pager domain.Pagination) (domain.CursorPage[domain.Product], error)
	AdjustStock(ctx context.Context, productID string, delta int, at time.Time) (domain.Product, error)
	UpdateStatus(ctx context.Context, update ProductStatusUpdate) (domain.Product, error)
}

// ProductStatusUpdate changes product visibility and optionally marks it logically deleted.
type ProductStatusUpdate struct {
	ProductID string
	Status    domain.ProductStatus
	DeletedAt *time.Time
	UpdatedAt time.Time
}

// CartRepository stores the singleton cart document for each buyer.
type CartRepository interface {
	Get(ctx context.Context, userID string) (domain.Cart, error)
	Save(ctx context.Context, cart domain.Cart) (domain.Cart, error)
}

// OrderRepository persists orders. Place and Transition are atomic: every read they depend on
// happens inside the same transaction as their writes.
type OrderRepository interface {
	Place(ctx context.Context, req PlaceOrderRequest) (PlaceOrderResult, error)
	Transition(ctx context.Context, req TransitionRequest) (TransitionResult, error)
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
}

// PlaceOrderRequest carries a fully priced order and its initial tracking entry. Stock for every
// item is checked and decremented in the same transaction that writes the order.
type PlaceOrderRequest struct {
	Order    domain.Order
	Tracking domain.TrackingEntry
}

// PlaceOrderResult reports the stored order. Replayed is true when an order with the same ID
// already existed, in which case no stock was touched.
type PlaceOrderResult struct {
	Order    domain.Order
	Replayed bool
}

// OrderMutation is evaluated against the freshly read order inside the transaction. Returning an
// error aborts the transaction with nothing written.
type OrderMutation func(current domain.Order) (domain.Order, domain.TrackingEntry, error)

// TransitionRequest describes a status change. When RestoreStock is set the quantity of every
// order item is added back to its product in the same transaction.
type TransitionRequest struct {
	OrderID      string
	Mutate       OrderMutation
	RestoreStock bool
	At           time.Time
}

// TransitionResult returns the committed order and the tracking entry appended for it.
type TransitionResult struct {
	Order    domain.Order
	Tracking domain.TrackingEntry
}

// OrderListFilter restricts order listings to one participant. IdempotencyKey narrows a buyer's
// orders to those written by one checkout.
type OrderListFilter struct {
	BuyerID        string
	SellerID       string
	RiderID        string
	IdempotencyKey string
	Statuses       []domain.OrderStatus
	Pagination     domain.Pagination
}

// TrackingRepository stores the append-only tracking history of an order.
type TrackingRepository interface {
	Append(ctx context.Context, entry domain.TrackingEntry) error
	ListByOrder(ctx context.Context, orderID string, pager domain.Pagination) (domain.CursorPage[domain.TrackingEntry], error)
}

// CounterRepository provides transaction-safe sequence numbers. Counters start at zero, so the
// first Next returns step.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
}

// CounterKey validates a Next call and returns the trimmed counter id.
func CounterKey(counterID string, step int64) (string, error) {
	id := strings.TrimSpace(counterID)
	switch {
	case id == "":
		return "", NewInvalidArgumentError("counters.next", "counter id is required")
	case strings.Contains(id, "/"):
		return "", NewInvalidArgumentError("counters.next", "counter id %q must not contain '/'", id)
	case step <= 0:
		return "", NewInvalidArgumentError("counters.next", "step must be positive, got %d", step)
	}
	return id, nil
}

// HealthRepository exposes status of downstream dependencies for readiness checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.HealthReport, error)
}
