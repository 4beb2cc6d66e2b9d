package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// GeoPoint stores a latitude/longitude pair attached to tracking entries and delivery addresses.
type GeoPoint struct {
	Latitude  float64
	Longitude float64
}

// ProductStatus enumerates catalogue visibility states.
type ProductStatus string

const (
	// ProductStatusActive marks products that can be purchased when stock allows.
	ProductStatusActive ProductStatus = "active"
	// ProductStatusInactive marks products hidden from buyers, including logically removed ones.
	ProductStatusInactive ProductStatus = "inactive"
	// ProductStatusDraft marks products the seller has not published yet.
	ProductStatusDraft ProductStatus = "draft"
)

// IsValid reports whether the status is one of the known product states.
func (s ProductStatus) IsValid() bool {
	switch s {
	case ProductStatusActive, ProductStatusInactive, ProductStatusDraft:
		return true
	default:
		return false
	}
}

// Product is a seller-owned catalogue entry. Stock is never negative.
type Product struct {
	ID          string
	SellerID    string
	Name        string
	Description string
	ImageURL    string
	Price       int64
	Currency    string
	Stock       int
	Status      ProductStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time
}

// Purchasable reports whether buyers can currently order the product.
func (p Product) Purchasable() bool {
	return p.Status == ProductStatusActive && p.Stock > 0 && p.DeletedAt == nil
}

// Snapshot captures the product fields denormalised into carts and orders.
func (p Product) Snapshot(capturedAt time.Time) ProductSnapshot {
	return ProductSnapshot{
		ProductID:  p.ID,
		SellerID:   p.SellerID,
		Name:       p.Name,
		ImageURL:   p.ImageURL,
		Price:      p.Price,
		Currency:   p.Currency,
		Status:     p.Status,
		Stock:      p.Stock,
		CapturedAt: capturedAt,
	}
}

// ProductSnapshot is a copy of product data as of CapturedAt. Price and availability may be stale
// and must be revalidated against the live product before they are trusted for money or stock decisions.
type ProductSnapshot struct {
	ProductID  string
	SellerID   string
	Name       string
	ImageURL   string
	Price      int64
	Currency   string
	Status     ProductStatus
	Stock      int
	CapturedAt time.Time
}

// StockReason labels the direction of a stock adjustment.
type StockReason string

const (
	// StockReasonAdd increases stock (restocks and cancellation reversals).
	StockReasonAdd StockReason = "add"
	// StockReasonSubtract decreases stock (order placement and manual corrections).
	StockReasonSubtract StockReason = "subtract"
)

// StockAdjustment describes a single atomic change to a product's stock counter.
type StockAdjustment struct {
	ProductID string
	Quantity  int
	Reason    StockReason
	ActorID   string
}

// Delta converts the adjustment into a signed stock delta.
func (a StockAdjustment) Delta() int {
	if a.Reason == StockReasonSubtract {
		return -a.Quantity
	}
	return a.Quantity
}

// Cart aggregates the mutable shopping cart state for a buyer. UserID is the cart identity.
type Cart struct {
	UserID      string
	Items       []CartItem
	Currency    string
	TotalItems  int
	TotalAmount int64
	Totals      PricingTotals
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CartItem stores a single product line within a cart.
type CartItem struct {
	ProductID string
	Product   ProductSnapshot
	Quantity  int
	AddedAt   time.Time
	UpdatedAt *time.Time
}

// LineTotal returns the snapshot price multiplied by quantity.
func (i CartItem) LineTotal() int64 {
	return i.Product.Price * int64(i.Quantity)
}

// CheckoutValidation reports the outcome of a read-only cart revalidation.
type CheckoutValidation struct {
	IsValid                bool
	Errors                 []string
	UnavailableProductIDs  []string
	PriceChangedProductIDs []string
}

// DeliveryInfo stores where and to whom an order is delivered.
type DeliveryInfo struct {
	RecipientName string
	Phone         string
	AddressLine1  string
	AddressLine2  string
	City          string
	Region        string
	PostalCode    string
	Country       string
	Location      *GeoPoint
}

// RiderInfo captures rider contact details recorded when a rider is assigned.
type RiderInfo struct {
	Name      string
	Phone     string
	VehicleID string
}

// Order is a seller-scoped purchase created from a cart partition.
type Order struct {
	ID                string
	OrderNumber       string
	BuyerID           string
	SellerID          string
	Items             []OrderItem
	Currency          string
	Subtotal          int64
	Tax               int64
	DeliveryFee       int64
	TotalAmount       int64
	Status            OrderStatus
	DeliveryInfo      DeliveryInfo
	Instructions      string
	VerificationCode  string
	RiderID           string
	RiderInfo         *RiderInfo
	PaymentMethod     string
	PaymentReference  string
	CancelReason      string
	CancelledBy       string
	IdempotencyKey    string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	PaymentVerifiedAt *time.Time
	RiderAssignedAt   *time.Time
	PickedUpAt        *time.Time
	InTransitAt       *time.Time
	DeliveredAt       *time.Time
	CancelledAt       *time.Time
	RefundedAt        *time.Time
}

// OrderItem mirrors a cart line at the time of checkout.
type OrderItem struct {
	ProductID string
	Product   ProductSnapshot
	Quantity  int
	LineTotal int64
}

// TrackingEntry is one immutable audit record of an order status change.
type TrackingEntry struct {
	ID        string
	OrderID   string
	Status    OrderStatus
	Message   string
	UpdatedBy string
	Location  *GeoPoint
	Timestamp time.Time
}

// Notification is the payload handed to the push sender.
type Notification struct {
	Title   string
	Message string
	Type    string
	Data    map[string]string
}

// Health status values reported by readiness probes.
const (
	HealthStatusOK       = "ok"
	HealthStatusDegraded = "degraded"
	HealthStatusError    = "error"
)

// DependencyHealth describes the outcome of one dependency probe.
type DependencyHealth struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// HealthReport aggregates dependency probes for the readiness endpoint.
type HealthReport struct {
	Status      string
	Checks      map[string]DependencyHealth
	Version     string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}
