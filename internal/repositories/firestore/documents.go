package firestore

import (
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/genproto/googleapis/type/latlng"

	domain "github.com/marketline/api/internal/domain"
)

type productDocument struct {
	SellerID    string     `firestore:"sellerId"`
	Name        string     `firestore:"name"`
	Description string     `firestore:"description,omitempty"`
	ImageURL    string     `firestore:"imageUrl,omitempty"`
	Price       int64      `firestore:"price"`
	Currency    string     `firestore:"currency"`
	Stock       int        `firestore:"stock"`
	Status      string     `firestore:"status"`
	Deleted     bool       `firestore:"deleted"`
	DeletedAt   *time.Time `firestore:"deletedAt,omitempty"`
	CreatedAt   time.Time  `firestore:"createdAt"`
	UpdatedAt   time.Time  `firestore:"updatedAt"`
}

func newProductDocument(p domain.Product) productDocument {
	return productDocument{
		SellerID:    strings.TrimSpace(p.SellerID),
		Name:        strings.TrimSpace(p.Name),
		Description: p.Description,
		ImageURL:    strings.TrimSpace(p.ImageURL),
		Price:       p.Price,
		Currency:    strings.ToUpper(strings.TrimSpace(p.Currency)),
		Stock:       p.Stock,
		Status:      string(p.Status),
		Deleted:     p.DeletedAt != nil,
		DeletedAt:   utcPtr(p.DeletedAt),
		CreatedAt:   p.CreatedAt.UTC(),
		UpdatedAt:   p.UpdatedAt.UTC(),
	}
}

func (d productDocument) toDomain(id string) domain.Product {
	return domain.Product{
		ID:          id,
		SellerID:    d.SellerID,
		Name:        d.Name,
		Description: d.Description,
		ImageURL:    d.ImageURL,
		Price:       d.Price,
		Currency:    d.Currency,
		Stock:       d.Stock,
		Status:      domain.ProductStatus(d.Status),
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
		DeletedAt:   utcPtr(d.DeletedAt),
	}
}

func decodeProduct(snap *firestore.DocumentSnapshot) (domain.Product, error) {
	var doc productDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Product{}, err
	}
	return doc.toDomain(snap.Ref.ID), nil
}

type snapshotDocument struct {
	ProductID  string    `firestore:"productId"`
	SellerID   string    `firestore:"sellerId"`
	Name       string    `firestore:"name"`
	ImageURL   string    `firestore:"imageUrl,omitempty"`
	Price      int64     `firestore:"price"`
	Currency   string    `firestore:"currency"`
	Status     string    `firestore:"status"`
	Stock      int       `firestore:"stock"`
	CapturedAt time.Time `firestore:"capturedAt"`
}

func newSnapshotDocument(s domain.ProductSnapshot) snapshotDocument {
	return snapshotDocument{
		ProductID:  s.ProductID,
		SellerID:   s.SellerID,
		Name:       s.Name,
		ImageURL:   s.ImageURL,
		Price:      s.Price,
		Currency:   s.Currency,
		Status:     string(s.Status),
		Stock:      s.Stock,
		CapturedAt: s.CapturedAt.UTC(),
	}
}

func (d snapshotDocument) toDomain() domain.ProductSnapshot {
	return domain.ProductSnapshot{
		ProductID:  d.ProductID,
		SellerID:   d.SellerID,
		Name:       d.Name,
		ImageURL:   d.ImageURL,
		Price:      d.Price,
		Currency:   d.Currency,
		Status:     domain.ProductStatus(d.Status),
		Stock:      d.Stock,
		CapturedAt: d.CapturedAt,
	}
}

type cartDocument struct {
	Currency    string             `firestore:"currency"`
	Items       []cartItemDocument `firestore:"items"`
	TotalItems  int                `firestore:"totalItems"`
	TotalAmount int64              `firestore:"totalAmount"`
	Totals      totalsDocument     `firestore:"totals"`
	CreatedAt   time.Time          `firestore:"createdAt"`
	UpdatedAt   time.Time          `firestore:"updatedAt"`
}

type cartItemDocument struct {
	ProductID string           `firestore:"productId"`
	Product   snapshotDocument `firestore:"product"`
	Quantity  int              `firestore:"quantity"`
	AddedAt   time.Time        `firestore:"addedAt"`
	UpdatedAt *time.Time       `firestore:"updatedAt,omitempty"`
}

type totalsDocument struct {
	Subtotal    int64 `firestore:"subtotal"`
	Tax         int64 `firestore:"tax"`
	DeliveryFee int64 `firestore:"deliveryFee"`
	Total       int64 `firestore:"total"`
}

func newCartDocument(c domain.Cart) cartDocument {
	items := make([]cartItemDocument, len(c.Items))
	for i, item := range c.Items {
		items[i] = cartItemDocument{
			ProductID: item.ProductID,
			Product:   newSnapshotDocument(item.Product),
			Quantity:  item.Quantity,
			AddedAt:   item.AddedAt.UTC(),
			UpdatedAt: utcPtr(item.UpdatedAt),
		}
	}
	return cartDocument{
		Currency:    strings.ToUpper(strings.TrimSpace(c.Currency)),
		Items:       items,
		TotalItems:  c.TotalItems,
		TotalAmount: c.TotalAmount,
		Totals: totalsDocument{
			Subtotal:    c.Totals.Subtotal,
			Tax:         c.Totals.Tax,
			DeliveryFee: c.Totals.DeliveryFee,
			Total:       c.Totals.Total,
		},
		CreatedAt: c.CreatedAt.UTC(),
		UpdatedAt: c.UpdatedAt.UTC(),
	}
}

func (d cartDocument) toDomain(userID string) domain.Cart {
	items := make([]domain.CartItem, len(d.Items))
	for i, item := range d.Items {
		items[i] = domain.CartItem{
			ProductID: item.ProductID,
			Product:   item.Product.toDomain(),
			Quantity:  item.Quantity,
			AddedAt:   item.AddedAt,
			UpdatedAt: utcPtr(item.UpdatedAt),
		}
	}
	return domain.Cart{
		UserID:      userID,
		Items:       items,
		Currency:    d.Currency,
		TotalItems:  d.TotalItems,
		TotalAmount: d.TotalAmount,
		Totals: domain.PricingTotals{
			Subtotal:    d.Totals.Subtotal,
			Tax:         d.Totals.Tax,
			DeliveryFee: d.Totals.DeliveryFee,
			Total:       d.Totals.Total,
		},
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

type orderDocument struct {
	OrderNumber       string              `firestore:"orderNumber"`
	BuyerID           string              `firestore:"buyerId"`
	SellerID          string              `firestore:"sellerId"`
	Items             []orderItemDocument `firestore:"items"`
	Currency          string              `firestore:"currency"`
	Subtotal          int64               `firestore:"subtotal"`
	Tax               int64               `firestore:"tax"`
	DeliveryFee       int64               `firestore:"deliveryFee"`
	TotalAmount       int64               `firestore:"totalAmount"`
	Status            string              `firestore:"status"`
	Delivery          deliveryDocument    `firestore:"deliveryInfo"`
	Instructions      string              `firestore:"instructions,omitempty"`
	VerificationCode  string              `firestore:"verificationCode"`
	RiderID           string              `firestore:"riderId,omitempty"`
	Rider             *riderDocument      `firestore:"riderInfo,omitempty"`
	PaymentMethod     string              `firestore:"paymentMethod,omitempty"`
	PaymentReference  string              `firestore:"paymentReference,omitempty"`
	CancelReason      string              `firestore:"cancelReason,omitempty"`
	CancelledBy       string              `firestore:"cancelledBy,omitempty"`
	IdempotencyKey    string              `firestore:"idempotencyKey,omitempty"`
	CreatedAt         time.Time           `firestore:"createdAt"`
	UpdatedAt         time.Time           `firestore:"updatedAt"`
	PaymentVerifiedAt *time.Time          `firestore:"paymentVerifiedAt,omitempty"`
	RiderAssignedAt   *time.Time          `firestore:"riderAssignedAt,omitempty"`
	PickedUpAt        *time.Time          `firestore:"pickedUpAt,omitempty"`
	InTransitAt       *time.Time          `firestore:"inTransitAt,omitempty"`
	DeliveredAt       *time.Time          `firestore:"deliveredAt,omitempty"`
	CancelledAt       *time.Time          `firestore:"cancelledAt,omitempty"`
	RefundedAt        *time.Time          `firestore:"refundedAt,omitempty"`
}

type orderItemDocument struct {
	ProductID string           `firestore:"productId"`
	Product   snapshotDocument `firestore:"product"`
	Quantity  int              `firestore:"quantity"`
	LineTotal int64            `firestore:"lineTotal"`
}

type deliveryDocument struct {
	RecipientName string         `firestore:"recipientName"`
	Phone         string         `firestore:"phone"`
	AddressLine1  string         `firestore:"addressLine1"`
	AddressLine2  string         `firestore:"addressLine2,omitempty"`
	City          string         `firestore:"city"`
	Region        string         `firestore:"region,omitempty"`
	PostalCode    string         `firestore:"postalCode,omitempty"`
	Country       string         `firestore:"country"`
	Location      *latlng.LatLng `firestore:"location,omitempty"`
}

type riderDocument struct {
	Name      string `firestore:"name"`
	Phone     string `firestore:"phone,omitempty"`
	VehicleID string `firestore:"vehicleId,omitempty"`
}

func newOrderDocument(o domain.Order) orderDocument {
	items := make([]orderItemDocument, len(o.Items))
	for i, item := range o.Items {
		items[i] = orderItemDocument{
			ProductID: item.ProductID,
			Product:   newSnapshotDocument(item.Product),
			Quantity:  item.Quantity,
			LineTotal: item.LineTotal,
		}
	}
	doc := orderDocument{
		OrderNumber: o.OrderNumber,
		BuyerID:     o.BuyerID,
		SellerID:    o.SellerID,
		Items:       items,
		Currency:    o.Currency,
		Subtotal:    o.Subtotal,
		Tax:         o.Tax,
		DeliveryFee: o.DeliveryFee,
		TotalAmount: o.TotalAmount,
		Status:      string(o.Status),
		Delivery: deliveryDocument{
			RecipientName: o.DeliveryInfo.RecipientName,
			Phone:         o.DeliveryInfo.Phone,
			AddressLine1:  o.DeliveryInfo.AddressLine1,
			AddressLine2:  o.DeliveryInfo.AddressLine2,
			City:          o.DeliveryInfo.City,
			Region:        o.DeliveryInfo.Region,
			PostalCode:    o.DeliveryInfo.PostalCode,
			Country:       o.DeliveryInfo.Country,
			Location:      toLatLng(o.DeliveryInfo.Location),
		},
		Instructions:      o.Instructions,
		VerificationCode:  o.VerificationCode,
		RiderID:           o.RiderID,
		PaymentMethod:     o.PaymentMethod,
		PaymentReference:  o.PaymentReference,
		CancelReason:      o.CancelReason,
		CancelledBy:       o.CancelledBy,
		IdempotencyKey:    o.IdempotencyKey,
		CreatedAt:         o.CreatedAt.UTC(),
		UpdatedAt:         o.UpdatedAt.UTC(),
		PaymentVerifiedAt: utcPtr(o.PaymentVerifiedAt),
		RiderAssignedAt:   utcPtr(o.RiderAssignedAt),
		PickedUpAt:        utcPtr(o.PickedUpAt),
		InTransitAt:       utcPtr(o.InTransitAt),
		DeliveredAt:       utcPtr(o.DeliveredAt),
		CancelledAt:       utcPtr(o.CancelledAt),
		RefundedAt:        utcPtr(o.RefundedAt),
	}
	if o.RiderInfo != nil {
		doc.Rider = &riderDocument{Name: o.RiderInfo.Name, Phone: o.RiderInfo.Phone, VehicleID: o.RiderInfo.VehicleID}
	}
	return doc
}

func (d orderDocument) toDomain(id string) domain.Order {
	items := make([]domain.OrderItem, len(d.Items))
	for i, item := range d.Items {
		items[i] = domain.OrderItem{
			ProductID: item.ProductID,
			Product:   item.Product.toDomain(),
			Quantity:  item.Quantity,
			LineTotal: item.LineTotal,
		}
	}
	order := domain.Order{
		ID:          id,
		OrderNumber: d.OrderNumber,
		BuyerID:     d.BuyerID,
		SellerID:    d.SellerID,
		Items:       items,
		Currency:    d.Currency,
		Subtotal:    d.Subtotal,
		Tax:         d.Tax,
		DeliveryFee: d.DeliveryFee,
		TotalAmount: d.TotalAmount,
		Status:      domain.OrderStatus(d.Status),
		DeliveryInfo: domain.DeliveryInfo{
			RecipientName: d.Delivery.RecipientName,
			Phone:         d.Delivery.Phone,
			AddressLine1:  d.Delivery.AddressLine1,
			AddressLine2:  d.Delivery.AddressLine2,
			City:          d.Delivery.City,
			Region:        d.Delivery.Region,
			PostalCode:    d.Delivery.PostalCode,
			Country:       d.Delivery.Country,
			Location:      fromLatLng(d.Delivery.Location),
		},
		Instructions:      d.Instructions,
		VerificationCode:  d.VerificationCode,
		RiderID:           d.RiderID,
		PaymentMethod:     d.PaymentMethod,
		PaymentReference:  d.PaymentReference,
		CancelReason:      d.CancelReason,
		CancelledBy:       d.CancelledBy,
		IdempotencyKey:    d.IdempotencyKey,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
		PaymentVerifiedAt: utcPtr(d.PaymentVerifiedAt),
		RiderAssignedAt:   utcPtr(d.RiderAssignedAt),
		PickedUpAt:        utcPtr(d.PickedUpAt),
		InTransitAt:       utcPtr(d.InTransitAt),
		DeliveredAt:       utcPtr(d.DeliveredAt),
		CancelledAt:       utcPtr(d.CancelledAt),
		RefundedAt:        utcPtr(d.RefundedAt),
	}
	if d.Rider != nil {
		order.RiderInfo = &domain.RiderInfo{Name: d.Rider.Name, Phone: d.Rider.Phone, VehicleID: d.Rider.VehicleID}
	}
	return order
}

type trackingDocument struct {
	OrderID   string         `firestore:"orderId"`
	Status    string         `firestore:"status"`
	Message   string         `firestore:"message,omitempty"`
	UpdatedBy string         `firestore:"updatedBy"`
	Location  *latlng.LatLng `firestore:"location,omitempty"`
	Timestamp time.Time      `firestore:"timestamp"`
}

func newTrackingDocument(e domain.TrackingEntry) trackingDocument {
	return trackingDocument{
		OrderID:   e.OrderID,
		Status:    string(e.Status),
		Message:   e.Message,
		UpdatedBy: e.UpdatedBy,
		Location:  toLatLng(e.Location),
		Timestamp: e.Timestamp.UTC(),
	}
}

func (d trackingDocument) toDomain(id string) domain.TrackingEntry {
	return domain.TrackingEntry{
		ID:        id,
		OrderID:   d.OrderID,
		Status:    domain.OrderStatus(d.Status),
		Message:   d.Message,
		UpdatedBy: d.UpdatedBy,
		Location:  fromLatLng(d.Location),
		Timestamp: d.Timestamp,
	}
}

func toLatLng(point *domain.GeoPoint) *latlng.LatLng {
	if point == nil {
		return nil
	}
	return &latlng.LatLng{Latitude: point.Latitude, Longitude: point.Longitude}
}

func fromLatLng(point *latlng.LatLng) *domain.GeoPoint {
	if point == nil {
		return nil
	}
	return &domain.GeoPoint{Latitude: point.GetLatitude(), Longitude: point.GetLongitude()}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
