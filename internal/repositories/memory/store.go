// Package memory provides an in-process repository registry used by tests and local runs.
// Every operation holds the store mutex for its full read-check-write, which gives the same
// atomicity the Firestore repositories get from transactions.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	domain "github.com/marketline/api/internal/domain"
	"github.com/marketline/api/internal/platform/pagination"
	"github.com/marketline/api/internal/repositories"
)

// Store holds every collection behind a single mutex.
type Store struct {
	mu       sync.Mutex
	products map[string]domain.Product
	carts    map[string]domain.Cart
	orders   map[string]domain.Order
	tracking map[string][]domain.TrackingEntry
	counters map[string]int64
}

var _ repositories.Registry = (*Store)(nil)

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{
		products: make(map[string]domain.Product),
		carts:    make(map[string]domain.Cart),
		orders:   make(map[string]domain.Order),
		tracking: make(map[string][]domain.TrackingEntry),
		counters: make(map[string]int64),
	}
}

// Close implements repositories.Registry.
func (s *Store) Close(context.Context) error { return nil }

// Products returns the product repository view.
func (s *Store) Products() repositories.ProductRepository { return productRepository{s} }

// Carts returns the cart repository view.
func (s *Store) Carts() repositories.CartRepository { return cartRepository{s} }

// Orders returns the order repository view.
func (s *Store) Orders() repositories.OrderRepository { return orderRepository{s} }

// Tracking returns the tracking repository view.
func (s *Store) Tracking() repositories.TrackingRepository { return trackingRepository{s} }

// Counters returns the counter repository view.
func (s *Store) Counters() repositories.CounterRepository { return counterRepository{s} }

// Health reports the in-process store as always healthy.
func (s *Store) Health() repositories.HealthRepository { return healthRepository{} }

type healthRepository struct{}

func (healthRepository) Collect(context.Context) (domain.HealthReport, error) {
	now := time.Now().UTC()
	return domain.HealthReport{
		Status: domain.HealthStatusOK,
		Checks: map[string]domain.DependencyHealth{
			"memory": {Status: domain.HealthStatusOK, Detail: "ok", CheckedAt: now},
		},
		GeneratedAt: now,
	}, nil
}

// keysetPage sorts items by (timestamp, id) and returns the page following the token.
func keysetPage[T any](items []T, pager domain.Pagination, key func(T) (time.Time, string), desc bool) (domain.CursorPage[T], error) {
	sort.SliceStable(items, func(i, j int) bool {
		ti, idi := key(items[i])
		tj, idj := key(items[j])
		if !ti.Equal(tj) {
			if desc {
				return ti.After(tj)
			}
			return ti.Before(tj)
		}
		if desc {
			return idi > idj
		}
		return idi < idj
	})

	afterAt, afterID, hasCursor, err := pagination.DecodeKeyset(pager.PageToken)
	if err != nil {
		return domain.CursorPage[T]{}, err
	}

	start := 0
	if hasCursor {
		start = len(items)
		for i, item := range items {
			at, id := key(item)
			if isAfter(at, id, afterAt, afterID, desc) {
				start = i
				break
			}
		}
	}

	size := pagination.ClampPageSize(pager.PageSize)
	end := start + size
	if end > len(items) {
		end = len(items)
	}

	page := domain.CursorPage[T]{Items: append([]T(nil), items[start:end]...)}
	if end < len(items) && end > start {
		at, id := key(items[end-1])
		token, err := pagination.EncodeKeyset(at, id)
		if err != nil {
			return domain.CursorPage[T]{}, err
		}
		page.NextPageToken = token
	}
	return page, nil
}

func isAfter(at time.Time, id string, cursorAt time.Time, cursorID string, desc bool) bool {
	if !at.Equal(cursorAt) {
		if desc {
			return at.Before(cursorAt)
		}
		return at.After(cursorAt)
	}
	if desc {
		return id < cursorID
	}
	return id > cursorID
}

func cloneProduct(p domain.Product) domain.Product {
	if p.DeletedAt != nil {
		deleted := *p.DeletedAt
		p.DeletedAt = &deleted
	}
	return p
}

func cloneCart(c domain.Cart) domain.Cart {
	items := make([]domain.CartItem, len(c.Items))
	for i, item := range c.Items {
		if item.UpdatedAt != nil {
			updated := *item.UpdatedAt
			item.UpdatedAt = &updated
		}
		items[i] = item
	}
	c.Items = items
	return c
}

func cloneOrder(o domain.Order) domain.Order {
	o.Items = append([]domain.OrderItem(nil), o.Items...)
	if o.DeliveryInfo.Location != nil {
		loc := *o.DeliveryInfo.Location
		o.DeliveryInfo.Location = &loc
	}
	if o.RiderInfo != nil {
		rider := *o.RiderInfo
		o.RiderInfo = &rider
	}
	for _, ts := range []**time.Time{
		&o.PaymentVerifiedAt, &o.RiderAssignedAt, &o.PickedUpAt, &o.InTransitAt,
		&o.DeliveredAt, &o.CancelledAt, &o.RefundedAt,
	} {
		if *ts != nil {
			copied := **ts
			*ts = &copied
		}
	}
	return o
}

func cloneTracking(e domain.TrackingEntry) domain.TrackingEntry {
	if e.Location != nil {
		loc := *e.Location
		e.Location = &loc
	}
	return e
}
