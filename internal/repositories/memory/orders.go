package memory

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/marketline/api/internal/domain"
	"github.com/marketline/api/internal/repositories"
)

type orderRepository struct {
	store *Store
}

func (r orderRepository) Place(_ context.Context, req repositories.PlaceOrderRequest) (repositories.PlaceOrderResult, error) {
	order := req.Order
	if strings.TrimSpace(order.ID) == "" {
		return repositories.PlaceOrderResult{}, errors.New("memory: order id is required")
	}

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.orders[order.ID]; ok {
		return repositories.PlaceOrderResult{Order: cloneOrder(existing), Replayed: true}, nil
	}

	ids, quantities := repositories.ItemQuantities(order.Items)
	next, err := repositories.ReserveStock(s.products, ids, quantities)
	if err != nil {
		return repositories.PlaceOrderResult{}, err
	}

	for id, stock := range next {
		product := s.products[id]
		product.Stock = stock
		product.UpdatedAt = order.CreatedAt
		s.products[id] = product
	}
	s.orders[order.ID] = cloneOrder(order)
	s.tracking[order.ID] = append(s.tracking[order.ID], cloneTracking(req.Tracking))

	return repositories.PlaceOrderResult{Order: cloneOrder(order)}, nil
}

func (r orderRepository) Transition(_ context.Context, req repositories.TransitionRequest) (repositories.TransitionResult, error) {
	if req.Mutate == nil {
		return repositories.TransitionResult{}, errors.New("memory: transition mutation is required")
	}

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.orders[req.OrderID]
	if !ok {
		return repositories.TransitionResult{}, repositories.NewNotFoundError("orders.transition", "order %s not found", req.OrderID)
	}

	updated, entry, err := req.Mutate(cloneOrder(current))
	if err != nil {
		return repositories.TransitionResult{}, err
	}

	var restored map[string]int
	if req.RestoreStock {
		ids, quantities := repositories.ItemQuantities(current.Items)
		restored, err = repositories.RestoreStock(s.products, ids, quantities)
		if err != nil {
			return repositories.TransitionResult{}, err
		}
	}

	for id, stock := range restored {
		product := s.products[id]
		product.Stock = stock
		product.UpdatedAt = req.At
		s.products[id] = product
	}
	s.orders[req.OrderID] = cloneOrder(updated)
	s.tracking[req.OrderID] = append(s.tracking[req.OrderID], cloneTracking(entry))

	return repositories.TransitionResult{Order: cloneOrder(updated), Tracking: cloneTracking(entry)}, nil
}

func (r orderRepository) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return domain.Order{}, repositories.NewNotFoundError("orders.get", "order %s not found", orderID)
	}
	return cloneOrder(order), nil
}

func (r orderRepository) List(_ context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	statuses := make(map[domain.OrderStatus]struct{}, len(filter.Statuses))
	for _, status := range filter.Statuses {
		statuses[status] = struct{}{}
	}

	s := r.store
	s.mu.Lock()
	var matches []domain.Order
	for _, order := range s.orders {
		if filter.BuyerID != "" && order.BuyerID != filter.BuyerID {
			continue
		}
		if filter.SellerID != "" && order.SellerID != filter.SellerID {
			continue
		}
		if filter.RiderID != "" && order.RiderID != filter.RiderID {
			continue
		}
		if filter.IdempotencyKey != "" && order.IdempotencyKey != filter.IdempotencyKey {
			continue
		}
		if len(statuses) > 0 {
			if _, ok := statuses[order.Status]; !ok {
				continue
			}
		}
		matches = append(matches, cloneOrder(order))
	}
	s.mu.Unlock()

	return keysetPage(matches, filter.Pagination, func(o domain.Order) (time.Time, string) {
		return o.CreatedAt, o.ID
	}, true)
}
