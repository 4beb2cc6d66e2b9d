package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/marketline/api/internal/domain"
	pfirestore "github.com/marketline/api/internal/platform/firestore"
	"github.com/marketline/api/internal/repositories"
)

const (
	ordersCollection   = "orders"
	trackingCollection = "tracking"
)

// OrderRepository implements repositories.OrderRepository. Place and Transition run every read
// before any write inside a single Firestore transaction.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.Collection[orderDocument]
	products *ProductRepository
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider, products *ProductRepository) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	if products == nil {
		return nil, errors.New("order repository requires product repository")
	}
	return &OrderRepository{
		provider: provider,
		orders:   pfirestore.NewCollection[orderDocument](provider, ordersCollection),
		products: products,
	}, nil
}

// Place reserves stock for every item and writes the order plus its first tracking entry. An
// existing order with the same id is returned untouched with Replayed set.
func (r *OrderRepository) Place(ctx context.Context, req repositories.PlaceOrderRequest) (repositories.PlaceOrderResult, error) {
	if r == nil || r.provider == nil {
		return repositories.PlaceOrderResult{}, errors.New("order repository not initialised")
	}
	order := req.Order
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return repositories.PlaceOrderResult{}, errors.New("order place: order id is required")
	}
	if len(order.Items) == 0 {
		return repositories.PlaceOrderResult{}, errors.New("order place: at least one item is required")
	}

	ids, quantities := repositories.ItemQuantities(order.Items)
	var result repositories.PlaceOrderResult

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		result = repositories.PlaceOrderResult{}

		orderRef, err := r.orders.Doc(ctx, orderID)
		if err != nil {
			return err
		}
		existing, found, err := r.orders.TxGet(tx, orderRef)
		if err != nil {
			return err
		}
		if found {
			result = repositories.PlaceOrderResult{Order: existing.Data.toDomain(existing.ID), Replayed: true}
			return nil
		}

		productRefs, err := r.products.refs(ctx, ids)
		if err != nil {
			return err
		}
		products, err := loadProductsTx(tx, productRefs)
		if err != nil {
			return err
		}
		next, err := repositories.ReserveStock(products, ids, quantities)
		if err != nil {
			return err
		}

		if err := writeStockTx(tx, productRefs, next, order.CreatedAt); err != nil {
			return err
		}
		if err := tx.Create(orderRef, newOrderDocument(order)); err != nil {
			return err
		}
		if err := tx.Create(orderRef.Collection(trackingCollection).Doc(req.Tracking.ID), newTrackingDocument(req.Tracking)); err != nil {
			return err
		}
		result = repositories.PlaceOrderResult{Order: order}
		return nil
	}, pfirestore.WithTxName("orders.place"))
	if err != nil {
		return repositories.PlaceOrderResult{}, wrapStockError("orders.place", err)
	}
	return result, nil
}

// Transition evaluates req.Mutate against the freshly read order and commits the result together
// with its tracking entry and, when requested, the stock restoration.
func (r *OrderRepository) Transition(ctx context.Context, req repositories.TransitionRequest) (repositories.TransitionResult, error) {
	if r == nil || r.provider == nil {
		return repositories.TransitionResult{}, errors.New("order repository not initialised")
	}
	if req.Mutate == nil {
		return repositories.TransitionResult{}, errors.New("order transition: mutation is required")
	}
	orderID := strings.TrimSpace(req.OrderID)

	var (
		result    repositories.TransitionResult
		mutateErr error
	)
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		result = repositories.TransitionResult{}
		mutateErr = nil

		orderRef, err := r.orders.Doc(ctx, orderID)
		if err != nil {
			return err
		}
		snap, found, err := r.orders.TxGet(tx, orderRef)
		if err != nil {
			return err
		}
		if !found {
			return repositories.NewNotFoundError("orders.transition", "order %s not found", orderID)
		}
		current := snap.Data.toDomain(snap.ID)

		updated, entry, err := req.Mutate(current)
		if err != nil {
			mutateErr = err
			return err
		}

		var (
			productRefs []*firestore.DocumentRef
			restored    map[string]int
		)
		if req.RestoreStock {
			ids, quantities := repositories.ItemQuantities(current.Items)
			productRefs, err = r.products.refs(ctx, ids)
			if err != nil {
				return err
			}
			products, err := loadProductsTx(tx, productRefs)
			if err != nil {
				return err
			}
			restored, err = repositories.RestoreStock(products, ids, quantities)
			if err != nil {
				return err
			}
		}

		if err := writeStockTx(tx, productRefs, restored, req.At); err != nil {
			return err
		}
		if err := tx.Set(orderRef, newOrderDocument(updated)); err != nil {
			return err
		}
		if err := tx.Create(orderRef.Collection(trackingCollection).Doc(entry.ID), newTrackingDocument(entry)); err != nil {
			return err
		}
		result = repositories.TransitionResult{Order: updated, Tracking: entry}
		return nil
	}, pfirestore.WithTxName("orders.transition"))
	if mutateErr != nil {
		return repositories.TransitionResult{}, mutateErr
	}
	if err != nil {
		return repositories.TransitionResult{}, wrapStockError("orders.transition", err)
	}
	return result, nil
}

// FindByID loads a single order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.orders == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	doc, err := r.orders.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// List returns orders matching the filter, newest first.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.orders == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}
	page, err := r.orders.Page(ctx, filter.Pagination, ordersByCreated, func(q firestore.Query) firestore.Query {
		if id := strings.TrimSpace(filter.BuyerID); id != "" {
			q = q.Where("buyerId", "==", id)
		}
		if id := strings.TrimSpace(filter.SellerID); id != "" {
			q = q.Where("sellerId", "==", id)
		}
		if id := strings.TrimSpace(filter.RiderID); id != "" {
			q = q.Where("riderId", "==", id)
		}
		if key := strings.TrimSpace(filter.IdempotencyKey); key != "" {
			q = q.Where("idempotencyKey", "==", key)
		}
		if len(filter.Statuses) > 0 {
			statuses := make([]string, 0, len(filter.Statuses))
			for _, s := range filter.Statuses {
				statuses = append(statuses, string(s))
			}
			q = q.Where("status", "in", statuses)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	return mapPage(page, func(doc pfirestore.Document[orderDocument]) domain.Order {
		return doc.Data.toDomain(doc.ID)
	}), nil
}
