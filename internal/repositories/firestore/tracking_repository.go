package firestore

import (
	"context"
	"errors"
	"strings"

	domain "github.com/marketline/api/internal/domain"
	pfirestore "github.com/marketline/api/internal/platform/firestore"
	"github.com/marketline/api/internal/repositories"
)

// TrackingRepository stores tracking entries under orders/{orderId}/tracking.
type TrackingRepository struct {
	orders *pfirestore.Collection[orderDocument]
}

var _ repositories.TrackingRepository = (*TrackingRepository)(nil)

// NewTrackingRepository constructs a Firestore-backed tracking repository.
func NewTrackingRepository(provider *pfirestore.Provider) (*TrackingRepository, error) {
	if provider == nil {
		return nil, errors.New("tracking repository requires firestore provider")
	}
	return &TrackingRepository{orders: pfirestore.NewCollection[orderDocument](provider, ordersCollection)}, nil
}

// Append inserts the entry. Entries are never updated, so an existing id is a conflict.
func (r *TrackingRepository) Append(ctx context.Context, entry domain.TrackingEntry) error {
	entries, err := r.entries(entry.OrderID)
	if err != nil {
		return err
	}
	return entries.Create(ctx, entry.ID, newTrackingDocument(entry))
}

// ListByOrder returns the order history oldest first.
func (r *TrackingRepository) ListByOrder(ctx context.Context, orderID string, pager domain.Pagination) (domain.CursorPage[domain.TrackingEntry], error) {
	entries, err := r.entries(orderID)
	if err != nil {
		return domain.CursorPage[domain.TrackingEntry]{}, err
	}
	page, err := entries.Page(ctx, pager, trackingByTime, nil)
	if err != nil {
		return domain.CursorPage[domain.TrackingEntry]{}, err
	}
	return mapPage(page, func(doc pfirestore.Document[trackingDocument]) domain.TrackingEntry {
		return doc.Data.toDomain(doc.ID)
	}), nil
}

func (r *TrackingRepository) entries(orderID string) (*pfirestore.Collection[trackingDocument], error) {
	if r == nil || r.orders == nil {
		return nil, errors.New("tracking repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return nil, repositories.NewInvalidArgumentError("tracking", "order id is required")
	}
	return pfirestore.Subcollection[trackingDocument](r.orders, id, trackingCollection), nil
}
