package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/marketline/api/internal/domain"
	"github.com/marketline/api/internal/platform/textutil"
	"github.com/marketline/api/internal/repositories"
)

// TrackingServiceDeps bundles collaborators required to construct the tracking service.
type TrackingServiceDeps struct {
	Tracking    repositories.TrackingRepository
	Orders      repositories.OrderRepository
	Clock       func() time.Time
	IDGenerator func() string
}

type trackingService struct {
	tracking repositories.TrackingRepository
	orders   repositories.OrderRepository
	clock    func() time.Time
	newID    func() string
}

// NewTrackingService wires dependencies into an OrderTrackingLog implementation.
func NewTrackingService(deps TrackingServiceDeps) (OrderTrackingLog, error) {
	if deps.Tracking == nil {
		return nil, errors.New("tracking service: tracking repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("tracking service: order repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	return &trackingService{
		tracking: deps.Tracking,
		orders:   deps.Orders,
		clock:    func() time.Time { return clock().UTC() },
		newID:    idGen,
	}, nil
}

// Append inserts an entry. Only required fields are checked; the entry does not change the order.
func (s *trackingService) Append(ctx context.Context, entry TrackingEntry) (TrackingEntry, error) {
	entry.OrderID = strings.TrimSpace(entry.OrderID)
	entry.UpdatedBy = strings.TrimSpace(entry.UpdatedBy)
	switch {
	case entry.OrderID == "":
		return TrackingEntry{}, fmt.Errorf("%w: order id is required", ErrInvalidInput)
	case entry.UpdatedBy == "":
		return TrackingEntry{}, fmt.Errorf("%w: actor id is required", ErrInvalidInput)
	case !entry.Status.IsValid():
		return TrackingEntry{}, fmt.Errorf("%w: unknown order status %q", ErrInvalidInput, entry.Status)
	}
	entry.Message = textutil.PlainText(entry.Message, maxTrackingMessage)
	if strings.TrimSpace(entry.ID) == "" {
		entry.ID = trackingIDPrefix + strings.ToLower(s.newID())
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.clock()
	}
	if err := s.tracking.Append(ctx, entry); err != nil {
		return TrackingEntry{}, mapRepositoryError(err)
	}
	return entry, nil
}

// History returns the order's entries oldest first.
func (s *trackingService) History(ctx context.Context, orderID string, pager Pagination) (domain.CursorPage[TrackingEntry], error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.CursorPage[TrackingEntry]{}, fmt.Errorf("%w: order id is required", ErrInvalidInput)
	}
	if _, err := s.orders.FindByID(ctx, orderID); err != nil {
		return domain.CursorPage[TrackingEntry]{}, mapRepositoryError(err)
	}
	page, err := s.tracking.ListByOrder(ctx, orderID, pager)
	if err != nil {
		return domain.CursorPage[TrackingEntry]{}, mapRepositoryError(err)
	}
	return page, nil
}
