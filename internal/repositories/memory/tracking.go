package memory

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/marketline/api/internal/domain"
	"github.com/marketline/api/internal/repositories"
)

type trackingRepository struct {
	store *Store
}

func (r trackingRepository) Append(_ context.Context, entry domain.TrackingEntry) error {
	if strings.TrimSpace(entry.OrderID) == "" || strings.TrimSpace(entry.ID) == "" {
		return errors.New("memory: tracking entry requires order id and id")
	}
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.tracking[entry.OrderID] {
		if existing.ID == entry.ID {
			return repositories.NewConflictError("tracking.append", "tracking entry %s already exists", entry.ID)
		}
	}
	s.tracking[entry.OrderID] = append(s.tracking[entry.OrderID], cloneTracking(entry))
	return nil
}

func (r trackingRepository) ListByOrder(_ context.Context, orderID string, pager domain.Pagination) (domain.CursorPage[domain.TrackingEntry], error) {
	s := r.store
	s.mu.Lock()
	entries := make([]domain.TrackingEntry, 0, len(s.tracking[orderID]))
	for _, entry := range s.tracking[orderID] {
		entries = append(entries, cloneTracking(entry))
	}
	s.mu.Unlock()

	return keysetPage(entries, pager, func(e domain.TrackingEntry) (time.Time, string) {
		return e.Timestamp, e.ID
	}, false)
}

type counterRepository struct {
	store *Store
}

func (r counterRepository) Next(_ context.Context, counterID string, step int64) (int64, error) {
	id, err := repositories.CounterKey(counterID, step)
	if err != nil {
		return 0, err
	}
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[id] += step
	return s.counters[id], nil
}
