//go:build integration

package firestore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	domain "github.com/marketline/api/internal/domain"
	"github.com/marketline/api/internal/repositories"
)

func TestOrderRepositoryIntegration(t *testing.T) {
	provider := newEmulatorProvider(t, "orders-test")

	reg, err := NewRegistry(provider)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Millisecond)
	seed := func(id string, stock int) {
		t.Helper()
		if err := reg.Products().Insert(ctx, domain.Product{
			ID:        id,
			SellerID:  "seller-1",
			Name:      "Product " + id,
			Price:     1500,
			Currency:  "USD",
			Stock:     stock,
			Status:    domain.ProductStatusActive,
			CreatedAt: now,
			UpdatedAt: now,
		}); err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
	}
	seed("lamp", 1)
	seed("chair", 5)

	newRequest := func(orderID, productID string, qty int) repositories.PlaceOrderRequest {
		return repositories.PlaceOrderRequest{
			Order: domain.Order{
				ID:               orderID,
				OrderNumber:      "MK-2025-" + orderID,
				BuyerID:          "buyer-" + orderID,
				SellerID:         "seller-1",
				Items:            []domain.OrderItem{{ProductID: productID, Quantity: qty, LineTotal: int64(qty) * 1500}},
				Currency:         "USD",
				Status:           domain.OrderStatusPending,
				VerificationCode: "482913",
				DeliveryInfo: domain.DeliveryInfo{
					RecipientName: "Ada",
					AddressLine1:  "1 Main St",
					City:          "Springfield",
					Country:       "US",
					Location:      &domain.GeoPoint{Latitude: 35.6, Longitude: 139.7},
				},
				CreatedAt: now,
				UpdatedAt: now,
			},
			Tracking: domain.TrackingEntry{
				ID:        "trk-" + orderID,
				OrderID:   orderID,
				Status:    domain.OrderStatusPending,
				UpdatedBy: "buyer-" + orderID,
				Timestamp: now,
			},
		}
	}

	// Two buyers race for the last lamp; exactly one order may commit.
	var (
		wg        sync.WaitGroup
		successes int32
		stockErrs int32
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := reg.Orders().Place(ctx, newRequest(fmt.Sprintf("race-%d", i), "lamp", 1))
			var stockErr *repositories.StockError
			switch {
			case err == nil:
				atomic.AddInt32(&successes, 1)
			case errors.As(err, &stockErr) && stockErr.Code == repositories.StockErrorInsufficient:
				atomic.AddInt32(&stockErrs, 1)
			default:
				t.Errorf("unexpected place error: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if successes != 1 || stockErrs != 1 {
		t.Fatalf("expected one success and one insufficient stock, got %d/%d", successes, stockErrs)
	}
	lamp, err := reg.Products().FindByID(ctx, "lamp")
	if err != nil {
		t.Fatalf("find lamp: %v", err)
	}
	if lamp.Stock != 0 {
		t.Fatalf("expected lamp stock 0, got %d", lamp.Stock)
	}

	placed, err := reg.Orders().Place(ctx, newRequest("o-chair", "chair", 3))
	if err != nil {
		t.Fatalf("place chair order: %v", err)
	}
	if placed.Replayed {
		t.Fatalf("first placement must not be a replay")
	}
	replay, err := reg.Orders().Place(ctx, newRequest("o-chair", "chair", 3))
	if err != nil {
		t.Fatalf("replay chair order: %v", err)
	}
	if !replay.Replayed {
		t.Fatalf("expected replayed placement")
	}
	stored, err := reg.Orders().FindByID(ctx, "o-chair")
	if err != nil {
		t.Fatalf("find order: %v", err)
	}
	if stored.DeliveryInfo.Location == nil || stored.DeliveryInfo.Location.Latitude != 35.6 {
		t.Fatalf("expected geo point round trip, got %+v", stored.DeliveryInfo.Location)
	}

	cancelAt := now.Add(time.Minute)
	result, err := reg.Orders().Transition(ctx, repositories.TransitionRequest{
		OrderID:      "o-chair",
		RestoreStock: true,
		At:           cancelAt,
		Mutate: func(current domain.Order) (domain.Order, domain.TrackingEntry, error) {
			if current.Status != domain.OrderStatusPending {
				return domain.Order{}, domain.TrackingEntry{}, errors.New("unexpected status")
			}
			current.Status = domain.OrderStatusCancelled
			current.CancelledAt = &cancelAt
			current.UpdatedAt = cancelAt
			return current, domain.TrackingEntry{
				ID: "trk-cancel", OrderID: "o-chair", Status: domain.OrderStatusCancelled,
				UpdatedBy: "buyer-o-chair", Timestamp: cancelAt,
			}, nil
		},
	})
	if err != nil {
		t.Fatalf("cancel transition: %v", err)
	}
	if result.Order.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", result.Order.Status)
	}
	chair, err := reg.Products().FindByID(ctx, "chair")
	if err != nil {
		t.Fatalf("find chair: %v", err)
	}
	if chair.Stock != 5 {
		t.Fatalf("expected chair stock restored to 5, got %d", chair.Stock)
	}

	rejected := errors.New("illegal")
	_, err = reg.Orders().Transition(ctx, repositories.TransitionRequest{
		OrderID: "o-chair",
		Mutate: func(domain.Order) (domain.Order, domain.TrackingEntry, error) {
			return domain.Order{}, domain.TrackingEntry{}, rejected
		},
	})
	if !errors.Is(err, rejected) {
		t.Fatalf("expected mutation error to surface unchanged, got %v", err)
	}

	history, err := reg.Tracking().ListByOrder(ctx, "o-chair", domain.Pagination{PageSize: 1})
	if err != nil {
		t.Fatalf("list tracking: %v", err)
	}
	if len(history.Items) != 1 || history.Items[0].Status != domain.OrderStatusPending || history.NextPageToken == "" {
		t.Fatalf("unexpected first tracking page: %+v", history)
	}
	next, err := reg.Tracking().ListByOrder(ctx, "o-chair", domain.Pagination{PageSize: 1, PageToken: history.NextPageToken})
	if err != nil {
		t.Fatalf("list tracking page 2: %v", err)
	}
	if len(next.Items) != 1 || next.Items[0].Status != domain.OrderStatusCancelled || next.NextPageToken != "" {
		t.Fatalf("unexpected second tracking page: %+v", next)
	}

	_, err = reg.Orders().Transition(ctx, repositories.TransitionRequest{
		OrderID: "missing",
		Mutate: func(o domain.Order) (domain.Order, domain.TrackingEntry, error) {
			return o, domain.TrackingEntry{}, nil
		},
	})
	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
		t.Fatalf("expected not found for missing order, got %v", err)
	}

	report, err := reg.Health().Collect(ctx)
	if err != nil {
		t.Fatalf("collect health: %v", err)
	}
	if report.Status != domain.HealthStatusOK {
		t.Fatalf("expected healthy firestore, got %+v", report)
	}
}
