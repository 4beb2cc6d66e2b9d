package domain

import (
	"errors"
	"testing"
)

func TestPricingPolicyComputeTotals(t *testing.T) {
	policy := DefaultPricingPolicy()

	cases := []struct {
		name     string
		subtotal int64
		want     PricingTotals
	}{
		{name: "zero subtotal pays delivery", subtotal: 0, want: PricingTotals{DeliveryFee: 1000, Total: 1000}},
		{name: "small order pays delivery", subtotal: 4000, want: PricingTotals{Subtotal: 4000, Tax: 200, DeliveryFee: 1000, Total: 5200}},
		{name: "threshold is not free", subtotal: 10000, want: PricingTotals{Subtotal: 10000, Tax: 500, DeliveryFee: 1000, Total: 11500}},
		{name: "above threshold is free", subtotal: 10001, want: PricingTotals{Subtotal: 10001, Tax: 500, DeliveryFee: 0, Total: 10501}},
		{name: "half up rounding", subtotal: 10, want: PricingTotals{Subtotal: 10, Tax: 1, DeliveryFee: 1000, Total: 1011}},
		{name: "rounds down below half", subtotal: 9, want: PricingTotals{Subtotal: 9, Tax: 0, DeliveryFee: 1000, Total: 1009}},
		{name: "negative clamps", subtotal: -50, want: PricingTotals{DeliveryFee: 1000, Total: 1000}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := policy.ComputeTotals(tc.subtotal)
			if got != tc.want {
				t.Fatalf("ComputeTotals(%d) = %+v, want %+v", tc.subtotal, got, tc.want)
			}
		})
	}
}

func TestPricingPolicyCustomConstants(t *testing.T) {
	policy := PricingPolicy{TaxRateBasisPoints: 1000, DeliveryFee: 250, FreeDeliveryThreshold: 500}
	got := policy.ComputeTotals(600)
	if got.Tax != 60 || got.DeliveryFee != 0 || got.Total != 660 {
		t.Fatalf("unexpected totals %+v", got)
	}
}

func TestCanTransitionMatchesLifecycleTable(t *testing.T) {
	legal := map[OrderStatus]map[OrderStatus]bool{
		OrderStatusPending:         {OrderStatusPaymentVerified: true, OrderStatusCancelled: true},
		OrderStatusPaymentVerified: {OrderStatusRiderAssigned: true, OrderStatusCancelled: true},
		OrderStatusRiderAssigned:   {OrderStatusPickedUp: true, OrderStatusCancelled: true},
		OrderStatusPickedUp:        {OrderStatusInTransit: true},
		OrderStatusInTransit:       {OrderStatusDelivered: true},
	}

	for _, from := range AllOrderStatuses() {
		for _, to := range AllOrderStatuses() {
			want := legal[from][to]
			if got := CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestOrderStatusTerminalAndCancellable(t *testing.T) {
	for _, status := range []OrderStatus{OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded} {
		if !status.IsTerminal() {
			t.Errorf("expected %s to be terminal", status)
		}
	}
	if OrderStatusPickedUp.Cancellable() {
		t.Errorf("picked_up orders must not be cancellable")
	}
	if !OrderStatusRiderAssigned.Cancellable() {
		t.Errorf("rider_assigned orders must be cancellable")
	}
	if OrderStatus("shipped").IsValid() {
		t.Errorf("unknown status reported as valid")
	}
}

func TestApplyStockDelta(t *testing.T) {
	next, err := ApplyStockDelta(3, -3)
	if err != nil || next != 0 {
		t.Fatalf("expected 0 stock, got %d err %v", next, err)
	}

	next, err = ApplyStockDelta(1, -2)
	if !errors.Is(err, ErrStockBelowZero) {
		t.Fatalf("expected ErrStockBelowZero, got %v", err)
	}
	if next != 1 {
		t.Fatalf("expected stock to be unchanged on failure, got %d", next)
	}

	next, err = ApplyStockDelta(0, 5)
	if err != nil || next != 5 {
		t.Fatalf("expected 5 stock, got %d err %v", next, err)
	}
}

func TestProductPurchasableAndSnapshot(t *testing.T) {
	p := Product{ID: "p1", SellerID: "s1", Price: 1200, Currency: "USD", Stock: 2, Status: ProductStatusActive}
	if !p.Purchasable() {
		t.Fatalf("expected active product with stock to be purchasable")
	}
	p.Stock = 0
	if p.Purchasable() {
		t.Fatalf("expected sold out product to be unpurchasable")
	}

	snap := p.Snapshot(p.CreatedAt)
	if snap.ProductID != "p1" || snap.SellerID != "s1" || snap.Price != 1200 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	adj := StockAdjustment{Quantity: 4, Reason: StockReasonSubtract}
	if adj.Delta() != -4 {
		t.Fatalf("expected negative delta, got %d", adj.Delta())
	}
}
