package firestore

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/marketline/api/internal/repositories"
)

func TestWrapErrorClassification(t *testing.T) {
	cases := []struct {
		name        string
		code        codes.Code
		notFound    bool
		conflict    bool
		unavailable bool
	}{
		{"not found", codes.NotFound, true, false, false},
		{"already exists", codes.AlreadyExists, false, true, false},
		{"aborted", codes.Aborted, false, true, false},
		{"unavailable", codes.Unavailable, false, false, true},
		{"exhausted", codes.ResourceExhausted, false, false, true},
		{"invalid", codes.InvalidArgument, false, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := WrapError("products.get", status.Error(tc.code, "boom"))
			var storeErr *repositories.StoreError
			if !errors.As(err, &storeErr) {
				t.Fatalf("expected *repositories.StoreError, got %T", err)
			}
			if storeErr.IsNotFound() != tc.notFound || storeErr.IsConflict() != tc.conflict || storeErr.IsUnavailable() != tc.unavailable {
				t.Fatalf("unexpected classification for %s: %+v", tc.code, storeErr)
			}
			if storeErr.Op != "products.get" {
				t.Fatalf("expected op products.get, got %q", storeErr.Op)
			}
		})
	}
}

func TestWrapErrorPassesContextErrors(t *testing.T) {
	if err := WrapError("op", context.Canceled); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if err := WrapError("op", status.Error(codes.DeadlineExceeded, "late")); err != context.DeadlineExceeded {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
	if WrapError("op", nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
}

func TestWrapErrorKeepsTypedErrors(t *testing.T) {
	inner := WrapError("orders.place", status.Error(codes.Aborted, "contention"))
	if outer := WrapError("transaction", inner); outer.Error() != inner.Error() {
		t.Fatalf("expected op to be preserved, got %q", outer.Error())
	}

	stockErr := repositories.NewStockError(repositories.StockErrorInsufficient, "prd-1", "", nil)
	if got := WrapError("orders.place", stockErr); got != error(stockErr) {
		t.Fatalf("expected stock error to pass through, got %T", got)
	}

	invalid := repositories.NewInvalidArgumentError("", "counter id is required")
	got := WrapError("counters.next", invalid)
	if !errors.Is(got, repositories.ErrInvalidArgument) || invalid.Op != "counters.next" {
		t.Fatalf("expected invalid argument tagged with op, got %v", got)
	}
}

func TestRunTransactionRejectsNilClient(t *testing.T) {
	err := RunTransaction(context.Background(), nil, nil)
	if err == nil {
		t.Fatalf("expected error for nil client")
	}
}
