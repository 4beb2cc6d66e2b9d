package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/marketline/api/internal/domain"
)

func TestCreateProductNormalisesInput(t *testing.T) {
	m := newMarketplace(t)
	ctx := context.Background()

	product, err := m.catalog.CreateProduct(ctx, CreateProductCommand{
		SellerID:    " seller-a ",
		Name:        "  <b>Fresh</b>   Mangoes ",
		Description: "Sweet &amp; ripe<script>alert(1)</script>",
		Price:       1200,
		Currency:    "jpy",
		Stock:       4,
	})
	require.NoError(t, err)
	assert.Equal(t, "prd_id000001", product.ID)
	assert.Equal(t, "seller-a", product.SellerID)
	assert.Equal(t, "Fresh Mangoes", product.Name)
	assert.Equal(t, "Sweet & ripe", product.Description)
	assert.Equal(t, "JPY", product.Currency)
	assert.Equal(t, domain.ProductStatusDraft, product.Status)
	assert.False(t, product.Purchasable())
}

func TestCreateProductValidation(t *testing.T) {
	m := newMarketplace(t)
	ctx := context.Background()

	cases := []struct {
		name    string
		cmd     CreateProductCommand
		wantErr error
	}{
		{name: "missing seller", cmd: CreateProductCommand{Name: "x"}, wantErr: ErrInvalidInput},
		{name: "missing name", cmd: CreateProductCommand{SellerID: "s", Name: "<i></i>"}, wantErr: ErrInvalidInput},
		{name: "negative price", cmd: CreateProductCommand{SellerID: "s", Name: "x", Price: -1}, wantErr: ErrInvalidInput},
		{name: "negative stock", cmd: CreateProductCommand{SellerID: "s", Name: "x", Stock: -1}, wantErr: ErrInvalidQuantity},
		{name: "bad currency", cmd: CreateProductCommand{SellerID: "s", Name: "x", Currency: "ZZZ1"}, wantErr: ErrInvalidInput},
		{name: "bad status", cmd: CreateProductCommand{SellerID: "s", Name: "x", Status: "archived"}, wantErr: ErrInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := m.catalog.CreateProduct(ctx, tc.cmd)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestAdjustStock(t *testing.T) {
	m := newMarketplace(t)
	ctx := context.Background()
	m.seedProduct(t, "p1", "seller-a", 500, 3)

	product, err := m.catalog.AdjustStock(ctx, StockAdjustment{ProductID: "p1", Quantity: 2, Reason: domain.StockReasonAdd})
	require.NoError(t, err)
	assert.Equal(t, 5, product.Stock)

	product, err = m.catalog.AdjustStock(ctx, StockAdjustment{ProductID: "p1", Quantity: 5, Reason: domain.StockReasonSubtract})
	require.NoError(t, err)
	assert.Equal(t, 0, product.Stock)

	_, err = m.catalog.AdjustStock(ctx, StockAdjustment{ProductID: "p1", Quantity: 1, Reason: domain.StockReasonSubtract})
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, 0, m.stock(t, "p1"))

	_, err = m.catalog.AdjustStock(ctx, StockAdjustment{ProductID: "p1", Quantity: -1, Reason: domain.StockReasonAdd})
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = m.catalog.AdjustStock(ctx, StockAdjustment{ProductID: "p1", Quantity: 1, Reason: "steal"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = m.catalog.AdjustStock(ctx, StockAdjustment{ProductID: "ghost", Quantity: 1, Reason: domain.StockReasonAdd})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAdjustStockConcurrentSubtractionsNeverOversell(t *testing.T) {
	m := newMarketplace(t)
	ctx := context.Background()
	m.seedProduct(t, "p1", "seller-a", 500, 10)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.catalog.AdjustStock(ctx, StockAdjustment{ProductID: "p1", Quantity: 1, Reason: domain.StockReasonSubtract})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, ErrInsufficientStock)
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	assert.Equal(t, 0, m.stock(t, "p1"))
}

func TestSetStatusAndRemoveProduct(t *testing.T) {
	m := newMarketplace(t)
	ctx := context.Background()
	m.seedProduct(t, "p1", "seller-a", 500, 3)
	m.seedProduct(t, "p2", "seller-a", 700, 3)

	product, err := m.catalog.SetStatus(ctx, SetProductStatusCommand{ProductID: "p1", Status: domain.ProductStatusInactive, ActorID: "seller-a"})
	require.NoError(t, err)
	assert.Equal(t, domain.ProductStatusInactive, product.Status)

	_, err = m.catalog.SetStatus(ctx, SetProductStatusCommand{ProductID: "p1", Status: "gone"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = m.catalog.SetStatus(ctx, SetProductStatusCommand{ProductID: "ghost", Status: domain.ProductStatusActive})
	assert.ErrorIs(t, err, ErrNotFound)

	removed, err := m.catalog.RemoveProduct(ctx, "p2", "seller-a")
	require.NoError(t, err)
	assert.NotNil(t, removed.DeletedAt)
	assert.Equal(t, domain.ProductStatusInactive, removed.Status)

	page, err := m.catalog.ListSellerProducts(ctx, "seller-a", Pagination{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "p1", page.Items[0].ID)

	stillReadable, err := m.catalog.GetProduct(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, "Product p2", stillReadable.Name)
}
