package memory

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/marketline/api/internal/domain"
	"github.com/marketline/api/internal/repositories"
)

type productRepository struct {
	store *Store
}

func (r productRepository) Insert(_ context.Context, product domain.Product) error {
	id := strings.TrimSpace(product.ID)
	if id == "" {
		return errors.New("memory: product id is required")
	}
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.products[id]; exists {
		return repositories.NewConflictError("products.insert", "product %s already exists", id)
	}
	s.products[id] = cloneProduct(product)
	return nil
}

func (r productRepository) FindByID(_ context.Context, productID string) (domain.Product, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	product, ok := s.products[productID]
	if !ok {
		return domain.Product{}, repositories.NewNotFoundError("products.get", "product %s not found", productID)
	}
	return cloneProduct(product), nil
}

func (r productRepository) FindByIDs(_ context.Context, productIDs []string) (map[string]domain.Product, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]domain.Product, len(productIDs))
	for _, id := range productIDs {
		if product, ok := s.products[id]; ok {
			out[id] = cloneProduct(product)
		}
	}
	return out, nil
}

func (r productRepository) ListBySeller(_ context.Context, sellerID string, pager domain.Pagination) (domain.CursorPage[domain.Product], error) {
	s := r.store
	s.mu.Lock()
	var matches []domain.Product
	for _, product := range s.products {
		if product.SellerID == sellerID && product.DeletedAt == nil {
			matches = append(matches, cloneProduct(product))
		}
	}
	s.mu.Unlock()

	return keysetPage(matches, pager, func(p domain.Product) (time.Time, string) {
		return p.CreatedAt, p.ID
	}, true)
}

func (r productRepository) AdjustStock(_ context.Context, productID string, delta int, at time.Time) (domain.Product, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[productID]
	if !ok {
		return domain.Product{}, repositories.NewStockError(repositories.StockErrorProductNotFound, productID, "", nil)
	}
	next, err := domain.ApplyStockDelta(product.Stock, delta)
	if err != nil {
		stockErr := repositories.InsufficientStock(productID, -delta, product.Stock)
		stockErr.Err = err
		return domain.Product{}, stockErr
	}
	product.Stock = next
	product.UpdatedAt = at
	s.products[productID] = product
	return cloneProduct(product), nil
}

func (r productRepository) UpdateStatus(_ context.Context, update repositories.ProductStatusUpdate) (domain.Product, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[update.ProductID]
	if !ok {
		return domain.Product{}, repositories.NewNotFoundError("products.update_status", "product %s not found", update.ProductID)
	}
	product.Status = update.Status
	product.UpdatedAt = update.UpdatedAt
	if update.DeletedAt != nil {
		deleted := *update.DeletedAt
		product.DeletedAt = &deleted
	}
	s.products[update.ProductID] = product
	return cloneProduct(product), nil
}
