package repositories

import domain "github.com/marketline/api/internal/domain"

// ItemQuantities sums order item quantities per product, returning product ids in first-seen order.
func ItemQuantities(items []domain.OrderItem) ([]string, map[string]int) {
	ids := make([]string, 0, len(items))
	quantities := make(map[string]int, len(items))
	for _, item := range items {
		if _, seen := quantities[item.ProductID]; !seen {
			ids = append(ids, item.ProductID)
		}
		quantities[item.ProductID] += item.Quantity
	}
	return ids, quantities
}

// ReserveStock validates that every product can cover the requested quantities and returns the
// decremented stock levels. Products must be present in the map and active.
func ReserveStock(products map[string]domain.Product, ids []string, quantities map[string]int) (map[string]int, error) {
	next := make(map[string]int, len(ids))
	for _, id := range ids {
		product, ok := products[id]
		if !ok || product.DeletedAt != nil {
			return nil, NewStockError(StockErrorProductNotFound, id, "", nil)
		}
		if product.Status != domain.ProductStatusActive {
			return nil, NewStockError(StockErrorProductUnavailable, id, "", nil)
		}
		stock, err := domain.ApplyStockDelta(product.Stock, -quantities[id])
		if err != nil {
			stockErr := InsufficientStock(id, quantities[id], product.Stock)
			stockErr.Err = err
			return nil, stockErr
		}
		next[id] = stock
	}
	return next, nil
}

// RestoreStock returns the stock levels after adding quantities back. Every product must exist.
func RestoreStock(products map[string]domain.Product, ids []string, quantities map[string]int) (map[string]int, error) {
	next := make(map[string]int, len(ids))
	for _, id := range ids {
		product, ok := products[id]
		if !ok {
			return nil, NewStockError(StockErrorProductNotFound, id, "cannot restore stock for missing product "+id, nil)
		}
		stock, err := domain.ApplyStockDelta(product.Stock, quantities[id])
		if err != nil {
			return nil, err
		}
		next[id] = stock
	}
	return next, nil
}
