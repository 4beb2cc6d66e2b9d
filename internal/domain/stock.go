package domain

import "errors"

// ErrStockBelowZero is returned when a stock delta would drive stock negative.
var ErrStockBelowZero = errors.New("domain: stock cannot go below zero")

// ApplyStockDelta returns the stock level after applying delta, refusing to go below zero.
// Every code path that mutates Product.Stock goes through this rule.
func ApplyStockDelta(stock, delta int) (int, error) {
	next := stock + delta
	if next < 0 {
		return stock, ErrStockBelowZero
	}
	return next, nil
}
