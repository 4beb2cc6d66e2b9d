package repositories

import "fmt"

// StockErrorCode enumerates why a stock check failed inside a repository transaction.
type StockErrorCode string

const (
	// StockErrorUnknown represents an unspecified failure.
	StockErrorUnknown StockErrorCode = "stock_unknown"
	// StockErrorInsufficient indicates the decrement would drive stock below zero.
	StockErrorInsufficient StockErrorCode = "stock_insufficient"
	// StockErrorProductNotFound indicates the product document is missing.
	StockErrorProductNotFound StockErrorCode = "stock_product_not_found"
	// StockErrorProductUnavailable indicates the product is not active.
	StockErrorProductUnavailable StockErrorCode = "stock_product_unavailable"
)

// StockError reports a failed stock check for a specific product.
type StockError struct {
	Op        string
	Code      StockErrorCode
	ProductID string
	Requested int
	Available int
	Message   string
	Err       error
}

// Error implements the error interface.
func (e *StockError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *StockError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewStockError constructs a typed stock error for the product.
func NewStockError(code StockErrorCode, productID string, message string, err error) *StockError {
	if message == "" {
		message = fmt.Sprintf("%s (product %s)", code, productID)
	}
	return &StockError{
		Code:      code,
		ProductID: productID,
		Message:   message,
		Err:       err,
	}
}

// InsufficientStock builds the error returned when requested exceeds available.
func InsufficientStock(productID string, requested, available int) *StockError {
	e := NewStockError(StockErrorInsufficient, productID,
		fmt.Sprintf("product %s has %d units, %d requested", productID, available, requested), nil)
	e.Requested = requested
	e.Available = available
	return e
}
