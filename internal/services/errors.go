package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/marketline/api/internal/repositories"
)

var (
	// ErrNotFound indicates the product, cart or order does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput signals the caller provided invalid data.
	ErrInvalidInput = errors.New("invalid input")
	// ErrConflict indicates the write collided with existing state.
	ErrConflict = errors.New("conflict")
	// ErrUnavailable indicates a backing store is temporarily unreachable.
	ErrUnavailable = errors.New("dependency unavailable")

	// ErrProductUnavailable indicates the product is not active or lacks stock for the request.
	ErrProductUnavailable = errors.New("product unavailable")
	// ErrInsufficientStock indicates a stock decrement would go below zero.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInvalidQuantity indicates a negative or otherwise unusable quantity.
	ErrInvalidQuantity = errors.New("invalid quantity")
	// ErrCartInvalidForCheckout indicates the cart failed revalidation at checkout.
	ErrCartInvalidForCheckout = errors.New("cart invalid for checkout")
	// ErrIllegalTransition indicates the status table does not permit the requested change.
	ErrIllegalTransition = errors.New("illegal order status transition")
	// ErrInvalidVerificationCode indicates the delivery code did not match.
	ErrInvalidVerificationCode = errors.New("invalid verification code")
)

// CheckoutValidationError reports why a cart could not be checked out. Nothing was written.
type CheckoutValidationError struct {
	Reasons               []string
	UnavailableProductIDs []string
}

// Error implements the error interface.
func (e *CheckoutValidationError) Error() string {
	if e == nil {
		return ""
	}
	if len(e.Reasons) == 0 {
		return ErrCartInvalidForCheckout.Error()
	}
	return fmt.Sprintf("%s: %s", ErrCartInvalidForCheckout, strings.Join(e.Reasons, "; "))
}

// Unwrap lets errors.Is match ErrCartInvalidForCheckout.
func (e *CheckoutValidationError) Unwrap() error { return ErrCartInvalidForCheckout }

// SellerFailure describes one seller partition that could not be committed.
type SellerFailure struct {
	SellerID   string
	ProductIDs []string
	Err        error
}

// PartialCheckoutError is returned when some seller partitions committed and others did not.
// Created lists the committed orders; their lines were removed from the cart, failing lines remain.
type PartialCheckoutError struct {
	Created  []Order
	Failures []SellerFailure
}

// Error implements the error interface.
func (e *PartialCheckoutError) Error() string {
	if e == nil {
		return ""
	}
	sellers := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		sellers = append(sellers, fmt.Sprintf("%s: %v", f.SellerID, f.Err))
	}
	return fmt.Sprintf("checkout partially failed (%d created, %d failed): %s",
		len(e.Created), len(e.Failures), strings.Join(sellers, "; "))
}

// Unwrap exposes the first failure cause, such as ErrInsufficientStock.
func (e *PartialCheckoutError) Unwrap() error {
	if e == nil || len(e.Failures) == 0 {
		return nil
	}
	return e.Failures[0].Err
}

// mapRepositoryError translates repository failures into service sentinels, keeping the cause.
func mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		switch stockErr.Code {
		case repositories.StockErrorInsufficient:
			return fmt.Errorf("%w: %v", ErrInsufficientStock, err)
		case repositories.StockErrorProductNotFound:
			return fmt.Errorf("%w: %v", ErrNotFound, err)
		case repositories.StockErrorProductUnavailable:
			return fmt.Errorf("%w: %v", ErrProductUnavailable, err)
		}
	}

	if errors.Is(err, repositories.ErrInvalidArgument) {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	return err
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
