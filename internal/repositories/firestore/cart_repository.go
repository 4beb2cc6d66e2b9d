package firestore

import (
	"context"
	"errors"
	"strings"

	domain "github.com/marketline/api/internal/domain"
	pfirestore "github.com/marketline/api/internal/platform/firestore"
	"github.com/marketline/api/internal/repositories"
)

const cartCollection = "carts"

// CartRepository keeps each buyer's cart at carts/{userId} with its lines embedded.
type CartRepository struct {
	carts *pfirestore.Collection[cartDocument]
}

var _ repositories.CartRepository = (*CartRepository)(nil)

func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	return &CartRepository{carts: pfirestore.NewCollection[cartDocument](provider, cartCollection)}, nil
}

// Get returns a not-found StoreError when the buyer has no cart yet.
func (r *CartRepository) Get(ctx context.Context, userID string) (domain.Cart, error) {
	owner, err := r.owner("get", userID)
	if err != nil {
		return domain.Cart{}, err
	}
	doc, err := r.carts.Get(ctx, owner)
	if err != nil {
		return domain.Cart{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// Save replaces the stored cart and returns it as persisted.
func (r *CartRepository) Save(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	owner, err := r.owner("save", cart.UserID)
	if err != nil {
		return domain.Cart{}, err
	}
	stored := newCartDocument(cart)
	if err := r.carts.Set(ctx, owner, stored); err != nil {
		return domain.Cart{}, err
	}
	return stored.toDomain(owner), nil
}

func (r *CartRepository) owner(action, userID string) (string, error) {
	if r == nil || r.carts == nil {
		return "", errors.New("cart repository not initialised")
	}
	owner := strings.TrimSpace(userID)
	if owner == "" {
		return "", repositories.NewInvalidArgumentError("carts."+action, "user id is required")
	}
	return owner, nil
}
