package memory

import (
	"context"
	"errors"
	"strings"

	domain "github.com/marketline/api/internal/domain"
	"github.com/marketline/api/internal/repositories"
)

type cartRepository struct {
	store *Store
}

func (r cartRepository) Get(_ context.Context, userID string) (domain.Cart, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	cart, ok := s.carts[userID]
	if !ok {
		return domain.Cart{}, repositories.NewNotFoundError("carts.get", "cart for %s not found", userID)
	}
	return cloneCart(cart), nil
}

func (r cartRepository) Save(_ context.Context, cart domain.Cart) (domain.Cart, error) {
	if strings.TrimSpace(cart.UserID) == "" {
		return domain.Cart{}, errors.New("memory: cart user id is required")
	}
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.carts[cart.UserID] = cloneCart(cart)
	return cloneCart(cart), nil
}
