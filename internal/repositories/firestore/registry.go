package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	pfirestore "github.com/marketline/api/internal/platform/firestore"
	"github.com/marketline/api/internal/repositories"
)

const firestoreHealthTimeout = 2 * time.Second

// Registry exposes the Firestore repositories behind repositories.Registry.
type Registry struct {
	provider *pfirestore.Provider
	products *ProductRepository
	carts    *CartRepository
	orders   *OrderRepository
	tracking *TrackingRepository
	counters *CounterRepository
	health   repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry builds every repository on top of the shared provider. Extra dependency checks are
// appended to the readiness report after the Firestore probe.
func NewRegistry(provider *pfirestore.Provider, extraChecks ...repositories.DependencyCheck) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry requires provider")
	}
	products, err := NewProductRepository(provider)
	if err != nil {
		return nil, err
	}
	carts, err := NewCartRepository(provider)
	if err != nil {
		return nil, err
	}
	orders, err := NewOrderRepository(provider, products)
	if err != nil {
		return nil, err
	}
	tracking, err := NewTrackingRepository(provider)
	if err != nil {
		return nil, err
	}
	counters, err := NewCounterRepository(provider)
	if err != nil {
		return nil, err
	}

	checks := append([]repositories.DependencyCheck{{
		Name:    "firestore",
		Timeout: firestoreHealthTimeout,
		Check:   provider.Ping,
	}}, extraChecks...)
	health, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		return nil, fmt.Errorf("build health repository: %w", err)
	}

	return &Registry{
		provider: provider,
		products: products,
		carts:    carts,
		orders:   orders,
		tracking: tracking,
		counters: counters,
		health:   health,
	}, nil
}

// Close releases the Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

func (r *Registry) Products() repositories.ProductRepository { return r.products }

func (r *Registry) Carts() repositories.CartRepository { return r.carts }

func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

func (r *Registry) Tracking() repositories.TrackingRepository { return r.tracking }

func (r *Registry) Counters() repositories.CounterRepository { return r.counters }

func (r *Registry) Health() repositories.HealthRepository { return r.health }
