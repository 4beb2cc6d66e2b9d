package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	domain "github.com/marketline/api/internal/domain"
	"github.com/marketline/api/internal/platform/config"
	"github.com/marketline/api/internal/platform/observability"
	"github.com/marketline/api/internal/repositories"
	"github.com/marketline/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Catalog       services.ProductCatalog
	Carts         services.CartManager
	Orders        services.OrderLifecycle
	Tracking      services.OrderTrackingLog
	Notifications services.NotificationDispatcher
	System        services.SystemService
}

// Infrastructure carries the external collaborators built before the services. Only Registry is
// required; a nil Push disables notifications and a nil Events drops domain events.
type Infrastructure struct {
	Registry repositories.Registry
	Push     services.PushSender
	Events   services.OrderEventPublisher
	Metrics  *observability.OrderMetrics
	Logger   *zap.Logger
	Build    services.BuildInfo
	Clock    func() time.Time
	Closers  []func(context.Context) error
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services

	closers []func(context.Context) error
}

// NewContainer constructs the runtime dependencies. Production wiring provides Firestore and
// Firebase backed infrastructure, while tests can supply the in-memory store.
func NewContainer(ctx context.Context, cfg config.Config, infra Infrastructure) (*Container, error) {
	if infra.Registry == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(ctx, cfg, infra)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: infra.Registry,
		Services:     svc,
		closers:      infra.Closers,
	}, nil
}

// Close releases publishers and repository clients in reverse order of construction.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Repositories != nil {
		if err := c.Repositories.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PricingPolicy converts the pricing section of the configuration into the shared domain policy.
// An entirely zero section falls back to the domain defaults.
func PricingPolicy(cfg config.PricingConfig) domain.PricingPolicy {
	if cfg.TaxRateBasisPoints == 0 && cfg.DeliveryFee == 0 && cfg.FreeDeliveryThreshold == 0 {
		return domain.DefaultPricingPolicy()
	}
	return domain.PricingPolicy{
		TaxRateBasisPoints:    cfg.TaxRateBasisPoints,
		DeliveryFee:           cfg.DeliveryFee,
		FreeDeliveryThreshold: cfg.FreeDeliveryThreshold,
	}
}

func buildServices(_ context.Context, cfg config.Config, infra Infrastructure) (Services, error) {
	reg := infra.Registry
	logger := infra.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := infra.Clock
	if clock == nil {
		clock = time.Now
	}
	pricing := PricingPolicy(cfg.Pricing)

	var svc Services

	catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
		Products:        reg.Products(),
		DefaultCurrency: cfg.Pricing.Currency,
		Metrics:         infra.Metrics,
		Clock:           clock,
		Logger:          observability.ServiceLogger(logger, "catalog"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalogSvc

	cartSvc, err := services.NewCartService(services.CartServiceDeps{
		Carts:               reg.Carts(),
		Products:            reg.Products(),
		Pricing:             pricing,
		Currency:            cfg.Pricing.Currency,
		PriceDriftTolerance: cfg.Checkout.PriceDriftTolerance,
		Clock:               clock,
		Logger:              observability.ServiceLogger(logger, "cart"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Carts = cartSvc

	trackingSvc, err := services.NewTrackingService(services.TrackingServiceDeps{
		Tracking: reg.Tracking(),
		Orders:   reg.Orders(),
		Clock:    clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build tracking service: %w", err)
	}
	svc.Tracking = trackingSvc

	if infra.Push != nil {
		dispatcher, err := services.NewNotificationDispatcher(services.NotificationDispatcherDeps{
			Sender:  infra.Push,
			Enabled: cfg.Notifications.Enabled,
			Logger:  observability.ServiceLogger(logger, "notifications"),
		})
		if err != nil {
			return Services{}, fmt.Errorf("build notification dispatcher: %w", err)
		}
		svc.Notifications = dispatcher
	}

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:        reg.Orders(),
		Counters:      reg.Counters(),
		Carts:         cartSvc,
		Pricing:       pricing,
		Notifications: svc.Notifications,
		Events:        infra.Events,
		Metrics:       infra.Metrics,
		Clock:         clock,
		Logger:        observability.ServiceLogger(logger, "orders"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	health, err := readiness(reg.Health(), infra.Events)
	if err != nil {
		return Services{}, err
	}
	if health != nil {
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: health,
			Clock:            clock,
			Build:            infra.Build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}

// readyProber is implemented by event publishers that can check their broker.
type readyProber interface {
	Ready(ctx context.Context) error
}

const eventsHealthTimeout = 2 * time.Second

// readiness adds an optional "events" check to the store's health when the publisher supports it.
// A broker outage degrades readiness without taking the API out of rotation.
func readiness(store repositories.HealthRepository, events services.OrderEventPublisher) (repositories.HealthRepository, error) {
	prober, ok := events.(readyProber)
	if !ok {
		return store, nil
	}
	eventsHealth, err := repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{{
		Name:     "events",
		Timeout:  eventsHealthTimeout,
		Optional: true,
		Check:    prober.Ready,
	}})
	if err != nil {
		return nil, fmt.Errorf("build events health check: %w", err)
	}
	return repositories.ComposeHealth(store, eventsHealth), nil
}
