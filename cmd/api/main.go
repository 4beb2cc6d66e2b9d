// Command api serves the marketplace HTTP API: catalog, carts, checkout and order tracking.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/marketline/api/internal/di"
	"github.com/marketline/api/internal/handlers"
	"github.com/marketline/api/internal/platform/auth"
	"github.com/marketline/api/internal/platform/config"
	"github.com/marketline/api/internal/platform/observability"
	"github.com/marketline/api/internal/services"
)

const (
	drainTimeout = 10 * time.Second
	closeTimeout = 5 * time.Second
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	code := 0
	if err := run(logger.Named("api")); err != nil {
		logger.Error("api exited", zap.Error(err))
		code = 1
	}
	_ = logger.Sync()
	os.Exit(code)
}

func run(logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = observability.WithLogger(ctx, logger)
	startedAt := time.Now().UTC()

	env, err := config.EnvironmentValues()
	if err != nil {
		return fmt.Errorf("read environment: %w", err)
	}
	fetcher, err := newSecretFetcher(ctx, logger, env)
	if err != nil {
		return fmt.Errorf("secret fetcher: %w", err)
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecretNames(env)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			return fmt.Errorf("missing required secrets %v", missing.RedactedNames())
		}
		return fmt.Errorf("load configuration: %w", err)
	}
	build := buildInfoFromEnv(env, startedAt)

	firebaseApp, authn, err := newAuthenticator(ctx, logger, cfg)
	if err != nil {
		return err
	}
	registry, err := newRegistry(logger, cfg)
	if err != nil {
		return fmt.Errorf("repositories: %w", err)
	}
	events, eventClosers, err := newEventPublisher(ctx, logger, cfg)
	if err != nil {
		return fmt.Errorf("order events: %w", err)
	}
	pushSender, err := newPushSender(ctx, logger, firebaseApp, cfg)
	if err != nil {
		return fmt.Errorf("push notifications: %w", err)
	}
	metrics, err := observability.NewOrderMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	container, err := di.NewContainer(ctx, cfg, di.Infrastructure{
		Registry: registry,
		Push:     pushSender,
		Events:   events,
		Metrics:  metrics,
		Logger:   logger,
		Build:    build,
		Closers:  eventClosers,
	})
	if err != nil {
		return fmt.Errorf("services: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("container close", zap.Error(err))
		}
	}()

	svc := container.Services
	health := []handlers.HealthOption{handlers.WithHealthBuildInfo(build)}
	if svc.System != nil {
		health = append(health, handlers.WithHealthSystemService(svc.System))
	}
	routes := []handlers.Option{
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger),
			observability.TraceMiddleware(traceProjectID(cfg)),
			observability.RecoveryMiddleware(logger),
			observability.RequestLoggerMiddleware(),
			observability.IdempotencyKeyMiddleware(cfg.Checkout.IdempotencyHeader),
		),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(health...)),
		handlers.WithCartRoutes(handlers.NewCartHandlers(authn, svc.Carts).Routes),
		handlers.WithOrderRoutes(handlers.NewOrderHandlers(authn, svc.Orders, svc.Tracking).Routes),
		handlers.WithProductRoutes(handlers.NewProductHandlers(authn, svc.Catalog).Routes),
	}
	if secret := cfg.Payments.WebhookSecret; secret != "" {
		verifier, err := auth.NewSignatureVerifier(secret, auth.WithSignatureSkew(cfg.Payments.SignatureSkew))
		if err != nil {
			return fmt.Errorf("payment webhook: %w", err)
		}
		payments := handlers.NewPaymentHandlers(verifier, svc.Orders, cfg.Payments.WebhookActorID)
		routes = append(routes, handlers.WithWebhookRoutes(payments.Routes))
	}
	router := handlers.NewRouter(routes...)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
	httpLogger := logger.Named("http").With(zap.String("addr", server.Addr))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		httpLogger.Info("marketline api listening",
			zap.String("version", build.Version),
			zap.String("environment", build.Environment),
			zap.String("events_backend", cfg.Events.Backend),
			zap.Bool("payment_webhook", cfg.Payments.WebhookSecret != ""),
		)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		httpLogger.Info("draining requests")
		drainCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), drainTimeout)
		defer cancel()
		return server.Shutdown(drainCtx)
	})
	return g.Wait()
}

func buildInfoFromEnv(env map[string]string, started time.Time) services.BuildInfo {
	return services.BuildInfo{
		Version:     envOr(env, "API_BUILD_VERSION", "dev"),
		Environment: envOr(env, "API_ENVIRONMENT", "local"),
		StartedAt:   started,
	}
}

func envOr(env map[string]string, key, fallback string) string {
	if v := strings.TrimSpace(env[key]); v != "" {
		return v
	}
	return fallback
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}
