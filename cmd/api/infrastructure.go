package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	firebase "firebase.google.com/go/v4"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/marketline/api/internal/platform/auth"
	"github.com/marketline/api/internal/platform/config"
	pfirestore "github.com/marketline/api/internal/platform/firestore"
	"github.com/marketline/api/internal/platform/jobs"
	"github.com/marketline/api/internal/platform/push"
	"github.com/marketline/api/internal/repositories"
	firestoreRepo "github.com/marketline/api/internal/repositories/firestore"
	"github.com/marketline/api/internal/repositories/memory"
	"github.com/marketline/api/internal/services"
)

type closer = func(context.Context) error

// newAuthenticator wires Firebase token verification. Without a Firebase project the returned
// Authenticator rejects every authenticated route.
func newAuthenticator(ctx context.Context, logger *zap.Logger, cfg config.Config) (*firebase.App, *auth.Authenticator, error) {
	if strings.TrimSpace(cfg.Firebase.ProjectID) == "" {
		logger.Warn("firebase project not configured; authenticated routes will reject requests")
		return nil, auth.NewAuthenticator(nil), nil
	}
	app, err := auth.NewFirebaseApp(ctx, cfg.Firebase)
	if err != nil {
		return nil, nil, err
	}
	verifier, err := auth.NewFirebaseVerifier(ctx, app, cfg.Firebase.CheckRevoked)
	if err != nil {
		return nil, nil, err
	}
	return app, auth.NewAuthenticator(verifier, auth.WithVerificationTimeout(cfg.Firebase.VerifyTimeout)), nil
}

// newRegistry selects Firestore when a project is configured and the in-memory store otherwise.
func newRegistry(logger *zap.Logger, cfg config.Config) (repositories.Registry, error) {
	if strings.TrimSpace(cfg.Firestore.ProjectID) == "" {
		logger.Warn("firestore project not configured; using in-memory store")
		return memory.NewStore(), nil
	}
	var opts []pfirestore.ProviderOption
	if file := strings.TrimSpace(cfg.Firebase.CredentialsFile); file != "" {
		opts = append(opts, pfirestore.WithClientOptions(option.WithCredentialsFile(file)))
	}
	provider := pfirestore.NewProvider(cfg.Firestore, opts...)
	registry, err := firestoreRepo.NewRegistry(provider)
	if err != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = provider.Close(closeCtx)
		return nil, err
	}
	return registry, nil
}

// newEventPublisher builds the configured order event backend. A nil publisher disables events.
func newEventPublisher(ctx context.Context, logger *zap.Logger, cfg config.Config) (services.OrderEventPublisher, []closer, error) {
	switch cfg.Events.Backend {
	case config.EventsBackendPubSub:
		projectID := strings.TrimSpace(cfg.Firestore.ProjectID)
		if projectID == "" {
			projectID = strings.TrimSpace(cfg.Firebase.ProjectID)
		}
		var opts []option.ClientOption
		if file := strings.TrimSpace(cfg.Firebase.CredentialsFile); file != "" {
			opts = append(opts, option.WithCredentialsFile(file))
		}
		client, err := pubsub.NewClient(ctx, projectID, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("pubsub client: %w", err)
		}
		topic := client.Topic(cfg.Events.Topic)
		publisher, err := jobs.NewPubSubOrderEventPublisher(topic)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		logger.Info("order events publishing to pubsub", zap.String("topic", cfg.Events.Topic))
		return publisher, []closer{func(context.Context) error {
			topic.Stop()
			return client.Close()
		}}, nil
	case config.EventsBackendKafka:
		publisher, err := jobs.NewKafkaOrderEventPublisher(cfg.Events.KafkaBrokers, cfg.Events.Topic)
		if err != nil {
			return nil, nil, fmt.Errorf("kafka publisher: %w", err)
		}
		logger.Info("order events publishing to kafka",
			zap.Strings("brokers", cfg.Events.KafkaBrokers),
			zap.String("topic", cfg.Events.Topic),
		)
		return publisher, []closer{func(context.Context) error { return publisher.Close() }}, nil
	case config.EventsBackendNone, "":
		return nil, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown events backend %q", cfg.Events.Backend)
	}
}

// newPushSender returns an FCM sender when notifications are enabled and a Firebase app exists.
func newPushSender(ctx context.Context, logger *zap.Logger, app *firebase.App, cfg config.Config) (services.PushSender, error) {
	if !cfg.Notifications.Enabled {
		return nil, nil
	}
	if app == nil {
		return nil, errors.New("push notifications require a firebase project")
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase messaging: %w", err)
	}
	sender, err := push.NewFCMNotifier(client, push.WithMaxRetries(cfg.Notifications.MaxRetries))
	if err != nil {
		return nil, err
	}
	logger.Info("push notifications enabled", zap.Int("max_retries", cfg.Notifications.MaxRetries))
	return sender, nil
}
