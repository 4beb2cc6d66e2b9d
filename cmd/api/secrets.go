package main

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/marketline/api/internal/platform/secrets"
)

const defaultSecretFallbackFile = ".secrets.local"

// newSecretFetcher resolves sm:// references in configuration. The project defaults to the
// Firebase project; a local dotenv file stands in when Secret Manager is unreachable.
func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithMeter(otel.Meter("github.com/marketline/api/cmd/api")),
		secrets.WithFallbackFile(envOr(env, "API_SECRET_FALLBACK_FILE", defaultSecretFallbackFile)),
	}
	if project := envOr(env, "API_SECRET_DEFAULT_PROJECT_ID", envOr(env, "API_FIREBASE_PROJECT_ID", "")); project != "" {
		opts = append(opts, secrets.WithDefaultProject(project))
	}
	if file := envOr(env, "API_FIREBASE_CREDENTIALS_FILE", ""); file != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(file)))
	}
	return secrets.NewFetcher(ctx, opts...)
}

// secretFields maps environment variables that may carry a secret reference to their config field.
var secretFields = []struct{ env, field string }{
	{env: "API_FIREBASE_CREDENTIALS_JSON", field: "Firebase.CredentialsJSON"},
	{env: "API_PAYMENTS_WEBHOOK_SECRET", field: "Payments.WebhookSecret"},
}

// requiredSecretNames lists config fields that must resolve once they hold a secret reference.
func requiredSecretNames(env map[string]string) []string {
	var names []string
	for _, f := range secretFields {
		raw := strings.TrimSpace(env[f.env])
		if strings.HasPrefix(raw, "sm://") || strings.HasPrefix(raw, "secret://") {
			names = append(names, f.field)
		}
	}
	return names
}
