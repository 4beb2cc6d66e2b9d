package config

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Event backends accepted by EventsConfig.Backend.
const (
	EventsBackendNone   = "none"
	EventsBackendPubSub = "pubsub"
	EventsBackendKafka  = "kafka"
)

const (
	defaultTxAttempts        = 5
	defaultTxTimeout         = 15 * time.Second
	defaultIdempotencyHeader = "Idempotency-Key"
)

// Config is the API process configuration, read from API_* variables.
type Config struct {
	Server        ServerConfig
	Firebase      FirebaseConfig
	Firestore     FirestoreConfig
	Events        EventsConfig
	Notifications NotificationsConfig
	Pricing       PricingConfig
	Checkout      CheckoutConfig
	Payments      PaymentsConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirebaseConfig stores Firebase project settings. CredentialsJSON may hold an sm:// reference.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
	CredentialsJSON string
	CheckRevoked    bool
	VerifyTimeout   time.Duration
}

// PaymentsConfig authenticates the payment confirmation callback. An empty WebhookSecret leaves
// the callback unmounted; it may hold an sm:// reference.
type PaymentsConfig struct {
	WebhookSecret  string
	SignatureSkew  time.Duration
	WebhookActorID string
}

// FirestoreConfig stores database parameters. An empty ProjectID selects the in-memory store.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
	TxAttempts   int
	TxTimeout    time.Duration
}

// EventsConfig selects where order domain events are published.
type EventsConfig struct {
	Backend      string
	Topic        string
	KafkaBrokers []string
}

// NotificationsConfig toggles push delivery through FCM.
type NotificationsConfig struct {
	Enabled    bool
	MaxRetries int
}

// PricingConfig holds the constants of the shared pricing policy, in minor currency units.
type PricingConfig struct {
	TaxRateBasisPoints    int64
	DeliveryFee           int64
	FreeDeliveryThreshold int64
	Currency              string
}

// CheckoutConfig tunes cart validation and checkout idempotency.
type CheckoutConfig struct {
	PriceDriftTolerance int64
	IdempotencyHeader   string
}

// ValidationError lists the config fields that are missing, malformed or out of range.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns the offending fields, such as "Pricing.Currency".
func (e *ValidationError) Fields() []string {
	return slices.Clone(e.fields)
}

// Load reads the configuration. Values come from the .env file, then the process environment,
// then WithEnvMap, each overriding the previous. sm:// and secret:// values are resolved through
// the configured SecretResolver.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)
	values, err := options.environment()
	if err != nil {
		return Config{}, err
	}
	env := &binder{values: values}

	cfg := Config{
		Server: ServerConfig{
			Port:         env.str("API_SERVER_PORT", "8080"),
			ReadTimeout:  env.duration("Server.ReadTimeout", "API_SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: env.duration("Server.WriteTimeout", "API_SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  env.duration("Server.IdleTimeout", "API_SERVER_IDLE_TIMEOUT", 120*time.Second),
		},
		Firebase: FirebaseConfig{
			ProjectID:       env.str("API_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: env.str("API_FIREBASE_CREDENTIALS_FILE", ""),
			CredentialsJSON: env.str("API_FIREBASE_CREDENTIALS_JSON", ""),
			CheckRevoked:    env.boolean("Firebase.CheckRevoked", "API_FIREBASE_CHECK_REVOKED", false),
			VerifyTimeout:   env.duration("Firebase.VerifyTimeout", "API_FIREBASE_VERIFY_TIMEOUT", 5*time.Second),
		},
		Firestore: FirestoreConfig{
			ProjectID:    env.str("API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: env.str("API_FIRESTORE_EMULATOR_HOST", ""),
			TxAttempts:   int(env.integer("Firestore.TxAttempts", "API_FIRESTORE_TX_ATTEMPTS", defaultTxAttempts)),
			TxTimeout:    env.duration("Firestore.TxTimeout", "API_FIRESTORE_TX_TIMEOUT", defaultTxTimeout),
		},
		Events: EventsConfig{
			Backend:      strings.ToLower(env.str("API_EVENTS_BACKEND", EventsBackendNone)),
			Topic:        env.str("API_EVENTS_TOPIC", "order-events"),
			KafkaBrokers: env.list("API_EVENTS_KAFKA_BROKERS"),
		},
		Notifications: NotificationsConfig{
			Enabled:    env.boolean("Notifications.Enabled", "API_NOTIFICATIONS_ENABLED", false),
			MaxRetries: int(env.integer("Notifications.MaxRetries", "API_NOTIFICATIONS_MAX_RETRIES", 3)),
		},
		Pricing: PricingConfig{
			TaxRateBasisPoints:    env.integer("Pricing.TaxRateBasisPoints", "API_PRICING_TAX_BPS", 500),
			DeliveryFee:           env.integer("Pricing.DeliveryFee", "API_PRICING_DELIVERY_FEE", 1000),
			FreeDeliveryThreshold: env.integer("Pricing.FreeDeliveryThreshold", "API_PRICING_FREE_DELIVERY_THRESHOLD", 10000),
			Currency:              strings.ToUpper(env.str("API_PRICING_CURRENCY", "USD")),
		},
		Checkout: CheckoutConfig{
			PriceDriftTolerance: env.integer("Checkout.PriceDriftTolerance", "API_CHECKOUT_PRICE_DRIFT_TOLERANCE", 0),
			IdempotencyHeader:   env.str("API_CHECKOUT_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
		},
		Payments: PaymentsConfig{
			WebhookSecret:  env.str("API_PAYMENTS_WEBHOOK_SECRET", ""),
			SignatureSkew:  env.duration("Payments.SignatureSkew", "API_PAYMENTS_SIGNATURE_SKEW", 5*time.Minute),
			WebhookActorID: env.str("API_PAYMENTS_WEBHOOK_ACTOR", "payment-gateway"),
		},
	}
	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}

	resolved := make(map[string]string)
	for name, field := range map[string]*string{
		"Firebase.CredentialsJSON": &cfg.Firebase.CredentialsJSON,
		"Payments.WebhookSecret":   &cfg.Payments.WebhookSecret,
	} {
		value, err := resolveSecret(ctx, *field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*field = value
		resolved[name] = strings.TrimSpace(value)
	}

	if invalid := append(env.invalid, validate(cfg)...); len(invalid) > 0 {
		return Config{}, &ValidationError{fields: invalid}
	}
	if missing := findMissingSecrets(options.requiredSecrets, resolved); missing != nil {
		return Config{}, missing
	}
	return cfg, nil
}

func validate(cfg Config) []string {
	var bad []string
	check := func(ok bool, field string) {
		if !ok && !slices.Contains(bad, field) {
			bad = append(bad, field)
		}
	}

	check(cfg.Server.Port != "", "Server.Port")
	check(cfg.Firestore.TxAttempts > 0, "Firestore.TxAttempts")
	check(cfg.Firestore.TxTimeout > 0, "Firestore.TxTimeout")

	switch cfg.Events.Backend {
	case EventsBackendNone:
	case EventsBackendPubSub:
		check(cfg.Firestore.ProjectID != "", "Firebase.ProjectID")
		check(strings.TrimSpace(cfg.Events.Topic) != "", "Events.Topic")
	case EventsBackendKafka:
		check(len(cfg.Events.KafkaBrokers) > 0, "Events.KafkaBrokers")
		check(strings.TrimSpace(cfg.Events.Topic) != "", "Events.Topic")
	default:
		check(false, "Events.Backend")
	}

	check(!cfg.Notifications.Enabled || cfg.Firebase.ProjectID != "", "Firebase.ProjectID")
	check(cfg.Notifications.MaxRetries >= 0, "Notifications.MaxRetries")

	check(cfg.Pricing.TaxRateBasisPoints >= 0, "Pricing.TaxRateBasisPoints")
	check(cfg.Pricing.DeliveryFee >= 0, "Pricing.DeliveryFee")
	check(cfg.Pricing.FreeDeliveryThreshold >= 0, "Pricing.FreeDeliveryThreshold")
	check(len(cfg.Pricing.Currency) == 3, "Pricing.Currency")

	check(cfg.Checkout.PriceDriftTolerance >= 0, "Checkout.PriceDriftTolerance")
	check(strings.TrimSpace(cfg.Checkout.IdempotencyHeader) != "", "Checkout.IdempotencyHeader")

	check(cfg.Payments.SignatureSkew > 0, "Payments.SignatureSkew")
	check(cfg.Payments.WebhookSecret == "" || strings.TrimSpace(cfg.Payments.WebhookActorID) != "", "Payments.WebhookActorID")
	return bad
}
