package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/marketline/api/internal/platform/observability"
)

const (
	defaultTxAttempts = 5
	defaultTxTimeout  = 15 * time.Second
	defaultTxName     = "transaction"
)

// TxFunc is executed within a Firestore transaction. It may run more than once when the
// transaction is retried after contention, so it must not have side effects outside tx.
type TxFunc func(ctx context.Context, tx *firestore.Transaction) error

// TxOption customises transaction behaviour.
type TxOption func(*txConfig)

type txConfig struct {
	name     string
	attempts int
	timeout  time.Duration
}

// WithTxName labels the transaction in traces, logs and wrapped errors, e.g. "orders.place".
func WithTxName(name string) TxOption {
	return func(cfg *txConfig) {
		if name != "" {
			cfg.name = name
		}
	}
}

// WithTxAttempts overrides the retry budget. Zero keeps the current value.
func WithTxAttempts(attempts int) TxOption {
	return func(cfg *txConfig) {
		if attempts > 0 {
			cfg.attempts = attempts
		}
	}
}

// WithTxTimeout bounds the whole transaction including retries.
func WithTxTimeout(timeout time.Duration) TxOption {
	return func(cfg *txConfig) {
		if timeout > 0 {
			cfg.timeout = timeout
		}
	}
}

// RunTransaction executes fn within a transaction on the provided client. Errors returned by fn
// abort the transaction and are surfaced through WrapError, so typed repository errors such as
// stock failures reach the caller unchanged.
func RunTransaction(ctx context.Context, client *firestore.Client, fn TxFunc, opts ...TxOption) (err error) {
	cfg := txConfig{name: defaultTxName, attempts: defaultTxAttempts, timeout: defaultTxTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if client == nil {
		return WrapError(cfg.name, errors.New("firestore: client is nil"))
	}
	if fn == nil {
		return WrapError(cfg.name, errors.New("firestore: transaction function is nil"))
	}

	if cfg.timeout > 0 {
		if deadline, ok := ctx.Deadline(); !ok || time.Until(deadline) > cfg.timeout {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
			defer cancel()
		}
	}

	ctx, end := observability.StartSpan(ctx, "firestore."+cfg.name, attribute.Int("firestore.max_attempts", cfg.attempts))
	defer func() { end(err) }()

	attempts := 0
	err = client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		attempts++
		return fn(ctx, tx)
	}, firestore.MaxAttempts(cfg.attempts))

	if attempts > 1 {
		observability.FromContext(ctx).Debug("firestore transaction retried",
			zap.String("transaction", cfg.name),
			zap.Int("attempts", attempts),
			zap.Bool("succeeded", err == nil),
		)
	}
	return WrapError(cfg.name, err)
}
