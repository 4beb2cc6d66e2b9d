package push

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"firebase.google.com/go/v4/errorutils"
	"firebase.google.com/go/v4/messaging"
	"github.com/googleapis/gax-go/v2"

	domain "github.com/marketline/api/internal/domain"
)

const defaultMaxRetries = 3

// messageSender is the subset of *messaging.Client used for delivery.
type messageSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMNotifier delivers notifications through Firebase Cloud Messaging. Each user's devices
// subscribe to the topic user-{id}, so the sender never stores device tokens.
type FCMNotifier struct {
	client     messageSender
	maxRetries int
	backoff    gax.Backoff
	sleep      func(context.Context, time.Duration) error
}

// Option customises the notifier.
type Option func(*FCMNotifier)

// WithMaxRetries bounds retries of transient FCM failures. Zero disables retries.
func WithMaxRetries(n int) Option {
	return func(f *FCMNotifier) {
		if n >= 0 {
			f.maxRetries = n
		}
	}
}

// NewFCMNotifier wraps a messaging client.
func NewFCMNotifier(client *messaging.Client, opts ...Option) (*FCMNotifier, error) {
	if client == nil {
		return nil, errors.New("push: messaging client is required")
	}
	return newFCMNotifier(client, opts...), nil
}

func newFCMNotifier(client messageSender, opts ...Option) *FCMNotifier {
	n := &FCMNotifier{
		client:     client,
		maxRetries: defaultMaxRetries,
		backoff:    gax.Backoff{Initial: 200 * time.Millisecond, Max: 5 * time.Second, Multiplier: 2},
		sleep:      gax.Sleep,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Send publishes the notification to the user's topic.
func (f *FCMNotifier) Send(ctx context.Context, userID string, n domain.Notification) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return errors.New("push: user id is required")
	}
	data := make(map[string]string, len(n.Data)+1)
	for k, v := range n.Data {
		data[k] = v
	}
	if n.Type != "" {
		data["type"] = n.Type
	}
	msg := &messaging.Message{
		Topic: TopicForUser(userID),
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Message,
		},
		Data: data,
	}

	backoff := f.backoff
	for attempt := 0; ; attempt++ {
		_, err := f.client.Send(ctx, msg)
		if err == nil {
			return nil
		}
		if attempt >= f.maxRetries || !retryable(err) {
			return fmt.Errorf("push: send to %s: %w", userID, err)
		}
		if serr := f.sleep(ctx, backoff.Pause()); serr != nil {
			return fmt.Errorf("push: send to %s: %w", userID, errors.Join(err, serr))
		}
	}
}

// TopicForUser returns the FCM topic a user's devices subscribe to. FCM topics only allow
// [a-zA-Z0-9-_.~%], so other characters are replaced.
func TopicForUser(userID string) string {
	var b strings.Builder
	b.WriteString("user-")
	for _, r := range userID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', strings.ContainsRune("-_.~%", r):
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errorutils.IsUnavailable(err) || errorutils.IsInternal(err) || messaging.IsQuotaExceeded(err)
}
