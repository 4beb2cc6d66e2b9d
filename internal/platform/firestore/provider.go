package firestore

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"golang.org/x/sync/singleflight"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/marketline/api/internal/platform/config"
)

const (
	defaultDialTimeout = 10 * time.Second
	envEmulatorHost    = "FIRESTORE_EMULATOR_HOST"
	envGoogleProjectID = "GOOGLE_CLOUD_PROJECT"
	// pingPath is read by Ping; it need not exist.
	pingPath = "_health/ping"
)

// ErrProviderClosed is returned once Close has been called.
var ErrProviderClosed = errors.New("firestore: provider is closed")

// Provider owns the process-wide Firestore client, dialled lazily and shared by every repository.
type Provider struct {
	cfg         config.FirestoreConfig
	dialTimeout time.Duration
	clientOpts  []option.ClientOption

	dial   singleflight.Group
	mu     sync.RWMutex
	client *firestore.Client
	closed bool
}

type ProviderOption func(*Provider)

// WithDialTimeout bounds client creation.
func WithDialTimeout(timeout time.Duration) ProviderOption {
	return func(p *Provider) {
		if timeout > 0 {
			p.dialTimeout = timeout
		}
	}
}

// WithClientOptions adds client options such as service account credentials.
func WithClientOptions(opts ...option.ClientOption) ProviderOption {
	return func(p *Provider) {
		p.clientOpts = append(p.clientOpts, opts...)
	}
}

func NewProvider(cfg config.FirestoreConfig, opts ...ProviderOption) *Provider {
	p := &Provider{cfg: cfg, dialTimeout: defaultDialTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Client returns the shared client. Concurrent first callers share one dial; a caller whose ctx
// ends early gets ctx.Err() while the dial completes for the rest.
func (p *Provider) Client(ctx context.Context) (*firestore.Client, error) {
	if client, err := p.snapshot(); client != nil || err != nil {
		return client, err
	}
	result := p.dial.DoChan("client", func() (any, error) {
		return p.connect(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-result:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*firestore.Client), nil
	}
}

func (p *Provider) snapshot() (*firestore.Client, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, ErrProviderClosed
	}
	return p.client, nil
}

// connect dials and publishes the client unless another dial won or the provider closed meanwhile.
func (p *Provider) connect(ctx context.Context) (*firestore.Client, error) {
	if client, err := p.snapshot(); client != nil || err != nil {
		return client, err
	}
	project := p.projectID()
	if project == "" {
		return nil, errors.New("firestore: project id is required")
	}
	ctx, cancel := context.WithTimeout(ctx, p.dialTimeout)
	defer cancel()
	client, err := firestore.NewClient(ctx, project, p.options()...)
	if err != nil {
		return nil, fmt.Errorf("firestore: create client for %s: %w", project, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		_ = client.Close()
		return nil, ErrProviderClosed
	}
	p.client = client
	return client, nil
}

func (p *Provider) projectID() string {
	return cmp.Or(strings.TrimSpace(p.cfg.ProjectID), strings.TrimSpace(os.Getenv(envGoogleProjectID)))
}

// options appends emulator wiring when an emulator host is configured. The SDK reads the host
// from the environment too, so it is exported there when only the config names it.
func (p *Provider) options() []option.ClientOption {
	opts := append([]option.ClientOption(nil), p.clientOpts...)
	host := cmp.Or(strings.TrimSpace(p.cfg.EmulatorHost), strings.TrimSpace(os.Getenv(envEmulatorHost)))
	if host == "" {
		return opts
	}
	if os.Getenv(envEmulatorHost) == "" {
		_ = os.Setenv(envEmulatorHost, host)
	}
	return append(opts,
		option.WithEndpoint(host),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
}

// Close releases the client; the Provider is unusable afterwards. A dial still in flight closes
// its own client when it completes.
func (p *Provider) Close(ctx context.Context) error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	client, alreadyClosed := p.client, p.closed
	p.client, p.closed = nil, true
	p.mu.Unlock()
	if alreadyClosed || client == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- client.Close() }()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// RunTransaction runs fn on the shared client with the configured attempt budget and timeout;
// opts override both.
func (p *Provider) RunTransaction(ctx context.Context, fn TxFunc, opts ...TxOption) error {
	client, err := p.Client(ctx)
	if err != nil {
		return err
	}
	defaults := []TxOption{WithTxAttempts(p.cfg.TxAttempts), WithTxTimeout(p.cfg.TxTimeout)}
	return RunTransaction(ctx, client, fn, append(defaults, opts...)...)
}

// Ping confirms the database answers reads. A missing sentinel document is healthy.
func (p *Provider) Ping(ctx context.Context) error {
	client, err := p.Client(ctx)
	if err != nil {
		return err
	}
	if _, err := client.Doc(pingPath).Get(ctx); err != nil && status.Code(err) != codes.NotFound {
		return WrapError("firestore.ping", err)
	}
	return nil
}
