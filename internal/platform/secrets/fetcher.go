// Package secrets resolves secret:// references used in configuration, such as the Firebase
// service account JSON, against Google Secret Manager.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const meterName = "github.com/marketline/api/internal/platform/secrets"

var newSecretManagerClient = func(ctx context.Context, opts ...option.ClientOption) (*secretmanager.Client, error) {
	return secretmanager.NewClient(ctx, opts...)
}

type secretManagerClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Fetcher resolves and caches secrets for the life of the process. When Secret Manager denies
// access or cannot be reached, or no project is configured, values come from a local dotenv
// file keyed by secret name (name=value, or name.version=value for a pinned version).
type Fetcher struct {
	client     secretManagerClient
	ownsClient bool
	logger     *zap.Logger
	projectID  string

	localPath string
	localOnce sync.Once
	local     map[string]string

	mu     sync.RWMutex
	cache  map[string]string
	lookup singleflight.Group

	latency metric.Float64Histogram
}

type fetcherConfig struct {
	logger     *zap.Logger
	projectID  string
	localPath  string
	meter      metric.Meter
	client     secretManagerClient
	clientOpts []option.ClientOption
}

// Option customises Fetcher construction.
type Option func(*fetcherConfig)

func WithLogger(logger *zap.Logger) Option {
	return func(cfg *fetcherConfig) { cfg.logger = logger }
}

// WithDefaultProject sets the project for references without a ?project= override.
func WithDefaultProject(projectID string) Option {
	return func(cfg *fetcherConfig) { cfg.projectID = strings.TrimSpace(projectID) }
}

// WithFallbackFile sets the local dotenv file. An empty path disables the fallback.
func WithFallbackFile(path string) Option {
	return func(cfg *fetcherConfig) { cfg.localPath = strings.TrimSpace(path) }
}

func WithMeter(m metric.Meter) Option {
	return func(cfg *fetcherConfig) { cfg.meter = m }
}

// WithSecretManagerClient injects a client; the Fetcher will not close it.
func WithSecretManagerClient(client secretManagerClient) Option {
	return func(cfg *fetcherConfig) { cfg.client = client }
}

// WithClientOptions is passed to secretmanager.NewClient when the Fetcher creates its own client.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(cfg *fetcherConfig) { cfg.clientOpts = append(cfg.clientOpts, opts...) }
}

// NewFetcher builds a Fetcher. Failing to create a Secret Manager client is logged and leaves
// the Fetcher serving from the local file only.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	cfg := fetcherConfig{localPath: ".secrets.local"}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	if cfg.meter == nil {
		cfg.meter = otel.GetMeterProvider().Meter(meterName)
	}

	f := &Fetcher{
		client:    cfg.client,
		logger:    cfg.logger,
		projectID: cfg.projectID,
		localPath: cfg.localPath,
		cache:     make(map[string]string),
	}
	latency, err := cfg.meter.Float64Histogram("secrets.fetch.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency of secret lookups by source"),
	)
	if err != nil {
		cfg.logger.Warn("secrets: latency metric disabled", zap.Error(err))
	} else {
		f.latency = latency
	}

	if f.client == nil && cfg.projectID != "" {
		client, err := newSecretManagerClient(ctx, cfg.clientOpts...)
		if err != nil {
			cfg.logger.Warn("secrets: secret manager unavailable; using local file only", zap.Error(err))
		} else {
			f.client, f.ownsClient = client, true
		}
	}
	return f, nil
}

// Close releases a Secret Manager client created by NewFetcher.
func (f *Fetcher) Close() error {
	if f.ownsClient && f.client != nil {
		return f.client.Close()
	}
	return nil
}

// ResolveSecret satisfies config.SecretResolver.
func (f *Fetcher) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f.Resolve(ctx, ref)
}

// Resolve returns the value for secret://name[?version=N&project=P]. Concurrent lookups of the
// same reference share one fetch.
func (f *Fetcher) Resolve(ctx context.Context, raw string) (string, error) {
	start := time.Now()
	ref, err := parseReference(raw)
	if err != nil {
		return "", err
	}

	if value, ok := f.cached(ref); ok {
		f.observe(ctx, start, "cache")
		return value, nil
	}

	res, err, _ := f.lookup.Do(ref.key(), func() (any, error) {
		if value, ok := f.cached(ref); ok {
			return value, nil
		}
		value, source, err := f.fetch(ctx, ref)
		f.observe(ctx, start, source)
		if err != nil {
			return "", err
		}
		f.mu.Lock()
		f.cache[ref.key()] = value
		f.mu.Unlock()
		return value, nil
	})
	if err != nil {
		return "", err
	}
	return res.(string), nil
}

func (f *Fetcher) cached(ref reference) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	value, ok := f.cache[ref.key()]
	return value, ok
}

func (f *Fetcher) fetch(ctx context.Context, ref reference) (value, source string, err error) {
	project := ref.project
	if project == "" {
		project = f.projectID
	}
	if project != "" && f.client != nil {
		value, err := f.fetchRemote(ctx, ref.resourceName(project))
		if err == nil {
			return value, "remote", nil
		}
		switch status.Code(err) {
		case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
			f.logger.Debug("secrets: using local fallback", zap.String("secret", ref.name), zap.Error(err))
		default:
			return "", "error", fmt.Errorf("secrets: fetch %s: %w", ref.name, err)
		}
	}
	if value, ok := f.fromLocal(ref); ok {
		return value, "fallback", nil
	}
	return "", "error", fmt.Errorf("secrets: no value for %s", ref.name)
}

func (f *Fetcher) fetchRemote(ctx context.Context, name string) (string, error) {
	resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return "", err
	}
	if resp.GetPayload() == nil {
		return "", fmt.Errorf("secret manager returned empty payload for %s", name)
	}
	return string(resp.GetPayload().GetData()), nil
}

func (f *Fetcher) fromLocal(ref reference) (string, bool) {
	f.localOnce.Do(func() {
		if f.localPath == "" {
			return
		}
		values, err := godotenv.Read(f.localPath)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			f.logger.Warn("secrets: unreadable local fallback", zap.String("path", f.localPath), zap.Error(err))
		default:
			f.local = values
		}
	})
	if value, ok := f.local[ref.name+"."+ref.version]; ok {
		return value, true
	}
	value, ok := f.local[ref.name]
	return value, ok
}

func (f *Fetcher) observe(ctx context.Context, start time.Time, source string) {
	if f.latency == nil {
		return
	}
	f.latency.Record(ctx, float64(time.Since(start))/float64(time.Millisecond),
		metric.WithAttributes(attribute.String("source", source)))
}

type reference struct {
	name    string
	version string
	project string
}

func parseReference(raw string) (reference, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return reference{}, errors.New("secrets: empty reference")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return reference{}, fmt.Errorf("secrets: invalid reference %q: %w", raw, err)
	}
	if u.Scheme != "secret" {
		return reference{}, fmt.Errorf("secrets: unsupported scheme %q", u.Scheme)
	}
	ref := reference{
		name:    strings.Trim(u.Host+u.Path, "/"),
		version: strings.TrimSpace(u.Query().Get("version")),
		project: strings.TrimSpace(u.Query().Get("project")),
	}
	if ref.name == "" {
		return reference{}, fmt.Errorf("secrets: missing secret name in %q", raw)
	}
	if ref.version == "" {
		ref.version = "latest"
	}
	return ref, nil
}

func (r reference) key() string {
	return r.project + "/" + r.name + "@" + r.version
}

func (r reference) resourceName(project string) string {
	return fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, r.name, r.version)
}
