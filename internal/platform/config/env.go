package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Option customises Load and EnvironmentValues.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

func newLoaderOptions(opts []Option) loaderOptions {
	options := loaderOptions{envFile: ".env", useSystemEnv: true, secret: unconfiguredResolver}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

// WithEnvFile sets the dotenv file. An empty path skips it; a missing file is ignored.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap supplies values that override both the process environment and the dotenv file.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// EnvironmentValues returns the merged environment Load would read, for callers that need raw
// values before configuration is loaded (secret fetcher bootstrap, build metadata).
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := newLoaderOptions(opts)
	return options.environment()
}

func (o loaderOptions) environment() (map[string]string, error) {
	values, err := readDotEnv(o.envFile)
	if err != nil {
		return nil, err
	}
	if values == nil {
		values = make(map[string]string)
	}
	if o.useSystemEnv {
		for _, entry := range os.Environ() {
			if key, value, ok := strings.Cut(entry, "="); ok && strings.TrimSpace(key) != "" {
				values[strings.TrimSpace(key)] = value
			}
		}
	}
	maps.Copy(values, o.envMap)
	return values, nil
}

func readDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", path, err)
	}
	return values, nil
}

// binder reads typed values. Malformed values keep the default and are recorded under their
// field name so Load can reject them.
type binder struct {
	values  map[string]string
	invalid []string
}

func (b *binder) raw(key string) (string, bool) {
	value := strings.TrimSpace(b.values[key])
	return value, value != ""
}

func (b *binder) str(key, fallback string) string {
	if value, ok := b.raw(key); ok {
		return value
	}
	return fallback
}

func (b *binder) duration(field, key string, fallback time.Duration) time.Duration {
	value, ok := b.raw(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		b.invalid = append(b.invalid, field)
		return fallback
	}
	return d
}

func (b *binder) integer(field, key string, fallback int64) int64 {
	value, ok := b.raw(key)
	if !ok {
		return fallback
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		b.invalid = append(b.invalid, field)
		return fallback
	}
	return n
}

func (b *binder) boolean(field, key string, fallback bool) bool {
	value, ok := b.raw(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(value) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	}
	b.invalid = append(b.invalid, field)
	return fallback
}

func (b *binder) list(key string) []string {
	value, _ := b.raw(key)
	out := []string{}
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
