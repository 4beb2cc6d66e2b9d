package secrets

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/marketline/api/internal/platform/config"
)

var _ config.SecretResolver = (*Fetcher)(nil)

const credentialsResource = "projects/mk-prod/secrets/firebase_credentials/versions/latest"

type stubSecretManager struct {
	mu     sync.Mutex
	values map[string]string
	errs   map[string]error
	calls  map[string]int
}

func newStubSecretManager() *stubSecretManager {
	return &stubSecretManager{values: map[string]string{}, errs: map[string]error{}, calls: map[string]int{}}
}

func (s *stubSecretManager) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[req.GetName()]++
	if err := s.errs[req.GetName()]; err != nil {
		return nil, err
	}
	value, ok := s.values[req.GetName()]
	if !ok {
		return nil, status.Error(codes.NotFound, "secret not found")
	}
	return &secretmanagerpb.AccessSecretVersionResponse{Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)}}, nil
}

func (s *stubSecretManager) Close() error { return nil }

func (s *stubSecretManager) callCount(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

func writeLocalSecrets(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".secrets.local")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestResolveCachesRemoteSecret(t *testing.T) {
	ctx := context.Background()
	sm := newStubSecretManager()
	sm.values[credentialsResource] = `{"type":"service_account"}`

	fetcher, err := NewFetcher(ctx, WithSecretManagerClient(sm), WithDefaultProject("mk-prod"), WithLogger(zap.NewNop()))
	require.NoError(t, err)
	defer fetcher.Close()

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := fetcher.Resolve(ctx, "secret://firebase_credentials")
			assert.NoError(t, err)
			assert.Equal(t, `{"type":"service_account"}`, got)
		}()
	}
	wg.Wait()
	got, err := fetcher.ResolveSecret(ctx, "secret://firebase_credentials")
	require.NoError(t, err)
	assert.Equal(t, `{"type":"service_account"}`, got)
	assert.Equal(t, 1, sm.callCount(credentialsResource))
}

func TestResolveSources(t *testing.T) {
	tests := []struct {
		name    string
		remote  map[string]string
		errs    map[string]error
		project string
		local   string
		ref     string
		want    string
		wantErr bool
	}{
		{
			name:    "version and project override",
			remote:  map[string]string{"projects/other/secrets/kafka_password/versions/3": "v3"},
			project: "mk-prod",
			ref:     "secret://kafka_password?version=3&project=other",
			want:    "v3",
		},
		{
			name:    "permission denied falls back to local file",
			errs:    map[string]error{credentialsResource: status.Error(codes.PermissionDenied, "denied")},
			project: "mk-prod",
			local:   "firebase_credentials=local-secret\n",
			ref:     "secret://firebase_credentials",
			want:    "local-secret",
		},
		{
			name:    "not found does not fall back",
			project: "mk-prod",
			local:   "missing=local\n",
			ref:     "secret://missing",
			wantErr: true,
		},
		{
			name:  "no project reads local file",
			local: "# local overrides\nfirebase_credentials='{\"type\":\"service_account\"}'\n",
			ref:   "secret://firebase_credentials",
			want:  `{"type":"service_account"}`,
		},
		{
			name:  "pinned version in local file",
			local: "fcm_key=latest\nfcm_key.2=second\n",
			ref:   "secret://fcm_key?version=2",
			want:  "second",
		},
		{
			name:    "unsupported scheme",
			ref:     "https://example.com",
			wantErr: true,
		},
		{
			name:    "nothing configured",
			ref:     "secret://firebase_credentials",
			wantErr: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sm := newStubSecretManager()
			for k, v := range tc.remote {
				sm.values[k] = v
			}
			for k, v := range tc.errs {
				sm.errs[k] = v
			}
			opts := []Option{WithSecretManagerClient(sm), WithFallbackFile("")}
			if tc.project != "" {
				opts = append(opts, WithDefaultProject(tc.project))
			}
			if tc.local != "" {
				opts = append(opts, WithFallbackFile(writeLocalSecrets(t, tc.local)))
			}
			fetcher, err := NewFetcher(context.Background(), opts...)
			require.NoError(t, err)

			got, err := fetcher.Resolve(context.Background(), tc.ref)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
