//go:build integration

package firestore

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	pconfig "github.com/marketline/api/internal/platform/config"
	pfirestore "github.com/marketline/api/internal/platform/firestore"
)

const (
	emulatorImage        = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"
	emulatorStartTimeout = 30 * time.Second
)

// newEmulatorProvider binds a provider to FIRESTORE_EMULATOR_HOST when set, or to a throwaway
// emulator container otherwise. Each test gets its own project id so data never leaks between tests.
func newEmulatorProvider(t *testing.T, projectID string) *pfirestore.Provider {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}
	host := strings.TrimSpace(os.Getenv("FIRESTORE_EMULATOR_HOST"))
	if host == "" {
		host = runEmulatorContainer(t)
	}
	awaitListener(t, host)

	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{
		ProjectID:    fmt.Sprintf("%s-%d", projectID, time.Now().UnixNano()),
		EmulatorHost: host,
		TxAttempts:   20,
		TxTimeout:    30 * time.Second,
	})
	t.Cleanup(func() { _ = provider.Close(context.Background()) })
	return provider
}

func runEmulatorContainer(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}
	if err := docker(5*time.Second, "info"); err != nil {
		t.Skip("docker daemon unavailable: " + err.Error())
	}

	port := unusedPort(t)
	out, err := exec.Command("docker", "run", "-d", "--rm",
		"-p", fmt.Sprintf("127.0.0.1:%d:8080", port),
		emulatorImage,
		"gcloud", "beta", "emulators", "firestore", "start", "--host-port=0.0.0.0:8080", "--quiet",
	).CombinedOutput()
	require.NoError(t, err, "start firestore emulator: %s", out)

	container := strings.TrimSpace(string(out))
	require.NotEmpty(t, container, "docker returned no container id")
	t.Cleanup(func() { _ = docker(10*time.Second, "stop", container) })
	return fmt.Sprintf("127.0.0.1:%d", port)
}

func docker(timeout time.Duration, args ...string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return exec.CommandContext(ctx, "docker", args...).Run()
}

func unusedPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func awaitListener(t *testing.T, host string) {
	t.Helper()
	require.Eventually(t, func() bool {
		conn, err := net.DialTimeout("tcp", host, 500*time.Millisecond)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}, emulatorStartTimeout, 200*time.Millisecond, "firestore emulator at %s not ready", host)
}
