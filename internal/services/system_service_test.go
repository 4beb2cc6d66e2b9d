package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/marketline/api/internal/domain"
)

type stubHealthRepository struct {
	report domain.HealthReport
	err    error
	calls  atomic.Int32
	gate   chan struct{}
}

func (s *stubHealthRepository) Collect(context.Context) (domain.HealthReport, error) {
	s.calls.Add(1)
	if s.gate != nil {
		<-s.gate
	}
	return s.report, s.err
}

func TestSystemServiceHealthReport(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start.Add(5 * time.Minute)

	tests := []struct {
		name   string
		report domain.HealthReport
		want   string
	}{
		{
			name:   "empty report is ok",
			report: domain.HealthReport{},
			want:   domain.HealthStatusOK,
		},
		{
			name: "degraded broker",
			report: domain.HealthReport{
				Status: domain.HealthStatusDegraded,
				Checks: map[string]domain.DependencyHealth{"events": {Status: domain.HealthStatusDegraded}},
			},
			want: domain.HealthStatusDegraded,
		},
		{
			name: "status follows the worst check",
			report: domain.HealthReport{
				Status: domain.HealthStatusOK,
				Checks: map[string]domain.DependencyHealth{
					"firestore": {Status: domain.HealthStatusError},
					"events":    {Status: domain.HealthStatusOK},
				},
			},
			want: domain.HealthStatusError,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc, err := NewSystemService(SystemServiceDeps{
				HealthRepository: &stubHealthRepository{report: tc.report},
				Clock:            func() time.Time { return now },
				Build:            BuildInfo{Version: "1.4.0", Environment: "staging", StartedAt: start},
			})
			require.NoError(t, err)

			report, err := svc.HealthReport(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tc.want, report.Status)
			assert.Equal(t, "1.4.0", report.Version)
			assert.Equal(t, "staging", report.Environment)
			assert.Equal(t, 5*time.Minute, report.Uptime)
			assert.True(t, report.GeneratedAt.Equal(now))
			assert.NotNil(t, report.Checks)
		})
	}
}

func TestSystemServiceSharesConcurrentCollections(t *testing.T) {
	repo := &stubHealthRepository{
		report: domain.HealthReport{Status: domain.HealthStatusOK},
		gate:   make(chan struct{}),
	}
	svc, err := NewSystemService(SystemServiceDeps{HealthRepository: repo})
	require.NoError(t, err)

	const checks = 5
	var wg sync.WaitGroup
	for range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.HealthReport(context.Background())
			assert.NoError(t, err)
		}()
	}
	require.Eventually(t, func() bool { return repo.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), repo.calls.Load(), "probes waiting on a running collection must not start another")
	close(repo.gate)
	wg.Wait()
}

func TestSystemServiceHealthReportErrors(t *testing.T) {
	svc, err := NewSystemService(SystemServiceDeps{HealthRepository: &stubHealthRepository{err: errors.New("collect failed")}})
	require.NoError(t, err)
	_, err = svc.HealthReport(context.Background())
	assert.EqualError(t, err, "collect failed")

	blocked := &stubHealthRepository{gate: make(chan struct{})}
	defer close(blocked.gate)
	svc, err = NewSystemService(SystemServiceDeps{HealthRepository: blocked})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = svc.HealthReport(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = NewSystemService(SystemServiceDeps{})
	assert.Error(t, err)
}
