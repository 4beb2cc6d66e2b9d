package services

import (
	"context"
	"errors"
	"maps"
	"time"

	"golang.org/x/sync/singleflight"

	domain "github.com/marketline/api/internal/domain"
	"github.com/marketline/api/internal/repositories"
)

// BuildInfo is the deployment metadata shown on /healthz and /readyz.
type BuildInfo struct {
	Version     string
	Environment string
	StartedAt   time.Time
}

type SystemServiceDeps struct {
	HealthRepository repositories.HealthRepository
	Clock            func() time.Time
	Build            BuildInfo
}

type systemService struct {
	health   repositories.HealthRepository
	clock    func() time.Time
	build    BuildInfo
	inflight singleflight.Group
}

// NewSystemService builds the readiness reporter. Probes that arrive while a collection is
// running share its result instead of hitting every dependency again.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.HealthRepository == nil {
		return nil, errors.New("system service: health repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	build := deps.Build
	if build.StartedAt.IsZero() {
		build.StartedAt = clock()
	}
	return &systemService{
		health: deps.HealthRepository,
		clock:  func() time.Time { return clock().UTC() },
		build:  build,
	}, nil
}

func (s *systemService) HealthReport(ctx context.Context) (HealthReport, error) {
	ch := s.inflight.DoChan("collect", func() (any, error) {
		return s.health.Collect(context.WithoutCancel(ctx))
	})
	var shared domain.HealthReport
	select {
	case <-ctx.Done():
		return HealthReport{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return HealthReport{}, res.Err
		}
		shared = res.Val.(domain.HealthReport)
	}

	// Callers get their own copy of the checks map.
	report := shared
	report.Checks = maps.Clone(shared.Checks)
	if report.Checks == nil {
		report.Checks = map[string]domain.DependencyHealth{}
	}
	if report.Status == "" {
		report.Status = domain.HealthStatusOK
	}
	for _, check := range report.Checks {
		report.Status = repositories.WorseHealth(report.Status, check.Status)
	}

	now := s.clock()
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = now
	}
	report.Version = s.build.Version
	report.Environment = s.build.Environment
	report.Uptime = now.Sub(s.build.StartedAt)
	return report, nil
}
