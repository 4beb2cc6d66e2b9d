package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	domain "github.com/marketline/api/internal/domain"
)

const defaultDependencyTimeout = 1500 * time.Millisecond

// DependencyCheck probes one backing service. A failing required check makes the report "error"
// and the API unready; a failing optional check (event broker, push) only degrades it.
type DependencyCheck struct {
	Name     string
	Timeout  time.Duration
	Optional bool
	Check    func(context.Context) error
}

// DependencyHealthOption customises the dependency-backed health repository.
type DependencyHealthOption func(*dependencyHealthRepository)

// WithDependencyTimeout sets the timeout for checks that do not carry their own.
func WithDependencyTimeout(timeout time.Duration) DependencyHealthOption {
	return func(repo *dependencyHealthRepository) {
		if timeout > 0 {
			repo.defaultTimeout = timeout
		}
	}
}

func WithDependencyClock(clock func() time.Time) DependencyHealthOption {
	return func(repo *dependencyHealthRepository) {
		if clock != nil {
			repo.now = clock
		}
	}
}

type dependencyHealthRepository struct {
	checks         []DependencyCheck
	defaultTimeout time.Duration
	now            func() time.Time
}

var _ HealthRepository = (*dependencyHealthRepository)(nil)

// NewDependencyHealthRepository runs every check concurrently on each Collect.
func NewDependencyHealthRepository(checks []DependencyCheck, opts ...DependencyHealthOption) (HealthRepository, error) {
	if len(checks) == 0 {
		return nil, errors.New("health repository: at least one dependency check is required")
	}
	seen := make(map[string]struct{}, len(checks))
	for _, check := range checks {
		name := strings.TrimSpace(check.Name)
		if name == "" {
			return nil, errors.New("health repository: dependency check missing name")
		}
		if check.Check == nil {
			return nil, fmt.Errorf("health repository: dependency %s missing check function", name)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("health repository: duplicate dependency %s", name)
		}
		seen[name] = struct{}{}
	}

	repo := &dependencyHealthRepository{
		checks:         append([]DependencyCheck(nil), checks...),
		defaultTimeout: defaultDependencyTimeout,
		now:            time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}
	return repo, nil
}

func (r *dependencyHealthRepository) Collect(ctx context.Context) (domain.HealthReport, error) {
	if ctx == nil {
		return domain.HealthReport{}, errors.New("health repository: context is required")
	}

	report := domain.HealthReport{
		Status: domain.HealthStatusOK,
		Checks: make(map[string]domain.DependencyHealth, len(r.checks)),
	}
	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	for _, check := range r.checks {
		g.Go(func() error {
			result := r.probe(ctx, check)
			mu.Lock()
			defer mu.Unlock()
			report.Checks[check.Name] = result
			report.Status = WorseHealth(report.Status, result.Status)
			return nil
		})
	}
	_ = g.Wait()
	report.GeneratedAt = r.now()
	return report, nil
}

func (r *dependencyHealthRepository) probe(ctx context.Context, check DependencyCheck) domain.DependencyHealth {
	timeout := check.Timeout
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := r.now()
	err := check.Check(checkCtx)
	end := r.now()
	if err == nil {
		err = checkCtx.Err()
	}

	result := domain.DependencyHealth{
		Status:    domain.HealthStatusOK,
		Detail:    "ok",
		Latency:   end.Sub(start),
		CheckedAt: end,
	}
	if err == nil {
		return result
	}
	result.Status = domain.HealthStatusError
	if check.Optional {
		result.Status = domain.HealthStatusDegraded
	}
	result.Error = err.Error()
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		result.Detail = "timeout"
	case errors.Is(err, context.Canceled):
		result.Detail = "cancelled"
	default:
		result.Detail = "unreachable"
	}
	return result
}

// ComposeHealth merges the reports of several repositories into one. Check names must not
// collide; a later repository overwrites an earlier check of the same name.
func ComposeHealth(repos ...HealthRepository) HealthRepository {
	var kept []HealthRepository
	for _, repo := range repos {
		if repo != nil {
			kept = append(kept, repo)
		}
	}
	if len(kept) == 1 {
		return kept[0]
	}
	return composedHealth(kept)
}

type composedHealth []HealthRepository

func (c composedHealth) Collect(ctx context.Context) (domain.HealthReport, error) {
	merged := domain.HealthReport{Status: domain.HealthStatusOK, Checks: map[string]domain.DependencyHealth{}}
	for _, repo := range c {
		report, err := repo.Collect(ctx)
		if err != nil {
			return domain.HealthReport{}, err
		}
		for name, check := range report.Checks {
			merged.Checks[name] = check
		}
		merged.Status = WorseHealth(merged.Status, report.Status)
		if report.GeneratedAt.After(merged.GeneratedAt) {
			merged.GeneratedAt = report.GeneratedAt
		}
	}
	return merged, nil
}

var healthRank = map[string]int{
	domain.HealthStatusOK:       0,
	domain.HealthStatusDegraded: 1,
	domain.HealthStatusError:    2,
}

// WorseHealth returns the more severe of two statuses. Unknown statuses count as ok.
func WorseHealth(a, b string) string {
	if healthRank[b] > healthRank[a] {
		return b
	}
	return a
}
