package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/eurocoin-catalog/api/internal/domain"
	"github.com/eurocoin-catalog/api/internal/repositories"
	"github.com/eurocoin-catalog/api/internal/series"
)

const labelCacheCheckName = "seriesLabelCache"

// BuildInfo captures runtime metadata exposed via health endpoints.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// LabelCacheStatser exposes series label cache counters.
type LabelCacheStatser interface {
	Stats() series.CacheStats
}

// SystemServiceDeps bundles collaborators required to construct a system service.
type SystemServiceDeps struct {
	HealthRepository repositories.HealthRepository
	// LabelCache, when set, is reported as an informational check.
	LabelCache LabelCacheStatser
	Clock      func() time.Time
	Build      BuildInfo
}

type systemService struct {
	health     repositories.HealthRepository
	labelCache LabelCacheStatser
	now        func() time.Time
	build      BuildInfo
}

var _ SystemService = (*systemService)(nil)

// NewSystemService assembles the system service backing the readiness endpoint.
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
		health:     deps.HealthRepository,
		labelCache: deps.LabelCache,
		now:        func() time.Time { return clock().UTC() },
		build:      build,
	}, nil
}

func (s *systemService) HealthReport(ctx context.Context) (SystemHealthReport, error) {
	if ctx == nil {
		return SystemHealthReport{}, errors.New("system service: context is required")
	}

	report, err := s.health.Collect(ctx)
	if err != nil {
		return SystemHealthReport{}, err
	}

	now := s.now()
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = now
	} else {
		report.GeneratedAt = report.GeneratedAt.UTC()
	}
	report.Version = firstNonBlank(report.Version, s.build.Version)
	report.CommitSHA = firstNonBlank(report.CommitSHA, s.build.CommitSHA)
	report.Environment = firstNonBlank(report.Environment, s.build.Environment)
	if report.Uptime <= 0 {
		report.Uptime = now.Sub(s.build.StartedAt)
	}

	if report.Checks == nil {
		report.Checks = make(map[string]domain.SystemHealthCheck)
	}
	if s.labelCache != nil {
		stats := s.labelCache.Stats()
		report.Checks[labelCacheCheckName] = domain.SystemHealthCheck{
			Status: domain.HealthStatusOK,
			Detail: fmt.Sprintf("generation=%d countries=%d labels=%d hits=%d misses=%d",
				stats.Generation, stats.Countries, stats.Labels, stats.Hits, stats.Misses),
			CheckedAt: now,
		}
	}

	if strings.TrimSpace(report.Status) == "" {
		report.Status = overallStatus(report.Checks)
	}
	return report, nil
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// overallStatus is error when any check errors, degraded when any check is neither ok nor error.
func overallStatus(checks map[string]domain.SystemHealthCheck) string {
	status := domain.HealthStatusOK
	for _, check := range checks {
		switch check.Status {
		case domain.HealthStatusOK, "":
		case domain.HealthStatusError:
			return domain.HealthStatusError
		default:
			status = domain.HealthStatusDegraded
		}
	}
	return status
}
