package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	domain "github.com/eurocoin-catalog/api/internal/domain"
	"github.com/eurocoin-catalog/api/internal/services"
)

type stubSystemService struct {
	report services.SystemHealthReport
	err    error
}

func (s *stubSystemService) HealthReport(context.Context) (services.SystemHealthReport, error) {
	return s.report, s.err
}

var _ services.SystemService = (*stubSystemService)(nil)

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %s: %v", rr.Body.String(), err)
	}
	return out
}

func TestHealthzReportsBuildAndUptime(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	h := NewHealthHandlers(
		WithHealthBuildInfo(services.BuildInfo{Version: "1.0.0", CommitSHA: "abc123", Environment: "prod", StartedAt: start}),
		WithHealthClock(func() time.Time { return start.Add(30 * time.Second) }),
	)

	rr := httptest.NewRecorder()
	h.Healthz(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	want := healthzResponse{
		Status:      domain.HealthStatusOK,
		buildFields: buildFields{Version: "1.0.0", CommitSHA: "abc123", Environment: "prod", UptimeSeconds: 30},
		Timestamp:   "2024-01-01T00:00:30Z",
	}
	if diff := cmp.Diff(want, decodeBody[healthzResponse](t, rr), cmp.AllowUnexported(healthzResponse{})); diff != "" {
		t.Fatalf("healthz mismatch (-want +got):\n%s", diff)
	}
}

func TestReadyzMapsReportStatus(t *testing.T) {
	checkedAt := time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC)
	tests := []struct {
		name        string
		report      services.SystemHealthReport
		wantCode    int
		wantDetails []string
	}{
		{
			name: "ok",
			report: services.SystemHealthReport{
				Status: domain.HealthStatusOK,
				Checks: map[string]domain.SystemHealthCheck{
					"firestore": {Status: domain.HealthStatusOK, Latency: 10 * time.Millisecond, CheckedAt: checkedAt},
				},
			},
			wantCode: http.StatusOK,
		},
		{
			name: "degraded stays ready",
			report: services.SystemHealthReport{
				Status: domain.HealthStatusDegraded,
				Checks: map[string]domain.SystemHealthCheck{
					"pubsub": {Status: domain.HealthStatusDegraded, Error: "publish failed"},
				},
			},
			wantCode:    http.StatusOK,
			wantDetails: []string{"pubsub: publish failed"},
		},
		{
			name: "error drains",
			report: services.SystemHealthReport{
				Status: domain.HealthStatusError,
				Checks: map[string]domain.SystemHealthCheck{
					"storage":  {Status: domain.HealthStatusError, Error: "bucket missing"},
					"bigquery": {Status: domain.HealthStatusError, Error: "dial timeout"},
					"pubsub":   {Status: domain.HealthStatusOK},
				},
			},
			wantCode:    http.StatusServiceUnavailable,
			wantDetails: []string{"bigquery: dial timeout", "storage: bucket missing"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHealthHandlers(
				WithHealthSystemService(&stubSystemService{report: tc.report}),
				WithHealthClock(func() time.Time { return checkedAt }),
			)
			rr := httptest.NewRecorder()
			h.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			if rr.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d", tc.wantCode, rr.Code)
			}
			body := decodeBody[readyzResponse](t, rr)
			if body.Status != tc.report.Status {
				t.Errorf("expected status %s, got %s", tc.report.Status, body.Status)
			}
			if body.GeneratedAt != "2024-01-01T00:01:00Z" {
				t.Errorf("expected clock fallback for generatedAt, got %s", body.GeneratedAt)
			}
			if len(body.Checks) != len(tc.report.Checks) {
				t.Errorf("expected %d checks, got %+v", len(tc.report.Checks), body.Checks)
			}
			if diff := cmp.Diff(tc.wantDetails, body.Details); diff != "" {
				t.Errorf("details mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReadyzCheckFields(t *testing.T) {
	checkedAt := time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC)
	h := NewHealthHandlers(WithHealthSystemService(&stubSystemService{report: services.SystemHealthReport{
		Status:      domain.HealthStatusOK,
		Version:     "2.1.0",
		Uptime:      time.Minute,
		GeneratedAt: checkedAt,
		Checks: map[string]domain.SystemHealthCheck{
			"seriesLabelCache": {Status: domain.HealthStatusOK, Detail: "generation=1", Latency: 1500 * time.Microsecond, CheckedAt: checkedAt},
		},
	}}))

	rr := httptest.NewRecorder()
	h.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	body := decodeBody[readyzResponse](t, rr)
	if body.Version != "2.1.0" || body.UptimeSeconds != 60 {
		t.Errorf("unexpected build fields %+v", body.buildFields)
	}
	want := readyzCheck{Status: domain.HealthStatusOK, Detail: "generation=1", LatencyMS: 1, CheckedAt: "2024-01-01T00:01:00Z"}
	if diff := cmp.Diff(want, body.Checks["seriesLabelCache"]); diff != "" {
		t.Fatalf("check mismatch (-want +got):\n%s", diff)
	}
}

func TestReadyzWithoutSystemService(t *testing.T) {
	rr := httptest.NewRecorder()
	NewHealthHandlers().Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if body := decodeBody[readyzResponse](t, rr); body.Status != domain.HealthStatusOK || len(body.Checks) != 0 {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestReadyzReportError(t *testing.T) {
	h := NewHealthHandlers(WithHealthSystemService(&stubSystemService{err: errors.New("collect failed")}))

	rr := httptest.NewRecorder()
	h.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	body := decodeBody[readyzResponse](t, rr)
	if body.Status != domain.HealthStatusError {
		t.Fatalf("expected error status, got %s", body.Status)
	}
	if diff := cmp.Diff([]string{"collect failed"}, body.Details); diff != "" {
		t.Fatalf("details mismatch (-want +got):\n%s", diff)
	}
}
