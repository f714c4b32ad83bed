package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

type staticChecker struct {
	status, message string
}

func (c staticChecker) CheckReady() (string, string) { return c.status, c.message }

func TestOverallStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []string
		want     string
	}{
		{"все ok", []string{"ok", "ok"}, "ok"},
		{"один degraded", []string{"ok", "degraded"}, "degraded"},
		{"fail важнее degraded", []string{"degraded", "fail", "ok"}, "fail"},
		{"пусто", nil, "ok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := overallStatus(tt.statuses...); got != tt.want {
				t.Errorf("overallStatus() = %q, ожидается %q", got, tt.want)
			}
		})
	}
}

func TestHealthReady(t *testing.T) {
	tests := []struct {
		name       string
		pg, idp    ReadinessChecker
		appscript  ReadinessChecker
		wantCode   int
		wantStatus string
	}{
		{"все доступны", staticChecker{"ok", ""}, staticChecker{"ok", ""}, staticChecker{"ok", ""}, http.StatusOK, "ok"},
		{"Apps Script недоступен", staticChecker{"ok", ""}, staticChecker{"ok", ""}, staticChecker{"degraded", "down"}, http.StatusOK, "degraded"},
		{"IdP недоступен", staticChecker{"ok", ""}, staticChecker{"fail", "down"}, nil, http.StatusServiceUnavailable, "fail"},
		{"без PostgreSQL", nil, staticChecker{"ok", ""}, nil, http.StatusServiceUnavailable, "fail"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.pg, tt.idp, tt.appscript)
			rec := httptest.NewRecorder()
			h.HealthReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("статус = %d, ожидается %d", rec.Code, tt.wantCode)
			}
			var resp healthReadyResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("ответ: %v", err)
			}
			if resp.Status != tt.wantStatus || resp.Service != serviceName {
				t.Errorf("status = %q, service = %q", resp.Status, resp.Service)
			}
			if (resp.Checks.Appscript == nil) != (tt.appscript == nil) {
				t.Errorf("appscript = %v, ожидается присутствие: %v", resp.Checks.Appscript, tt.appscript != nil)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	f := newFixture("cookie")
	rec := httptest.NewRecorder()
	f.h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK || rec.Body.String() != "{\"ok\":true}\n" {
		t.Errorf("ответ = %d %q", rec.Code, rec.Body.String())
	}
}
