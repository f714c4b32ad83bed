package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func newMockUpstream(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewDephealthService_ValidURL(t *testing.T) {
	srv := newMockUpstream(t, http.StatusOK)

	ds, err := NewDephealthServiceWithRegisterer(
		"test-bff-01",
		"staffdesk",
		DephealthTargets{IDPURL: srv.URL, AppscriptURL: srv.URL + "/macros/s/abc/exec"},
		5*time.Second,
		testLogger(),
		prometheus.NewRegistry(),
	)
	if err != nil {
		t.Fatalf("Ошибка создания DephealthService: %v", err)
	}
	if ds == nil {
		t.Fatal("DephealthService nil")
	}
}

func TestDephealthService_StartStop(t *testing.T) {
	idp := newMockUpstream(t, http.StatusOK)
	appscript := newMockUpstream(t, http.StatusInternalServerError)

	ds, err := NewDephealthServiceWithRegisterer(
		"test-bff-02",
		"staffdesk",
		DephealthTargets{IDPURL: idp.URL, AppscriptURL: appscript.URL},
		1*time.Second,
		testLogger(),
		prometheus.NewRegistry(),
	)
	if err != nil {
		t.Fatalf("Ошибка создания DephealthService: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := ds.Start(ctx); err != nil {
		t.Fatalf("Ошибка запуска: %v", err)
	}

	// Даём время на первую проверку (интервал 1s + запас)
	time.Sleep(3 * time.Second)

	if healthy, known := ds.DependencyHealthy(DepIDP); !known || !healthy {
		t.Errorf("idp healthy=%v known=%v, ожидается true/true (keys=%v)", healthy, known, ds.Health())
	}
	if healthy, known := ds.DependencyHealthy(DepAppscript); !known || healthy {
		t.Errorf("appscript healthy=%v known=%v, ожидается false/true", healthy, known)
	}
	if status, _ := ds.CheckReady(); status != "degraded" {
		t.Errorf("CheckReady() = %q, ожидается degraded", status)
	}

	ds.Stop()
}

func TestHealthByPrefix(t *testing.T) {
	tests := []struct {
		name        string
		health      map[string]bool
		prefix      string
		wantHealthy bool
		wantKnown   bool
	}{
		{"нет записей", map[string]bool{}, DepIDP, false, false},
		{"одна ok", map[string]bool{"idp:auth.lan:443": true}, DepIDP, true, true},
		{"одна fail", map[string]bool{"idp:auth.lan:443": false}, DepIDP, false, true},
		{"несколько, одна fail", map[string]bool{"idp:a:1": true, "idp:b:2": false}, DepIDP, false, true},
		{"похожий префикс не совпадает", map[string]bool{"idp-admin:a:1": true}, DepIDP, false, false},
		{"чужая зависимость", map[string]bool{"appscript:g:443": false, "idp:a:1": true}, DepIDP, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			healthy, known := healthByPrefix(tt.health, tt.prefix)
			if healthy != tt.wantHealthy || known != tt.wantKnown {
				t.Errorf("healthByPrefix() = %v, %v, ожидается %v, %v", healthy, known, tt.wantHealthy, tt.wantKnown)
			}
		})
	}
}
