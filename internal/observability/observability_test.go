package observability

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
)

var (
	setupOnce sync.Once
	telemetry *Telemetry
	setupErr  error
)

func testTelemetry(t *testing.T) *Telemetry {
	t.Helper()
	setupOnce.Do(func() { telemetry, setupErr = Setup(context.Background(), "device-manager-test", "") })
	if setupErr != nil {
		t.Fatalf("setup: %v", setupErr)
	}
	return telemetry
}

func scrape(t *testing.T, tel *Telemetry) string {
	t.Helper()
	rec := httptest.NewRecorder()
	tel.Metrics.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	b, _ := io.ReadAll(rec.Body)
	return string(b)
}

func TestMiddleware_CountsByRoutePattern(t *testing.T) {
	tel := testTelemetry(t)
	r := chi.NewRouter()
	r.Use(tel.Middleware)
	r.Get("/api/v1/devices/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/devices/6650a1b2c3d4e5f601234567", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if rec.Header().Get("Trace-ID") == "" {
		t.Fatalf("expected Trace-ID header")
	}

	body := scrape(t, tel)
	want := `http_requests_total{endpoint="/api/v1/devices/{id}",method="GET",service="device-manager-test",status="404"}`
	if !strings.Contains(body, want) {
		t.Fatalf("expected %s in scrape output", want)
	}
	if strings.Contains(body, "6650a1b2c3d4e5f601234567") {
		t.Fatalf("raw id leaked into metric labels")
	}
}

func TestObserveProbe(t *testing.T) {
	tel := testTelemetry(t)
	ObserveProbe(true)
	ObserveProbe(false)
	body := scrape(t, tel)
	for _, want := range []string{`device_probe_total{result="reachable"}`, `device_probe_total{result="unreachable"}`} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %s in scrape output", want)
		}
	}
}
