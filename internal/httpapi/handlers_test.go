package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/scout/internal/db"
	"horse.fit/scout/internal/report"
	"horse.fit/scout/internal/resilience"
)

type stubStore struct {
	pingErr error
	spikes  []db.SpikeEvent
	reports []db.Report
	listErr error
}

func (s *stubStore) Ping(context.Context) error { return s.pingErr }

func (s *stubStore) SpikeEventsSince(_ context.Context, _ time.Time, _ int) ([]db.SpikeEvent, error) {
	return s.spikes, s.listErr
}

func (s *stubStore) ReportsSince(_ context.Context, _ time.Time, _ int) ([]db.Report, error) {
	return s.reports, s.listErr
}

type stubRunner struct {
	enrichErr error
	detectErr error
	digestErr error
}

func (r *stubRunner) RunEnrich(context.Context) (int, error) { return 7, r.enrichErr }
func (r *stubRunner) RunDetect(context.Context) (int, error) { return 2, r.detectErr }
func (r *stubRunner) RunDigest(context.Context) (*report.Digest, error) {
	if r.digestErr != nil {
		return nil, r.digestErr
	}
	return &report.Digest{WindowHours: 24}, nil
}

func serve(t *testing.T, store Store, runner Runner, method, target string) (*httptest.ResponseRecorder, jsendResponse) {
	t.Helper()
	server := NewServer(store, runner, zerolog.Nop(), Options{})
	router := server.router()

	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var body jsendResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return rec, body
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	rec, body := serve(t, &stubStore{}, &stubRunner{}, http.MethodGet, "/healthz")
	if rec.Code != http.StatusOK || body.Status != "success" {
		t.Fatalf("healthz = %d %+v", rec.Code, body)
	}

	rec, body = serve(t, &stubStore{pingErr: errors.New("down")}, &stubRunner{}, http.MethodGet, "/api/v1/health")
	if rec.Code != http.StatusServiceUnavailable || body.Status != "fail" {
		t.Fatalf("unhealthy = %d %+v", rec.Code, body)
	}
}

func TestSpikesListAndValidation(t *testing.T) {
	t.Parallel()

	store := &stubStore{spikes: []db.SpikeEvent{{Key: "alpha", Score: 4.2}}}
	rec, body := serve(t, store, &stubRunner{}, http.MethodGet, "/api/v1/spikes?hours=48&limit=10")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	data := body.Data.(map[string]any)
	if data["hours"].(float64) != 48 {
		t.Fatalf("hours echoed = %v", data["hours"])
	}
	items := data["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("items = %v", items)
	}

	rec, body = serve(t, store, &stubRunner{}, http.MethodGet, "/api/v1/spikes?limit=0")
	if rec.Code != http.StatusBadRequest || body.Status != "fail" {
		t.Fatalf("bad limit = %d %+v", rec.Code, body)
	}
}

func TestRunEndpoints(t *testing.T) {
	t.Parallel()

	rec, body := serve(t, &stubStore{}, &stubRunner{}, http.MethodPost, "/api/v1/enrich/run")
	if rec.Code != http.StatusOK {
		t.Fatalf("enrich run = %d %+v", rec.Code, body)
	}
	if body.Data.(map[string]any)["events_processed"].(float64) != 7 {
		t.Fatalf("enrich data = %+v", body.Data)
	}

	rec, body = serve(t, &stubStore{}, &stubRunner{}, http.MethodPost, "/api/v1/digest/run")
	if rec.Code != http.StatusOK {
		t.Fatalf("digest run = %d", rec.Code)
	}
	markdown := body.Data.(map[string]any)["markdown"].(string)
	if !strings.Contains(markdown, "Edit activity digest") {
		t.Fatalf("markdown = %q", markdown)
	}
}

func TestRunEndpointBreakerOpenMapsTo503(t *testing.T) {
	t.Parallel()

	runner := &stubRunner{detectErr: resilience.ErrUnavailable}
	rec, body := serve(t, &stubStore{}, runner, http.MethodPost, "/api/v1/detect/run")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("breaker-open status = %d", rec.Code)
	}
	if body.Status != "fail" || !strings.Contains(body.Message, "circuit open") {
		t.Fatalf("body = %+v", body)
	}
}

func TestRunEndpointInternalError(t *testing.T) {
	t.Parallel()

	runner := &stubRunner{enrichErr: errors.New("boom")}
	rec, body := serve(t, &stubStore{}, runner, http.MethodPost, "/api/v1/enrich/run")
	if rec.Code != http.StatusInternalServerError || body.Status != "error" {
		t.Fatalf("internal error = %d %+v", rec.Code, body)
	}
}
