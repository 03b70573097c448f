package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/clustermon/internal/monitor"
	"github.com/MikeSquared-Agency/clustermon/internal/store"
)

type fakeRuns struct {
	runs      []monitor.Run
	err       error
	lastTask  string
	lastLimit int
}

func (f *fakeRuns) ListRuns(_ context.Context, task string, limit int) ([]monitor.Run, error) {
	f.lastTask, f.lastLimit = task, limit
	if f.err != nil {
		return nil, f.err
	}
	var out []monitor.Run
	for _, r := range f.runs {
		if task == "" || r.Task == task {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRuns) GetRun(_ context.Context, id uuid.UUID) (monitor.Run, error) {
	for _, r := range f.runs {
		if r.ID == id {
			return r, nil
		}
	}
	return monitor.Run{}, fmt.Errorf("run %s: %w", id, store.ErrNotFound)
}

func newTestServer(runs RunLister) *Server {
	return NewServer(8750, runs, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func do(srv *Server, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", target, nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	return w
}

func sampleRuns() []monitor.Run {
	at := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	a := monitor.NewRun(monitor.TaskMSM, "head01", at)
	a.AlertLines = 2
	a.Notified = true
	a.Finish(at.Add(time.Second), nil)
	b := monitor.NewRun(monitor.TaskTemps, "node01", at)
	b.Measurements = map[string]float64{"Core 0": 46.5}
	b.Finish(at.Add(time.Second), nil)
	return []monitor.Run{a, b}
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(nil)

	w := do(srv, "/health")
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %q", body["status"])
	}
}

func TestListRuns(t *testing.T) {
	runs := &fakeRuns{runs: sampleRuns()}
	srv := newTestServer(runs)

	w := do(srv, "/api/v1/runs?task=msm")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body)
	}

	var body runsResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Count != 1 || body.Runs[0].Task != monitor.TaskMSM {
		t.Errorf("unexpected body %+v", body)
	}
	if runs.lastLimit != store.DefaultListLimit {
		t.Errorf("expected default limit %d, got %d", store.DefaultListLimit, runs.lastLimit)
	}
}

func TestListRuns_LimitClamped(t *testing.T) {
	runs := &fakeRuns{}
	srv := newTestServer(runs)

	w := do(srv, "/api/v1/runs?limit=10000")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if runs.lastLimit != store.MaxListLimit {
		t.Errorf("expected limit clamped to %d, got %d", store.MaxListLimit, runs.lastLimit)
	}

	var body runsResponse
	json.NewDecoder(w.Body).Decode(&body)
	if body.Count != 0 {
		t.Errorf("expected empty list, got %+v", body)
	}
}

func TestListRuns_BadRequest(t *testing.T) {
	srv := newTestServer(&fakeRuns{})

	for _, target := range []string{
		"/api/v1/runs?limit=abc",
		"/api/v1/runs?limit=-1",
		"/api/v1/runs?task=disk",
	} {
		if w := do(srv, target); w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", target, w.Code)
		}
	}
}

func TestListRuns_StoreError(t *testing.T) {
	srv := newTestServer(&fakeRuns{err: errors.New("connection refused")})

	w := do(srv, "/api/v1/runs")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "connection refused") {
		t.Error("internal error details should not leak")
	}
}

func TestRuns_NoStore(t *testing.T) {
	srv := newTestServer(nil)

	for _, target := range []string{"/api/v1/runs", "/api/v1/runs/" + uuid.NewString()} {
		if w := do(srv, target); w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: expected 503, got %d", target, w.Code)
		}
	}
}

func TestGetRun(t *testing.T) {
	runs := sampleRuns()
	srv := newTestServer(&fakeRuns{runs: runs})

	w := do(srv, "/api/v1/runs/"+runs[0].ID.String())
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var got monitor.Run
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.ID != runs[0].ID || got.AlertLines != 2 || !got.Notified {
		t.Errorf("unexpected run %+v", got)
	}
}

func TestGetRun_IncludesMeasurements(t *testing.T) {
	runs := sampleRuns()
	srv := newTestServer(&fakeRuns{runs: runs})

	w := do(srv, "/api/v1/runs/"+runs[1].ID.String())
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var got monitor.Run
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.Measurements["Core 0"] != 46.5 {
		t.Errorf("expected measurements in response, got %v", got.Measurements)
	}
}

func TestWriteJSON_LogsEncodeFailure(t *testing.T) {
	var logs strings.Builder
	srv := NewServer(8750, nil, slog.New(slog.NewTextHandler(&logs, nil)))

	w := httptest.NewRecorder()
	srv.writeJSON(w, http.StatusOK, map[string]float64{"Core 0": math.NaN()})

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(logs.String(), "failed to encode response") {
		t.Errorf("expected encode failure to be logged, got %q", logs.String())
	}
}

func TestGetRun_NotFound(t *testing.T) {
	srv := newTestServer(&fakeRuns{})

	if w := do(srv, "/api/v1/runs/"+uuid.NewString()); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
	if w := do(srv, "/api/v1/runs/not-a-uuid"); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(nil)
	do(srv, "/health")

	w := do(srv, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	want := `clustermon_api_http_requests_total{method="GET",route="/health",status="200"} 1`
	if !strings.Contains(w.Body.String(), want) {
		t.Errorf("missing %q in:\n%s", want, w.Body)
	}
}

func TestNotFoundEndpoint(t *testing.T) {
	srv := newTestServer(nil)

	if w := do(srv, "/nonexistent"); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestStartShutsDownOnCancel(t *testing.T) {
	srv := NewServer(0, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() { errc <- srv.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
