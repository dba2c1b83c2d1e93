package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/abelbrown/weaksignal/internal/model"
)

func newTestClient(url string) *Client {
	c := NewClient(url, "", 0)
	c.backoffs = []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}
	return c
}

func TestStartRun(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost || req.URL.Path != "/api/analyze" {
			t.Errorf("unexpected request %s %s", req.Method, req.URL.Path)
		}
		if got := req.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("Content-Type = %q", got)
		}
		var body map[string]any
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body["country"] != "Kenya" || body["password"] != "pw" {
			t.Errorf("unexpected body %v", body)
		}
		w.Write([]byte(`{"analysis_id": "a1b2c3d4"}`))
	}))
	defer server.Close()

	c := NewClient(server.URL+"/", "pw", 0)
	id, err := c.StartRun(context.Background(), model.RunConfig{Country: "Kenya", Horizon: 5})
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if id != "a1b2c3d4" {
		t.Errorf("id = %q", id)
	}
}

func TestStartRunValidation(t *testing.T) {
	c := NewClient("http://unused", "", 0)
	if _, err := c.StartRun(context.Background(), model.RunConfig{}); err == nil {
		t.Error("expected error for missing country")
	}
}

func TestStartRunForbidden(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error": "Invalid password"}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).StartRun(context.Background(), model.RunConfig{Country: "Kenya"})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "Invalid password" {
		t.Errorf("expected message to be kept, got %v", err)
	}
}

func TestStartScenario(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/api/analyze/r1/what-if" {
			t.Errorf("unexpected path %s", req.URL.Path)
		}
		var body struct{ Scenario string }
		json.NewDecoder(req.Body).Decode(&body)
		if body.Scenario != "Port closure" {
			t.Errorf("unexpected scenario %q", body.Scenario)
		}
		w.Write([]byte(`{"scenario_id": "s9", "stream_key": "r1_whatif_s9"}`))
	}))
	defer server.Close()

	ticket, err := newTestClient(server.URL).StartScenario(context.Background(), "r1", "Port closure")
	if err != nil {
		t.Fatalf("StartScenario: %v", err)
	}
	if ticket.ScenarioID != "s9" || ticket.StreamKey != "r1_whatif_s9" {
		t.Errorf("unexpected ticket %+v", ticket)
	}
}

func TestEmbeddedNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte(`[{"error": "Analysis not found or not completed"}, 404]`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).StartScenario(context.Background(), "r1", "x")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStartsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	if _, err := newTestClient(server.URL).StartRun(context.Background(), model.RunConfig{Country: "Kenya"}); err == nil {
		t.Fatal("expected error")
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("starting a run must not be retried, got %d calls", n)
	}
}

func TestListRuns(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet || req.URL.Path != "/api/runs" {
			t.Errorf("unexpected request %s %s", req.Method, req.URL.Path)
		}
		w.Write([]byte(`{"runs": [
			{"id": "b", "country": "Kenya", "status": "completed", "created_at": 200.5,
			 "assessment": {"headline": "Stress", "risk_level": "Amber"}},
			"garbage",
			{"id": "a", "country": "Chile", "status": "running", "created_at": 100, "assessment": null}
		]}`))
	}))
	defer server.Close()

	runs, err := newTestClient(server.URL).ListRuns(context.Background())
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "b" || runs[1].ID != "a" {
		t.Fatalf("unexpected runs %+v", runs)
	}
	if runs[0].RiskBand() != model.BandAmber {
		t.Errorf("expected amber band, got %q", runs[0].RiskBand())
	}
	if runs[1].Assessment != nil {
		t.Error("null assessment should stay nil")
	}
}

func TestListRunsRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"runs": []}`))
	}))
	defer server.Close()

	runs, err := newTestClient(server.URL).ListRuns(context.Background())
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 0 || calls.Load() != 3 {
		t.Errorf("expected success on third attempt, got %d runs after %d calls", len(runs), calls.Load())
	}
}

func TestCancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte(`{"runs": []}`))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := newTestClient(server.URL).ListRuns(ctx); err == nil {
		t.Error("expected error for cancelled context")
	}
}
