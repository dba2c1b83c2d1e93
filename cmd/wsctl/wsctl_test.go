package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/abelbrown/weaksignal/internal/event"
	"github.com/abelbrown/weaksignal/internal/model"
	"github.com/abelbrown/weaksignal/internal/reconcile"
)

func writeRecording(t *testing.T, dir, name string, evs ...event.Event) string {
	t.Helper()
	var b bytes.Buffer
	for _, ev := range evs {
		line, err := event.Encode(ev)
		if err != nil {
			t.Fatal(err)
		}
		b.Write(line)
		b.WriteByte('\n')
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, b.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadEventsCountsSkippedLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "r1.ndjson")
	body := strings.Join([]string{
		`{"type":"agent_start","agent":"context"}`,
		`not json`,
		`{"type":"heartbeat"}`,
		`data: {"type":"error","message":"boom"}`,
		``,
	}, "\n")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	evs, stats, err := readEvents(path)
	if err != nil {
		t.Fatalf("readEvents: %v", err)
	}
	if len(evs) != 2 || stats.Events != 2 || stats.Malformed != 1 || stats.Unknown != 1 {
		t.Errorf("unexpected result %d events, stats %+v", len(evs), stats)
	}

	st := reconcile.Replay(runIDFromPath(path), evs, reconcile.Config{})
	if st.RunID != "r1" || st.Phase != reconcile.PhaseErrored || st.Err != "boom" {
		t.Errorf("unexpected replay %s %s %q", st.RunID, st.Phase, st.Err)
	}
}

func TestRunIDFromPath(t *testing.T) {
	tests := map[string]string{
		"runs/a1b2c3d4.ndjson":    "a1b2c3d4",
		"a1b2c3d4.drought.ndjson": "a1b2c3d4",
		"/tmp/plain":              "plain",
	}
	for in, want := range tests {
		if got := runIDFromPath(in); got != want {
			t.Errorf("runIDFromPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFixtureServer(t *testing.T) {
	dir := t.TempDir()
	writeRecording(t, dir, "demo.ndjson",
		event.AgentStart{Agent: model.AgentContext},
		event.RunComplete{Data: []byte(`{"agents":{}}`)},
	)
	writeRecording(t, dir, "demo.whatif.ndjson",
		event.AgentComplete{Agent: model.AgentWhatIf, Data: []byte(`{"scenario":"x"}`)},
	)
	srv := &fixtureServer{dir: dir, run: "demo", scenario: "whatif", aliases: map[string]string{}}
	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/analyze", "application/json", strings.NewReader(`{"country":"Kenya"}`))
	if err != nil {
		t.Fatal(err)
	}
	var started struct {
		ID string `json:"analysis_id"`
	}
	json.NewDecoder(resp.Body).Decode(&started)
	resp.Body.Close()
	if len(started.ID) != 8 {
		t.Fatalf("expected an 8 character id, got %q", started.ID)
	}

	resp, err = http.Get(ts.URL + "/api/analyze/" + started.ID + "/stream")
	if err != nil {
		t.Fatal(err)
	}
	var body bytes.Buffer
	body.ReadFrom(resp.Body)
	resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("unexpected content type %q", ct)
	}
	if got := strings.Count(body.String(), "data: "); got != 2 {
		t.Errorf("expected 2 SSE events, got %d:\n%s", got, body.String())
	}

	resp, err = http.Post(ts.URL+"/api/analyze/"+started.ID+"/what-if", "application/json", strings.NewReader(`{"scenario":"Drought"}`))
	if err != nil {
		t.Fatal(err)
	}
	var ticket struct {
		Key string `json:"stream_key"`
	}
	json.NewDecoder(resp.Body).Decode(&ticket)
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/api/analyze/" + started.ID + "/what-if/" + ticket.Key + "/stream")
	if err != nil {
		t.Fatal(err)
	}
	body.Reset()
	body.ReadFrom(resp.Body)
	resp.Body.Close()
	if !strings.Contains(body.String(), `"agent":"what_if"`) {
		t.Errorf("expected the what-if recording, got:\n%s", body.String())
	}

	resp, err = http.Get(ts.URL + "/api/runs")
	if err != nil {
		t.Fatal(err)
	}
	var listing struct {
		Runs []runRow `json:"runs"`
	}
	json.NewDecoder(resp.Body).Decode(&listing)
	resp.Body.Close()
	if len(listing.Runs) != 1 || listing.Runs[0].ID != "demo" {
		t.Errorf("expected only the demo run, got %+v", listing.Runs)
	}
}

func TestFixtureServerMissing(t *testing.T) {
	srv := &fixtureServer{dir: t.TempDir(), aliases: map[string]string{}}
	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/analyze/nope/stream")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}

	resp, err = http.Post(ts.URL+"/api/analyze", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 without a country, got %d", resp.StatusCode)
	}
}
