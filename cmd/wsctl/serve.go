package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/abelbrown/weaksignal/internal/logging"
	"github.com/abelbrown/weaksignal/internal/stream"
)

// fixtureServer imitates the producer API over a directory of
// recordings. Started runs and scenarios get fresh ids that alias a
// recording.
type fixtureServer struct {
	dir      string
	run      string // recording replayed for started runs
	scenario string // recording key replayed for started scenarios
	delay    time.Duration

	mu      sync.Mutex
	aliases map[string]string // minted id -> recording name
}

func runServe() {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", "127.0.0.1:8000", "Listen address")
	run := fs.String("run", "demo", "Recording replayed for POST /api/analyze")
	scenario := fs.String("scenario", "whatif", "Recording key replayed for what-if requests")
	delay := fs.Duration("delay", 150*time.Millisecond, "Pause between events")
	verbose := fs.Bool("v", false, "Verbose logging")
	fs.Parse(os.Args[1:])

	if fs.NArg() != 1 {
		fatalf("usage: wsctl serve [flags] <dir>")
	}
	initLogging(*verbose)

	srv := &fixtureServer{
		dir:      fs.Arg(0),
		run:      *run,
		scenario: *scenario,
		delay:    *delay,
		aliases:  make(map[string]string),
	}
	fmt.Fprintf(os.Stderr, "serving %s on http://%s\n", srv.dir, *addr)
	if err := http.ListenAndServe(*addr, srv.routes()); err != nil {
		fatalf("%v", err)
	}
}

func (s *fixtureServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/analyze", s.startRun)
	mux.HandleFunc("GET /api/analyze/{id}/stream", s.streamRun)
	mux.HandleFunc("POST /api/analyze/{id}/what-if", s.startScenario)
	mux.HandleFunc("GET /api/analyze/{id}/what-if/{key}/stream", s.streamScenario)
	mux.HandleFunc("GET /api/runs", s.listRuns)
	return mux
}

// mint returns a short fresh id aliasing name.
func (s *fixtureServer) mint(name string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	s.mu.Lock()
	s.aliases[id] = name
	s.mu.Unlock()
	return id
}

func (s *fixtureServer) resolve(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if name, ok := s.aliases[id]; ok {
		return name
	}
	return id
}

func (s *fixtureServer) startRun(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Country string `json:"country"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&body); err != nil || body.Country == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "country is required"})
		return
	}
	id := s.mint(s.run)
	logging.Info("started run", "id", id, "country", body.Country, "recording", s.run)
	writeJSON(w, http.StatusOK, map[string]string{"analysis_id": id})
}

func (s *fixtureServer) startScenario(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Scenario string `json:"scenario"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&body); err != nil || body.Scenario == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "scenario is required"})
		return
	}
	run := s.resolve(r.PathValue("id"))
	if _, err := os.Stat(filepath.Join(s.dir, run+".ndjson")); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Analysis not found"})
		return
	}
	key := s.mint(s.scenario)
	writeJSON(w, http.StatusOK, map[string]string{"scenario_id": key, "stream_key": key})
}

func (s *fixtureServer) streamRun(w http.ResponseWriter, r *http.Request) {
	run := s.resolve(r.PathValue("id"))
	body, err := stream.FileTransport{Dir: s.dir}.OpenRun(r.Context(), run)
	s.replay(w, r, body, err)
}

func (s *fixtureServer) streamScenario(w http.ResponseWriter, r *http.Request) {
	run := s.resolve(r.PathValue("id"))
	key := s.resolve(r.PathValue("key"))
	body, err := stream.FileTransport{Dir: s.dir}.OpenScenario(r.Context(), run, key)
	s.replay(w, r, body, err)
}

// replay writes a recording as server-sent events, pausing between
// events.
func (s *fixtureServer) replay(w http.ResponseWriter, r *http.Request, body io.ReadCloser, err error) {
	if err != nil {
		logging.Warn("recording unavailable", "path", r.URL.Path, "err", err)
		http.Error(w, "stream not found", http.StatusNotFound)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	flusher, _ := w.(http.Flusher)

	rd := stream.NewReader(body)
	for {
		payload, err := rd.Next()
		if errors.Is(err, stream.ErrLineTooLong) {
			logging.Warn("skipping oversized recording line", "path", r.URL.Path)
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logging.Warn("recording read failed", "path", r.URL.Path, "err", err)
			}
			return
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
		select {
		case <-r.Context().Done():
			return
		case <-time.After(s.delay):
		}
	}
}

type runRow struct {
	ID        string  `json:"id"`
	Status    string  `json:"status"`
	CreatedAt float64 `json:"created_at"`
}

func (s *fixtureServer) listRuns(w http.ResponseWriter, _ *http.Request) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*.ndjson"))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	runs := []runRow{}
	for _, m := range matches {
		base := strings.TrimSuffix(filepath.Base(m), ".ndjson")
		if strings.Contains(base, ".") {
			continue // scenario recording
		}
		row := runRow{ID: base, Status: "completed"}
		if info, err := os.Stat(m); err == nil {
			row.CreatedAt = float64(info.ModTime().UnixNano()) / float64(time.Second)
		}
		runs = append(runs, row)
	}
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].CreatedAt > runs[j].CreatedAt })
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
