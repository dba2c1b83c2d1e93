package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/abelbrown/weaksignal/internal/event"
	"github.com/abelbrown/weaksignal/internal/graph"
	"github.com/abelbrown/weaksignal/internal/logging"
	"github.com/abelbrown/weaksignal/internal/otel"
	"github.com/abelbrown/weaksignal/internal/reconcile"
	"github.com/abelbrown/weaksignal/internal/stream"
)

// replayStats counts what a recording contained.
type replayStats struct {
	Lines     int `json:"lines"`
	Events    int `json:"events"`
	Malformed int `json:"malformed"`
	Unknown   int `json:"unknown"`
}

// readEvents decodes every event in a recording, skipping lines that do
// not decode the way a live stream would.
func readEvents(path string) ([]event.Event, replayStats, error) {
	var stats replayStats
	f, err := os.Open(path)
	if err != nil {
		return nil, stats, err
	}
	defer f.Close()

	var evs []event.Event
	r := stream.NewReader(f)
	for {
		line, err := r.Next()
		if errors.Is(err, io.EOF) {
			return evs, stats, nil
		}
		if errors.Is(err, stream.ErrLineTooLong) {
			stats.Lines++
			stats.Malformed++
			logging.Warn("skipping oversized line", "line", stats.Lines)
			continue
		}
		if err != nil {
			return evs, stats, fmt.Errorf("read %s: %w", path, err)
		}
		stats.Lines++
		ev, err := event.Decode(line)
		if err != nil {
			stats.Malformed++
			logging.Warn("skipping malformed line", "line", stats.Lines, "err", err)
			continue
		}
		if _, ok := ev.(event.Unknown); ok {
			stats.Unknown++
			continue
		}
		stats.Events++
		evs = append(evs, ev)
	}
}

// runIDFromPath names a run after its recording: runs/a1b2.ndjson -> a1b2.
func runIDFromPath(path string) string {
	base := filepath.Base(path)
	if i := strings.IndexByte(base, '.'); i > 0 {
		return base[:i]
	}
	return base
}

func runReplay() {
	fs := flag.NewFlagSet("replay", flag.ExitOnError)
	scenario := fs.Bool("scenario", false, "Treat the recording as a what-if scenario stream")
	snapshot := fs.Bool("snapshot", false, "Print the state in run_complete snapshot form")
	trace := fs.Bool("trace", false, "Print every stream event to stderr as a journal line")
	verbose := fs.Bool("v", false, "Verbose logging")
	fs.Parse(os.Args[1:])

	if fs.NArg() != 1 {
		fatalf("usage: wsctl replay [flags] <file>")
	}
	initLogging(*verbose)
	path := fs.Arg(0)

	var journal *otel.Logger
	if *trace {
		otel.SetTrace(true)
		journal = otel.NewLogger(os.Stderr)
		defer journal.Close()
	}

	evs, stats, err := readEvents(path)
	if err != nil {
		fatalf("%v", err)
	}
	logging.Info("replayed recording", "lines", stats.Lines, "events", stats.Events,
		"malformed", stats.Malformed, "unknown", stats.Unknown)

	runID := runIDFromPath(path)
	var out any
	if *scenario {
		key := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), runID+"."), filepath.Ext(path))
		r := reconcile.NewScenario(runID, key, reconcile.ScenarioConfig{Journal: journal})
		for _, ev := range evs {
			r.Apply(ev)
		}
		out = r.State()
	} else {
		st := reconcile.Replay(runID, evs, reconcile.Config{Journal: journal})
		if *snapshot {
			raw, err := st.SnapshotJSON()
			if err != nil {
				fatalf("%v", err)
			}
			out = raw
		} else {
			out = st
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fatalf("%v", err)
	}
}

func runGraph() {
	fs := flag.NewFlagSet("graph", flag.ExitOnError)
	asJSON := fs.Bool("json", false, "Print the graph as JSON")
	fs.Parse(os.Args[1:])

	if fs.NArg() != 1 {
		fatalf("usage: wsctl graph [flags] <file>")
	}
	initLogging(false)
	path := fs.Arg(0)

	evs, _, err := readEvents(path)
	if err != nil {
		fatalf("%v", err)
	}
	st := reconcile.Replay(runIDFromPath(path), evs, reconcile.Config{})
	g := graph.Build(st.Signals, st.Constellations)

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(g); err != nil {
			fatalf("%v", err)
		}
		return
	}

	names := make(map[string]string, len(g.Nodes))
	fmt.Printf("%d nodes, %d edges (run %s, %s)\n\n", len(g.Nodes), len(g.Edges), st.RunID, st.Phase)
	fmt.Printf("%-10s %-36s %-14s %7s %5s  %s\n", "ID", "NAME", "BAND", "OVERALL", "SIZE", "CONSTELLATION")
	for _, n := range g.Nodes {
		names[n.ID] = n.Name
		fmt.Printf("%-10s %s %-14s %7.1f %5.1f  %s\n",
			runewidth.Truncate(n.ID, 10, "…"),
			runewidth.FillRight(runewidth.Truncate(n.Name, 36, "…"), 36),
			n.Band, n.Overall, n.Size, n.ConstellationID)
	}
	if len(g.Edges) == 0 {
		return
	}
	fmt.Println()
	for _, e := range g.Edges {
		fmt.Printf("%s %s %s  [%s, w=%d]\n",
			runewidth.Truncate(names[e.Source], 30, "…"),
			strings.Repeat("=", e.Weight),
			runewidth.Truncate(names[e.Target], 30, "…"),
			e.Category, e.Weight)
	}
}
