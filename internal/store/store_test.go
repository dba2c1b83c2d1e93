package store

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/abelbrown/weaksignal/internal/event"
	"github.com/abelbrown/weaksignal/internal/model"
	"github.com/abelbrown/weaksignal/internal/stream"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	st, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestOpen(t *testing.T) {
	st := openTest(t)

	for _, table := range []string{"runs", "snapshots", "scenarios"} {
		var name string
		err := st.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Fatalf("%s table not created: %v", table, err)
		}
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	st := openTest(t)

	if _, err := st.Snapshot("r1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := st.SaveSnapshot("r1", []byte(`{"agents": {"synthesis": {"scored_signals": []}}}`)); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	raw, err := st.Snapshot("r1")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if string(raw) != `{"agents":{"synthesis":{"scored_signals":[]}}}` {
		t.Errorf("unexpected snapshot %s", raw)
	}

	// Later saves replace the earlier snapshot.
	if err := st.SaveSnapshot("r1", []byte(`{"agents": {}}`)); err != nil {
		t.Fatal(err)
	}
	if raw, _ := st.Snapshot("r1"); string(raw) != `{"agents":{}}` {
		t.Errorf("expected replaced snapshot, got %s", raw)
	}
}

func TestSaveSnapshotRejectsNonObjects(t *testing.T) {
	st := openTest(t)
	for _, raw := range []string{``, `[1]`, `{broken`} {
		if err := st.SaveSnapshot("r", []byte(raw)); err == nil {
			t.Errorf("SaveSnapshot(%q): expected error", raw)
		}
	}
	if err := st.SaveSnapshot("", []byte(`{}`)); err == nil {
		t.Error("expected error for empty run id")
	}
}

func TestRunsNewestFirst(t *testing.T) {
	st := openTest(t)

	runs := []model.RunSummary{
		{ID: "old", Country: "Chile", Status: model.RunCompleted, CreatedAt: 100},
		{ID: "new", Country: "Kenya", Scope: "national", Horizon: 5, Domains: []string{"economy"},
			SignalCount: 12, Status: model.RunCompleted, CreatedAt: 300,
			Assessment: &model.SummaryVerdict{Headline: "Stress rising", RiskLevel: "amber"}},
		{ID: "mid", Country: "Peru", Status: model.RunFailed, CreatedAt: 200},
	}
	for _, r := range runs {
		if err := st.SaveRun(r); err != nil {
			t.Fatalf("SaveRun: %v", err)
		}
	}

	got, err := st.ListRuns(0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(got) != 3 || got[0].ID != "new" || got[1].ID != "mid" || got[2].ID != "old" {
		t.Fatalf("unexpected order: %+v", got)
	}
	if got[0].Assessment == nil || got[0].Assessment.RiskLevel != "amber" || got[0].Domains[0] != "economy" {
		t.Errorf("fields not preserved: %+v", got[0])
	}
	if got[2].Assessment != nil || got[2].Domains != nil {
		t.Errorf("absent fields should stay absent: %+v", got[2])
	}

	if got, _ := st.ListRuns(1); len(got) != 1 || got[0].ID != "new" {
		t.Errorf("limit not applied: %+v", got)
	}
}

func TestSaveRunUpserts(t *testing.T) {
	st := openTest(t)

	r := model.RunSummary{ID: "r", Country: "Kenya", Status: model.RunRunning, CreatedAt: 10}
	if err := st.SaveRun(r); err != nil {
		t.Fatal(err)
	}
	r.Status = model.RunCompleted
	if err := st.SaveRun(r); err != nil {
		t.Fatal(err)
	}
	got, _ := st.ListRuns(0)
	if len(got) != 1 || got[0].Status != model.RunCompleted {
		t.Errorf("expected one completed run, got %+v", got)
	}
}

func TestScenarios(t *testing.T) {
	st := openTest(t)

	if err := st.SaveScenario("r", "a", []byte(`{"key_insight": "one"}`)); err != nil {
		t.Fatal(err)
	}
	if err := st.SaveScenario("r", "b", []byte(`{"key_insight": "two"}`)); err != nil {
		t.Fatal(err)
	}
	if err := st.SaveScenario("other", "a", []byte(`{}`)); err != nil {
		t.Fatal(err)
	}

	recs, err := st.Scenarios("r")
	if err != nil {
		t.Fatalf("Scenarios: %v", err)
	}
	if len(recs) != 2 || recs[0].Key != "a" || recs[1].Key != "b" {
		t.Fatalf("unexpected records %+v", recs)
	}
	if string(recs[1].Data) != `{"key_insight":"two"}` {
		t.Errorf("unexpected data %s", recs[1].Data)
	}
	if _, err := st.Scenario("r", "zzz"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

type countingTransport struct {
	runs, scenarios int
}

func (c *countingTransport) OpenRun(context.Context, string) (io.ReadCloser, error) {
	c.runs++
	return io.NopCloser(strings.NewReader("")), nil
}

func (c *countingTransport) OpenScenario(context.Context, string, string) (io.ReadCloser, error) {
	c.scenarios++
	return io.NopCloser(strings.NewReader("")), nil
}

func readEvents(t *testing.T, rc io.ReadCloser) []event.Event {
	t.Helper()
	defer rc.Close()
	r := stream.NewReader(rc)
	var out []event.Event
	for {
		line, err := r.Next()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatal(err)
		}
		ev, err := event.Decode(line)
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, ev)
	}
}

func TestCachedTransportServesSnapshot(t *testing.T) {
	st := openTest(t)
	if err := st.SaveSnapshot("done", []byte(`{"agents": {}}`)); err != nil {
		t.Fatal(err)
	}
	next := &countingTransport{}
	tr := CachedTransport{Store: st, Next: next}

	rc, err := tr.OpenRun(context.Background(), "done")
	if err != nil {
		t.Fatalf("OpenRun: %v", err)
	}
	evs := readEvents(t, rc)
	if len(evs) != 1 {
		t.Fatalf("expected a single event, got %d", len(evs))
	}
	rc1, ok := evs[0].(event.RunComplete)
	if !ok || string(rc1.Data) != `{"agents":{}}` {
		t.Errorf("unexpected event %#v", evs[0])
	}
	if next.runs != 0 {
		t.Error("cached run must not reach the producer")
	}

	if _, err := tr.OpenRun(context.Background(), "live"); err != nil {
		t.Fatal(err)
	}
	if next.runs != 1 {
		t.Error("uncached run should fall through")
	}
}

func TestCachedTransportServesScenario(t *testing.T) {
	st := openTest(t)
	if err := st.SaveScenario("r", "k", []byte(`{"scenario": "drought"}`)); err != nil {
		t.Fatal(err)
	}
	next := &countingTransport{}
	tr := CachedTransport{Store: st, Next: next}

	rc, err := tr.OpenScenario(context.Background(), "r", "k")
	if err != nil {
		t.Fatal(err)
	}
	evs := readEvents(t, rc)
	ac, ok := evs[0].(event.AgentComplete)
	if len(evs) != 1 || !ok || ac.Agent != model.AgentWhatIf {
		t.Fatalf("unexpected events %#v", evs)
	}
	if next.scenarios != 0 {
		t.Error("cached scenario must not reach the producer")
	}
}

func TestCachedTransportCacheOnly(t *testing.T) {
	st := openTest(t)
	tr := CachedTransport{Store: st}
	if _, err := tr.OpenRun(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
