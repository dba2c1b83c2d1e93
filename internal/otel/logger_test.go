package otel

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for i, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("line %d: invalid JSON: %v", i, err)
		}
		out = append(out, m)
	}
	return out
}

func TestEmitWritesValidJSONL(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf)

	l.Emit(Event{Kind: KindStreamOpen, Level: LevelInfo, Comp: "reconcile", RunID: "run-1"})
	l.Close()

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	ev := lines[0]
	if ev["kind"] != "stream.open" || ev["level"] != "info" || ev["comp"] != "reconcile" || ev["run"] != "run-1" {
		t.Errorf("unexpected event %v", ev)
	}
}

func TestEmitSetsTimeAndSessionID(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf)

	before := time.Now()
	l.Emit(Event{Kind: KindStartup})
	l.Close()
	after := time.Now()

	var ev Event
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.Time.Before(before) || ev.Time.After(after) {
		t.Errorf("time %v not in [%v, %v]", ev.Time, before, after)
	}
	if len(ev.SessionID) != 16 || ev.SessionID != l.SessionID() {
		t.Errorf("unexpected session_id %q", ev.SessionID)
	}
}

func TestDurToMs(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf)

	l.Emit(Event{Kind: KindRunComplete, Dur: 1500 * time.Millisecond})
	l.Close()

	lines := decodeLines(t, &buf)
	if durMs, ok := lines[0]["dur_ms"].(float64); !ok || durMs != 1500 {
		t.Errorf("expected dur_ms=1500, got %v", lines[0]["dur_ms"])
	}
}

func TestOmitempty(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf)

	l.Emit(Event{Kind: KindStartup})
	l.Close()

	line := strings.TrimSpace(buf.String())
	for _, field := range []string{"dur_ms", "count", "run", "scenario", "agent", "type", "err", "msg", "extra", "bytes"} {
		if strings.Contains(line, `"`+field+`"`) {
			t.Errorf("expected field %q to be omitted, found in: %s", field, line)
		}
	}
}

func TestConcurrentEmit(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Emit(Event{Kind: KindStreamEvent, Comp: "test"})
		}()
	}
	wg.Wait()
	l.Close()

	if lines := decodeLines(t, &buf); len(lines) != 100 {
		t.Errorf("expected 100 lines, got %d", len(lines))
	}
}

func TestCloseIdempotentAndDropsAfter(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf)

	l.Emit(Event{Kind: KindStartup})
	l.Close()
	l.Close()
	l.Emit(Event{Kind: KindShutdown})

	if lines := decodeLines(t, &buf); len(lines) != 1 {
		t.Errorf("expected 1 line, got %d", len(lines))
	}
	if l.Dropped() != 1 {
		t.Errorf("expected 1 dropped event after close, got %d", l.Dropped())
	}
}

func TestDropCounter(t *testing.T) {
	bw := &blockingWriter{
		started: make(chan struct{}),
		block:   make(chan struct{}),
	}
	l := NewLogger(bw)

	l.Emit(Event{Kind: KindStreamEvent})
	<-bw.started

	for i := 0; i < writerChanSize+10; i++ {
		l.Emit(Event{Kind: KindStreamEvent})
	}
	if l.Dropped() == 0 {
		t.Error("expected drops when channel is full, got 0")
	}

	close(bw.block)
	l.Close()
}

type blockingWriter struct {
	started chan struct{}
	block   chan struct{}
	once    sync.Once
}

func (w *blockingWriter) Write(p []byte) (int, error) {
	w.once.Do(func() {
		close(w.started)
		<-w.block
	})
	return len(p), nil
}

func TestNilLogger(t *testing.T) {
	var l *Logger
	l.Emit(Event{Kind: KindStartup})
	l.Info(KindStartup, "main", "x")
	l.Run("reconcile", "r").Warn(KindStreamDrop, "bad line")
	l.SetRingBuffer(NewRingBuffer(1))
	l.Close()
	if l.Dropped() != 0 {
		t.Error("nil logger should report no drops")
	}
}

func TestScope(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf)

	run := l.Run("reconcile", "run-9")
	run.Info(KindStreamOpen, "connected")
	run.Scenario("wf-1").Warn(KindStreamDrop, "bad line")
	run.Error(KindRunError, errors.New("boom"))
	run.Emit(Event{Kind: KindStreamEvent, Comp: "override", Agent: "synthesis"})
	l.Close()

	lines := decodeLines(t, &buf)
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d", len(lines))
	}
	for i, ev := range lines {
		if ev["run"] != "run-9" {
			t.Errorf("line %d: run=%v", i, ev["run"])
		}
	}
	if lines[1]["scenario"] != "wf-1" || lines[1]["level"] != "warn" {
		t.Errorf("scenario scope not applied: %v", lines[1])
	}
	if _, ok := lines[0]["scenario"]; ok {
		t.Error("Scenario must not mutate the parent scope")
	}
	if lines[2]["err"] != "boom" || lines[2]["level"] != "error" {
		t.Errorf("unexpected error line %v", lines[2])
	}
	if lines[3]["comp"] != "override" || lines[3]["agent"] != "synthesis" {
		t.Errorf("explicit fields should win: %v", lines[3])
	}
}

func TestConvenienceHelpers(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf)

	l.Info(KindStartup, "main", "starting")
	l.Warn(KindStreamDrop, "reconcile", "bad line")
	l.Error(KindError, "coord", errors.New("disk full"))
	l.Close()

	lines := decodeLines(t, &buf)
	want := [][3]string{
		{"info", "sys.startup", "main"},
		{"warn", "stream.drop", "reconcile"},
		{"error", "sys.error", "coord"},
	}
	if len(lines) != len(want) {
		t.Fatalf("expected %d lines, got %d", len(want), len(lines))
	}
	for i, w := range want {
		if lines[i]["level"] != w[0] || lines[i]["kind"] != w[1] || lines[i]["comp"] != w[2] {
			t.Errorf("line %d: got %v, want %v", i, lines[i], w)
		}
	}
}
