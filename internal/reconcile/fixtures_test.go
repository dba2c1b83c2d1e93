package reconcile

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/abelbrown/weaksignal/internal/event"
	"github.com/abelbrown/weaksignal/internal/model"
)

const synthesisJSON = `{
	"scored_signals": [
		{"signal_id": "s1", "name": "Fuel queues", "domain": "economy",
		 "scores": {"impact": 80, "overall": 82}, "risk_band": "red_action", "constellation_id": "c1"},
		{"signal_id": "s2", "name": "Teacher strikes", "domain": "governance",
		 "scores": {"impact": 40, "overall": 45}}
	],
	"constellations": [
		{"id": "c1", "name": "Fiscal squeeze", "signal_ids": ["s1", "s2"], "category": "correlated_cluster"}
	],
	"overall_assessment": {"headline": "Stress rising", "risk_level": "amber", "confidence": "medium"}
}`

const snapshotJSON = `{
	"config": {"country": "Kenya", "scope": "national", "horizon": 5, "domains": ["economy", "governance"]},
	"country_context": {"population": 55},
	"agents": {
		"signal_hunter": {"signals": ["s1", "s2"]},
		"corroboration": {"corroborated": ["s1"]},
		"devils_advocate": {"debunked": []},
		"synthesis": ` + synthesisJSON + `
	}
}`

// agentRun is the start/chunk/complete sequence of one agent.
func agentRun(id string, status model.AgentStatus, result string, chunks ...string) []event.Event {
	evs := []event.Event{event.AgentStart{Agent: id, Status: status}}
	for _, c := range chunks {
		evs = append(evs, event.AgentChunk{Agent: id, Text: c})
	}
	return append(evs, event.AgentComplete{Agent: id, Data: []byte(result)})
}

func perAgent() [][]event.Event {
	return [][]event.Event{
		agentRun(model.AgentContext, model.StatusSearching, `{"population": 55}`, "Kenya ", "context"),
		agentRun(model.AgentSignalHunter, model.StatusHunting, `{"signals": ["s1", "s2"]}`, "hunting..."),
		agentRun(model.AgentCorroboration, model.StatusCrossValidating, `{"corroborated": ["s1"]}`, "cross", "-checking"),
		agentRun(model.AgentDevilsAdvocate, model.StatusChallenging, `{"debunked": []}`, "push back"),
		agentRun(model.AgentSynthesis, model.StatusSynthesizing, synthesisJSON, "weighing"),
	}
}

// fullRun is a complete run in pipeline order.
func fullRun() []event.Event {
	var evs []event.Event
	for _, seq := range perAgent() {
		evs = append(evs, seq...)
	}
	return append(evs, event.RunComplete{Data: []byte(snapshotJSON)})
}

func withoutContent(s RunState) RunState {
	agents := make([]model.Agent, len(s.Agents))
	for i, a := range s.Agents {
		a.Content = ""
		agents[i] = a
	}
	s.Agents = agents
	return s
}

func encodeLines(t *testing.T, evs []event.Event) string {
	t.Helper()
	var b strings.Builder
	for _, ev := range evs {
		line, err := event.Encode(ev)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		b.Write(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// stringTransport serves fixed stream bodies.
type stringTransport struct {
	runs      map[string]string
	scenarios map[string]string
	err       error
}

func (s stringTransport) OpenRun(_ context.Context, runID string) (io.ReadCloser, error) {
	if s.err != nil {
		return nil, s.err
	}
	body, ok := s.runs[runID]
	if !ok {
		return nil, errors.New("no such run")
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (s stringTransport) OpenScenario(_ context.Context, runID, key string) (io.ReadCloser, error) {
	if s.err != nil {
		return nil, s.err
	}
	body, ok := s.scenarios[runID+"/"+key]
	if !ok {
		return nil, errors.New("no such scenario")
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

// pipeTransport hands out the read side of a pipe the test writes to.
type pipeTransport struct {
	r *io.PipeReader
}

func (p pipeTransport) OpenRun(context.Context, string) (io.ReadCloser, error) { return p.r, nil }

func (p pipeTransport) OpenScenario(context.Context, string, string) (io.ReadCloser, error) {
	return p.r, nil
}

// recorder collects observer callbacks.
type recorder struct {
	mu     sync.Mutex
	states []RunState
	ch     chan RunState
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan RunState, 256)}
}

func (r *recorder) observe(s RunState) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
	r.ch <- s
}

func (r *recorder) all() []RunState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RunState(nil), r.states...)
}

func (r *recorder) next(t *testing.T) RunState {
	t.Helper()
	select {
	case s := <-r.ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for state change")
		return RunState{}
	}
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for stream to finish")
	}
}
