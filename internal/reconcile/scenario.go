package reconcile

import (
	"context"
	"errors"
	"io"

	"github.com/tidwall/gjson"

	"github.com/abelbrown/weaksignal/internal/event"
	"github.com/abelbrown/weaksignal/internal/model"
	"github.com/abelbrown/weaksignal/internal/otel"
	"github.com/abelbrown/weaksignal/internal/stream"
)

// ScenarioObserver receives a copy of the scenario state after every
// change. The rules for Observer apply.
type ScenarioObserver func(ScenarioState)

// ScenarioConfig tunes a ScenarioReconciler. The zero value is usable.
type ScenarioConfig struct {
	Observers []ScenarioObserver
	Journal   *otel.Logger
}

var errNoScenarioKey = errors.New("reconcile: empty scenario key")

// ScenarioReconciler owns the state of one what-if scenario. It shares
// nothing with the run's Reconciler or with other scenarios.
type ScenarioReconciler struct {
	runID string
	key   string
	core  *core[ScenarioState]
}

// NewScenario returns a scenario reconciler with no transport.
func NewScenario(runID, key string, cfg ScenarioConfig) *ScenarioReconciler {
	log := cfg.Journal.Run("reconcile", runID).Scenario(key)
	m := &scenarioMachine{
		runID: runID,
		key:   key,
		book:  newAgentBook(model.ScenarioRoster),
		phase: PhaseRunning,
	}
	observers := make([]func(ScenarioState), len(cfg.Observers))
	for i, o := range cfg.Observers {
		observers[i] = o
	}
	return &ScenarioReconciler{
		runID: runID,
		key:   key,
		core:  newCore[ScenarioState](m, observers, log, "scenario "+key),
	}
}

// OpenScenario subscribes to the scenario stream identified by
// (runID, key) and consumes it in the background.
func OpenScenario(ctx context.Context, t stream.Transport, runID, key string, cfg ScenarioConfig) (*ScenarioReconciler, error) {
	if runID == "" {
		return nil, errNoRunID
	}
	if key == "" {
		return nil, errNoScenarioKey
	}
	if t == nil {
		return nil, errNoTransport
	}
	r := NewScenario(runID, key, cfg)
	r.core.start(ctx, func(ctx context.Context) (io.ReadCloser, error) {
		return t.OpenScenario(ctx, runID, key)
	})
	return r, nil
}

// RunID returns the run the scenario belongs to.
func (r *ScenarioReconciler) RunID() string { return r.runID }

// Key returns the scenario key.
func (r *ScenarioReconciler) Key() string { return r.key }

// State returns a copy of the current state.
func (r *ScenarioReconciler) State() ScenarioState { return r.core.state() }

// Apply feeds one event. It is a no-op once the scenario is done.
func (r *ScenarioReconciler) Apply(ev event.Event) { r.core.apply(ev) }

// Close stops consuming and releases the transport. Idempotent.
func (r *ScenarioReconciler) Close() { r.core.close() }

// Done is closed once the scenario stops consuming.
func (r *ScenarioReconciler) Done() <-chan struct{} { return r.core.done }

type scenarioMachine struct {
	runID  string
	key    string
	book   *agentBook
	result *model.WhatIfResult
	phase  Phase
	err    string
}

// apply follows the run rules with one difference: the synthesizer's
// agent_complete is itself terminal, since scenario streams end after it
// without a run_complete.
func (m *scenarioMachine) apply(ev event.Event, log otel.Scope) (bool, bool) {
	switch e := ev.(type) {
	case event.AgentStart:
		return m.book.start(e.Agent, e.Status), false

	case event.AgentChunk:
		return m.book.chunk(e.Agent, e.Text), false

	case event.AgentComplete:
		if !m.book.conclude(e.Agent, e.Data) {
			return false, false
		}
		if e.Agent != model.AgentWhatIf {
			return true, false
		}
		m.setResult(e.Data, log)
		m.phase = PhaseComplete
		log.Info(otel.KindScenarioComplete, m.result.Headline())
		return true, true

	case event.RunComplete:
		data := scenarioPayload(e.Data)
		if data != nil {
			m.book.conclude(model.AgentWhatIf, data)
			m.setResult(data, log)
		}
		m.phase = PhaseComplete
		log.Info(otel.KindScenarioComplete, m.result.Headline())
		return true, true

	case event.Error:
		msg := e.Message
		if msg == "" {
			msg = MsgUnknownError
		}
		m.phase = PhaseErrored
		m.err = msg
		log.Emit(otel.Event{Level: otel.LevelError, Kind: otel.KindScenarioError, Err: msg})
		return true, true
	}
	return false, false
}

func (m *scenarioMachine) setResult(data []byte, log otel.Scope) {
	res, issues := model.ParseWhatIf(data)
	logIssues(log, "what-if", issues)
	if res != nil {
		m.result = res
	}
}

// scenarioPayload finds the what-if result in a run_complete payload:
// either under agents.what_if or the payload itself.
func scenarioPayload(raw []byte) []byte {
	root := gjson.ParseBytes(raw)
	if wf := root.Get("agents." + model.AgentWhatIf); wf.Exists() {
		return []byte(wf.Raw)
	}
	if !root.IsObject() {
		return nil
	}
	return raw
}

func (m *scenarioMachine) fail(msg string) bool {
	if m.phase != PhaseRunning {
		return false
	}
	m.phase = PhaseErrored
	m.err = msg
	return true
}

func (m *scenarioMachine) snapshot() ScenarioState {
	return ScenarioState{
		RunID:  m.runID,
		Key:    m.key,
		Agents: m.book.snapshot(),
		Result: cloneWhatIf(m.result),
		Phase:  m.phase,
		Err:    m.err,
	}
}
