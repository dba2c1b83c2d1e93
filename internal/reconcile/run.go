package reconcile

import (
	"context"
	"errors"
	"io"

	"github.com/abelbrown/weaksignal/internal/event"
	"github.com/abelbrown/weaksignal/internal/model"
	"github.com/abelbrown/weaksignal/internal/otel"
	"github.com/abelbrown/weaksignal/internal/ranking"
	"github.com/abelbrown/weaksignal/internal/stream"
)

// Observer receives a copy of the run state after every change, in event
// order, on the goroutine that applied the event. Observers must not call
// Apply.
type Observer func(RunState)

// Config tunes a Reconciler. The zero value is usable.
type Config struct {
	// Roster lists the agents known up front. Default model.DefaultRoster.
	Roster []model.AgentSpec
	// SynthesisAgent is the agent whose result carries signals,
	// constellations and the assessment. Default model.AgentSynthesis.
	SynthesisAgent string
	Observers      []Observer
	// Journal receives stream and run events. May be nil.
	Journal *otel.Logger
}

func (c Config) withDefaults() Config {
	if len(c.Roster) == 0 {
		c.Roster = model.DefaultRoster
	}
	if c.SynthesisAgent == "" {
		c.SynthesisAgent = model.AgentSynthesis
	}
	return c
}

var (
	errNoRunID     = errors.New("reconcile: empty run id")
	errNoTransport = errors.New("reconcile: nil transport")
)

// Reconciler owns the state of one run. Safe for concurrent use, but
// events are applied one at a time.
type Reconciler struct {
	runID string
	core  *core[RunState]
}

// New returns a reconciler with no transport. Events are fed with Apply.
func New(runID string, cfg Config) *Reconciler {
	cfg = cfg.withDefaults()
	log := cfg.Journal.Run("reconcile", runID)
	m := &runMachine{
		runID:     runID,
		synthesis: cfg.SynthesisAgent,
		book:      newAgentBook(cfg.Roster),
		phase:     PhaseRunning,
	}
	observers := make([]func(RunState), len(cfg.Observers))
	for i, o := range cfg.Observers {
		observers[i] = o
	}
	return &Reconciler{
		runID: runID,
		core:  newCore[RunState](m, observers, log, "run "+runID),
	}
}

// Open subscribes to runID on t and consumes the stream in the
// background. Transport failures surface as an errored phase, not as an
// error from Open.
func Open(ctx context.Context, t stream.Transport, runID string, cfg Config) (*Reconciler, error) {
	if runID == "" {
		return nil, errNoRunID
	}
	if t == nil {
		return nil, errNoTransport
	}
	r := New(runID, cfg)
	r.core.start(ctx, func(ctx context.Context) (io.ReadCloser, error) {
		return t.OpenRun(ctx, runID)
	})
	return r, nil
}

// RunID returns the run this reconciler tracks.
func (r *Reconciler) RunID() string { return r.runID }

// State returns a copy of the current state.
func (r *Reconciler) State() RunState { return r.core.state() }

// Apply feeds one event. It is a no-op once the run is complete, errored
// or closed.
func (r *Reconciler) Apply(ev event.Event) { r.core.apply(ev) }

// Close stops consuming and releases the transport. Idempotent. No state
// change happens after Close returns.
func (r *Reconciler) Close() { r.core.close() }

// Done is closed once the reconciler stops consuming: after a terminal
// event, a transport failure or Close.
func (r *Reconciler) Done() <-chan struct{} { return r.core.done }

// Replay feeds events to a fresh reconciler and returns its final state.
func Replay(runID string, events []event.Event, cfg Config) RunState {
	r := New(runID, cfg)
	defer r.Close()
	for _, ev := range events {
		r.Apply(ev)
	}
	return r.State()
}

type runMachine struct {
	runID     string
	synthesis string
	book      *agentBook

	signals        []model.Signal
	constellations []model.Constellation
	assessment     *model.Assessment
	config         *model.RunConfig

	phase Phase
	err   string
}

func (m *runMachine) apply(ev event.Event, log otel.Scope) (bool, bool) {
	switch e := ev.(type) {
	case event.AgentStart:
		return m.book.start(e.Agent, e.Status), false

	case event.AgentChunk:
		return m.book.chunk(e.Agent, e.Text), false

	case event.AgentComplete:
		if !m.book.conclude(e.Agent, e.Data) {
			return false, false
		}
		if e.Agent == m.synthesis {
			syn, issues := model.ParseSynthesis(e.Data)
			logIssues(log, "synthesis", issues)
			m.mergeSynthesis(syn)
		}
		return true, false

	case event.RunComplete:
		snap, issues := model.ParseSnapshot(e.Data)
		logIssues(log, "snapshot", issues)
		for _, id := range m.book.order {
			if res, ok := snap.Agents[id]; ok {
				m.book.conclude(id, res)
			}
		}
		if snap.Config != nil {
			m.config = snap.Config
		}
		m.mergeSynthesis(snap.Synthesis)
		m.phase = PhaseComplete
		log.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindRunComplete, Count: len(m.signals)})
		return true, true

	case event.Error:
		msg := e.Message
		if msg == "" {
			msg = MsgUnknownError
		}
		m.phase = PhaseErrored
		m.err = msg
		log.Emit(otel.Event{Level: otel.LevelError, Kind: otel.KindRunError, Err: msg})
		return true, true
	}
	return false, false
}

// mergeSynthesis replaces each field the synthesis carried. Signals
// without a recognized band get one from their overall score.
func (m *runMachine) mergeSynthesis(syn model.Synthesis) {
	if syn.Signals != nil {
		m.signals = ranking.BackfillBands(cloneSignals(syn.Signals))
	}
	if syn.Constellations != nil {
		m.constellations = cloneConstellations(syn.Constellations)
	}
	if syn.Assessment != nil {
		a := cloneAssessment(*syn.Assessment)
		m.assessment = &a
	}
}

func (m *runMachine) fail(msg string) bool {
	if m.phase != PhaseRunning {
		return false
	}
	m.phase = PhaseErrored
	m.err = msg
	return true
}

func (m *runMachine) snapshot() RunState {
	s := RunState{
		RunID:          m.runID,
		Agents:         m.book.snapshot(),
		Signals:        cloneSignals(m.signals),
		Constellations: cloneConstellations(m.constellations),
		Phase:          m.phase,
		Err:            m.err,
	}
	if s.Signals == nil {
		s.Signals = []model.Signal{}
	}
	if s.Constellations == nil {
		s.Constellations = []model.Constellation{}
	}
	if m.assessment != nil {
		a := cloneAssessment(*m.assessment)
		s.Assessment = &a
	}
	if m.config != nil {
		c := *m.config
		c.Domains = cloneStrings(c.Domains)
		c.CustomIndicators = cloneStrings(c.CustomIndicators)
		s.Config = &c
	}
	return s
}
