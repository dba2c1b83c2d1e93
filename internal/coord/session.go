// Package coord connects reconcilers to the dashboard and the snapshot
// cache for one run at a time.
package coord

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"github.com/abelbrown/weaksignal/internal/api"
	"github.com/abelbrown/weaksignal/internal/logging"
	"github.com/abelbrown/weaksignal/internal/model"
	"github.com/abelbrown/weaksignal/internal/otel"
	"github.com/abelbrown/weaksignal/internal/reconcile"
	"github.com/abelbrown/weaksignal/internal/store"
	"github.com/abelbrown/weaksignal/internal/stream"
	"github.com/abelbrown/weaksignal/internal/ui"
)

// defaultScenarioLimit caps concurrent scenario starts.
const defaultScenarioLimit = 3

// startTimeout bounds one scenario start request.
const startTimeout = 30 * time.Second

// Sender delivers messages to the dashboard. *tea.Program implements it.
type Sender interface {
	Send(msg tea.Msg)
}

// ScenarioStarter asks the producer for a new what-if stream.
// *api.Client implements it.
type ScenarioStarter interface {
	StartScenario(ctx context.Context, runID, text string) (api.ScenarioTicket, error)
}

// Options configure a Session.
type Options struct {
	Transport     stream.Transport
	Store         *store.Store    // optional: nil disables persistence
	Starter       ScenarioStarter // optional: nil disables new scenarios
	Sender        Sender          // optional: nil drops updates
	Journal       *otel.Logger
	ScenarioLimit int
}

var errNoStarter = errors.New("what-if is unavailable without a producer")

// Session watches one run and its scenarios. Every state change is sent
// to the dashboard; terminal states are written to the store once.
type Session struct {
	runID     string
	opts      Options
	log       otel.Scope
	run       *reconcile.Reconciler
	scenarios *reconcile.ScenarioSet

	runSaved sync.Once
	mu       sync.Mutex
	saved    map[string]bool // scenario keys already persisted
}

// NewSession opens runID and reopens any scenarios cached for it.
func NewSession(ctx context.Context, runID string, opts Options) (*Session, error) {
	if opts.ScenarioLimit <= 0 {
		opts.ScenarioLimit = defaultScenarioLimit
	}
	s := &Session{
		runID: runID,
		opts:  opts,
		log:   opts.Journal.Run("coord", runID),
		saved: make(map[string]bool),
	}

	s.scenarios = reconcile.NewScenarioSet(opts.Transport, runID, reconcile.ScenarioConfig{
		Observers: []reconcile.ScenarioObserver{s.onScenario},
		Journal:   opts.Journal,
	})

	run, err := reconcile.Open(ctx, opts.Transport, runID, reconcile.Config{
		Observers: []reconcile.Observer{s.onRun},
		Journal:   opts.Journal,
	})
	if err != nil {
		return nil, fmt.Errorf("open run %s: %w", runID, err)
	}
	s.run = run
	s.reopenCached(ctx)
	return s, nil
}

// RunID returns the run this session watches.
func (s *Session) RunID() string { return s.runID }

// State returns the current run state.
func (s *Session) State() reconcile.RunState { return s.run.State() }

// Scenarios returns every open scenario in open order.
func (s *Session) Scenarios() []reconcile.ScenarioState { return s.scenarios.States() }

// Done is closed when the run stream finishes.
func (s *Session) Done() <-chan struct{} { return s.run.Done() }

// Close stops the run and every scenario.
func (s *Session) Close() {
	s.run.Close()
	s.scenarios.Close()
}

func (s *Session) send(msg tea.Msg) {
	if s.opts.Sender != nil {
		s.opts.Sender.Send(msg)
	}
}

func (s *Session) reopenCached(ctx context.Context) {
	if s.opts.Store == nil {
		return
	}
	recs, err := s.opts.Store.Scenarios(s.runID)
	if err != nil {
		logging.Warn("list cached scenarios failed", "run", s.runID, "err", err)
		s.log.Error(otel.KindStoreError, err)
		return
	}
	for _, rec := range recs {
		if _, err := s.scenarios.Open(ctx, rec.Key); err != nil {
			logging.Warn("reopen scenario failed", "run", s.runID, "key", rec.Key, "err", err)
		}
	}
}

// StartScenarios starts one what-if per text, at most ScenarioLimit at a
// time, and blocks until every start has been attempted. The outcome of
// each is sent as ui.ScenarioStarted.
func (s *Session) StartScenarios(ctx context.Context, texts ...string) {
	var g errgroup.Group
	g.SetLimit(s.opts.ScenarioLimit)

	for _, text := range texts {
		g.Go(func() error {
			if ctx.Err() != nil {
				s.send(ui.ScenarioStarted{Text: text, Err: ctx.Err()})
				return nil
			}
			key, err := s.StartScenario(ctx, text)
			s.send(ui.ScenarioStarted{Text: text, Key: key, Err: err})
			return nil // errors are reported per scenario
		})
	}

	_ = g.Wait()
}

// StartScenario asks the producer for a scenario and subscribes to its
// stream. It returns the scenario's stream key.
func (s *Session) StartScenario(ctx context.Context, text string) (string, error) {
	if s.opts.Starter == nil {
		return "", errNoStarter
	}
	startCtx, cancel := context.WithTimeout(ctx, startTimeout)
	defer cancel()

	ticket, err := s.opts.Starter.StartScenario(startCtx, s.runID, text)
	if err != nil {
		return "", err
	}
	if _, err := s.scenarios.Open(ctx, ticket.StreamKey); err != nil {
		return "", err
	}
	return ticket.StreamKey, nil
}

func (s *Session) onRun(st reconcile.RunState) {
	s.send(ui.RunUpdated{State: st})
	if st.Phase.Terminal() {
		s.runSaved.Do(func() { s.persistRun(st) })
	}
}

func (s *Session) persistRun(st reconcile.RunState) {
	if s.opts.Store == nil {
		return
	}
	if st.Phase == reconcile.PhaseComplete {
		raw, err := st.SnapshotJSON()
		if err == nil {
			err = s.opts.Store.SaveSnapshot(s.runID, raw)
		}
		if err != nil {
			s.storeFailed(err)
			return
		}
	}
	summary := Summarize(st, time.Now())
	if err := s.opts.Store.SaveRun(summary); err != nil {
		s.storeFailed(err)
		return
	}
	s.log.Info(otel.KindStoreSave, "run "+string(summary.Status))
}

func (s *Session) onScenario(st reconcile.ScenarioState) {
	s.send(ui.ScenarioUpdated{State: st})
	if st.Phase != reconcile.PhaseComplete || s.opts.Store == nil {
		return
	}
	agent := st.Agent()
	if agent.Status != model.StatusConcluded || string(agent.Result) == string(model.NullResult) {
		return
	}

	s.mu.Lock()
	done := s.saved[st.Key]
	s.saved[st.Key] = true
	s.mu.Unlock()
	if done {
		return
	}

	if err := s.opts.Store.SaveScenario(s.runID, st.Key, agent.Result); err != nil {
		s.storeFailed(err)
		return
	}
	s.log.Scenario(st.Key).Info(otel.KindStoreSave, "scenario")
}

func (s *Session) storeFailed(err error) {
	logging.Warn("cache write failed", "run", s.runID, "err", err)
	s.log.Error(otel.KindStoreError, err)
}

// Summarize builds the run listing row for a finished run state.
// now stands in for the creation time the listing would carry.
func Summarize(st reconcile.RunState, now time.Time) model.RunSummary {
	row := model.RunSummary{
		ID:          st.RunID,
		Status:      model.RunRunning,
		CreatedAt:   float64(now.UnixNano()) / float64(time.Second),
		SignalCount: len(st.Signals),
	}
	switch st.Phase {
	case reconcile.PhaseComplete:
		row.Status = model.RunCompleted
	case reconcile.PhaseErrored:
		row.Status = model.RunFailed
	}
	if c := st.Config; c != nil {
		row.Country = c.Country
		row.Scope = c.Scope
		row.Horizon = c.Horizon
		row.Domains = append([]string(nil), c.Domains...)
	}
	if a := st.Assessment; a != nil && !a.IsEmpty() {
		row.Assessment = &model.SummaryVerdict{
			Headline:   a.Headline,
			RiskLevel:  a.RiskLevel,
			Confidence: a.Confidence,
		}
	}
	return row
}
