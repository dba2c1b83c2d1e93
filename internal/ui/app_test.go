package ui

import (
	"errors"
	"strings"
	"testing"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/abelbrown/weaksignal/internal/model"
	"github.com/abelbrown/weaksignal/internal/ranking"
	"github.com/abelbrown/weaksignal/internal/reconcile"
)

// mockCmd tracks which actions the dashboard triggered.
type mockCmd struct {
	loads    int
	opened   string
	scenario string
}

func (m *mockCmd) loadRuns() tea.Cmd {
	m.loads++
	return func() tea.Msg {
		return RunsLoaded{Runs: []model.RunSummary{
			{ID: "a1b2c3d4", Country: "Kenya", Status: model.RunCompleted},
			{ID: "e5f6a7b8", Country: "Peru", Status: model.RunRunning},
		}}
	}
}

func (m *mockCmd) openRun(id string) tea.Cmd {
	m.opened = id
	return func() tea.Msg { return RunOpened{RunID: id} }
}

func (m *mockCmd) startScenario(text string) tea.Cmd {
	m.scenario = text
	return func() tea.Msg { return ScenarioStarted{Text: text, Key: "k1"} }
}

func (m *mockCmd) actions() Actions {
	return Actions{StartScenario: m.startScenario, LoadRuns: m.loadRuns, OpenRun: m.openRun}
}

func sized(a App) App {
	model, _ := a.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return model.(App)
}

func keyRune(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func send(t *testing.T, a App, msgs ...tea.Msg) App {
	t.Helper()
	for _, msg := range msgs {
		model, _ := a.Update(msg)
		a = model.(App)
	}
	return a
}

func runState(id string, phase reconcile.Phase) reconcile.RunState {
	agents := make([]model.Agent, len(model.DefaultRoster))
	for i, spec := range model.DefaultRoster {
		agents[i] = model.NewAgent(spec)
	}
	st := reconcile.RunState{
		RunID:  id,
		Agents: agents,
		Config: &model.RunConfig{Country: "Kenya"},
		Phase:  phase,
		Signals: []model.Signal{
			{ID: "s1", Name: "Fuel queues", Scores: model.Scores{Impact: 20, Overall: 82}},
			{ID: "s2", Name: "Nurse strikes", Scores: model.Scores{Impact: 90, Overall: 45}},
		},
	}
	if phase == reconcile.PhaseRunning {
		st.Agents[0].Status = model.StatusSearching
		st.Agents[0].Content = "Kenya imports most of its fuel"
	}
	return st
}

func TestAppInit(t *testing.T) {
	mock := &mockCmd{}
	app := NewApp(mock.actions(), Options{})

	cmd := app.Init()
	if cmd == nil {
		t.Fatal("Init should return the run listing command")
	}
	if mock.loads != 1 {
		t.Errorf("Init should call LoadRuns once, got %d", mock.loads)
	}
	if _, ok := cmd().(RunsLoaded); !ok {
		t.Error("Init command should produce RunsLoaded")
	}

	if NewApp(Actions{}, Options{}).Init() != nil {
		t.Error("Init without LoadRuns should return nil")
	}
}

func TestAppLoadingView(t *testing.T) {
	app := NewApp(Actions{}, Options{})
	if app.View() != "Loading..." {
		t.Errorf("expected Loading... before the first resize, got %q", app.View())
	}
	app = sized(app)
	if !strings.Contains(app.View(), "no run selected") {
		t.Errorf("expected placeholder header, got:\n%s", app.View())
	}
}

func TestAppTabNavigation(t *testing.T) {
	app := sized(NewApp(Actions{}, Options{}))

	app = send(t, app, tea.KeyMsg{Type: tea.KeyTab})
	if app.Tab() != TabSignals {
		t.Errorf("tab should move to Signals, got %v", app.Tab())
	}
	app = send(t, app, tea.KeyMsg{Type: tea.KeyShiftTab}, tea.KeyMsg{Type: tea.KeyShiftTab})
	if app.Tab() != TabRuns {
		t.Errorf("shift+tab should wrap to Runs, got %v", app.Tab())
	}
	app = send(t, app, keyRune('3'))
	if app.Tab() != TabConstellations {
		t.Errorf("3 should jump to Constellations, got %v", app.Tab())
	}
}

func TestAppRunUpdatedRendersAgents(t *testing.T) {
	app := sized(NewApp(Actions{}, Options{}))

	model, cmd := app.Update(RunUpdated{State: runState("a1b2c3d4", reconcile.PhaseRunning)})
	app = model.(App)
	if cmd == nil {
		t.Error("a running run should start the spinner")
	}

	view := app.View()
	for _, want := range []string{"Kenya", "Context Discovery", "Synthesis Agent", "0/5 agents", "fuel"} {
		if !strings.Contains(view, want) {
			t.Errorf("view should contain %q, got:\n%s", want, view)
		}
	}
}

func TestAppSpinnerStopsWhenComplete(t *testing.T) {
	app := sized(NewApp(Actions{}, Options{}))
	app = send(t, app, RunUpdated{State: runState("r", reconcile.PhaseRunning)})

	model, cmd := app.Update(spinner.TickMsg{})
	app = model.(App)
	if cmd == nil {
		t.Error("spinner should keep ticking while the run is running")
	}

	app = send(t, app, RunUpdated{State: runState("r", reconcile.PhaseComplete)})
	if _, cmd := app.Update(spinner.TickMsg{}); cmd != nil {
		t.Error("spinner should stop once nothing is running")
	}
	if !strings.Contains(app.View(), "complete") {
		t.Errorf("header should show completion, got:\n%s", app.View())
	}
}

func TestAppSortKeyCycles(t *testing.T) {
	app := sized(NewApp(Actions{}, Options{}))
	app = send(t, app, RunUpdated{State: runState("r", reconcile.PhaseComplete)}, keyRune('2'))

	if app.SortKey() != ranking.KeyOverall {
		t.Fatalf("default sort key should be overall, got %s", app.SortKey())
	}
	view := app.View()
	if strings.Index(view, "Fuel queues") > strings.Index(view, "Nurse strikes") {
		t.Error("overall ordering should list Fuel queues first")
	}

	app = send(t, app, keyRune('s'))
	if app.SortKey() != ranking.KeyImpact {
		t.Fatalf("s should advance to impact, got %s", app.SortKey())
	}
	view = app.View()
	if strings.Index(view, "Nurse strikes") > strings.Index(view, "Fuel queues") {
		t.Error("impact ordering should list Nurse strikes first")
	}
}

func TestAppSignalDetailNamesLinkedSignals(t *testing.T) {
	st := runState("r", reconcile.PhaseComplete)
	st.Constellations = []model.Constellation{
		{ID: "c1", Name: "Cost of living", SignalIDs: []string{"s1", "s2", "gone"}, Category: model.CategoryCorrelatedCluster},
	}
	app := sized(NewApp(Actions{}, Options{}))
	app = send(t, app, RunUpdated{State: st}, keyRune('2'))

	view := app.View()
	if !strings.Contains(view, "Linked: Nurse strikes") {
		t.Errorf("detail of the selected signal should name its linked signals, got:\n%s", view)
	}
	if strings.Contains(view, "gone") {
		t.Error("dangling members should not be listed as linked")
	}
}

func TestAppWhatIfNeedsCompletedRun(t *testing.T) {
	mock := &mockCmd{}
	app := sized(NewApp(mock.actions(), Options{}))
	app = send(t, app, RunUpdated{State: runState("r", reconcile.PhaseRunning)}, keyRune('4'), keyRune('w'))

	if app.Err() == nil {
		t.Fatal("w on a running run should report an error")
	}
	if mock.scenario != "" {
		t.Error("no scenario should start")
	}
}

func TestAppWhatIfPrompt(t *testing.T) {
	mock := &mockCmd{}
	app := sized(NewApp(mock.actions(), Options{}))
	app = send(t, app, RunUpdated{State: runState("r", reconcile.PhaseComplete)}, keyRune('4'), keyRune('w'))

	if !strings.Contains(app.View(), "what if") {
		t.Fatalf("prompt should be visible, got:\n%s", app.View())
	}
	for _, r := range "Drought" {
		app = send(t, app, keyRune(r))
	}
	model, cmd := app.Update(tea.KeyMsg{Type: tea.KeyEnter})
	app = model.(App)

	if mock.scenario != "Drought" {
		t.Errorf("StartScenario should receive the typed text, got %q", mock.scenario)
	}
	if cmd == nil {
		t.Fatal("enter should return the start command")
	}
	if msg, ok := cmd().(ScenarioStarted); !ok || msg.Key != "k1" {
		t.Errorf("unexpected command result %#v", msg)
	}
	if strings.Contains(app.View(), "what if ›") {
		t.Error("prompt should close after enter")
	}
}

func TestAppWhatIfPromptEscape(t *testing.T) {
	mock := &mockCmd{}
	app := sized(NewApp(mock.actions(), Options{}))
	app = send(t, app, RunUpdated{State: runState("r", reconcile.PhaseComplete)}, keyRune('4'), keyRune('w'),
		keyRune('x'), tea.KeyMsg{Type: tea.KeyEsc})

	if mock.scenario != "" {
		t.Error("esc should not start a scenario")
	}
	// q is a normal key again once the prompt closes.
	if _, cmd := app.Update(keyRune('q')); cmd == nil {
		t.Error("q should quit after the prompt closes")
	}
}

func TestAppScenarioUpdates(t *testing.T) {
	app := sized(NewApp(Actions{}, Options{}))
	app = send(t, app, RunUpdated{State: runState("r1", reconcile.PhaseComplete)})

	app = send(t, app,
		ScenarioUpdated{State: reconcile.ScenarioState{RunID: "r1", Key: "a", Phase: reconcile.PhaseRunning}},
		ScenarioUpdated{State: reconcile.ScenarioState{RunID: "r1", Key: "b", Phase: reconcile.PhaseRunning}},
		ScenarioUpdated{State: reconcile.ScenarioState{RunID: "r1", Key: "a", Phase: reconcile.PhaseComplete}},
		ScenarioUpdated{State: reconcile.ScenarioState{RunID: "other", Key: "c", Phase: reconcile.PhaseRunning}},
	)

	got := app.Scenarios()
	if len(got) != 2 || got[0].Key != "a" || got[1].Key != "b" {
		t.Fatalf("expected scenarios a, b in open order, got %+v", got)
	}
	if got[0].Phase != reconcile.PhaseComplete {
		t.Errorf("scenario a should be replaced by its latest state, got %s", got[0].Phase)
	}

	app = send(t, app, RunUpdated{State: runState("r2", reconcile.PhaseRunning)})
	if len(app.Scenarios()) != 0 {
		t.Errorf("switching runs should clear scenarios, got %+v", app.Scenarios())
	}
}

func TestAppScenarioStartedError(t *testing.T) {
	app := sized(NewApp(Actions{}, Options{}))
	app = send(t, app, ScenarioStarted{Text: "Drought", Err: errors.New("boom")})

	if app.Err() == nil || !strings.Contains(app.Err().Error(), "boom") {
		t.Fatalf("expected error to surface, got %v", app.Err())
	}
	if !strings.Contains(app.View(), "Error:") {
		t.Error("error bar should render")
	}

	app = send(t, app, keyRune('j'))
	if app.Err() != nil {
		t.Error("any key should clear the error")
	}
}

func TestAppRunsTab(t *testing.T) {
	mock := &mockCmd{}
	app := sized(NewApp(mock.actions(), Options{}))
	app = send(t, app, mock.loadRuns()(), keyRune('5'))

	view := app.View()
	if !strings.Contains(view, "Kenya") || !strings.Contains(view, "Peru") {
		t.Errorf("runs tab should list both runs, got:\n%s", view)
	}

	app = send(t, app, keyRune('j'))
	model, cmd := app.Update(tea.KeyMsg{Type: tea.KeyEnter})
	app = model.(App)
	if mock.opened != "e5f6a7b8" {
		t.Errorf("enter should open the selected run, got %q", mock.opened)
	}
	app = send(t, app, cmd())
	if app.Tab() != TabAgents {
		t.Errorf("opening a run should show the agents tab, got %v", app.Tab())
	}
}

func TestAppRunsCachedNote(t *testing.T) {
	app := sized(NewApp(Actions{}, Options{}))
	app = send(t, app, RunsLoaded{Runs: []model.RunSummary{{ID: "x", Country: "Chad"}}, Cached: true}, keyRune('5'))

	if !strings.Contains(app.View(), "cached runs") {
		t.Errorf("cached listing should be noted, got:\n%s", app.View())
	}
}

func TestAppRunOpenedError(t *testing.T) {
	app := sized(NewApp(Actions{}, Options{}))
	app = send(t, app, keyRune('5'), RunOpened{RunID: "x", Err: errors.New("not cached")})

	if app.Tab() != TabRuns {
		t.Error("a failed open should stay on the runs tab")
	}
	if app.Err() == nil {
		t.Error("a failed open should report an error")
	}
}
