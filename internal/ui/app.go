package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/abelbrown/weaksignal/internal/graph"
	"github.com/abelbrown/weaksignal/internal/model"
	"github.com/abelbrown/weaksignal/internal/otel"
	"github.com/abelbrown/weaksignal/internal/ranking"
	"github.com/abelbrown/weaksignal/internal/reconcile"
)

// Tab is a dashboard page.
type Tab int

const (
	TabAgents Tab = iota
	TabSignals
	TabConstellations
	TabWhatIf
	TabRuns
)

var tabNames = []string{"Agents", "Signals", "Constellations", "What-if", "Runs"}

func (t Tab) String() string {
	if int(t) < len(tabNames) {
		return tabNames[t]
	}
	return fmt.Sprintf("Tab(%d)", int(t))
}

// Actions are the commands the dashboard can trigger. Any may be nil.
type Actions struct {
	StartScenario func(text string) tea.Cmd
	LoadRuns      func() tea.Cmd
	OpenRun       func(runID string) tea.Cmd
}

// Options configure a new App.
type Options struct {
	SortKey     ranking.SortKey
	ContentTail int
	Ring        *otel.RingBuffer // debug overlay source; nil disables it
}

// App is the root Bubble Tea model.
// IMPORTANT: App does NOT hold reconcilers. It receives state via messages.
type App struct {
	actions Actions

	run       reconcile.RunState
	hasRun    bool
	scenarios []reconcile.ScenarioState // open order
	runs      []model.RunSummary
	runsNote  string

	tab         Tab
	sortKey     ranking.SortKey
	contentTail int
	signalRow   int
	runRow      int

	spinner  spinner.Model
	ticking  bool
	input    textinput.Model
	prompt   bool
	viewport viewport.Model
	ring     *otel.RingBuffer
	debug    bool

	err    error
	width  int
	height int
	ready  bool
}

// NewApp creates the dashboard.
func NewApp(actions Actions, opts Options) App {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(colorSuccess)

	ti := textinput.New()
	ti.Placeholder = "e.g. Central bank doubles interest rates"
	ti.Prompt = "what if › "
	ti.PromptStyle = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	ti.CharLimit = 500

	key := opts.SortKey
	if key == "" {
		key = ranking.KeyOverall
	}
	tailLines := opts.ContentTail
	if tailLines <= 0 {
		tailLines = 12
	}

	return App{
		actions:     actions,
		sortKey:     key,
		contentTail: tailLines,
		spinner:     s,
		input:       ti,
		viewport:    viewport.New(80, 20),
		ring:        opts.Ring,
	}
}

// Init loads the run listing.
func (a App) Init() tea.Cmd {
	if a.actions.LoadRuns != nil {
		return a.actions.LoadRuns()
	}
	return nil
}

// busy reports whether any stream is still running.
func (a App) busy() bool {
	if a.hasRun && a.run.Phase == reconcile.PhaseRunning {
		return true
	}
	for _, s := range a.scenarios {
		if s.Phase == reconcile.PhaseRunning {
			return true
		}
	}
	return false
}

// startSpinner returns the tick command when the spinner is idle and a
// stream is running.
func (a *App) startSpinner() tea.Cmd {
	if a.ticking || !a.busy() {
		return nil
	}
	a.ticking = true
	return a.spinner.Tick
}

// Update handles messages and returns the updated model and any commands.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.ready = true
		a.input.Width = msg.Width - 16
		a.viewport.Width = msg.Width
		a.viewport.Height = a.bodyHeight()
		a.refreshAgents()
		return a, nil

	case spinner.TickMsg:
		if !a.busy() {
			a.ticking = false
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case RunUpdated:
		if a.hasRun && msg.State.RunID != a.run.RunID {
			a.scenarios = nil
			a.signalRow = 0
		}
		a.run = msg.State
		a.hasRun = true
		if a.signalRow >= len(a.run.Signals) {
			a.signalRow = max(0, len(a.run.Signals)-1)
		}
		a.refreshAgents()
		return a, a.startSpinner()

	case ScenarioUpdated:
		if a.hasRun && msg.State.RunID != a.run.RunID {
			return a, nil
		}
		a.upsertScenario(msg.State)
		return a, a.startSpinner()

	case ScenarioStarted:
		if msg.Err != nil {
			a.err = fmt.Errorf("what-if %q: %w", msg.Text, msg.Err)
		}
		return a, nil

	case RunsLoaded:
		if msg.Err != nil {
			a.err = msg.Err
			return a, nil
		}
		a.runs = msg.Runs
		a.runsNote = ""
		if msg.Cached {
			a.runsNote = "producer unreachable; showing cached runs"
		}
		if a.runRow >= len(a.runs) {
			a.runRow = max(0, len(a.runs)-1)
		}
		return a, nil

	case RunOpened:
		if msg.Err != nil {
			a.err = fmt.Errorf("open run %s: %w", msg.RunID, msg.Err)
			return a, nil
		}
		a.tab = TabAgents
		return a, nil
	}

	if a.prompt {
		var cmd tea.Cmd
		a.input, cmd = a.input.Update(msg)
		return a, cmd
	}
	return a, nil
}

func (a *App) upsertScenario(s reconcile.ScenarioState) {
	for i := range a.scenarios {
		if a.scenarios[i].Key == s.Key {
			a.scenarios[i] = s
			return
		}
	}
	a.scenarios = append(a.scenarios, s)
}

// refreshAgents re-renders the agent feed, following the bottom when the
// viewport was already there.
func (a *App) refreshAgents() {
	follow := a.viewport.AtBottom()
	a.viewport.SetContent(renderAgents(a.run.Agents, a.contentTail, a.width))
	if follow {
		a.viewport.GotoBottom()
	}
}

// handleKeyMsg processes keyboard input.
func (a App) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.prompt {
		return a.handlePromptKey(msg)
	}

	if a.err != nil {
		a.err = nil
	}

	switch msg.String() {
	case "q", "ctrl+c":
		return a, tea.Quit

	case "tab", "right", "l":
		a.tab = (a.tab + 1) % Tab(len(tabNames))
		return a, nil

	case "shift+tab", "left", "h":
		a.tab = (a.tab + Tab(len(tabNames)) - 1) % Tab(len(tabNames))
		return a, nil

	case "1", "2", "3", "4", "5":
		a.tab = Tab(msg.String()[0] - '1')
		return a, nil

	case "?":
		if a.ring != nil {
			a.debug = !a.debug
		}
		return a, nil
	}

	switch a.tab {
	case TabAgents:
		var cmd tea.Cmd
		a.viewport, cmd = a.viewport.Update(msg)
		return a, cmd

	case TabSignals:
		switch msg.String() {
		case "s":
			a.sortKey = a.sortKey.Next()
			a.signalRow = 0
		case "j", "down":
			if a.signalRow < len(a.run.Signals)-1 {
				a.signalRow++
			}
		case "k", "up":
			if a.signalRow > 0 {
				a.signalRow--
			}
		}
		return a, nil

	case TabWhatIf:
		switch msg.String() {
		case "w", "/", "enter":
			if !a.canStartScenario() {
				a.err = fmt.Errorf("what-if needs a completed run")
				return a, nil
			}
			a.prompt = true
			a.input.SetValue("")
			return a, tea.Batch(a.input.Focus(), textinput.Blink)
		}
		return a, nil

	case TabRuns:
		switch msg.String() {
		case "j", "down":
			if a.runRow < len(a.runs)-1 {
				a.runRow++
			}
		case "k", "up":
			if a.runRow > 0 {
				a.runRow--
			}
		case "r":
			if a.actions.LoadRuns != nil {
				return a, a.actions.LoadRuns()
			}
		case "enter":
			if a.runRow < len(a.runs) && a.actions.OpenRun != nil {
				return a, a.actions.OpenRun(a.runs[a.runRow].ID)
			}
		}
	}
	return a, nil
}

func (a App) canStartScenario() bool {
	return a.actions.StartScenario != nil && a.hasRun && a.run.Phase == reconcile.PhaseComplete
}

func (a App) handlePromptKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		a.prompt = false
		a.input.Blur()
		return a, nil

	case "enter":
		text := strings.TrimSpace(a.input.Value())
		a.prompt = false
		a.input.Blur()
		if text == "" {
			return a, nil
		}
		return a, a.actions.StartScenario(text)
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

// bodyHeight is the space left for the active tab.
func (a App) bodyHeight() int {
	h := a.height - 4 // header, tabs, status bar, spacer
	if h < 1 {
		h = 1
	}
	return h
}

// View renders the UI.
func (a App) View() string {
	if !a.ready {
		return "Loading..."
	}
	if a.debug {
		return debugOverlay(a.ring, a.width, a.height-1) + "\n" + debugStatusBar(a.width)
	}

	var b strings.Builder
	b.WriteString(a.renderHeader())
	b.WriteString("\n")
	b.WriteString(a.renderTabs())
	b.WriteString("\n")

	body := a.renderBody()
	lines := strings.Split(body, "\n")
	if len(lines) > a.bodyHeight() {
		lines = lines[:a.bodyHeight()]
	}
	b.WriteString(strings.Join(lines, "\n"))
	b.WriteString("\n")

	if a.err != nil {
		b.WriteString(ErrorStyle.Width(a.width).Render("Error: " + a.err.Error()))
		b.WriteString("\n")
	}
	b.WriteString(a.renderStatusBar())
	return b.String()
}

func (a App) renderHeader() string {
	title := TitleStyle.Render("WEAK SIGNAL")
	if !a.hasRun {
		return title + "  " + DimStyle.Render("no run selected")
	}

	subject := a.run.RunID
	if a.run.Config != nil && a.run.Config.Country != "" {
		subject = a.run.Config.Subject() + DimStyle.Render(" ("+a.run.RunID+")")
	}

	var phase string
	switch a.run.Phase {
	case reconcile.PhaseRunning:
		step := fmt.Sprintf("%d/%d agents", a.run.Concluded(), len(a.run.Agents))
		if act, ok := a.run.Active(); ok {
			step += " · " + act.Name
		}
		phase = a.spinner.View() + " " + step
	case reconcile.PhaseComplete:
		phase = CompleteStyle.Render("✓ complete")
	case reconcile.PhaseErrored:
		phase = ErroredStyle.Render("✗ " + a.run.Err)
	}

	line := title + "  " + SubjectStyle.Render(subject) + "  " + phase
	if as := a.run.Assessment; as != nil && !as.IsEmpty() {
		band := model.Band(strings.ToLower(as.RiskLevel))
		line += "  " + bandStyle(band).Render(band.Label())
	}
	return line
}

func (a App) renderTabs() string {
	parts := make([]string, len(tabNames))
	for i, name := range tabNames {
		label := fmt.Sprintf("%d %s", i+1, name)
		if Tab(i) == a.tab {
			parts[i] = ActiveTabStyle.Render(label)
		} else {
			parts[i] = TabStyle.Render(label)
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (a App) renderBody() string {
	switch a.tab {
	case TabAgents:
		return a.viewport.View()

	case TabSignals:
		table := renderSignals(a.run.Signals, a.sortKey, a.signalRow, a.width, a.bodyHeight()-6)
		sorted := ranking.SortSignals(a.run.Signals, a.sortKey)
		if a.signalRow < len(sorted) {
			g := graph.Build(a.run.Signals, a.run.Constellations)
			table += renderSignalDetail(sorted[a.signalRow], a.run.Signals, g, a.width)
		}
		return table

	case TabConstellations:
		return renderConstellations(a.run.Signals, a.run.Constellations, a.width)

	case TabWhatIf:
		var b strings.Builder
		if a.prompt {
			b.WriteString(a.input.View())
			b.WriteString("\n\n")
		}
		if len(a.scenarios) == 0 {
			b.WriteString(HelpStyle.Render("No scenarios yet. Press w to inject a shock into the completed run."))
			return b.String()
		}
		for i := len(a.scenarios) - 1; i >= 0; i-- {
			b.WriteString(renderScenario(a.scenarios[i], a.width, a.spinner.View()))
			b.WriteString("\n")
		}
		return b.String()

	case TabRuns:
		body := renderRuns(a.runs, a.runRow, a.width, a.run.RunID)
		if a.runsNote != "" {
			body = DimStyle.Render(a.runsNote) + "\n" + body
		}
		return body
	}
	return ""
}

func (a App) renderStatusBar() string {
	hint := func(k, v string) string {
		return StatusBarKey.Render(k) + StatusBarText.Render(":"+v)
	}
	keys := []string{hint("tab", "next"), hint("1-5", "jump")}
	switch a.tab {
	case TabAgents:
		keys = append(keys, hint("↑↓", "scroll"))
	case TabSignals:
		keys = append(keys, hint("s", "sort "+a.sortKey.Label()), hint("j/k", "move"))
	case TabWhatIf:
		if a.prompt {
			keys = []string{hint("enter", "run"), hint("esc", "cancel")}
		} else {
			keys = append(keys, hint("w", "new scenario"))
		}
	case TabRuns:
		keys = append(keys, hint("enter", "open"), hint("r", "reload"))
	}
	if a.ring != nil {
		keys = append(keys, hint("?", "debug"))
	}
	keys = append(keys, hint("q", "quit"))
	return StatusBar.Width(a.width).Render(strings.Join(keys, "  "))
}

// Tab returns the active tab (for testing).
func (a App) Tab() Tab { return a.tab }

// SortKey returns the signal ordering (for testing).
func (a App) SortKey() ranking.SortKey { return a.sortKey }

// Scenarios returns the scenario states in open order (for testing).
func (a App) Scenarios() []reconcile.ScenarioState { return a.scenarios }

// Err returns the error shown in the error bar (for testing).
func (a App) Err() error { return a.err }
