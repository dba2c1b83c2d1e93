// Package model defines the domain types the dashboard reconciles from the
// pipeline's event stream: agents, signals, constellations, the overall
// assessment, run snapshots and what-if results.
package model

import "encoding/json"

// AgentStatus is an agent's lifecycle state.
// Anything other than StatusIdle and StatusConcluded is a running variant.
type AgentStatus string

const (
	StatusIdle            AgentStatus = "idle"
	StatusRunning         AgentStatus = "running" // generic running state when upstream sends none
	StatusSearching       AgentStatus = "searching"
	StatusHunting         AgentStatus = "hunting"
	StatusCrossValidating AgentStatus = "cross-validating"
	StatusChallenging     AgentStatus = "challenging"
	StatusSynthesizing    AgentStatus = "synthesizing"
	StatusSimulating      AgentStatus = "simulating"
	StatusConcluded       AgentStatus = "concluded"
)

// Running reports whether s is one of the non-terminal working states.
func (s AgentStatus) Running() bool {
	return s != "" && s != StatusIdle && s != StatusConcluded
}

// Agent IDs of the default analysis roster.
const (
	AgentContext        = "context"
	AgentSignalHunter   = "signal_hunter"
	AgentCorroboration  = "corroboration"
	AgentDevilsAdvocate = "devils_advocate"
	AgentSynthesis      = "synthesis"

	// AgentWhatIf is the only agent of a what-if scenario stream.
	AgentWhatIf = "what_if"
)

// AgentSpec describes one pipeline stage known before the stream starts.
type AgentSpec struct {
	ID   string
	Name string
}

// DefaultRoster is the analysis pipeline in execution order.
var DefaultRoster = []AgentSpec{
	{ID: AgentContext, Name: "Context Discovery"},
	{ID: AgentSignalHunter, Name: "Signal Hunter"},
	{ID: AgentCorroboration, Name: "Corroboration Agent"},
	{ID: AgentDevilsAdvocate, Name: "Devil's Advocate"},
	{ID: AgentSynthesis, Name: "Synthesis Agent"},
}

// ScenarioRoster is the single-agent roster of a what-if stream.
var ScenarioRoster = []AgentSpec{
	{ID: AgentWhatIf, Name: "Scenario Synthesizer"},
}

// Agent is one pipeline stage as seen by the dashboard.
// Result is non-nil if and only if Status is StatusConcluded.
type Agent struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Status  AgentStatus     `json:"status"`
	Content string          `json:"content,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
}

// NewAgent returns an idle agent for spec.
func NewAgent(spec AgentSpec) Agent {
	return Agent{ID: spec.ID, Name: spec.Name, Status: StatusIdle}
}

// Clone returns a copy that shares no mutable memory with a.
func (a Agent) Clone() Agent {
	if a.Result != nil {
		a.Result = append(json.RawMessage(nil), a.Result...)
	}
	return a
}
