// Package reconcile folds an analysis event stream into run state.
//
// A Reconciler owns the state of one run: it consumes the run's stream
// on a single goroutine, applies each event in arrival order and hands a
// copy of the new state to its observers after every change. A
// ScenarioReconciler does the same for one what-if scenario of a run.
// Both produce the same final state whether they watch a run live or load
// it already finished from its run_complete snapshot.
package reconcile

import (
	"encoding/json"

	"github.com/abelbrown/weaksignal/internal/model"
)

// Phase is the coarse lifecycle of a stream.
type Phase string

const (
	PhaseRunning  Phase = "running"
	PhaseComplete Phase = "complete"
	PhaseErrored  Phase = "errored"
)

// Terminal reports whether p is complete or errored.
func (p Phase) Terminal() bool {
	return p == PhaseComplete || p == PhaseErrored
}

// Messages recorded for failures that carry no upstream message.
const (
	MsgConnectionLost    = "connection lost"
	MsgStreamUnavailable = "stream unavailable"
	MsgUnknownError      = "Unknown error"
)

// RunState is a point-in-time copy of a run. It shares no memory with the
// reconciler that produced it.
type RunState struct {
	RunID          string
	Agents         []model.Agent // roster order
	Signals        []model.Signal
	Constellations []model.Constellation
	Assessment     *model.Assessment
	Config         *model.RunConfig
	Phase          Phase
	Err            string
}

// Agent returns the agent with id.
func (s RunState) Agent(id string) (model.Agent, bool) {
	for _, a := range s.Agents {
		if a.ID == id {
			return a, true
		}
	}
	return model.Agent{}, false
}

// Concluded counts concluded agents.
func (s RunState) Concluded() int {
	n := 0
	for _, a := range s.Agents {
		if a.Status == model.StatusConcluded {
			n++
		}
	}
	return n
}

// Active returns the first agent in a running status, if any.
func (s RunState) Active() (model.Agent, bool) {
	for _, a := range s.Agents {
		if a.Status.Running() {
			return a, true
		}
	}
	return model.Agent{}, false
}

// SnapshotJSON renders s in the run_complete payload shape. Concluded
// agents contribute their results and the context agent's result travels
// as country_context. Loading the output reproduces the agents, signals,
// constellations and assessment of s.
func (s RunState) SnapshotJSON() (json.RawMessage, error) {
	snap := struct {
		Config         *model.RunConfig           `json:"config,omitempty"`
		CountryContext json.RawMessage            `json:"country_context,omitempty"`
		Agents         map[string]json.RawMessage `json:"agents"`
	}{
		Config: s.Config,
		Agents: map[string]json.RawMessage{},
	}
	for _, a := range s.Agents {
		switch {
		case a.Status != model.StatusConcluded:
		case a.ID == model.AgentContext:
			snap.CountryContext = a.Result
		default:
			snap.Agents[a.ID] = a.Result
		}
	}
	return json.Marshal(snap)
}

// ScenarioState is a point-in-time copy of one what-if scenario.
type ScenarioState struct {
	RunID  string
	Key    string
	Agents []model.Agent
	Result *model.WhatIfResult
	Phase  Phase
	Err    string
}

// Agent returns the scenario's synthesizer agent.
func (s ScenarioState) Agent() model.Agent {
	if len(s.Agents) == 0 {
		return model.Agent{}
	}
	return s.Agents[0]
}
