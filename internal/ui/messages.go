// Package ui provides the Bubble Tea dashboard for a weak-signal run.
package ui

import (
	"github.com/abelbrown/weaksignal/internal/model"
	"github.com/abelbrown/weaksignal/internal/reconcile"
)

// RunUpdated carries the run's state after a change.
type RunUpdated struct {
	State reconcile.RunState
}

// ScenarioUpdated carries one scenario's state after a change.
type ScenarioUpdated struct {
	State reconcile.ScenarioState
}

// ScenarioStarted is sent when a what-if request was accepted or refused.
type ScenarioStarted struct {
	Text string
	Key  string
	Err  error
}

// RunsLoaded is sent when the run listing is fetched.
type RunsLoaded struct {
	Runs   []model.RunSummary
	Cached bool // served from the local cache
	Err    error
}

// RunOpened is sent when switching to another run finished or failed.
type RunOpened struct {
	RunID string
	Err   error
}
