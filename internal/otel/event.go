// Package otel is the run journal: typed events serialized as JSONL.
//
// Stream consumers, the API client and the store emit Events through a
// Logger, which writes them asynchronously from a background drain
// goroutine. A RingBuffer can be attached for live inspection in the
// dashboard's journal pane and the wsctl events command.
package otel

import (
	"encoding/json"
	"time"
)

// Level defines event severity for filtering.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// EventKind identifies the category of a journal event.
// Dot-delimited: "<subsystem>.<action>".
type EventKind string

const (
	// Stream transport
	KindStreamOpen       EventKind = "stream.open"
	KindStreamEvent      EventKind = "stream.event"
	KindStreamDrop       EventKind = "stream.drop"
	KindStreamDisconnect EventKind = "stream.disconnect"
	KindStreamClose      EventKind = "stream.close"

	// Run lifecycle
	KindRunStart    EventKind = "run.start"
	KindRunComplete EventKind = "run.complete"
	KindRunError    EventKind = "run.error"

	// What-if scenarios
	KindScenarioStart    EventKind = "scenario.start"
	KindScenarioComplete EventKind = "scenario.complete"
	KindScenarioError    EventKind = "scenario.error"

	// Producer API
	KindAPIRequest EventKind = "api.request"
	KindAPIError   EventKind = "api.error"

	// Snapshot cache
	KindStoreHit   EventKind = "store.hit"
	KindStoreSave  EventKind = "store.save"
	KindStoreError EventKind = "store.error"

	// System
	KindStartup  EventKind = "sys.startup"
	KindShutdown EventKind = "sys.shutdown"
	KindError    EventKind = "sys.error"
)

// Event is one journal record. Every field except Kind and Time is
// optional. Serialized as a single JSONL line.
type Event struct {
	Time      time.Time      `json:"t"`
	Level     Level          `json:"level,omitempty"`
	Kind      EventKind      `json:"kind"`
	Comp      string         `json:"comp,omitempty"` // "reconcile", "api", "store", "coord", "main"
	SessionID string         `json:"session_id,omitempty"`
	RunID     string         `json:"run,omitempty"`
	Scenario  string         `json:"scenario,omitempty"`
	Agent     string         `json:"agent,omitempty"`
	EventType string         `json:"type,omitempty"` // wire event type for stream.* kinds
	Dur       time.Duration  `json:"-"`
	DurMs     float64        `json:"dur_ms,omitempty"` // computed from Dur at marshal time
	Count     int            `json:"count,omitempty"`
	Bytes     int            `json:"bytes,omitempty"`
	Err       string         `json:"err,omitempty"`
	Msg       string         `json:"msg,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// MarshalJSON converts Dur to DurMs.
func (e Event) MarshalJSON() ([]byte, error) {
	type Alias Event
	a := struct {
		Alias
	}{Alias: Alias(e)}
	if e.Dur > 0 {
		a.DurMs = float64(e.Dur) / float64(time.Millisecond)
	}
	return json.Marshal(a)
}
