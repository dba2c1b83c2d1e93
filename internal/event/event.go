// Package event decodes the analysis stream's wire events.
//
// Each line of a stream is one JSON object of the form
//
//	{"type": "<kind>", "agent": "<id>", "status": "...", "content": "...",
//	 "data": <payload>, "message": "..."}
//
// with only the fields relevant to the kind present. Decode turns it into
// one of the concrete Event types. Unknown kinds decode to Unknown so
// callers can ignore them without treating the line as malformed.
package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/abelbrown/weaksignal/internal/model"
)

// Kind is the value of an event's "type" field.
type Kind string

const (
	KindAgentStart    Kind = "agent_start"
	KindAgentChunk    Kind = "agent_chunk"
	KindAgentComplete Kind = "agent_complete"
	KindRunComplete   Kind = "run_complete"
	KindError         Kind = "error"

	// KindAnalysisComplete is the legacy name of KindRunComplete.
	KindAnalysisComplete Kind = "analysis_complete"
)

// ErrMalformed marks a line that is not a decodable event.
var ErrMalformed = errors.New("malformed event")

// Event is one decoded stream event.
type Event interface {
	Kind() Kind
	event()
}

// AgentStart announces that an agent began (or re-entered) a phase.
type AgentStart struct {
	Agent  string
	Status model.AgentStatus
}

// AgentChunk carries streamed narrative text for an agent.
type AgentChunk struct {
	Agent string
	Text  string
}

// AgentComplete carries an agent's final structured result.
type AgentComplete struct {
	Agent string
	Data  json.RawMessage
}

// RunComplete carries the full-state snapshot of a finished run.
type RunComplete struct {
	Data json.RawMessage
}

// Error reports a run-level failure.
type Error struct {
	Message string
}

// Unknown is an event whose kind this package does not recognize.
type Unknown struct {
	Type string
}

func (AgentStart) Kind() Kind    { return KindAgentStart }
func (AgentChunk) Kind() Kind    { return KindAgentChunk }
func (AgentComplete) Kind() Kind { return KindAgentComplete }
func (RunComplete) Kind() Kind   { return KindRunComplete }
func (Error) Kind() Kind         { return KindError }
func (u Unknown) Kind() Kind     { return Kind(u.Type) }

func (AgentStart) event()    {}
func (AgentChunk) event()    {}
func (AgentComplete) event() {}
func (RunComplete) event()   {}
func (Error) event()         {}
func (Unknown) event()       {}

// Decode parses one stream line. Errors wrap ErrMalformed.
func Decode(line []byte) (Event, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, fmt.Errorf("%w: empty line", ErrMalformed)
	}
	if !gjson.ValidBytes(line) {
		return nil, fmt.Errorf("%w: invalid json", ErrMalformed)
	}
	root := gjson.ParseBytes(line)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: expected object, got %s", ErrMalformed, root.Type)
	}

	typ := root.Get("type")
	if typ.Type != gjson.String || typ.Str == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	agent := root.Get("agent")
	data := root.Get("data")

	switch Kind(typ.Str) {
	case KindAgentStart:
		id, err := agentID(agent)
		if err != nil {
			return nil, err
		}
		status := model.StatusRunning
		if st := root.Get("status"); st.Exists() && st.Type != gjson.Null {
			if st.Type != gjson.String {
				return nil, fmt.Errorf("%w: agent_start status must be a string", ErrMalformed)
			}
			if st.Str != "" {
				status = model.AgentStatus(st.Str)
			}
		}
		if status == model.StatusConcluded {
			return nil, fmt.Errorf("%w: agent_start cannot conclude %s", ErrMalformed, id)
		}
		return AgentStart{Agent: id, Status: status}, nil

	case KindAgentChunk:
		id, err := agentID(agent)
		if err != nil {
			return nil, err
		}
		content := root.Get("content")
		if content.Exists() && content.Type != gjson.String && content.Type != gjson.Null {
			return nil, fmt.Errorf("%w: agent_chunk content must be a string", ErrMalformed)
		}
		return AgentChunk{Agent: id, Text: content.Str}, nil

	case KindAgentComplete:
		id, err := agentID(agent)
		if err != nil {
			return nil, err
		}
		return AgentComplete{Agent: id, Data: rawOrNil(data)}, nil

	case KindRunComplete, KindAnalysisComplete:
		return RunComplete{Data: rawOrNil(data)}, nil

	case KindError:
		msg := root.Get("message")
		switch msg.Type {
		case gjson.String, gjson.Null:
			return Error{Message: msg.Str}, nil
		default:
			return Error{Message: msg.Raw}, nil
		}

	default:
		return Unknown{Type: typ.Str}, nil
	}
}

func agentID(v gjson.Result) (string, error) {
	if v.Type != gjson.String || v.Str == "" {
		return "", fmt.Errorf("%w: missing agent", ErrMalformed)
	}
	return v.Str, nil
}

func rawOrNil(v gjson.Result) json.RawMessage {
	if !v.Exists() || v.Type == gjson.Null {
		return nil
	}
	return json.RawMessage(v.Raw)
}

// wire is the JSON form written by Encode.
type wire struct {
	Type    Kind              `json:"type"`
	Agent   string            `json:"agent,omitempty"`
	Status  model.AgentStatus `json:"status,omitempty"`
	Content *string           `json:"content,omitempty"`
	Data    json.RawMessage   `json:"data,omitempty"`
	Message string            `json:"message,omitempty"`
}

// Encode renders e as a single stream line without a trailing newline.
// Unknown events are rejected.
func Encode(e Event) ([]byte, error) {
	var w wire
	switch ev := e.(type) {
	case AgentStart:
		w = wire{Type: KindAgentStart, Agent: ev.Agent, Status: ev.Status}
	case AgentChunk:
		text := ev.Text
		w = wire{Type: KindAgentChunk, Agent: ev.Agent, Content: &text}
	case AgentComplete:
		w = wire{Type: KindAgentComplete, Agent: ev.Agent, Data: ev.Data}
	case RunComplete:
		w = wire{Type: KindRunComplete, Data: ev.Data}
	case Error:
		w = wire{Type: KindError, Message: ev.Message}
	default:
		return nil, fmt.Errorf("encode %T: unsupported event", e)
	}
	return json.Marshal(w)
}
