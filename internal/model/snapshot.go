package model

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// SynthesisShape tags how a synthesis payload was serialized.
type SynthesisShape int

const (
	// SynthesisAbsent means the payload was missing or null.
	SynthesisAbsent SynthesisShape = iota
	// SynthesisObject is the regular {scored_signals, constellations, overall_assessment} object.
	SynthesisObject
	// SynthesisSignalList is the degenerate shape where only the signal array was serialized.
	SynthesisSignalList
	// SynthesisInvalid is any other JSON value.
	SynthesisInvalid
)

func (s SynthesisShape) String() string {
	switch s {
	case SynthesisAbsent:
		return "absent"
	case SynthesisObject:
		return "object"
	case SynthesisSignalList:
		return "signal_list"
	default:
		return "invalid"
	}
}

// Synthesis is the structured output of the synthesis agent.
// A nil field means the payload did not carry it; an empty non-nil field
// means it carried an empty value.
type Synthesis struct {
	Shape          SynthesisShape
	Signals        []Signal
	Constellations []Constellation
	Assessment     *Assessment
}

// ParseSynthesis interprets a synthesis payload. It never fails: items that
// cannot be decoded are skipped and reported in the returned issues.
//
// A bare JSON array is read as the signal list alone, with an empty
// constellation list and the empty placeholder assessment.
func ParseSynthesis(raw []byte) (Synthesis, []error) {
	var issues []error
	res := gjson.ParseBytes(raw)

	switch {
	case len(bytes.TrimSpace(raw)) == 0 || res.Type == gjson.Null:
		return Synthesis{Shape: SynthesisAbsent}, nil

	case res.IsArray():
		signals, errs := decodeSignals(res)
		issues = append(issues, errs...)
		return Synthesis{
			Shape:          SynthesisSignalList,
			Signals:        signals,
			Constellations: []Constellation{},
			Assessment:     &Assessment{},
		}, issues

	case res.IsObject():
		syn := Synthesis{Shape: SynthesisObject}

		if f := res.Get("scored_signals"); f.Exists() && f.Type != gjson.Null {
			if f.IsArray() {
				var errs []error
				syn.Signals, errs = decodeSignals(f)
				issues = append(issues, errs...)
			} else {
				issues = append(issues, fmt.Errorf("scored_signals: expected array, got %s", f.Type))
			}
		}

		if f := res.Get("constellations"); f.Exists() && f.Type != gjson.Null {
			if f.IsArray() {
				var errs []error
				syn.Constellations, errs = decodeConstellations(f)
				issues = append(issues, errs...)
			} else {
				issues = append(issues, fmt.Errorf("constellations: expected array, got %s", f.Type))
			}
		}

		if f := res.Get("overall_assessment"); f.Exists() && f.Type != gjson.Null {
			var a Assessment
			if err := json.Unmarshal([]byte(f.Raw), &a); err != nil {
				issues = append(issues, fmt.Errorf("overall_assessment: %w", err))
			} else {
				syn.Assessment = &a
			}
		}
		return syn, issues

	default:
		return Synthesis{Shape: SynthesisInvalid}, []error{fmt.Errorf("synthesis: unexpected %s value", res.Type)}
	}
}

func decodeSignals(arr gjson.Result) ([]Signal, []error) {
	var issues []error
	signals := make([]Signal, 0, len(arr.Array()))
	arr.ForEach(func(key, value gjson.Result) bool {
		var s Signal
		if err := json.Unmarshal([]byte(value.Raw), &s); err != nil {
			issues = append(issues, fmt.Errorf("scored_signals[%d]: %w", key.Int(), err))
			return true
		}
		signals = append(signals, s)
		return true
	})
	return signals, issues
}

func decodeConstellations(arr gjson.Result) ([]Constellation, []error) {
	var issues []error
	out := make([]Constellation, 0, len(arr.Array()))
	arr.ForEach(func(key, value gjson.Result) bool {
		var c Constellation
		if err := json.Unmarshal([]byte(value.Raw), &c); err != nil {
			issues = append(issues, fmt.Errorf("constellations[%d]: %w", key.Int(), err))
			return true
		}
		out = append(out, c)
		return true
	})
	return out, issues
}

// NullResult is the result of an agent that concluded without a payload.
var NullResult = json.RawMessage("null")

// Snapshot is the full-state payload of a run_complete event.
type Snapshot struct {
	Config *RunConfig
	// Agents maps agent id to its compacted result. Agents listed with a
	// null result map to NullResult.
	Agents    map[string]json.RawMessage
	Synthesis Synthesis
}

// ParseSnapshot interprets a run_complete payload. Like ParseSynthesis it
// never fails; unreadable parts are reported as issues and left out.
//
// The context agent's result travels outside the agents map as
// country_context; it is folded back in under AgentContext unless the
// agents map carries its own entry.
func ParseSnapshot(raw []byte) (Snapshot, []error) {
	snap := Snapshot{Agents: map[string]json.RawMessage{}}
	res := gjson.ParseBytes(raw)
	if len(bytes.TrimSpace(raw)) == 0 || res.Type == gjson.Null {
		return snap, nil
	}
	if !res.IsObject() {
		return snap, []error{fmt.Errorf("snapshot: expected object, got %s", res.Type)}
	}

	var issues []error

	if f := res.Get("config"); f.IsObject() {
		var cfg RunConfig
		if err := json.Unmarshal([]byte(f.Raw), &cfg); err != nil {
			issues = append(issues, fmt.Errorf("config: %w", err))
		} else {
			snap.Config = &cfg
		}
	}

	agents := res.Get("agents")
	switch {
	case agents.IsObject():
		agents.ForEach(func(key, value gjson.Result) bool {
			snap.Agents[key.String()] = ResultJSON([]byte(value.Raw))
			return true
		})
	case agents.Exists() && agents.Type != gjson.Null:
		issues = append(issues, fmt.Errorf("agents: expected object, got %s", agents.Type))
	}

	if cc := res.Get("country_context"); cc.Exists() {
		if _, ok := snap.Agents[AgentContext]; !ok {
			snap.Agents[AgentContext] = ResultJSON([]byte(cc.Raw))
		}
	}

	if syn := agents.Get(AgentSynthesis); agents.IsObject() && syn.Exists() {
		var errs []error
		snap.Synthesis, errs = ParseSynthesis([]byte(syn.Raw))
		issues = append(issues, errs...)
	}

	return snap, issues
}

// CompactJSON strips insignificant whitespace so equal values compare equal
// byte-for-byte. Invalid JSON is returned unchanged. Empty input and null
// return nil.
func CompactJSON(raw []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return append(json.RawMessage(nil), trimmed...)
	}
	return buf.Bytes()
}

// ResultJSON normalizes an agent result: compacted JSON, or NullResult
// when raw is empty or null. The return value is never nil.
func ResultJSON(raw []byte) json.RawMessage {
	if c := CompactJSON(raw); c != nil {
		return c
	}
	return append(json.RawMessage(nil), NullResult...)
}
