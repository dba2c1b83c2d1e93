package model

import (
	"bytes"
	"fmt"

	"github.com/tidwall/gjson"
)

// CascadeNode is one effect in a what-if cascade tree.
type CascadeNode struct {
	Effect   string        `json:"effect"`
	Domain   string        `json:"domain"`
	Children []CascadeNode `json:"children,omitempty"`
}

// Cascade is the propagation tree rooted at the injected shock.
type Cascade struct {
	Root       string        `json:"root"`
	FirstOrder []CascadeNode `json:"first_order"`
}

// Walk visits every node depth-first, parents before children.
// depth is 0 for first-order effects.
func (c Cascade) Walk(fn func(node CascadeNode, depth int)) {
	var visit func(nodes []CascadeNode, depth int)
	visit = func(nodes []CascadeNode, depth int) {
		for _, n := range nodes {
			fn(n, depth)
			visit(n.Children, depth+1)
		}
	}
	visit(c.FirstOrder, 0)
}

// ScoreShift records an existing signal whose score a scenario moves.
type ScoreShift struct {
	SignalID      string  `json:"signal_id"`
	OriginalScore float64 `json:"original_overall_score"`
	NewScore      float64 `json:"new_overall_score"`
	Reason        string  `json:"reason,omitempty"`
}

// Delta is NewScore minus OriginalScore.
func (s ScoreShift) Delta() float64 { return s.NewScore - s.OriginalScore }

// EmergentSignal is a signal that only appears under the scenario.
type EmergentSignal struct {
	Name        string `json:"name"`
	Domain      string `json:"domain"`
	Description string `json:"description,omitempty"`
	Scores      Scores `json:"scores"`
	RiskBand    Band   `json:"risk_band"`
}

// WhatIfResult is the terminal payload of a scenario stream.
type WhatIfResult struct {
	Scenario     string           `json:"scenario"`
	Cascade      Cascade          `json:"cascade"`
	Amplified    []ScoreShift     `json:"amplified_signals"`
	Diminished   []ScoreShift     `json:"diminished_signals"`
	Emerged      []EmergentSignal `json:"new_signals"`
	NewRiskLevel string           `json:"new_overall_risk_level"`
	KeyInsight   string           `json:"key_insight"`
}

// Headline summarizes the result for one-line displays: the key insight,
// else the scenario text. Safe on a nil result.
func (r *WhatIfResult) Headline() string {
	if r == nil {
		return ""
	}
	if r.KeyInsight != "" {
		return r.KeyInsight
	}
	return r.Scenario
}

// ParseWhatIf decodes a what-if payload field by field. A null or empty
// payload yields a nil result; any other non-object yields a nil result
// and one issue. List items and cascade nodes that cannot be read are
// skipped and reported, the rest of the result is kept.
func ParseWhatIf(raw []byte) (*WhatIfResult, []error) {
	res := gjson.ParseBytes(raw)
	if len(bytes.TrimSpace(raw)) == 0 || res.Type == gjson.Null {
		return nil, nil
	}
	if !res.IsObject() {
		return nil, []error{fmt.Errorf("what-if result: expected object, got %s", res.Type)}
	}

	var issues []error
	out := &WhatIfResult{
		Scenario:     text(res.Get("scenario")),
		NewRiskLevel: text(res.Get("new_overall_risk_level")),
		KeyInsight:   text(res.Get("key_insight")),
	}

	if c := res.Get("cascade"); c.IsObject() {
		out.Cascade.Root = text(c.Get("root"))
		out.Cascade.FirstOrder = cascadeNodes(c.Get("first_order"), "cascade.first_order", &issues)
	} else if c.Exists() && c.Type != gjson.Null {
		issues = append(issues, fmt.Errorf("cascade: expected object, got %s", c.Type))
	}

	out.Amplified = scoreShifts(res.Get("amplified_signals"), "amplified_signals", &issues)
	out.Diminished = scoreShifts(res.Get("diminished_signals"), "diminished_signals", &issues)

	if f := res.Get("new_signals"); f.IsArray() {
		out.Emerged = make([]EmergentSignal, 0, len(f.Array()))
		f.ForEach(func(key, v gjson.Result) bool {
			if !v.IsObject() {
				issues = append(issues, fmt.Errorf("new_signals[%d]: expected object, got %s", key.Int(), v.Type))
				return true
			}
			out.Emerged = append(out.Emerged, EmergentSignal{
				Name:        text(v.Get("name")),
				Domain:      text(v.Get("domain")),
				Description: text(v.Get("description")),
				Scores:      scoresOf(v.Get("scores")),
				RiskBand:    Band(text(v.Get("risk_band"))),
			})
			return true
		})
	} else if f.Exists() && f.Type != gjson.Null {
		issues = append(issues, fmt.Errorf("new_signals: expected array, got %s", f.Type))
	}

	return out, issues
}

// scoreShifts reads a list of score shifts. Scores accept numbers and
// numeric strings; anything else reads as 0.
func scoreShifts(f gjson.Result, field string, issues *[]error) []ScoreShift {
	if !f.IsArray() {
		if f.Exists() && f.Type != gjson.Null {
			*issues = append(*issues, fmt.Errorf("%s: expected array, got %s", field, f.Type))
		}
		return nil
	}
	out := make([]ScoreShift, 0, len(f.Array()))
	f.ForEach(func(key, v gjson.Result) bool {
		if !v.IsObject() {
			*issues = append(*issues, fmt.Errorf("%s[%d]: expected object, got %s", field, key.Int(), v.Type))
			return true
		}
		out = append(out, ScoreShift{
			SignalID:      text(v.Get("signal_id")),
			OriginalScore: score(v.Get("original_overall_score")),
			NewScore:      score(v.Get("new_overall_score")),
			Reason:        text(v.Get("reason")),
		})
		return true
	})
	return out
}

func cascadeNodes(f gjson.Result, field string, issues *[]error) []CascadeNode {
	if !f.IsArray() {
		if f.Exists() && f.Type != gjson.Null {
			*issues = append(*issues, fmt.Errorf("%s: expected array, got %s", field, f.Type))
		}
		return nil
	}
	out := make([]CascadeNode, 0, len(f.Array()))
	f.ForEach(func(key, v gjson.Result) bool {
		path := fmt.Sprintf("%s[%d]", field, key.Int())
		if !v.IsObject() {
			*issues = append(*issues, fmt.Errorf("%s: expected object, got %s", path, v.Type))
			return true
		}
		n := CascadeNode{
			Effect: text(v.Get("effect")),
			Domain: text(v.Get("domain")),
		}
		if kids := cascadeNodes(v.Get("children"), path+".children", issues); len(kids) > 0 {
			n.Children = kids
		}
		out = append(out, n)
		return true
	})
	return out
}
