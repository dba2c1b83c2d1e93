package model

import (
	"errors"

	"github.com/tidwall/gjson"
)

// Band is a signal's risk band. Bands are ordered green < amber < red_watch < red_action.
type Band string

const (
	BandGreen     Band = "green"
	BandAmber     Band = "amber"
	BandRedWatch  Band = "red_watch"
	BandRedAction Band = "red_action"
)

// Rank orders bands from 0 (green) to 3 (red_action). Unknown bands rank -1.
func (b Band) Rank() int {
	switch b {
	case BandGreen:
		return 0
	case BandAmber:
		return 1
	case BandRedWatch:
		return 2
	case BandRedAction:
		return 3
	default:
		return -1
	}
}

// Label returns the human label for the band.
func (b Band) Label() string {
	switch b {
	case BandGreen:
		return "Green - Monitor"
	case BandAmber:
		return "Amber - Watch"
	case BandRedWatch:
		return "Red-Watch - Emerging"
	case BandRedAction:
		return "Red-Action - Critical"
	default:
		return "Unknown"
	}
}

// Color returns the band's hex colour.
func (b Band) Color() string {
	switch b {
	case BandGreen:
		return "#22c55e"
	case BandAmber:
		return "#eab308"
	case BandRedWatch:
		return "#f97316"
	case BandRedAction:
		return "#ef4444"
	default:
		return "#666666"
	}
}

// Scores holds a signal's named score dimensions, each conceptually 0-100.
type Scores struct {
	Impact      float64 `json:"impact"`
	LeadTime    float64 `json:"lead_time"`
	Reliability float64 `json:"reliability"`
	NearTerm    float64 `json:"near_term"`
	Structural  float64 `json:"structural"`
	Overall     float64 `json:"overall"`
}

// scoresOf reads each dimension leniently: numbers and numeric strings
// are accepted, anything else (missing, null, prose) reads as 0.
func scoresOf(res gjson.Result) Scores {
	return Scores{
		Impact:      score(res.Get("impact")),
		LeadTime:    score(res.Get("lead_time")),
		Reliability: score(res.Get("reliability")),
		NearTerm:    score(res.Get("near_term")),
		Structural:  score(res.Get("structural")),
		Overall:     score(res.Get("overall")),
	}
}

func score(v gjson.Result) float64 {
	switch v.Type {
	case gjson.Number, gjson.String:
		return v.Float()
	default:
		return 0
	}
}

// text reads a free-text field. Scalars keep their literal form;
// objects, arrays and null read as "".
func text(v gjson.Result) string {
	switch v.Type {
	case gjson.String:
		return v.Str
	case gjson.Number, gjson.True, gjson.False:
		return v.Raw
	default:
		return ""
	}
}

// textList reads a list of strings. A lone string is a one-item list;
// non-scalar items are skipped.
func textList(v gjson.Result) []string {
	switch {
	case v.IsArray():
		var out []string
		for _, item := range v.Array() {
			if t := text(item); t != "" {
				out = append(out, t)
			}
		}
		return out
	case v.Type == gjson.String && v.Str != "":
		return []string{v.Str}
	default:
		return nil
	}
}

// Perspectives records what each upstream agent said about a signal.
type Perspectives struct {
	SignalHunter   string `json:"signal_hunter,omitempty"`
	Corroboration  string `json:"corroboration,omitempty"`
	DevilsAdvocate string `json:"devils_advocate,omitempty"`
}

// Signal is one detected weak signal.
// ConstellationID is a weak back-reference; the constellation may be unknown.
type Signal struct {
	ID                    string       `json:"signal_id"`
	Name                  string       `json:"name"`
	Domain                string       `json:"domain"`
	Description           string       `json:"description,omitempty"`
	WhyLooksLikeNoise     string       `json:"why_looks_like_noise,omitempty"`
	WhyActuallyMeaningful string       `json:"why_actually_meaningful,omitempty"`
	EvidenceChain         string       `json:"evidence_chain,omitempty"`
	Perspectives          Perspectives `json:"agent_perspectives"`
	Scores                Scores       `json:"scores"`
	RiskBand              Band         `json:"risk_band"`
	ConstellationID       *string      `json:"constellation_id"`
	MonitoringTriggers    []string     `json:"monitoring_triggers,omitempty"`
	NoRegretActions       []string     `json:"no_regret_actions,omitempty"`
}

var (
	errSignalNotObject = errors.New("signal is not an object")
	errSignalID        = errors.New("signal_id is not a string")
)

// UnmarshalJSON decodes a signal field by field so one badly typed
// optional field does not lose the signal. Only a non-object value or a
// non-string signal_id is rejected. Scores that are not an object read
// as zero.
func (s *Signal) UnmarshalJSON(data []byte) error {
	res := gjson.ParseBytes(data)
	if !res.IsObject() {
		return errSignalNotObject
	}
	id := res.Get("signal_id")
	if id.Exists() && id.Type != gjson.String && id.Type != gjson.Null {
		return errSignalID
	}

	p := res.Get("agent_perspectives")
	*s = Signal{
		ID:                    id.Str,
		Name:                  text(res.Get("name")),
		Domain:                text(res.Get("domain")),
		Description:           text(res.Get("description")),
		WhyLooksLikeNoise:     text(res.Get("why_looks_like_noise")),
		WhyActuallyMeaningful: text(res.Get("why_actually_meaningful")),
		EvidenceChain:         text(res.Get("evidence_chain")),
		Perspectives: Perspectives{
			SignalHunter:   text(p.Get("signal_hunter")),
			Corroboration:  text(p.Get("corroboration")),
			DevilsAdvocate: text(p.Get("devils_advocate")),
		},
		RiskBand:           Band(text(res.Get("risk_band"))),
		MonitoringTriggers: textList(res.Get("monitoring_triggers")),
		NoRegretActions:    textList(res.Get("no_regret_actions")),
	}
	if sc := res.Get("scores"); sc.IsObject() {
		s.Scores = scoresOf(sc)
	}
	if c := text(res.Get("constellation_id")); c != "" {
		s.ConstellationID = &c
	}
	return nil
}

// ConstellationCategory classifies a cluster of signals.
type ConstellationCategory string

const (
	CategoryIsolated          ConstellationCategory = "isolated"
	CategoryCorrelatedCluster ConstellationCategory = "correlated_cluster"
	CategoryFingerprintMatch  ConstellationCategory = "fingerprint_match"
)

// CascadePath is a chain of effects across domains.
type CascadePath struct {
	Path        []string `json:"path"`
	Description string   `json:"description,omitempty"`
}

// FingerprintMatch claims resemblance to a historical pre-crisis pattern.
type FingerprintMatch struct {
	HistoricalCase       *string  `json:"historical_case"`
	MatchStrength        *string  `json:"match_strength"`
	MatchingSignals      []string `json:"matching_signals,omitempty"`
	Divergences          []string `json:"divergences,omitempty"`
	HistoricalTimeline   string   `json:"historical_timeline,omitempty"`
	CurrentStageEstimate string   `json:"current_stage_estimate,omitempty"`
}

// Constellation is a named cluster of signal ids.
// SignalIDs may reference signals that are not present.
type Constellation struct {
	ID               string                `json:"id"`
	Name             string                `json:"name"`
	SignalIDs        []string              `json:"signal_ids"`
	Category         ConstellationCategory `json:"category"`
	Description      string                `json:"description,omitempty"`
	CascadePaths     []CascadePath         `json:"cascade_paths,omitempty"`
	FingerprintMatch *FingerprintMatch     `json:"fingerprint_match"`
}

// Assessment is the run's overall verdict, produced once by the synthesis agent.
type Assessment struct {
	Headline         string   `json:"headline"`
	RiskLevel        string   `json:"risk_level"`
	KeyConcern       string   `json:"key_concern"`
	Confidence       string   `json:"confidence"`
	WhatToWatch      []string `json:"what_to_watch"`
	TimelineEstimate string   `json:"timeline_estimate"`
}

// IsEmpty reports whether a is the empty placeholder assessment.
// The placeholder stands in for an assessment when the synthesis output
// carried only a bare signal list.
func (a Assessment) IsEmpty() bool {
	return a.Headline == "" && a.RiskLevel == "" && a.KeyConcern == "" &&
		a.Confidence == "" && len(a.WhatToWatch) == 0 && a.TimelineEstimate == ""
}
