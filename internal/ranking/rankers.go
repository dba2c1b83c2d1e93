package ranking

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/abelbrown/weaksignal/internal/model"
)

// SortKey names a score dimension signals can be ordered by.
type SortKey string

const (
	KeyOverall     SortKey = "overall"
	KeyImpact      SortKey = "impact"
	KeyLeadTime    SortKey = "lead_time"
	KeyReliability SortKey = "reliability"
	KeyNearTerm    SortKey = "near_term"
	KeyStructural  SortKey = "structural"
)

// SortKeys lists every key in display order.
var SortKeys = []SortKey{KeyOverall, KeyImpact, KeyLeadTime, KeyReliability, KeyNearTerm, KeyStructural}

// Label returns the column header for the key.
func (k SortKey) Label() string {
	switch k {
	case KeyOverall:
		return "Overall"
	case KeyImpact:
		return "Impact"
	case KeyLeadTime:
		return "Lead Time"
	case KeyReliability:
		return "Reliability"
	case KeyNearTerm:
		return "Near-term"
	case KeyStructural:
		return "Structural"
	default:
		return string(k)
	}
}

// Next cycles to the following key in SortKeys.
func (k SortKey) Next() SortKey {
	for i, key := range SortKeys {
		if key == k {
			return SortKeys[(i+1)%len(SortKeys)]
		}
	}
	return KeyOverall
}

// ParseSortKey accepts a key name case-insensitively, with "-" or "_".
func ParseSortKey(s string) (SortKey, error) {
	norm := SortKey(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	for _, k := range SortKeys {
		if k == norm {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown sort key %q", s)
}

// KeyValue returns the signal's score for key. Unknown keys and NaN
// scores read as 0, so a missing score sorts like a zero score.
func KeyValue(s model.Signal, key SortKey) float64 {
	var v float64
	switch key {
	case KeyOverall:
		v = s.Scores.Overall
	case KeyImpact:
		v = s.Scores.Impact
	case KeyLeadTime:
		v = s.Scores.LeadTime
	case KeyReliability:
		v = s.Scores.Reliability
	case KeyNearTerm:
		v = s.Scores.NearTerm
	case KeyStructural:
		v = s.Scores.Structural
	}
	if math.IsNaN(v) {
		return 0
	}
	return v
}

// SortSignals returns a copy of signals ordered by key, highest first.
// Ties keep their input order.
func SortSignals(signals []model.Signal, key SortKey) []model.Signal {
	out := make([]model.Signal, len(signals))
	copy(out, signals)
	sort.SliceStable(out, func(i, j int) bool {
		return KeyValue(out[i], key) > KeyValue(out[j], key)
	})
	return out
}
