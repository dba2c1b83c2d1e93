// Package ranking turns signal scores into risk bands and sort orders.
package ranking

import (
	"math"

	"github.com/abelbrown/weaksignal/internal/model"
)

// Band thresholds on the overall score. Each is the inclusive lower bound.
const (
	AmberFloor     = 40.0
	RedWatchFloor  = 60.0
	RedActionFloor = 75.0
)

// RiskBand classifies an overall score. NaN reads as 0.
func RiskBand(overall float64) model.Band {
	if math.IsNaN(overall) {
		overall = 0
	}
	switch {
	case overall >= RedActionFloor:
		return model.BandRedAction
	case overall >= RedWatchFloor:
		return model.BandRedWatch
	case overall >= AmberFloor:
		return model.BandAmber
	default:
		return model.BandGreen
	}
}

// EffectiveBand returns the signal's upstream band, or the band derived
// from its overall score when upstream sent none it recognizes.
func EffectiveBand(s model.Signal) model.Band {
	if s.RiskBand.Rank() >= 0 {
		return s.RiskBand
	}
	return RiskBand(s.Scores.Overall)
}

// BackfillBands fills in missing or unrecognized bands from the overall
// score. Upstream bands are trusted and left alone. signals is modified
// in place and returned.
func BackfillBands(signals []model.Signal) []model.Signal {
	for i := range signals {
		signals[i].RiskBand = EffectiveBand(signals[i])
	}
	return signals
}

// CountByBand tallies signals per effective band.
func CountByBand(signals []model.Signal) map[model.Band]int {
	counts := make(map[model.Band]int, 4)
	for _, s := range signals {
		counts[EffectiveBand(s)]++
	}
	return counts
}
