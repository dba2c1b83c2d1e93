package reconcile

import "github.com/abelbrown/weaksignal/internal/model"

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

func cloneStringPtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneSignals(in []model.Signal) []model.Signal {
	if in == nil {
		return nil
	}
	out := make([]model.Signal, len(in))
	for i, s := range in {
		s.ConstellationID = cloneStringPtr(s.ConstellationID)
		s.MonitoringTriggers = cloneStrings(s.MonitoringTriggers)
		s.NoRegretActions = cloneStrings(s.NoRegretActions)
		out[i] = s
	}
	return out
}

func cloneConstellations(in []model.Constellation) []model.Constellation {
	if in == nil {
		return nil
	}
	out := make([]model.Constellation, len(in))
	for i, c := range in {
		c.SignalIDs = cloneStrings(c.SignalIDs)
		if c.CascadePaths != nil {
			paths := make([]model.CascadePath, len(c.CascadePaths))
			for j, p := range c.CascadePaths {
				p.Path = cloneStrings(p.Path)
				paths[j] = p
			}
			c.CascadePaths = paths
		}
		if c.FingerprintMatch != nil {
			fm := *c.FingerprintMatch
			fm.HistoricalCase = cloneStringPtr(fm.HistoricalCase)
			fm.MatchStrength = cloneStringPtr(fm.MatchStrength)
			fm.MatchingSignals = cloneStrings(fm.MatchingSignals)
			fm.Divergences = cloneStrings(fm.Divergences)
			c.FingerprintMatch = &fm
		}
		out[i] = c
	}
	return out
}

func cloneAssessment(a model.Assessment) model.Assessment {
	a.WhatToWatch = cloneStrings(a.WhatToWatch)
	return a
}

func cloneCascade(nodes []model.CascadeNode) []model.CascadeNode {
	if nodes == nil {
		return nil
	}
	out := make([]model.CascadeNode, len(nodes))
	for i, n := range nodes {
		n.Children = cloneCascade(n.Children)
		out[i] = n
	}
	return out
}

func cloneWhatIf(r *model.WhatIfResult) *model.WhatIfResult {
	if r == nil {
		return nil
	}
	c := *r
	c.Cascade.FirstOrder = cloneCascade(r.Cascade.FirstOrder)
	if r.Amplified != nil {
		c.Amplified = append([]model.ScoreShift(nil), r.Amplified...)
	}
	if r.Diminished != nil {
		c.Diminished = append([]model.ScoreShift(nil), r.Diminished...)
	}
	if r.Emerged != nil {
		c.Emerged = append([]model.EmergentSignal(nil), r.Emerged...)
	}
	return &c
}
