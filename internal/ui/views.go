package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/abelbrown/weaksignal/internal/graph"
	"github.com/abelbrown/weaksignal/internal/model"
	"github.com/abelbrown/weaksignal/internal/ranking"
	"github.com/abelbrown/weaksignal/internal/reconcile"
)

// truncate cuts s to width display cells.
func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	return runewidth.Truncate(s, width, "…")
}

// pad truncates or right-pads s to exactly width cells.
func pad(s string, width int) string {
	return runewidth.FillRight(truncate(s, width), width)
}

// statusIcon is the single-cell marker for an agent status.
func statusIcon(s model.AgentStatus) string {
	switch {
	case s == model.StatusConcluded:
		return "✓"
	case s.Running():
		return "●"
	default:
		return "○"
	}
}

// tail returns the last n non-empty lines of s.
func tail(s string, n int) []string {
	var lines []string
	for _, l := range strings.Split(s, "\n") {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}

// renderAgents lists every agent with its status and the tail of its
// narrative. Concluded agents keep their narrative.
func renderAgents(agents []model.Agent, tailLines, width int) string {
	if len(agents) == 0 {
		return HelpStyle.Render("Waiting for the pipeline to start...")
	}
	var b strings.Builder
	for i, a := range agents {
		if i > 0 {
			b.WriteString("\n")
		}
		status := string(a.Status)
		style := DimStyle
		switch {
		case a.Status == model.StatusConcluded:
			style = CompleteStyle
		case a.Status.Running():
			style = phaseStyle(reconcile.PhaseRunning)
		}
		b.WriteString(style.Render(statusIcon(a.Status) + " " + a.Name))
		b.WriteString("  ")
		b.WriteString(DimStyle.Render(status))
		b.WriteString("\n")
		for _, line := range tail(a.Content, tailLines) {
			b.WriteString("  ")
			b.WriteString(truncate(line, width-2))
			b.WriteString("\n")
		}
	}
	return b.String()
}

// renderSignals draws the signal table ordered by key.
func renderSignals(signals []model.Signal, key ranking.SortKey, cursor, width, height int) string {
	if len(signals) == 0 {
		return HelpStyle.Render("No signals yet. They appear when the synthesis agent concludes.")
	}
	sorted := ranking.SortSignals(signals, key)

	counts := ranking.CountByBand(signals)
	var summary []string
	for _, band := range []model.Band{model.BandRedAction, model.BandRedWatch, model.BandAmber, model.BandGreen} {
		summary = append(summary, bandStyle(band).Render(fmt.Sprintf("%d %s", counts[band], band.Label())))
	}

	nameWidth := width - 4 - 18 - 8 - 24
	if nameWidth < 12 {
		nameWidth = 12
	}

	var b strings.Builder
	b.WriteString(strings.Join(summary, DimStyle.Render("  ·  ")))
	b.WriteString("\n\n")
	b.WriteString(DimStyle.Render(fmt.Sprintf("%3s %s %s %7s  %s", "#", pad("Signal", nameWidth), pad("Domain", 18),
		truncate(key.Label(), 7), "Band")))
	b.WriteString("\n")

	start := 0
	rows := height - 3
	if rows < 1 {
		rows = 1
	}
	if cursor >= rows {
		start = cursor - rows + 1
	}
	for i := start; i < len(sorted) && i < start+rows; i++ {
		s := sorted[i]
		band := ranking.EffectiveBand(s)
		line := fmt.Sprintf("%3d %s %s %7.1f  ", i+1, pad(s.Name, nameWidth), pad(s.Domain, 18), ranking.KeyValue(s, key))
		if i == cursor {
			b.WriteString(SelectedRow.Render(line))
		} else {
			b.WriteString(line)
		}
		b.WriteString(bandStyle(band).Render(band.Label()))
		b.WriteString("\n")
	}
	return b.String()
}

// renderSignalDetail expands one signal below the table, naming the
// signals it shares a constellation with.
func renderSignalDetail(s model.Signal, signals []model.Signal, g graph.Graph, width int) string {
	var b strings.Builder
	b.WriteString(SectionStyle.Render(s.Name))
	b.WriteString("\n")
	sc := s.Scores
	b.WriteString(DimStyle.Render(fmt.Sprintf("impact %.0f  lead %.0f  reliability %.0f  near-term %.0f  structural %.0f  overall %.1f",
		sc.Impact, sc.LeadTime, sc.Reliability, sc.NearTerm, sc.Structural, sc.Overall)))
	b.WriteString("\n")
	if s.WhyActuallyMeaningful != "" {
		b.WriteString(truncate("Why it matters: "+s.WhyActuallyMeaningful, width))
		b.WriteString("\n")
	}
	if ids := g.Neighbors(s.ID); len(ids) > 0 {
		names := make(map[string]string, len(signals))
		for _, sig := range signals {
			names[sig.ID] = sig.Name
		}
		linked := make([]string, 0, len(ids))
		for _, id := range ids {
			if n := names[id]; n != "" {
				linked = append(linked, n)
			} else {
				linked = append(linked, id)
			}
		}
		b.WriteString(truncate("Linked: "+strings.Join(linked, ", "), width))
		b.WriteString("\n")
	}
	for _, trig := range s.MonitoringTriggers {
		b.WriteString(truncate("  watch: "+trig, width))
		b.WriteString("\n")
	}
	return b.String()
}

// renderConstellations lists each constellation with its members and the
// graph edges built from them.
func renderConstellations(signals []model.Signal, constellations []model.Constellation, width int) string {
	if len(constellations) == 0 {
		return HelpStyle.Render("No constellations reported.")
	}
	g := graph.Build(signals, constellations)
	nodes := make(map[string]graph.Node, len(g.Nodes))
	for _, n := range g.Nodes {
		nodes[n.ID] = n
	}

	var b strings.Builder
	b.WriteString(DimStyle.Render(fmt.Sprintf("%d nodes, %d edges", len(g.Nodes), len(g.Edges))))
	b.WriteString("\n")
	for _, c := range constellations {
		b.WriteString(SectionStyle.Render(fmt.Sprintf("%s  (%s)", c.Name, c.Category)))
		b.WriteString("\n")
		if c.Description != "" {
			b.WriteString(truncate(c.Description, width))
			b.WriteString("\n")
		}
		for _, id := range c.SignalIDs {
			n, ok := nodes[id]
			if !ok {
				b.WriteString(DimStyle.Render("  ? " + id + " (not reported)"))
				b.WriteString("\n")
				continue
			}
			b.WriteString("  ")
			b.WriteString(nodeDot(n))
			b.WriteString(" ")
			b.WriteString(truncate(fmt.Sprintf("%s  size %.1f", n.Name, n.Size), width-4))
			b.WriteString("\n")
		}
		for _, e := range g.Edges {
			if e.ConstellationID != c.ID {
				continue
			}
			line := fmt.Sprintf("    %s %s %s", nodes[e.Source].Name, strings.Repeat("═", e.Weight), nodes[e.Target].Name)
			b.WriteString(DimStyle.Render(truncate(line, width)))
			b.WriteString("\n")
		}
		if fm := c.FingerprintMatch; fm != nil && fm.HistoricalCase != nil {
			b.WriteString(truncate("  resembles: "+*fm.HistoricalCase, width))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func nodeDot(n graph.Node) string {
	return bandStyle(n.Band).Render("◆")
}

// renderScenario draws one what-if scenario.
func renderScenario(s reconcile.ScenarioState, width int, spin string) string {
	var b strings.Builder
	head := s.Key
	switch s.Phase {
	case reconcile.PhaseRunning:
		head = spin + " " + head + "  " + string(s.Agent().Status)
	case reconcile.PhaseErrored:
		head = "✗ " + head + "  " + s.Err
	default:
		head = "✓ " + head
	}
	b.WriteString(phaseStyle(s.Phase).Render(truncate(head, width)))
	b.WriteString("\n")

	r := s.Result
	if r == nil {
		for _, line := range tail(s.Agent().Content, 3) {
			b.WriteString(DimStyle.Render(truncate("  "+line, width)))
			b.WriteString("\n")
		}
		return b.String()
	}

	if r.Scenario != "" {
		b.WriteString(truncate("  Scenario: "+r.Scenario, width))
		b.WriteString("\n")
	}
	if r.KeyInsight != "" {
		b.WriteString(truncate("  Insight: "+r.KeyInsight, width))
		b.WriteString("\n")
	}
	if r.NewRiskLevel != "" {
		band := model.Band(strings.ToLower(r.NewRiskLevel))
		b.WriteString("  New risk level: ")
		b.WriteString(bandStyle(band).Render(band.Label()))
		b.WriteString("\n")
	}
	if r.Cascade.Root != "" || len(r.Cascade.FirstOrder) > 0 {
		b.WriteString(truncate("  Cascade: "+r.Cascade.Root, width))
		b.WriteString("\n")
		r.Cascade.Walk(func(n model.CascadeNode, depth int) {
			line := strings.Repeat("  ", depth+2) + "└ " + n.Effect
			if n.Domain != "" {
				line += " [" + n.Domain + "]"
			}
			b.WriteString(truncate(line, width))
			b.WriteString("\n")
		})
	}
	for _, sh := range r.Amplified {
		b.WriteString(bandStyle(model.BandRedWatch).Render(truncate(fmt.Sprintf("  ▲ %s %.0f → %.0f (%+.0f)", sh.SignalID, sh.OriginalScore, sh.NewScore, sh.Delta()), width)))
		b.WriteString("\n")
	}
	for _, sh := range r.Diminished {
		b.WriteString(bandStyle(model.BandGreen).Render(truncate(fmt.Sprintf("  ▼ %s %.0f → %.0f (%+.0f)", sh.SignalID, sh.OriginalScore, sh.NewScore, sh.Delta()), width)))
		b.WriteString("\n")
	}
	for _, em := range r.Emerged {
		band := em.RiskBand
		if band.Rank() < 0 {
			band = ranking.RiskBand(em.Scores.Overall)
		}
		b.WriteString(truncate(fmt.Sprintf("  + %s [%s] %.0f ", em.Name, em.Domain, em.Scores.Overall), width-12))
		b.WriteString(bandStyle(band).Render(string(band)))
		b.WriteString("\n")
	}
	return b.String()
}

// renderRuns draws the run listing.
func renderRuns(runs []model.RunSummary, cursor, width int, current string) string {
	if len(runs) == 0 {
		return HelpStyle.Render("No runs. Press r to reload.")
	}
	var b strings.Builder
	for i, r := range runs {
		marker := " "
		if r.ID == current {
			marker = "*"
		}
		created := r.Created().Local().Format(time.DateTime)
		if r.CreatedAt == 0 {
			created = pad("", len(time.DateTime))
		}
		line := fmt.Sprintf("%s %s  %s  %s  %s ", marker, pad(r.ID, 10), created, pad(r.Country, 16), pad(string(r.Status), 9))
		if i == cursor {
			b.WriteString(SelectedRow.Render(line))
		} else {
			b.WriteString(line)
		}
		if band := r.RiskBand(); band != "" {
			b.WriteString(bandStyle(band).Render(pad(string(band), 10)))
		} else {
			b.WriteString(pad("", 10))
		}
		if r.Assessment != nil {
			b.WriteString(" ")
			b.WriteString(truncate(r.Assessment.Headline, width-runewidth.StringWidth(line)-12))
		}
		b.WriteString("\n")
	}
	return b.String()
}
