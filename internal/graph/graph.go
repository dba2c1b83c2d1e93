// Package graph derives the constellation graph from reconciled signals.
package graph

import (
	"math"

	"github.com/abelbrown/weaksignal/internal/model"
	"github.com/abelbrown/weaksignal/internal/ranking"
)

// MinNodeSize keeps zero-score signals visible.
const MinNodeSize = 3.0

// Node is one signal in the graph.
type Node struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Domain          string     `json:"domain"`
	Overall         float64    `json:"overall"`
	Band            model.Band `json:"band"`
	Size            float64    `json:"size"`
	Color           string     `json:"color"`
	ConstellationID string     `json:"constellation_id,omitempty"`
}

// Edge joins two signals that share a constellation. Source precedes
// Target in the constellation's member order.
type Edge struct {
	Source          string `json:"source"`
	Target          string `json:"target"`
	Weight          int    `json:"weight"`
	ConstellationID string `json:"constellation_id"`
	Category        string `json:"category"`
}

// Graph is the node/edge view of one run.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// NodeSize maps an overall score to a node radius: overall/10, floored
// at MinNodeSize.
func NodeSize(overall float64) float64 {
	if math.IsNaN(overall) {
		return MinNodeSize
	}
	return math.Max(MinNodeSize, overall/10)
}

// EdgeWeight returns the visual weight of edges inside a constellation.
func EdgeWeight(category model.ConstellationCategory) int {
	switch category {
	case model.CategoryFingerprintMatch:
		return 3
	case model.CategoryCorrelatedCluster:
		return 2
	default:
		return 1
	}
}

// Build returns one node per signal and, for every constellation, an edge
// between each unordered pair of members that are both known signals.
// Member ids with no matching signal are skipped, as are repeated ids
// within one constellation. Output order follows input order.
func Build(signals []model.Signal, constellations []model.Constellation) Graph {
	g := Graph{
		Nodes: make([]Node, 0, len(signals)),
		Edges: []Edge{},
	}

	known := make(map[string]bool, len(signals))
	for _, s := range signals {
		if known[s.ID] {
			continue
		}
		known[s.ID] = true

		band := ranking.EffectiveBand(s)
		n := Node{
			ID:      s.ID,
			Name:    s.Name,
			Domain:  s.Domain,
			Overall: ranking.KeyValue(s, ranking.KeyOverall),
			Band:    band,
			Size:    NodeSize(s.Scores.Overall),
			Color:   band.Color(),
		}
		if s.ConstellationID != nil {
			n.ConstellationID = *s.ConstellationID
		}
		g.Nodes = append(g.Nodes, n)
	}

	for _, c := range constellations {
		members := make([]string, 0, len(c.SignalIDs))
		seen := make(map[string]bool, len(c.SignalIDs))
		for _, id := range c.SignalIDs {
			if !known[id] || seen[id] {
				continue
			}
			seen[id] = true
			members = append(members, id)
		}

		weight := EdgeWeight(c.Category)
		for i := 0; i < len(members); i++ {
			for j := i + 1; j < len(members); j++ {
				g.Edges = append(g.Edges, Edge{
					Source:          members[i],
					Target:          members[j],
					Weight:          weight,
					ConstellationID: c.ID,
					Category:        string(c.Category),
				})
			}
		}
	}

	return g
}

// Neighbors returns the ids adjacent to id, in edge order, without repeats.
func (g Graph) Neighbors(id string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, e := range g.Edges {
		var other string
		switch id {
		case e.Source:
			other = e.Target
		case e.Target:
			other = e.Source
		default:
			continue
		}
		if !seen[other] {
			seen[other] = true
			out = append(out, other)
		}
	}
	return out
}
