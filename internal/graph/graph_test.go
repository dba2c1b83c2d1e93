package graph

import (
	"reflect"
	"testing"

	"github.com/abelbrown/weaksignal/internal/model"
)

func sig(id string, overall float64) model.Signal {
	return model.Signal{ID: id, Name: id, Scores: model.Scores{Overall: overall}}
}

func TestBuildNoConstellations(t *testing.T) {
	g := Build([]model.Signal{sig("a", 10), sig("b", 80)}, nil)
	if len(g.Nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(g.Nodes))
	}
	if len(g.Edges) != 0 {
		t.Errorf("expected no edges, got %v", g.Edges)
	}
}

func TestBuildSkipsDanglingMembers(t *testing.T) {
	g := Build(
		[]model.Signal{sig("x", 50), sig("y", 50)},
		[]model.Constellation{{ID: "c1", SignalIDs: []string{"x", "y", "z"}, Category: model.CategoryCorrelatedCluster}},
	)
	if len(g.Edges) != 1 {
		t.Fatalf("expected exactly one edge, got %v", g.Edges)
	}
	e := g.Edges[0]
	if e.Source != "x" || e.Target != "y" {
		t.Errorf("expected edge x-y, got %s-%s", e.Source, e.Target)
	}
	for _, e := range g.Edges {
		if e.Source == "z" || e.Target == "z" {
			t.Errorf("edge touches unknown signal z: %+v", e)
		}
	}
}

func TestBuildCompletePairs(t *testing.T) {
	signals := []model.Signal{sig("a", 1), sig("b", 2), sig("c", 3), sig("d", 4)}
	g := Build(signals, []model.Constellation{
		{ID: "fp", SignalIDs: []string{"a", "b", "c", "d", "a"}, Category: model.CategoryFingerprintMatch},
		{ID: "iso", SignalIDs: []string{"d"}, Category: model.CategoryIsolated},
	})
	if len(g.Edges) != 6 {
		t.Fatalf("expected 6 edges for a 4-member clique, got %d", len(g.Edges))
	}
	for _, e := range g.Edges {
		if e.Weight != 3 {
			t.Errorf("fingerprint edges should weigh 3, got %d", e.Weight)
		}
		if e.Source == e.Target {
			t.Errorf("self edge %+v", e)
		}
	}
	if got := g.Neighbors("a"); !reflect.DeepEqual(got, []string{"b", "c", "d"}) {
		t.Errorf("neighbors of a: %v", got)
	}
}

func TestEdgeWeight(t *testing.T) {
	tests := map[model.ConstellationCategory]int{
		model.CategoryFingerprintMatch:  3,
		model.CategoryCorrelatedCluster: 2,
		model.CategoryIsolated:          1,
		"something_new":                 1,
	}
	for cat, want := range tests {
		if got := EdgeWeight(cat); got != want {
			t.Errorf("EdgeWeight(%s) = %d, want %d", cat, got, want)
		}
	}
}

func TestNodeSizeAndColor(t *testing.T) {
	g := Build([]model.Signal{
		sig("zero", 0),
		sig("big", 80),
		{ID: "banded", RiskBand: model.BandGreen, Scores: model.Scores{Overall: 90}},
	}, nil)

	if g.Nodes[0].Size != MinNodeSize {
		t.Errorf("zero-score node should be floored at %v, got %v", MinNodeSize, g.Nodes[0].Size)
	}
	if g.Nodes[1].Size != 8 {
		t.Errorf("expected size 8, got %v", g.Nodes[1].Size)
	}
	if g.Nodes[1].Color != model.BandRedAction.Color() {
		t.Errorf("expected backfilled red_action colour, got %s", g.Nodes[1].Color)
	}
	if g.Nodes[2].Band != model.BandGreen {
		t.Errorf("upstream band should be trusted, got %s", g.Nodes[2].Band)
	}
	if NodeSize(20) > NodeSize(55) {
		t.Error("NodeSize should be monotonic")
	}
}

func TestBuildDeterministic(t *testing.T) {
	signals := []model.Signal{sig("a", 70), sig("b", 30), sig("c", 50)}
	cons := []model.Constellation{
		{ID: "c1", SignalIDs: []string{"c", "a"}, Category: model.CategoryCorrelatedCluster},
		{ID: "c2", SignalIDs: []string{"b", "c", "a"}, Category: model.CategoryIsolated},
	}
	first := Build(signals, cons)
	for i := 0; i < 10; i++ {
		if !reflect.DeepEqual(first, Build(signals, cons)) {
			t.Fatal("Build is not deterministic")
		}
	}
}
