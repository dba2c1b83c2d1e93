package reconcile

import (
	"context"
	"sync"

	"github.com/abelbrown/weaksignal/internal/stream"
)

// ScenarioSet multiplexes the scenario reconcilers of one run by key.
// Each member is independent; the set only tracks them. Thread-safe.
type ScenarioSet struct {
	mu      sync.Mutex
	t       stream.Transport
	runID   string
	cfg     ScenarioConfig
	members map[string]*ScenarioReconciler
	order   []string
}

// NewScenarioSet returns an empty set for runID. cfg applies to every
// scenario it opens.
func NewScenarioSet(t stream.Transport, runID string, cfg ScenarioConfig) *ScenarioSet {
	return &ScenarioSet{
		t:       t,
		runID:   runID,
		cfg:     cfg,
		members: make(map[string]*ScenarioReconciler),
	}
}

// Open returns the scenario for key, subscribing to it on first use.
func (s *ScenarioSet) Open(ctx context.Context, key string) (*ScenarioReconciler, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.members[key]; ok {
		return r, nil
	}
	r, err := OpenScenario(ctx, s.t, s.runID, key, s.cfg)
	if err != nil {
		return nil, err
	}
	s.members[key] = r
	s.order = append(s.order, key)
	return r, nil
}

// Get returns the scenario for key, if open.
func (s *ScenarioSet) Get(key string) (*ScenarioReconciler, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.members[key]
	return r, ok
}

// Keys returns scenario keys in the order they were opened.
func (s *ScenarioSet) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// States returns a copy of every scenario's state in open order.
func (s *ScenarioSet) States() []ScenarioState {
	s.mu.Lock()
	members := make([]*ScenarioReconciler, 0, len(s.order))
	for _, k := range s.order {
		members = append(members, s.members[k])
	}
	s.mu.Unlock()

	out := make([]ScenarioState, len(members))
	for i, r := range members {
		out[i] = r.State()
	}
	return out
}

// Close closes every scenario in the set.
func (s *ScenarioSet) Close() {
	s.mu.Lock()
	members := make([]*ScenarioReconciler, 0, len(s.members))
	for _, r := range s.members {
		members = append(members, r)
	}
	s.mu.Unlock()

	for _, r := range members {
		r.Close()
	}
}
