package reconcile

import (
	"encoding/json"

	"github.com/abelbrown/weaksignal/internal/model"
)

// agentBook tracks the agents of one stream in roster order. Content is
// kept as a byte slice so chunk appends are amortized O(1); it is
// materialized into model.Agent only when a snapshot is taken.
type agentBook struct {
	order   []string
	entries map[string]*agentEntry
}

type agentEntry struct {
	spec    model.AgentSpec
	status  model.AgentStatus
	content []byte
	result  json.RawMessage
}

func newAgentBook(roster []model.AgentSpec) *agentBook {
	b := &agentBook{entries: make(map[string]*agentEntry, len(roster))}
	for _, spec := range roster {
		if _, dup := b.entries[spec.ID]; dup {
			continue
		}
		b.order = append(b.order, spec.ID)
		b.entries[spec.ID] = &agentEntry{spec: spec, status: model.StatusIdle}
	}
	return b
}

// start moves a known agent into a running status and clears its content
// and any earlier result.
func (b *agentBook) start(id string, status model.AgentStatus) bool {
	e, ok := b.entries[id]
	if !ok {
		return false
	}
	e.status = status
	e.content = e.content[:0]
	e.result = nil
	return true
}

func (b *agentBook) chunk(id, text string) bool {
	e, ok := b.entries[id]
	if !ok || text == "" {
		return false
	}
	e.content = append(e.content, text...)
	return true
}

// conclude marks a known agent concluded with data as its result. A
// missing payload concludes with model.NullResult.
func (b *agentBook) conclude(id string, data []byte) bool {
	e, ok := b.entries[id]
	if !ok {
		return false
	}
	e.status = model.StatusConcluded
	e.result = model.ResultJSON(data)
	return true
}

func (b *agentBook) known(id string) bool {
	_, ok := b.entries[id]
	return ok
}

func (b *agentBook) snapshot() []model.Agent {
	out := make([]model.Agent, 0, len(b.order))
	for _, id := range b.order {
		e := b.entries[id]
		a := model.NewAgent(e.spec)
		a.Status = e.status
		a.Content = string(e.content)
		a.Result = e.result
		out = append(out, a.Clone())
	}
	return out
}
