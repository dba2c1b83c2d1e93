package e2e

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/abelbrown/weaksignal/internal/event"
	"github.com/abelbrown/weaksignal/internal/model"
)

const fixtureSynthesis = `{
	"scored_signals": [
		{"signal_id": "s1", "name": "Fixture fuel queues", "domain": "economy",
		 "scores": {"impact": 80, "lead_time": 60, "reliability": 70, "overall": 82}, "constellation_id": "c1"},
		{"signal_id": "s2", "name": "Fixture nurse strikes", "domain": "governance",
		 "scores": {"impact": 40, "overall": 45}, "constellation_id": "c1"}
	],
	"constellations": [
		{"id": "c1", "name": "Fixture squeeze", "signal_ids": ["s1", "s2"], "category": "correlated_cluster"}
	],
	"overall_assessment": {"headline": "Fixture stress rising", "risk_level": "amber", "confidence": "medium"}
}`

// seedFixtures writes a recorded run named demo into dir.
func seedFixtures(dir string) error {
	evs := []event.Event{
		event.AgentStart{Agent: model.AgentContext, Status: model.StatusSearching},
		event.AgentChunk{Agent: model.AgentContext, Text: "Fixture context narrative\n"},
		event.AgentComplete{Agent: model.AgentContext, Data: []byte(`{"population": 55}`)},
		event.AgentStart{Agent: model.AgentSynthesis, Status: model.StatusSynthesizing},
		event.AgentComplete{Agent: model.AgentSynthesis, Data: []byte(fixtureSynthesis)},
		event.RunComplete{Data: []byte(`{"config": {"country": "Fixtureland"}, "agents": {"synthesis": ` + fixtureSynthesis + `}}`)},
	}
	var b bytes.Buffer
	for _, ev := range evs {
		line, err := event.Encode(ev)
		if err != nil {
			return err
		}
		b.Write(line)
		b.WriteByte('\n')
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "demo.ndjson"), b.Bytes(), 0644)
}
