package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/abelbrown/weaksignal/internal/event"
	"github.com/abelbrown/weaksignal/internal/logging"
	"github.com/abelbrown/weaksignal/internal/model"
	"github.com/abelbrown/weaksignal/internal/otel"
	"github.com/abelbrown/weaksignal/internal/stream"
)

// CachedTransport serves finished runs and scenarios from the store and
// falls through to Next for everything else. A cached run is delivered
// the way the producer delivers an already-completed run: a single
// run_complete line carrying the snapshot.
type CachedTransport struct {
	Store   *Store
	Next    stream.Transport // nil serves the cache only
	Journal *otel.Logger
}

var _ stream.Transport = CachedTransport{}

// OpenRun implements stream.Transport.
func (t CachedTransport) OpenRun(ctx context.Context, runID string) (io.ReadCloser, error) {
	raw, err := t.Store.Snapshot(runID)
	if err == nil {
		t.Journal.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindStoreHit, Comp: "store", RunID: runID, Bytes: len(raw)})
		return oneLine(event.RunComplete{Data: raw})
	}
	t.miss(err, runID)
	if t.Next == nil {
		return nil, err
	}
	return t.Next.OpenRun(ctx, runID)
}

// OpenScenario implements stream.Transport. A cached what-if result is
// delivered as the synthesizer's agent_complete, which ends a scenario.
func (t CachedTransport) OpenScenario(ctx context.Context, runID, key string) (io.ReadCloser, error) {
	raw, err := t.Store.Scenario(runID, key)
	if err == nil {
		t.Journal.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindStoreHit, Comp: "store", RunID: runID, Scenario: key, Bytes: len(raw)})
		return oneLine(event.AgentComplete{Agent: model.AgentWhatIf, Data: raw})
	}
	t.miss(err, runID)
	if t.Next == nil {
		return nil, err
	}
	return t.Next.OpenScenario(ctx, runID, key)
}

func (t CachedTransport) miss(err error, runID string) {
	if errors.Is(err, ErrNotFound) {
		return
	}
	logging.Warn("cache lookup failed", "run", runID, "err", err)
	t.Journal.Emit(otel.Event{Level: otel.LevelWarn, Kind: otel.KindStoreError, Comp: "store", RunID: runID, Err: err.Error()})
}

func oneLine(ev event.Event) (io.ReadCloser, error) {
	line, err := event.Encode(ev)
	if err != nil {
		return nil, fmt.Errorf("encode cached event: %w", err)
	}
	return io.NopCloser(bytes.NewReader(append(line, '\n'))), nil
}
