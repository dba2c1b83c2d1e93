package reconcile

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/abelbrown/weaksignal/internal/event"
	"github.com/abelbrown/weaksignal/internal/logging"
	"github.com/abelbrown/weaksignal/internal/otel"
	"github.com/abelbrown/weaksignal/internal/stream"
)

// machine is the per-stream state logic shared by runs and scenarios.
// Its methods are only called with core.mu held.
type machine[S any] interface {
	// apply folds ev into the state. terminal means the stream is done.
	apply(ev event.Event, log otel.Scope) (changed, terminal bool)
	// fail records a transport-level failure while still running.
	fail(msg string) bool
	snapshot() S
}

// core drives a machine from a transport. It holds the closed flag that
// makes the state immutable once the stream is done or the caller closes.
//
// Lock order: notifyMu before mu. Observers run with notifyMu held and mu
// released, so they may call State and Close but not Apply.
type core[S any] struct {
	notifyMu sync.Mutex
	mu       sync.Mutex

	m         machine[S]
	observers []func(S)
	log       otel.Scope
	label     string

	closed    bool
	body      io.ReadCloser
	cancel    context.CancelFunc
	done      chan struct{}
	doneOnce  sync.Once
	closeOnce sync.Once
}

func newCore[S any](m machine[S], observers []func(S), log otel.Scope, label string) *core[S] {
	return &core[S]{
		m:         m,
		observers: observers,
		log:       log,
		label:     label,
		cancel:    func() {},
		done:      make(chan struct{}),
	}
}

// state returns a copy of the current state.
func (c *core[S]) state() S {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.m.snapshot()
}

// apply feeds one event. Events after close are dropped.
func (c *core[S]) apply(ev event.Event) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if otel.TraceEnabled() {
		c.log.Emit(otel.Event{Level: otel.LevelDebug, Kind: otel.KindStreamEvent, EventType: string(ev.Kind()), Agent: agentOf(ev)})
	}
	changed, terminal := c.m.apply(ev, c.log)
	c.finishLocked(changed, terminal)
}

// fail records a transport failure unless the stream already finished.
func (c *core[S]) fail(msg string) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	changed := c.m.fail(msg)
	c.finishLocked(changed, changed)
}

// finishLocked releases mu, closing the stream first when terminal and
// notifying observers when the state changed. Caller holds notifyMu.
func (c *core[S]) finishLocked(changed, terminal bool) {
	var snap S
	if changed {
		snap = c.m.snapshot()
	}
	var body io.ReadCloser
	if terminal {
		c.closed = true
		body = c.body
		c.body = nil
	}
	cancel := c.cancel
	c.mu.Unlock()

	if terminal {
		c.release(body, cancel)
		c.log.Info(otel.KindStreamClose, c.label+" finished")
	}
	if changed {
		for _, obs := range c.observers {
			obs(snap)
		}
	}
}

func (c *core[S]) release(body io.ReadCloser, cancel context.CancelFunc) {
	cancel()
	if body != nil {
		body.Close()
	}
	c.doneOnce.Do(func() { close(c.done) })
}

// close stops consumption. No state change happens after it returns.
func (c *core[S]) close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		body := c.body
		c.body = nil
		cancel := c.cancel
		c.mu.Unlock()

		c.release(body, cancel)
	})
}

// start opens the stream and pumps it on a new goroutine.
func (c *core[S]) start(ctx context.Context, open func(context.Context) (io.ReadCloser, error)) {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	go c.pump(ctx, open)
}

func (c *core[S]) pump(ctx context.Context, open func(context.Context) (io.ReadCloser, error)) {
	body, err := open(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logging.Warn("stream open failed", "stream", c.label, "err", err)
			c.log.Error(otel.KindStreamDisconnect, err)
		}
		c.fail(MsgStreamUnavailable)
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		body.Close()
		return
	}
	c.body = body
	c.mu.Unlock()
	c.log.Info(otel.KindStreamOpen, c.label)

	r := stream.NewReader(body)
	for {
		line, err := r.Next()
		if errors.Is(err, stream.ErrLineTooLong) {
			logging.Warn("dropping oversized line", "stream", c.label, "limit", stream.MaxLineSize)
			c.log.Emit(otel.Event{Level: otel.LevelWarn, Kind: otel.KindStreamDrop, Err: err.Error()})
			continue
		}
		if err != nil {
			if !c.isClosed() {
				if errors.Is(err, io.EOF) {
					logging.Warn("stream ended before a terminal event", "stream", c.label)
				} else {
					logging.Warn("stream read failed", "stream", c.label, "err", err)
				}
				c.log.Error(otel.KindStreamDisconnect, err)
			}
			c.fail(MsgConnectionLost)
			return
		}

		ev, err := event.Decode(line)
		if err != nil {
			logging.Warn("dropping malformed event", "stream", c.label, "err", err)
			c.log.Emit(otel.Event{Level: otel.LevelWarn, Kind: otel.KindStreamDrop, Err: err.Error(), Bytes: len(line)})
			continue
		}
		if u, ok := ev.(event.Unknown); ok {
			logging.Debug("ignoring unknown event", "stream", c.label, "type", u.Type)
			continue
		}
		c.apply(ev)
	}
}

func (c *core[S]) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func agentOf(ev event.Event) string {
	switch e := ev.(type) {
	case event.AgentStart:
		return e.Agent
	case event.AgentChunk:
		return e.Agent
	case event.AgentComplete:
		return e.Agent
	}
	return ""
}

// logIssues reports recoverable payload problems.
func logIssues(log otel.Scope, what string, issues []error) {
	for _, err := range issues {
		logging.Warn("skipping unreadable payload part", "payload", what, "err", err)
		log.Emit(otel.Event{Level: otel.LevelWarn, Kind: otel.KindStreamDrop, Msg: what, Err: err.Error()})
	}
}
