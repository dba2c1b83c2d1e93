package otel

// Goroutine safety:
// The drain goroutine is the sole reader of l.ch and the sole writer to l.w.
// Logger.mu protects only the l.buf pointer.
// drain releases Logger.mu before calling rb.Push().

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// writerChanSize is the capacity of the async write channel.
const writerChanSize = 4096

type logEntry struct {
	data []byte
	ev   Event
}

// Logger writes journal events as JSONL from a background goroutine.
// Goroutine-safe. A nil *Logger accepts and discards every call, so
// components can take an optional journal without guarding each emit.
type Logger struct {
	mu        sync.Mutex
	buf       *RingBuffer
	sessionID string
	ch        chan logEntry
	w         io.Writer
	dropped   atomic.Uint64 // full channel, encode failure or write error
	closed    atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

// NewLogger creates a Logger writing JSONL to w and starts its drain
// goroutine. Call Close to flush and stop.
func NewLogger(w io.Writer) *Logger {
	l := &Logger{
		sessionID: uuid.NewString(),
		ch:        make(chan logEntry, writerChanSize),
		w:         w,
		done:      make(chan struct{}),
	}
	go l.drain()
	return l
}

// NewNullLogger creates a Logger that discards output but still feeds an
// attached ring buffer.
func NewNullLogger() *Logger {
	return NewLogger(io.Discard)
}

func (l *Logger) drain() {
	defer close(l.done)
	for entry := range l.ch {
		if _, err := l.w.Write(entry.data); err != nil {
			l.dropped.Add(1)
		}

		l.mu.Lock()
		rb := l.buf
		l.mu.Unlock()

		if rb != nil {
			rb.Push(entry.ev)
		}
	}
}

// Emit queues e for writing. Sets Time (if zero) and SessionID. Never
// blocks: when the channel is full or the logger is closed the event is
// counted as dropped.
func (l *Logger) Emit(e Event) {
	if l == nil {
		return
	}
	// Close can race between the closed check and the send.
	defer func() {
		if recover() != nil {
			l.dropped.Add(1)
		}
	}()

	if l.closed.Load() {
		l.dropped.Add(1)
		return
	}

	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	e.SessionID = l.sessionID

	data, err := json.Marshal(e)
	if err != nil {
		l.dropped.Add(1)
		return
	}
	data = append(data, '\n')

	select {
	case l.ch <- logEntry{data: data, ev: e}:
	default:
		l.dropped.Add(1)
	}
}

// Info emits an info-level event.
func (l *Logger) Info(kind EventKind, comp string, msg string) {
	l.Emit(Event{Level: LevelInfo, Kind: kind, Comp: comp, Msg: msg})
}

// Warn emits a warn-level event.
func (l *Logger) Warn(kind EventKind, comp string, msg string) {
	l.Emit(Event{Level: LevelWarn, Kind: kind, Comp: comp, Msg: msg})
}

// Error emits an error-level event. A nil err is logged as "".
func (l *Logger) Error(kind EventKind, comp string, err error) {
	errStr := ""
	if err != nil {
		errStr = err.Error()
	}
	l.Emit(Event{Level: LevelError, Kind: kind, Comp: comp, Err: errStr})
}

// Run returns a Scope that stamps comp and runID on every event.
func (l *Logger) Run(comp, runID string) Scope {
	return Scope{l: l, comp: comp, runID: runID}
}

// SetRingBuffer attaches a ring buffer for live inspection.
func (l *Logger) SetRingBuffer(buf *RingBuffer) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf = buf
}

// Dropped returns the number of events dropped since creation.
func (l *Logger) Dropped() uint64 {
	if l == nil {
		return 0
	}
	return l.dropped.Load()
}

// SessionID returns the random id stamped on this logger's events.
func (l *Logger) SessionID() string {
	if l == nil {
		return ""
	}
	return l.sessionID
}

// Close flushes pending events and stops the drain goroutine. Emits
// racing with Close are dropped, not panicked. Idempotent.
func (l *Logger) Close() {
	if l == nil {
		return
	}
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		close(l.ch)
		<-l.done

		if d := l.dropped.Load(); d > 0 {
			fmt.Fprintf(os.Stderr, "weaksignal: %d journal events dropped during session %s\n", d, l.sessionID)
		}
	})
}

// Scope is a Logger bound to one component and run. The zero Scope
// discards everything.
type Scope struct {
	l        *Logger
	comp     string
	runID    string
	scenario string
}

// Scenario returns a copy of s that also stamps the scenario key.
func (s Scope) Scenario(key string) Scope {
	s.scenario = key
	return s
}

// Emit fills in the scope's fields and forwards e.
func (s Scope) Emit(e Event) {
	if e.Comp == "" {
		e.Comp = s.comp
	}
	if e.RunID == "" {
		e.RunID = s.runID
	}
	if e.Scenario == "" {
		e.Scenario = s.scenario
	}
	s.l.Emit(e)
}

// Info emits an info-level event for the scope.
func (s Scope) Info(kind EventKind, msg string) {
	s.Emit(Event{Level: LevelInfo, Kind: kind, Msg: msg})
}

// Warn emits a warn-level event for the scope.
func (s Scope) Warn(kind EventKind, msg string) {
	s.Emit(Event{Level: LevelWarn, Kind: kind, Msg: msg})
}

// Error emits an error-level event for the scope.
func (s Scope) Error(kind EventKind, err error) {
	e := Event{Level: LevelError, Kind: kind}
	if err != nil {
		e.Err = err.Error()
	}
	s.Emit(e)
}
