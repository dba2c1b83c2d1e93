package otel

import (
	"os"
	"sync/atomic"
)

// traceEnabled gates per-event stream.event records, which are too
// chatty for the default journal.
var traceEnabled atomic.Bool

func init() {
	traceEnabled.Store(os.Getenv("WEAKSIGNAL_TRACE") != "")
}

// TraceEnabled reports whether WEAKSIGNAL_TRACE is set or tracing was
// switched on with SetTrace.
func TraceEnabled() bool {
	return traceEnabled.Load()
}

// SetTrace turns per-event tracing on or off.
func SetTrace(v bool) {
	traceEnabled.Store(v)
}
