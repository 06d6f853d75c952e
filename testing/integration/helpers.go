// Package integration exercises flamez end to end: tracers, handlers,
// sinks and the folded/SVG/pprof formats working together.
package integration

import (
	"context"
	"testing"
	"time"

	"github.com/zoobzio/clockz"

	"github.com/zoobzio/flamez"
)

// Recorder wraps a collector in sync mode with helpers for asserting on
// recorded traces.
type Recorder struct {
	*flamez.Collector
	t *testing.T
}

// NewRecorder creates a recorder closed when the test ends.
func NewRecorder(t *testing.T, name string) *Recorder {
	t.Helper()
	collector := flamez.NewCollector(name, 64)
	collector.SetSyncMode(true)
	t.Cleanup(collector.Close)
	return &Recorder{Collector: collector, t: t}
}

// Tracer returns a tracer on a fake clock whose traces land in the recorder.
func (r *Recorder) Tracer() (*flamez.Tracer, *clockz.FakeClock) {
	r.t.Helper()
	clock := clockz.NewFakeClock()
	tracer := flamez.New().WithClock(clock)
	if err := tracer.OnTraceComplete(r.Handler()); err != nil {
		r.t.Fatalf("OnTraceComplete failed: %v", err)
	}
	return tracer, clock
}

// Context returns a context carrying a fresh recorder tracer.
func (r *Recorder) Context() (context.Context, *clockz.FakeClock) {
	tracer, clock := r.Tracer()
	return flamez.WithTracer(context.Background(), tracer), clock
}

// RequireTraces exports the buffered traces and fails unless there are n.
func (r *Recorder) RequireTraces(n int) []*flamez.Trace {
	r.t.Helper()
	traces := r.Export()
	if len(traces) != n {
		r.t.Fatalf("Expected %d traces, got %d", n, len(traces))
	}
	return traces
}

// Work opens a span named label, advances the clock by self, runs nested
// and closes the span.
func Work(ctx context.Context, clock *clockz.FakeClock, label string, self time.Duration, nested ...func(context.Context)) {
	ctx, span := flamez.Start(ctx, label)
	defer span.Finish()

	clock.Advance(self)
	for _, fn := range nested {
		fn(ctx)
	}
}
