package flamez

import (
	"context"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
)

// newTestTracer returns a tracer on a fake clock and a function advancing it.
func newTestTracer() (*Tracer, func(time.Duration)) {
	clock := clockz.NewFakeClock()
	return New().WithClock(clock), func(d time.Duration) { clock.Advance(d) }
}

// capture snapshots every trace finished on tracer into the returned slice.
func capture(t *testing.T, tracer *Tracer) *[]*Trace {
	t.Helper()
	var traces []*Trace
	if err := tracer.OnTraceComplete(func(fg *FlameGraph) {
		traces = append(traces, fg.Snapshot())
	}); err != nil {
		t.Fatalf("OnTraceComplete failed: %v", err)
	}
	return &traces
}

// fib spends 10µs of its own time per call; isSmall spends 100µs.
func fib(ctx context.Context, step func(time.Duration), n int) int {
	ctx, span := Start(ctx, "fib")
	defer span.Finish()

	step(10 * time.Microsecond)
	if isSmall(ctx, step, n) {
		return n
	}
	return fib(ctx, step, n-1) + fib(ctx, step, n-2)
}

func isSmall(ctx context.Context, step func(time.Duration), n int) bool {
	_, span := Start(ctx, "is_small")
	defer span.Finish()

	step(100 * time.Microsecond)
	return n <= 2
}

// fibLines is the folded output of fib(3) under the timings above.
var fibLines = []string{
	"fib (1 calls) 10",
	"fib (1 calls);is_small (1 calls) 100",
	"fib (1 calls);fib (2 calls) 20",
	"fib (1 calls);fib (2 calls);is_small (2 calls) 200",
}
