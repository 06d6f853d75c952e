package flamez

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/zoobzio/clockz"
)

func TestNewTracer(t *testing.T) {
	tracer := New()

	if tracer == nil {
		t.Fatal("Expected tracer to be created")
	}
	if tracer.State() != Idle {
		t.Errorf("Expected new tracer to be idle, got %s", tracer.State())
	}
	if tracer.Depth() != 0 {
		t.Errorf("Expected depth 0, got %d", tracer.Depth())
	}
}

func TestTracerFibTrace(t *testing.T) {
	tracer, step := newTestTracer()

	var lines []string
	var total time.Duration
	var root Label
	completed := 0
	_ = tracer.OnTraceComplete(func(fg *FlameGraph) {
		completed++
		lines = fg.Lines()
		total = fg.TotalDuration()
		root = fg.RootLabel()
	})

	ctx := WithTracer(context.Background(), tracer)
	if got := fib(ctx, step, 3); got != 3 {
		t.Fatalf("fib(3) = %d, want 3", got)
	}

	if completed != 1 {
		t.Fatalf("Expected 1 completed trace, got %d", completed)
	}
	if diff := cmp.Diff(fibLines, lines); diff != "" {
		t.Errorf("Folded lines mismatch (-want +got):\n%s", diff)
	}
	if total != 330*time.Microsecond {
		t.Errorf("Expected total 330µs, got %v", total)
	}
	if root != "fib" {
		t.Errorf("Expected root 'fib', got %q", root)
	}
}

func TestTracerSelfTimeConservation(t *testing.T) {
	tracer, step := newTestTracer()
	traces := capture(t, tracer)
	ctx := WithTracer(context.Background(), tracer)

	fib(ctx, step, 6)

	if len(*traces) != 1 {
		t.Fatalf("Expected 1 trace, got %d", len(*traces))
	}
	tr := (*traces)[0]

	var selfSum time.Duration
	tr.Walk(func(path []*Frame) bool {
		f := path[len(path)-1]
		var children time.Duration
		for _, c := range f.Children {
			children += c.Total
		}
		if f.Self != f.Total-children {
			t.Errorf("%s: self %v != total %v - children %v", f.Label, f.Self, f.Total, children)
		}
		if len(f.Children) == 0 && f.Self != f.Total {
			t.Errorf("Leaf %s: self %v != total %v", f.Label, f.Self, f.Total)
		}
		selfSum += f.Self
		return true
	})
	if selfSum != tr.Duration {
		t.Errorf("Expected self times to sum to %v, got %v", tr.Duration, selfSum)
	}
}

func TestTracerAggregatesRepeatedCalls(t *testing.T) {
	tracer, step := newTestTracer()
	traces := capture(t, tracer)
	ctx := context.Background()

	ctx, root := tracer.StartSpan(ctx, "loop")
	var want time.Duration
	for i := 1; i <= 5; i++ {
		_, child := tracer.StartSpan(ctx, "work")
		d := time.Duration(i) * time.Millisecond
		step(d)
		want += d
		child.Finish()
	}
	root.Finish()

	tr := (*traces)[0]
	if len(tr.Root.Children) != 1 {
		t.Fatalf("Expected one aggregated child, got %d", len(tr.Root.Children))
	}
	work := tr.Root.Children[0]
	if work.Calls != 5 {
		t.Errorf("Expected 5 calls, got %d", work.Calls)
	}
	if work.Total != want {
		t.Errorf("Expected total %v, got %v", want, work.Total)
	}
	if tr.Root.Calls != 1 {
		t.Errorf("Expected root called once, got %d", tr.Root.Calls)
	}
}

func TestTracerClearsAfterTrace(t *testing.T) {
	tracer, step := newTestTracer()

	var view *FlameGraph
	_ = tracer.OnTraceComplete(func(fg *FlameGraph) {
		view = fg
		if !fg.Valid() {
			t.Error("Expected view to be valid inside the handler")
		}
	})

	ctx, span := tracer.StartSpan(context.Background(), "root")
	if tracer.State() != Recording {
		t.Errorf("Expected recording state, got %s", tracer.State())
	}
	_, child := tracer.StartSpan(ctx, "child")
	if tracer.Depth() != 2 {
		t.Errorf("Expected depth 2, got %d", tracer.Depth())
	}
	step(time.Millisecond)
	child.Finish()
	span.Finish()

	if tracer.State() != Idle {
		t.Errorf("Expected idle state after trace, got %s", tracer.State())
	}
	if tracer.trie.Len() != 0 {
		t.Errorf("Expected empty tree after trace, got %d nodes", tracer.trie.Len())
	}
	if view == nil {
		t.Fatal("Expected handler to run")
	}
	if view.Valid() {
		t.Error("Expected view to be invalid after the handler returned")
	}
	if _, ok := view.Root(); ok {
		t.Error("Expected no root from a stale view")
	}
	if view.Lines() != nil {
		t.Error("Expected no lines from a stale view")
	}
}

func TestTracerConsecutiveTraces(t *testing.T) {
	tracer, step := newTestTracer()
	traces := capture(t, tracer)

	for _, label := range []string{"first", "second", "third"} {
		_, span := tracer.StartSpan(context.Background(), label)
		step(time.Millisecond)
		span.Finish()
	}

	if len(*traces) != 3 {
		t.Fatalf("Expected 3 traces, got %d", len(*traces))
	}
	ids := make(map[string]bool)
	for i, label := range []string{"first", "second", "third"} {
		tr := (*traces)[i]
		if tr.Root.Label != label {
			t.Errorf("Trace %d: expected root %q, got %q", i, label, tr.Root.Label)
		}
		if tr.Duration != time.Millisecond {
			t.Errorf("Trace %d: expected 1ms, got %v", i, tr.Duration)
		}
		if tr.ID == "" || ids[tr.ID] {
			t.Errorf("Trace %d: expected unique trace ID, got %q", i, tr.ID)
		}
		ids[tr.ID] = true
	}
}

func TestTracerOutOfOrderClose(t *testing.T) {
	tracer, step := newTestTracer()
	traces := capture(t, tracer)

	ctx, a := tracer.StartSpan(context.Background(), "a")
	ctx, b := tracer.StartSpan(ctx, "b")
	_, c := tracer.StartSpan(ctx, "c")
	step(5 * time.Microsecond)

	// Closing b discards c's frame without attributing it.
	if err := b.Close(); err != nil {
		t.Fatalf("Close(b) failed: %v", err)
	}
	if tracer.Depth() != 1 {
		t.Errorf("Expected depth 1 after closing b, got %d", tracer.Depth())
	}
	if err := c.Close(); !errors.Is(err, ErrUnmatchedSpan) {
		t.Errorf("Expected ErrUnmatchedSpan for discarded span, got %v", err)
	}
	if tracer.Depth() != 1 {
		t.Errorf("Expected unmatched close to leave the stack alone, got depth %d", tracer.Depth())
	}
	a.Finish()

	want := []string{
		"a (1 calls) 0",
		"a (1 calls);b (1 calls) 5",
		"a (1 calls);b (1 calls);c (0 calls) 0",
	}
	got, _ := (*traces)[0].Folded()
	if diff := cmp.Diff(want, strings.Split(strings.TrimSpace(got), "\n")); diff != "" {
		t.Errorf("Folded lines mismatch (-want +got):\n%s", diff)
	}
}

func TestTracerDiscardedSpanDoesNotMatchReopenedPath(t *testing.T) {
	tracer, step := newTestTracer()
	traces := capture(t, tracer)

	ctx, root := tracer.StartSpan(context.Background(), "root")
	actx, a := tracer.StartSpan(ctx, "a")
	_, discarded := tracer.StartSpan(actx, "b")

	// Closing a discards b's frame.
	if err := a.Close(); err != nil {
		t.Fatalf("Close(a) failed: %v", err)
	}

	// The same path is reopened, reusing both trie nodes.
	actx, again := tracer.StartSpan(ctx, "a")
	_, b := tracer.StartSpan(actx, "b")
	if b.node != discarded.node {
		t.Fatal("Expected the reopened span to share the discarded span's node")
	}
	step(7 * time.Microsecond)

	if err := discarded.Close(); !errors.Is(err, ErrUnmatchedSpan) {
		t.Errorf("Expected ErrUnmatchedSpan for discarded span, got %v", err)
	}
	if tracer.Depth() != 3 {
		t.Errorf("Expected the reopened frames to stay open, got depth %d", tracer.Depth())
	}
	if err := b.Close(); err != nil {
		t.Errorf("Expected the live span to close, got %v", err)
	}
	again.Finish()
	root.Finish()

	want := []string{
		"root (1 calls) 0",
		"root (1 calls);a (2 calls) 0",
		"root (1 calls);a (2 calls);b (1 calls) 7",
	}
	got, _ := (*traces)[0].Folded()
	if diff := cmp.Diff(want, strings.Split(strings.TrimSpace(got), "\n")); diff != "" {
		t.Errorf("Folded lines mismatch (-want +got):\n%s", diff)
	}
}

func TestTracerCloseAfterTraceIsStale(t *testing.T) {
	tracer, _ := newTestTracer()
	traces := capture(t, tracer)

	_, span := tracer.StartSpan(context.Background(), "root")
	node, seq := span.node, span.seq
	span.Finish()

	if err := tracer.close(node, seq); !errors.Is(err, ErrStaleHandle) {
		t.Errorf("Expected ErrStaleHandle, got %v", err)
	}

	// A new trace reuses slot 0; the stale handle must not close it.
	_, next := tracer.StartSpan(context.Background(), "next")
	if err := tracer.close(node, seq); !errors.Is(err, ErrStaleHandle) {
		t.Errorf("Expected ErrStaleHandle during next trace, got %v", err)
	}
	if tracer.Depth() != 1 {
		t.Errorf("Expected next trace to stay open, got depth %d", tracer.Depth())
	}
	next.Finish()

	if len(*traces) != 2 {
		t.Errorf("Expected 2 traces, got %d", len(*traces))
	}
}

func TestTracerHandlerPanicStillClears(t *testing.T) {
	tracer := New().WithClock(clockz.NewFakeClock())
	calls := 0
	_ = tracer.OnTraceComplete(func(*FlameGraph) {
		calls++
		panic("handler failure")
	})

	var hookID string
	var hookValue interface{}
	tracer.SetPanicHook(func(traceID string, r interface{}) {
		hookID = traceID
		hookValue = r
	})

	_, span := tracer.StartSpan(context.Background(), "root")
	span.Finish()

	if hookValue != "handler failure" {
		t.Errorf("Expected panic hook to receive the panic value, got %v", hookValue)
	}
	if hookID == "" {
		t.Error("Expected panic hook to receive the trace ID")
	}
	if tracer.trie.Len() != 0 || tracer.State() != Idle {
		t.Error("Expected tree to be cleared after a panicking handler")
	}

	// The next trace is unaffected.
	_, span = tracer.StartSpan(context.Background(), "again")
	span.Finish()
	if calls != 2 {
		t.Errorf("Expected handler to run for both traces, got %d", calls)
	}
}

func TestTracerHandlerPanicLoggedWithoutHook(t *testing.T) {
	var buf bytes.Buffer
	tracer := New().WithLogger(zerolog.New(&buf))
	_ = tracer.OnTraceComplete(func(*FlameGraph) { panic("boom") })

	_, span := tracer.StartSpan(context.Background(), "root")
	span.Finish()

	if !strings.Contains(buf.String(), "trace handler panicked") {
		t.Errorf("Expected panic to be logged, got %q", buf.String())
	}
}

func TestTracerSpansInsideHandlerAreInert(t *testing.T) {
	tracer, _ := newTestTracer()

	var nested *ActiveSpan
	_ = tracer.OnTraceComplete(func(*FlameGraph) {
		_, nested = tracer.StartSpan(context.Background(), "inside-handler")
		nested.Finish()
	})

	_, span := tracer.StartSpan(context.Background(), "root")
	span.Finish()

	if nested == nil {
		t.Fatal("Expected handler to run")
	}
	if err := nested.Close(); err != nil {
		t.Errorf("Expected inert span to close silently, got %v", err)
	}
	if tracer.Depth() != 0 || tracer.trie.Len() != 0 {
		t.Error("Expected spans opened in the handler to leave no state")
	}
}

func TestTracerOnTraceCompleteOnce(t *testing.T) {
	tracer := New()
	if err := tracer.OnTraceComplete(nil); !errors.Is(err, ErrNilHandler) {
		t.Errorf("Expected ErrNilHandler, got %v", err)
	}
	first, second := 0, 0

	if err := tracer.OnTraceComplete(func(*FlameGraph) { first++ }); err != nil {
		t.Fatalf("First OnTraceComplete failed: %v", err)
	}
	if err := tracer.OnTraceComplete(func(*FlameGraph) { second++ }); !errors.Is(err, ErrAlreadyConfigured) {
		t.Errorf("Expected ErrAlreadyConfigured, got %v", err)
	}

	_, span := tracer.StartSpan(context.Background(), "root")
	span.Finish()

	if first != 1 || second != 0 {
		t.Errorf("Expected only the first handler to run, got first=%d second=%d", first, second)
	}
}

func TestTracerWithClockKeepsConfiguration(t *testing.T) {
	calls := 0
	base := New()
	_ = base.OnTraceComplete(func(*FlameGraph) { calls++ })
	base.SetPanicHook(func(string, interface{}) {})

	clock := clockz.NewFakeClock()
	derived := base.WithClock(clock)

	if derived == base {
		t.Error("Expected WithClock to return a new tracer")
	}
	if derived.panicHook == nil {
		t.Error("Expected panic hook to be carried over")
	}

	_, span := derived.StartSpan(context.Background(), "root")
	clock.Advance(time.Second)
	span.Finish()

	if calls != 1 {
		t.Errorf("Expected carried-over handler to run once, got %d", calls)
	}
}

func TestTracerMisuseIsLogged(t *testing.T) {
	var buf bytes.Buffer
	tracer := New().WithLogger(zerolog.New(&buf))
	_ = tracer.OnTraceComplete(func(*FlameGraph) {})

	ctx, a := tracer.StartSpan(context.Background(), "a")
	_, b := tracer.StartSpan(ctx, "b")
	a.Finish()
	b.Finish()

	out := buf.String()
	if !strings.Contains(out, "span closed out of order") {
		t.Errorf("Expected out-of-order warning, got %q", out)
	}
	if !strings.Contains(out, "span finish ignored") {
		t.Errorf("Expected ignored finish warning, got %q", out)
	}
}

func TestStateString(t *testing.T) {
	if Idle.String() != "idle" || Recording.String() != "recording" {
		t.Errorf("Unexpected state strings: %s, %s", Idle, Recording)
	}
}
