package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/flamez"
)

func TestGoroutinesRecordIndependently(t *testing.T) {
	rec := NewRecorder(t, "goroutines")

	const workers = 16
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, clock := rec.Context()
			for j := 0; j < 10; j++ {
				Work(ctx, clock, "request", time.Microsecond, func(ctx context.Context) {
					Work(ctx, clock, "query", 10*time.Microsecond)
				})
			}
		}()
	}
	wg.Wait()

	traces := rec.RequireTraces(workers * 10)
	ids := make(map[string]bool, len(traces))
	for _, tr := range traces {
		if ids[tr.ID] {
			t.Fatalf("Duplicate trace ID %s", tr.ID)
		}
		ids[tr.ID] = true

		text, ok := tr.Folded()
		if !ok {
			t.Fatal("Expected folded output")
		}
		want := "request (1 calls) 1\nrequest (1 calls);query (1 calls) 10\n"
		if text != want {
			t.Errorf("Expected each trace to hold one request, got:\n%s", text)
		}
	}
}

func TestTracerReusedAcrossTraces(t *testing.T) {
	rec := NewRecorder(t, "reuse")
	tracer, clock := rec.Tracer()
	ctx := flamez.WithTracer(context.Background(), tracer)

	labels := []string{"first", "second", "third"}
	for _, label := range labels {
		Work(ctx, clock, label, time.Millisecond)
		if tracer.State() != flamez.Idle || tracer.Depth() != 0 {
			t.Fatalf("Expected idle tracer between traces, got %s at depth %d", tracer.State(), tracer.Depth())
		}
	}

	traces := rec.RequireTraces(len(labels))
	for i, tr := range traces {
		if tr.Root.Label != labels[i] || tr.Len() != 1 || tr.Root.Calls != 1 {
			t.Errorf("Trace %d: expected a single %s frame, got %s with %d frames", i, labels[i], tr.Root.Label, tr.Len())
		}
		if tr.Duration != time.Millisecond {
			t.Errorf("Trace %d: expected 1ms, got %v", i, tr.Duration)
		}
	}
}

func TestAsyncCollectorAcrossGoroutines(t *testing.T) {
	collector := flamez.NewCollector("async", 1024)
	defer collector.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracer := flamez.New()
			_ = tracer.OnTraceComplete(collector.Handler())
			ctx := flamez.WithTracer(context.Background(), tracer)
			for j := 0; j < 25; j++ {
				_, span := flamez.Start(ctx, "tick")
				span.Finish()
			}
		}()
	}
	wg.Wait()
	collector.Close()

	got := int64(collector.Count()) + collector.DroppedCount()
	if got != 200 {
		t.Errorf("Expected 200 traces buffered or dropped, got %d", got)
	}
}
