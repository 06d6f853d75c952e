// Package flamez provides a minimal, in-process call-tree profiler.
//
// flamez records nested spans during one trace (a single outermost span
// and everything opened inside it), aggregates per-call-site duration and
// invocation counts into a tree shaped like the call stack, and writes the
// finished tree as folded flame-graph text.
//
// Core Components:
//   - Trie: Append-only, index-addressed call tree.
//   - Tracer: Live call stack for one execution context.
//   - ActiveSpan: Scoped guard for one open call.
//   - FlameGraph: Read-only view handed to the completion handler.
//   - Collector: Buffers finished traces for export.
//
// Basic Usage:
//
//	func fib(ctx context.Context, n int) int {
//		ctx, span := flamez.Start(ctx, "fib")
//		defer span.Finish()
//		...
//	}
//
// When the outermost span finishes, the trace is handed to the handler
// installed with SetHandler, or written to flamegraph.svg by default.
//
// Thread Safety:
//
// A Tracer belongs to one goroutine. Contexts carry their tracer, so a
// goroutine spawned from a traced function should call Detach (or start
// from a fresh context) to get its own independent trace.
//
// SetHandler is safe for concurrent use and succeeds at most once.
//
// Recursion:
//
// Nodes are keyed by label and parent only, so every recursion depth of
// an instrumented function becomes its own node and sibling calls at the
// same depth are merged. Don't instrument recursive functions.
package flamez

import "time"

// Label identifies the call site a span was declared at.
type Label = string

// Measurement aggregates every invocation of one call path.
type Measurement struct {
	Duration time.Duration
	Calls    int
}
