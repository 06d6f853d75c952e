package flamez

import (
	"context"
)

// tracerKeyType is a private type for context keys to avoid collisions.
type tracerKeyType string

const (
	tracerKey tracerKeyType = "flamez"
)

// ActiveSpan is the guard for one open call. Finish it on every exit
// path of the enclosing scope, normally with defer.
// ActiveSpan is NOT safe for concurrent use.
type ActiveSpan struct {
	tracer *Tracer
	label  Label
	node   Handle
	seq    uint64
	done   bool
}

// Label returns the call-site label the span was opened with.
func (a *ActiveSpan) Label() Label {
	if a == nil {
		return ""
	}
	return a.label
}

// Close ends the span and records its duration. It returns ErrStaleHandle
// if the span's trace has already completed, and ErrUnmatchedSpan if the
// span is no longer on the live stack. Neither case changes any state.
func (a *ActiveSpan) Close() error {
	if a == nil || a.done || a.tracer == nil {
		return nil
	}
	a.done = true
	return a.tracer.close(a.node, a.seq)
}

// Finish ends the span. Safe to call multiple times - subsequent calls are no-ops.
// Misuse is logged, never returned.
func (a *ActiveSpan) Finish() {
	if err := a.Close(); err != nil {
		a.tracer.log().Warn().Err(err).Str("label", a.label).Msg("flamez: span finish ignored")
	}
}

// Start opens a span on the tracer carried by ctx, creating a new tracer
// when ctx has none. The returned context carries the tracer and should
// be passed to nested calls.
func Start(ctx context.Context, label Label) (context.Context, *ActiveSpan) {
	t := FromContext(ctx)
	if t == nil {
		t = New()
	}
	return t.StartSpan(ctx, label)
}

// StartSpan opens a span on t. If t is already recording, the span is a
// child of the innermost open span; otherwise it starts a new trace.
func (t *Tracer) StartSpan(ctx context.Context, label Label) (context.Context, *ActiveSpan) {
	// Handle nil context by creating a new one.
	if ctx == nil {
		ctx = context.Background()
	}

	span := &ActiveSpan{tracer: t, label: label}
	if node, seq, ok := t.open(label); ok {
		span.node, span.seq = node, seq
	} else {
		// Inert span: nothing to close.
		span.done = true
	}

	if FromContext(ctx) != t {
		ctx = WithTracer(ctx, t)
	}
	return ctx, span
}

// WithTracer returns a context carrying t.
func WithTracer(ctx context.Context, t *Tracer) context.Context {
	return context.WithValue(ctx, tracerKey, t)
}

// FromContext extracts the tracer from a context.
// Returns nil if no tracer is present.
func FromContext(ctx context.Context) *Tracer {
	if ctx == nil {
		return nil
	}
	if t, ok := ctx.Value(tracerKey).(*Tracer); ok {
		return t
	}
	return nil
}

// Detach returns a context that hides ctx's tracer, so spans started
// from it (typically in a new goroutine) record an independent trace.
// Values and cancellation of ctx are kept.
func Detach(ctx context.Context) context.Context {
	if FromContext(ctx) == nil {
		return ctx
	}
	return context.WithValue(ctx, tracerKey, (*Tracer)(nil))
}
