package flamez

import (
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/zoobzio/clockz"
)

// ErrUnmatchedSpan is returned when a span is closed that is not open on
// the tracer's live stack (already closed, or discarded by an out-of-order close).
var ErrUnmatchedSpan = errors.New("flamez: span is not open")

// State is the recording state of a Tracer.
type State int

const (
	// Idle means no span is open.
	Idle State = iota
	// Recording means at least one span is open.
	Recording
)

func (s State) String() string {
	if s == Recording {
		return "recording"
	}
	return "idle"
}

// frame is one entry of the live stack.
type frame struct {
	start time.Time
	node  Handle
	seq   uint64
}

// Tracer owns the call tree and live stack of one execution context.
// Tracer is NOT safe for concurrent use: give every goroutine its own.
//
//nolint:govet // Field order optimized for functionality over memory
type Tracer struct {
	trie        *Trie[Label, Measurement]
	stack       []frame
	clock       clockz.Clock
	logger      *zerolog.Logger
	panicHook   func(traceID string, r interface{})
	handler     handlerSlot
	traceID     string
	start       time.Time
	seq         uint64 // last frame sequence number issued
	dispatching bool
}

// New creates a new tracer.
// Uses the real clock for production behavior.
func New() *Tracer {
	return &Tracer{
		trie:  NewTrie[Label, Measurement](),
		stack: make([]frame, 0, 16),
		clock: clockz.RealClock,
	}
}

// WithClock returns a new tracer with the specified clock.
// Enables clock injection for deterministic testing.
func (t *Tracer) WithClock(clock clockz.Clock) *Tracer {
	n := t.clone()
	n.clock = clock
	return n
}

// WithLogger returns a new tracer that logs through logger instead of
// the global zerolog logger.
func (t *Tracer) WithLogger(logger zerolog.Logger) *Tracer {
	n := t.clone()
	n.logger = &logger
	return n
}

func (t *Tracer) clone() *Tracer {
	n := New()
	n.clock = t.clock
	n.logger = t.logger
	n.panicHook = t.panicHook
	if h := t.handler.get(); h != nil {
		_ = n.handler.set(h)
	}
	return n
}

// OnTraceComplete installs a handler for traces finished on this tracer,
// taking precedence over the process-wide one. It succeeds once.
func (t *Tracer) OnTraceComplete(h Handler) error {
	return t.handler.set(h)
}

// SetPanicHook sets a function to be called when a handler panics.
func (t *Tracer) SetPanicHook(hook func(traceID string, r interface{})) {
	t.panicHook = hook
}

// State reports whether a trace is being recorded.
func (t *Tracer) State() State {
	if len(t.stack) == 0 {
		return Idle
	}
	return Recording
}

// Depth returns the number of open spans.
func (t *Tracer) Depth() int {
	return len(t.stack)
}

func (t *Tracer) log() *zerolog.Logger {
	if t.logger != nil {
		return t.logger
	}
	return &log.Logger
}

// open pushes a frame for label, creating the trie node if needed.
// The returned sequence number identifies the frame on the stack.
func (t *Tracer) open(label Label) (Handle, uint64, bool) {
	if t.dispatching {
		return Handle{}, 0, false
	}

	var (
		node Handle
		err  error
	)
	if len(t.stack) == 0 {
		node, err = t.trie.InsertRoot(label)
	} else {
		node, err = t.trie.InsertChild(t.stack[len(t.stack)-1].node, label)
	}
	if err != nil {
		t.log().Error().Err(err).Str("label", label).Msg("flamez: failed to open span")
		return Handle{}, 0, false
	}

	now := t.clock.Now()
	if len(t.stack) == 0 {
		t.traceID = nextTraceID()
		t.start = now
	}
	t.seq++
	t.stack = append(t.stack, frame{node: node, start: now, seq: t.seq})
	return node, t.seq, true
}

// close pops the stack down to the frame opened as seq on node and
// records the elapsed time. Frames above it are discarded without
// attribution. A discarded frame never matches again, even when the same
// node has been reopened since.
func (t *Tracer) close(node Handle, seq uint64) error {
	if !t.trie.Valid(node) {
		return ErrStaleHandle
	}

	i := len(t.stack) - 1
	for ; i >= 0; i-- {
		if t.stack[i].seq == seq && t.stack[i].node == node {
			break
		}
	}
	if i < 0 {
		return ErrUnmatchedSpan
	}

	if discarded := len(t.stack) - 1 - i; discarded > 0 {
		t.log().Warn().
			Str("trace_id", t.traceID).
			Int("discarded", discarded).
			Msg("flamez: span closed out of order")
	}

	elapsed := t.clock.Now().Sub(t.stack[i].start)
	if elapsed < 0 {
		elapsed = 0
	}
	m, err := t.trie.Value(node)
	if err != nil {
		return err
	}
	m.Duration += elapsed
	m.Calls++

	t.stack = t.stack[:i]
	if len(t.stack) == 0 {
		t.finish()
	}
	return nil
}

// finish hands the completed trace to its handler and clears the trie,
// whether or not the handler succeeds.
func (t *Tracer) finish() {
	fg := &FlameGraph{
		trie:    t.trie,
		gen:     t.trie.Generation(),
		traceID: t.traceID,
		start:   t.start,
	}

	t.dispatching = true
	defer func() {
		t.dispatching = false
		t.trie.Clear()
		t.traceID = ""
	}()

	t.log().Debug().
		Str("trace_id", fg.TraceID()).
		Str("root", fg.RootLabel()).
		Dur("duration", fg.TotalDuration()).
		Int("nodes", fg.Len()).
		Msg("flamez: trace complete")

	t.safeCall(t.resolveHandler(), fg)
}

func (t *Tracer) resolveHandler() Handler {
	if h := t.handler.get(); h != nil {
		return h
	}
	if h := global.get(); h != nil {
		return h
	}
	return DefaultHandler
}

func (t *Tracer) safeCall(h Handler, fg *FlameGraph) {
	defer func() {
		if r := recover(); r != nil {
			if t.panicHook != nil {
				t.panicHook(fg.traceID, r)
				return
			}
			t.log().Error().
				Str("trace_id", fg.traceID).
				Interface("panic", r).
				Msg("flamez: trace handler panicked")
		}
	}()
	h(fg)
}

var traceIDs struct {
	once sync.Once
	pool *IDPool
}

// nextTraceID draws a trace ID from the shared pool.
func nextTraceID() string {
	traceIDs.once.Do(func() {
		// Pool size based on number of CPUs for optimal contention balance.
		traceIDs.pool = NewIDPool(runtime.NumCPU()*16, uuid.NewString)
	})
	return traceIDs.pool.Get()
}
