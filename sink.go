package flamez

import (
	"bytes"
	"io"
	"os"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/zoobzio/flamez/folded"
	"github.com/zoobzio/flamez/svg"
)

// Sink encodes a finished trace.
type Sink interface {
	Write(w io.Writer, t *Trace) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(w io.Writer, t *Trace) error

// Write calls f(w, t).
func (f SinkFunc) Write(w io.Writer, t *Trace) error {
	return f(w, t)
}

// FoldedSink writes folded flame-graph text.
type FoldedSink struct{}

// Write implements Sink.
func (FoldedSink) Write(w io.Writer, t *Trace) error {
	return t.WriteFolded(w)
}

// SVGSink renders the trace as an SVG flame graph.
type SVGSink struct {
	// Options defaults to svg.DefaultOptions when nil.
	Options *svg.Options
}

// Write implements Sink.
func (s SVGSink) Write(w io.Writer, t *Trace) error {
	stacks := t.Stacks()
	if len(stacks) == 0 {
		return ErrEmptyTrace
	}
	return svg.Render(w, stacks, s.Options)
}

// JSONSink writes the Trace snapshot as JSON.
type JSONSink struct {
	Indent bool
}

// Write implements Sink.
func (s JSONSink) Write(w io.Writer, t *Trace) error {
	if t == nil || t.Root == nil {
		return ErrEmptyTrace
	}
	enc := json.NewEncoder(w)
	if s.Indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(t)
}

// PprofSink writes a gzip-compressed pprof profile.
type PprofSink struct{}

// Write implements Sink.
func (PprofSink) Write(w io.Writer, t *Trace) error {
	return t.WritePprof(w)
}

// Stacks returns the trace as folded stacks weighted by self time in
// microseconds, one per frame, in depth-first order.
func (t *Trace) Stacks() []folded.Stack {
	var stacks []folded.Stack
	t.Walk(func(path []*Frame) bool {
		frames := make([]string, len(path))
		for i, f := range path {
			frames[i] = string(appendFrame(nil, f.Label, f.Calls))
		}
		stacks = append(stacks, folded.Stack{
			Frames: frames,
			Count:  uint64(path[len(path)-1].Self.Microseconds()),
		})
		return true
	})
	return stacks
}

// WriteFile encodes t with sink and writes it to path. Nothing is
// written unless encoding succeeds completely.
func WriteFile(path string, sink Sink, t *Trace) error {
	var buf bytes.Buffer
	if err := sink.Write(&buf, t); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// FileHandler returns a Handler that snapshots every trace and writes it
// to path with sink. Failures are logged and dropped; they never reach
// the traced program.
func FileHandler(path string, sink Sink) Handler {
	return func(fg *FlameGraph) {
		t := fg.Snapshot()
		if t == nil {
			return
		}
		if err := WriteFile(path, sink, t); err != nil {
			log.Error().
				Err(err).
				Str("trace_id", t.ID).
				Str("path", path).
				Msg("flamez: failed to write trace")
			return
		}
		log.Debug().Str("trace_id", t.ID).Str("path", path).Msg("flamez: trace written")
	}
}
