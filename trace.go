package flamez

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/zoobzio/flamez/folded"
)

// Frame is one call path of a Trace snapshot.
type Frame struct {
	Label    Label         `json:"label"`
	Calls    int           `json:"calls"`
	Total    time.Duration `json:"total_ns"`
	Self     time.Duration `json:"self_ns"`
	Children []*Frame      `json:"children,omitempty"`
}

// Trace is a deep copy of a completed trace. Unlike FlameGraph it stays
// valid after the handler returns and is safe to share between goroutines
// once built.
type Trace struct {
	ID       string        `json:"trace_id"`
	Start    time.Time     `json:"start_time"`
	Duration time.Duration `json:"duration_ns"`
	Root     *Frame        `json:"root,omitempty"`
}

// Snapshot copies the flame graph into a Trace. Returns nil if the view
// is no longer valid or empty.
func (fg *FlameGraph) Snapshot() *Trace {
	root, ok := fg.Root()
	if !ok {
		return nil
	}
	return &Trace{
		ID:       fg.traceID,
		Start:    fg.start,
		Duration: root.Value().Duration,
		Root:     snapshotFrame(root),
	}
}

func snapshotFrame(node TreeNode) *Frame {
	m := node.Value()
	f := &Frame{
		Label: node.Key(),
		Calls: m.Calls,
		Total: m.Duration,
		Self:  SelfTime(node),
	}
	for child := range node.Children() {
		f.Children = append(f.Children, snapshotFrame(child))
	}
	return f
}

// Walk visits every frame depth-first, parents before children.
// path holds the frames from the root down to the visited one and is
// reused between calls. Returning false stops the walk.
func (t *Trace) Walk(fn func(path []*Frame) bool) {
	if t == nil || t.Root == nil {
		return
	}
	walkFrames(t.Root, make([]*Frame, 0, 16), fn)
}

func walkFrames(f *Frame, path []*Frame, fn func(path []*Frame) bool) bool {
	path = append(path, f)
	if !fn(path) {
		return false
	}
	for _, child := range f.Children {
		if !walkFrames(child, path, fn) {
			return false
		}
	}
	return true
}

// Len returns the number of frames in the trace.
func (t *Trace) Len() int {
	n := 0
	t.Walk(func([]*Frame) bool {
		n++
		return true
	})
	return n
}

// WriteFolded writes the snapshot in the same folded format as
// FlameGraph.WriteFolded.
func (t *Trace) WriteFolded(w io.Writer) error {
	if t == nil || t.Root == nil {
		return ErrEmptyTrace
	}
	bw := bufio.NewWriter(w)
	var (
		line []byte
		err  error
	)
	t.Walk(func(path []*Frame) bool {
		line = line[:0]
		for i, f := range path {
			if i > 0 {
				line = append(line, ';')
			}
			line = appendFrame(line, f.Label, f.Calls)
		}
		line = append(line, ' ')
		line = strconv.AppendInt(line, path[len(path)-1].Self.Microseconds(), 10)
		line = append(line, '\n')
		_, err = bw.Write(line)
		return err == nil
	})
	if err != nil {
		return err
	}
	return bw.Flush()
}

// Folded returns the folded text of the snapshot.
func (t *Trace) Folded() (string, bool) {
	var sb strings.Builder
	if err := t.WriteFolded(&sb); err != nil {
		return "", false
	}
	return sb.String(), true
}

// MarshalJSON encodes the trace with go-json.
func (t *Trace) MarshalJSON() ([]byte, error) {
	type plain Trace
	return json.Marshal((*plain)(t))
}

// UnmarshalJSON decodes a trace written by MarshalJSON.
func (t *Trace) UnmarshalJSON(data []byte) error {
	type plain Trace
	return json.Unmarshal(data, (*plain)(t))
}

// FromStacks rebuilds a Trace from parsed folded stacks, such as the
// output of WriteFolded. Frame labels and call counts are recovered from
// the "<label> (<n> calls)" annotation and weights are read as
// microseconds of self time. Input with several roots is placed under a
// synthetic "all" frame.
func FromStacks(stacks []folded.Stack) (*Trace, error) {
	all := &Frame{Label: "all"}
	index := make(map[*Frame]map[string]*Frame)
	for i := range stacks {
		st := &stacks[i]
		f := all
		for _, name := range st.Frames {
			children, ok := index[f]
			if !ok {
				children = make(map[string]*Frame)
				index[f] = children
			}
			child, ok := children[name]
			if !ok {
				label, calls, _ := folded.SplitCalls(name)
				child = &Frame{Label: label, Calls: calls}
				children[name] = child
				f.Children = append(f.Children, child)
			}
			f = child
		}
		if f != all {
			f.Self += time.Duration(st.Count) * time.Microsecond
		}
	}
	if len(all.Children) == 0 {
		return nil, ErrEmptyTrace
	}

	root := all
	if len(all.Children) == 1 {
		root = all.Children[0]
	}
	sumFrames(root)
	return &Trace{
		ID:       nextTraceID(),
		Duration: root.Total,
		Root:     root,
	}, nil
}

func sumFrames(f *Frame) time.Duration {
	f.Total = f.Self
	for _, child := range f.Children {
		f.Total += sumFrames(child)
	}
	return f.Total
}
