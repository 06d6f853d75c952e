package flamez

import (
	"bufio"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"
)

// ErrEmptyTrace is returned when serializing a flame graph with no root.
var ErrEmptyTrace = errors.New("flamez: empty trace")

// TreeNode is a read-only view of one call path in a FlameGraph.
type TreeNode = Node[Label, Measurement]

// FlameGraph is the read-only view of a completed trace handed to a
// Handler. It becomes empty once the handler returns and the tracer
// clears its tree; use Snapshot to keep the data.
type FlameGraph struct {
	trie    *Trie[Label, Measurement]
	start   time.Time
	traceID string
	gen     uint32
}

// Valid reports whether the underlying tree is still the one this view was created for.
func (fg *FlameGraph) Valid() bool {
	return fg != nil && fg.trie != nil && fg.trie.Generation() == fg.gen
}

// Root returns the outermost call of the trace.
func (fg *FlameGraph) Root() (TreeNode, bool) {
	if !fg.Valid() {
		return TreeNode{}, false
	}
	return fg.trie.Root()
}

// TraceID returns the identifier assigned when the trace started.
func (fg *FlameGraph) TraceID() string {
	if fg == nil {
		return ""
	}
	return fg.traceID
}

// Start returns the time the outermost span opened.
func (fg *FlameGraph) Start() time.Time {
	if fg == nil {
		return time.Time{}
	}
	return fg.start
}

// RootLabel returns the label of the outermost call.
func (fg *FlameGraph) RootLabel() Label {
	root, ok := fg.Root()
	if !ok {
		return ""
	}
	return root.Key()
}

// TotalDuration returns the duration of the outermost call.
func (fg *FlameGraph) TotalDuration() time.Duration {
	root, ok := fg.Root()
	if !ok {
		return 0
	}
	return root.Value().Duration
}

// Len returns the number of distinct call paths.
func (fg *FlameGraph) Len() int {
	if !fg.Valid() {
		return 0
	}
	return fg.trie.Len()
}

// Walk visits every node depth-first, parents before children, children
// in insertion order. path holds the nodes from the root down to the
// visited node (inclusive) and is reused between calls. Returning false
// stops the walk.
func (fg *FlameGraph) Walk(fn func(path []TreeNode) bool) {
	root, ok := fg.Root()
	if !ok {
		return
	}
	path := make([]TreeNode, 0, 16)
	walk(root, path, fn)
}

func walk(node TreeNode, path []TreeNode, fn func(path []TreeNode) bool) bool {
	path = append(path, node)
	if !fn(path) {
		return false
	}
	for child := range node.Children() {
		if !walk(child, path, fn) {
			return false
		}
	}
	return true
}

// SelfTime returns the node's total duration minus the totals of its
// direct children, never less than zero.
func SelfTime(node TreeNode) time.Duration {
	self := node.Value().Duration
	for child := range node.Children() {
		self -= child.Value().Duration
	}
	if self < 0 {
		return 0
	}
	return self
}

// WriteFolded writes the trace as folded flame-graph text: one line per
// node, the path of "<label> (<n> calls)" entries joined by ";", a
// space, and the node's self time in whole microseconds.
func (fg *FlameGraph) WriteFolded(w io.Writer) error {
	root, ok := fg.Root()
	if !ok {
		return ErrEmptyTrace
	}
	bw := bufio.NewWriter(w)
	if err := writeFolded(bw, root, make([]byte, 0, 256)); err != nil {
		return err
	}
	return bw.Flush()
}

func writeFolded(w *bufio.Writer, node TreeNode, prefix []byte) error {
	if len(prefix) > 0 {
		prefix = append(prefix, ';')
	}
	m := node.Value()
	prefix = appendFrame(prefix, node.Key(), m.Calls)

	if _, err := w.Write(prefix); err != nil {
		return err
	}
	w.WriteByte(' ')
	w.WriteString(strconv.FormatInt(SelfTime(node).Microseconds(), 10))
	if err := w.WriteByte('\n'); err != nil {
		return err
	}

	for child := range node.Children() {
		if err := writeFolded(w, child, prefix); err != nil {
			return err
		}
	}
	return nil
}

func appendFrame(dst []byte, label Label, calls int) []byte {
	dst = append(dst, label...)
	dst = append(dst, " ("...)
	dst = strconv.AppendInt(dst, int64(calls), 10)
	return append(dst, " calls)"...)
}

// Folded returns the folded text of the trace. It reports false, and no
// partial output, if the trace is empty or serialization fails.
func (fg *FlameGraph) Folded() (string, bool) {
	var sb strings.Builder
	if err := fg.WriteFolded(&sb); err != nil {
		return "", false
	}
	return sb.String(), true
}

// Lines returns the folded text split into lines, without newlines.
func (fg *FlameGraph) Lines() []string {
	text, ok := fg.Folded()
	if !ok {
		return nil
	}
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n")
}
