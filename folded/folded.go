// Package folded reads folded flame-graph text: one stack per line,
// frames joined by ";", a space, and an integer weight.
package folded

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// ErrMalformedLine is returned for lines without a trailing integer weight.
var ErrMalformedLine = errors.New("folded: malformed line")

// maxLineSize bounds a single stack line. Deep traces with long labels
// easily exceed bufio's default token size.
const maxLineSize = 4 << 20

// Stack is one parsed line, frames ordered root to leaf.
type Stack struct {
	Frames []string
	Count  uint64
}

// Parse reads every stack from r. Blank lines are skipped; zero weights
// are kept because intermediate frames often carry no self time.
func Parse(r io.Reader) ([]Stack, error) {
	var stacks []Stack
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		st, err := ParseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		stacks = append(stacks, st)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return stacks, nil
}

// ParseLine parses a single folded line.
func ParseLine(line string) (Stack, error) {
	sep := strings.LastIndexByte(line, ' ')
	if sep <= 0 {
		return Stack{}, ErrMalformedLine
	}
	count, err := strconv.ParseUint(line[sep+1:], 10, 64)
	if err != nil {
		return Stack{}, fmt.Errorf("%w: %q", ErrMalformedLine, line[sep+1:])
	}
	return Stack{
		Frames: strings.Split(line[:sep], ";"),
		Count:  count,
	}, nil
}

// Total returns the summed weight of all stacks.
func Total(stacks []Stack) uint64 {
	var total uint64
	for i := range stacks {
		total += stacks[i].Count
	}
	return total
}

// SplitCalls splits a "<label> (<n> calls)" frame into its label and
// invocation count. ok is false for frames without the annotation.
func SplitCalls(frame string) (label string, calls int, ok bool) {
	if !strings.HasSuffix(frame, " calls)") {
		return frame, 0, false
	}
	open := strings.LastIndex(frame, " (")
	if open < 0 {
		return frame, 0, false
	}
	n, err := strconv.Atoi(frame[open+2 : len(frame)-len(" calls)")])
	if err != nil {
		return frame, 0, false
	}
	return frame[:open], n, true
}

// Entry ranks one label by the weight attributed to it.
type Entry struct {
	Name  string
	Self  uint64
	Total uint64
	Calls int
}

// Hot aggregates self and total weight per label across all stacks,
// sorted by self weight (descending), then name. A label appearing
// several times in one stack counts once towards its total.
func Hot(stacks []Stack) []Entry {
	entries := make(map[string]*Entry)
	get := func(name string) *Entry {
		e, ok := entries[name]
		if !ok {
			e = &Entry{Name: name}
			entries[name] = e
		}
		return e
	}

	for i := range stacks {
		st := &stacks[i]
		if len(st.Frames) == 0 {
			continue
		}
		seen := make(map[string]bool, len(st.Frames))
		for _, fr := range st.Frames {
			name, _, _ := SplitCalls(fr)
			if !seen[name] {
				get(name).Total += st.Count
				seen[name] = true
			}
		}
		name, calls, _ := SplitCalls(st.Frames[len(st.Frames)-1])
		e := get(name)
		e.Self += st.Count
		e.Calls += calls
	}

	ranked := make([]Entry, 0, len(entries))
	for _, e := range entries {
		ranked = append(ranked, *e)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Self != ranked[j].Self {
			return ranked[i].Self > ranked[j].Self
		}
		return ranked[i].Name < ranked[j].Name
	})
	return ranked
}
