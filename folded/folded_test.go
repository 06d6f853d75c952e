package folded

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const fibFolded = `fib (1 calls) 10
fib (1 calls);is_small (1 calls) 100

fib (1 calls);fib (2 calls) 20
fib (1 calls);fib (2 calls);is_small (2 calls) 200
`

func TestParse(t *testing.T) {
	stacks, err := Parse(strings.NewReader(fibFolded))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(stacks) != 4 {
		t.Fatalf("Expected 4 stacks, got %d", len(stacks))
	}

	want := Stack{Frames: []string{"fib (1 calls)", "fib (2 calls)", "is_small (2 calls)"}, Count: 200}
	if diff := cmp.Diff(want, stacks[3]); diff != "" {
		t.Errorf("Stack mismatch (-want +got):\n%s", diff)
	}
	if Total(stacks) != 330 {
		t.Errorf("Expected total 330, got %d", Total(stacks))
	}
}

func TestParseCRLFAndZeroWeights(t *testing.T) {
	stacks, err := Parse(strings.NewReader("main (1 calls) 0\r\nmain (1 calls);work (3 calls) 7\r\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(stacks) != 2 {
		t.Fatalf("Expected zero-weight stacks to be kept, got %d", len(stacks))
	}
	if stacks[1].Count != 7 {
		t.Errorf("Expected count 7, got %d", stacks[1].Count)
	}
}

func TestParseMalformed(t *testing.T) {
	tests := []string{
		"no-weight",
		"main;work abc",
		" 12",
		"main -3",
	}
	for _, line := range tests {
		_, err := Parse(strings.NewReader("ok 1\n" + line + "\n"))
		if !errors.Is(err, ErrMalformedLine) {
			t.Errorf("%q: expected ErrMalformedLine, got %v", line, err)
			continue
		}
		if !strings.Contains(err.Error(), "line 2") {
			t.Errorf("%q: expected line number in error, got %v", line, err)
		}
	}
}

func TestParseLineLabelsWithSpaces(t *testing.T) {
	st, err := ParseLine("handle request (4 calls);db query (2 calls) 15")
	if err != nil {
		t.Fatalf("ParseLine failed: %v", err)
	}
	want := []string{"handle request (4 calls)", "db query (2 calls)"}
	if diff := cmp.Diff(want, st.Frames); diff != "" {
		t.Errorf("Frames mismatch (-want +got):\n%s", diff)
	}
}

func TestSplitCalls(t *testing.T) {
	tests := []struct {
		frame string
		label string
		calls int
		ok    bool
	}{
		{"fib (2 calls)", "fib", 2, true},
		{"db query (12 calls)", "db query", 12, true},
		{"wrap (inner) (1 calls)", "wrap (inner)", 1, true},
		{"plain", "plain", 0, false},
		{"odd (x calls)", "odd (x calls)", 0, false},
	}
	for _, tt := range tests {
		label, calls, ok := SplitCalls(tt.frame)
		if label != tt.label || calls != tt.calls || ok != tt.ok {
			t.Errorf("SplitCalls(%q) = %q, %d, %v; want %q, %d, %v",
				tt.frame, label, calls, ok, tt.label, tt.calls, tt.ok)
		}
	}
}

func TestHot(t *testing.T) {
	stacks, err := Parse(strings.NewReader(fibFolded))
	if err != nil {
		t.Fatal(err)
	}

	want := []Entry{
		{Name: "is_small", Self: 300, Total: 300, Calls: 3},
		{Name: "fib", Self: 30, Total: 330, Calls: 3},
	}
	if diff := cmp.Diff(want, Hot(stacks)); diff != "" {
		t.Errorf("Hot mismatch (-want +got):\n%s", diff)
	}
}

func TestHotTiesByName(t *testing.T) {
	stacks := []Stack{
		{Frames: []string{"b"}, Count: 5},
		{Frames: []string{"a"}, Count: 5},
		{Frames: nil, Count: 9},
	}
	got := Hot(stacks)
	if len(got) != 2 || got[0].Name != "a" || got[1].Name != "b" {
		t.Errorf("Expected [a b], got %+v", got)
	}
}
