package flamez

import (
	"io"

	"github.com/google/pprof/profile"
)

// Profile converts the trace into a pprof profile. Every frame becomes
// one sample whose value is the frame's self time in nanoseconds, so
// pprof's cumulative view reproduces the frame totals. The invocation
// count is attached as the numeric label "calls".
func (t *Trace) Profile() *profile.Profile {
	p := &profile.Profile{
		SampleType: []*profile.ValueType{
			{Type: "wall", Unit: "nanoseconds"},
		},
		DefaultSampleType: "wall",
		PeriodType:        &profile.ValueType{Type: "wall", Unit: "nanoseconds"},
		Period:            1,
		TimeNanos:         t.Start.UnixNano(),
		DurationNanos:     t.Duration.Nanoseconds(),
	}
	if t.Root == nil {
		return p
	}

	// Track unique locations and functions to avoid duplicates
	locations := make(map[Label]*profile.Location)
	location := func(label Label) *profile.Location {
		if loc, ok := locations[label]; ok {
			return loc
		}
		fn := &profile.Function{
			ID:         uint64(len(p.Function) + 1),
			Name:       label,
			SystemName: label,
		}
		p.Function = append(p.Function, fn)
		loc := &profile.Location{
			ID:   uint64(len(p.Location) + 1),
			Line: []profile.Line{{Function: fn}},
		}
		p.Location = append(p.Location, loc)
		locations[label] = loc
		return loc
	}

	t.Walk(func(path []*Frame) bool {
		// pprof stacks are leaf first.
		stack := make([]*profile.Location, len(path))
		for i, f := range path {
			stack[len(path)-1-i] = location(f.Label)
		}
		leaf := path[len(path)-1]
		p.Sample = append(p.Sample, &profile.Sample{
			Location: stack,
			Value:    []int64{leaf.Self.Nanoseconds()},
			NumLabel: map[string][]int64{"calls": {int64(leaf.Calls)}},
		})
		return true
	})
	return p
}

// WritePprof writes the trace as a gzip-compressed pprof protobuf.
func (t *Trace) WritePprof(w io.Writer) error {
	if t == nil || t.Root == nil {
		return ErrEmptyTrace
	}
	return t.Profile().Write(w)
}
