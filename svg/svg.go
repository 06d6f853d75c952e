// Package svg renders folded stacks as an SVG flame graph.
package svg

import (
	"bufio"
	"encoding/xml"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"strings"

	"github.com/zoobzio/flamez/folded"
)

var (
	// ErrNoStacks is returned when there is nothing with a non-zero weight to draw.
	ErrNoStacks = errors.New("svg: no stack counts found")

	// ErrTooNarrow is returned when Options.Width is below MinImageWidth.
	ErrTooNarrow = errors.New("svg: image width too small")
)

// MinImageWidth is the narrowest image Render accepts, in pixels.
const MinImageWidth = 100

// Truncation selects which end of a label is cut when it does not fit.
type Truncation int

const (
	// TruncateRight keeps the start of the label: "render_par..".
	TruncateRight Truncation = iota
	// TruncateLeft keeps the end of the label: "..ender_paragraph".
	TruncateLeft
)

// Options control the rendered image.
type Options struct {
	Title       string
	CountName   string
	Width       int
	FrameHeight int
	FontSize    int
	// FontWidth is the average glyph width relative to FontSize.
	FontWidth float64
	// MinWidth hides frames narrower than this many pixels.
	MinWidth float64
	Truncate Truncation
}

// DefaultOptions returns options for time-weighted flame graphs.
func DefaultOptions() *Options {
	return &Options{
		Title:       "Flame Graph",
		CountName:   "μs",
		Width:       1200,
		FrameHeight: 16,
		FontSize:    12,
		FontWidth:   0.59,
		MinWidth:    0.1,
		Truncate:    TruncateRight,
	}
}

const (
	xPad = 10
)

type node struct {
	name     string
	self     uint64
	total    uint64
	children []*node
	index    map[string]*node
}

func (n *node) child(name string) *node {
	if c, ok := n.index[name]; ok {
		return c
	}
	c := &node{name: name}
	if n.index == nil {
		n.index = make(map[string]*node)
	}
	n.index[name] = c
	n.children = append(n.children, c)
	return c
}

func (n *node) sum() uint64 {
	n.total = n.self
	for _, c := range n.children {
		n.total += c.sum()
	}
	return n.total
}

func (n *node) depth() int {
	d := 0
	for _, c := range n.children {
		if cd := c.depth(); cd > d {
			d = cd
		}
	}
	return d + 1
}

// merge folds the stacks into one tree under a synthetic "all" root.
// Children keep first-seen order.
func merge(stacks []folded.Stack) *node {
	root := &node{name: "all"}
	for i := range stacks {
		n := root
		for _, fr := range stacks[i].Frames {
			n = n.child(fr)
		}
		n.self += stacks[i].Count
	}
	root.sum()
	return root
}

// Render writes the flame graph of stacks to w.
func Render(w io.Writer, stacks []folded.Stack, opts *Options) error {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.Width < MinImageWidth {
		return fmt.Errorf("%w: %d < %d", ErrTooNarrow, opts.Width, MinImageWidth)
	}
	root := merge(stacks)
	if root.total == 0 {
		return ErrNoStacks
	}

	r := &renderer{
		opts:  opts,
		scale: float64(opts.Width-2*xPad) / float64(root.total),
		total: root.total,
		top:   opts.FontSize * 3,
	}
	depth := root.depth()
	r.height = r.top + depth*opts.FrameHeight + opts.FontSize*2 + 10

	bw := bufio.NewWriter(w)
	r.w = bw
	r.header()
	r.frame(root, 0, float64(xPad))
	fmt.Fprint(bw, "</g>\n</svg>\n")
	return bw.Flush()
}

type renderer struct {
	w      *bufio.Writer
	opts   *Options
	scale  float64
	total  uint64
	top    int
	height int
}

func (r *renderer) header() {
	o := r.opts
	fmt.Fprintf(r.w, `<?xml version="1.0" standalone="no"?>
<!DOCTYPE svg PUBLIC "-//W3C//DTD SVG 1.1//EN" "http://www.w3.org/Graphics/SVG/1.1/DTD/svg11.dtd">
<svg version="1.1" width="%d" height="%d" viewBox="0 0 %d %d" xmlns="http://www.w3.org/2000/svg">
<rect x="0" y="0" width="%d" height="%d" fill="#f8f8f8"/>
<text x="%d" y="%d" font-size="%d" font-family="Verdana" text-anchor="middle">%s</text>
<g font-family="Verdana" font-size="%d">
`, o.Width, r.height, o.Width, r.height, o.Width, r.height,
		o.Width/2, o.FontSize*2, o.FontSize+5, escape(o.Title), o.FontSize)
}

// frame draws n at the given depth (0 is the synthetic root at the
// bottom) starting at x, then its children on top of it.
func (r *renderer) frame(n *node, depth int, x float64) {
	width := float64(n.total) * r.scale
	if width < r.opts.MinWidth {
		return
	}

	fh := r.opts.FrameHeight
	y := r.height - r.opts.FontSize*2 - 10 - (depth+1)*fh
	pct := 100 * float64(n.total) / float64(r.total)
	info := fmt.Sprintf("%s (%d %s, %.2f%%)", n.name, n.total, r.opts.CountName, pct)

	fmt.Fprintf(r.w, `<g><title>%s</title><rect x="%.1f" y="%d" width="%.1f" height="%d" fill="%s" rx="2" ry="2"/>`,
		escape(info), x, y, width, fh-1, color(n.name))
	if text := r.fit(n.name, width); text != "" {
		fmt.Fprintf(r.w, `<text x="%.1f" y="%d">%s</text>`, x+3, y+fh-5, escape(text))
	}
	fmt.Fprint(r.w, "</g>\n")

	cx := x
	for _, c := range n.children {
		r.frame(c, depth+1, cx)
		cx += float64(c.total) * r.scale
	}
}

// fit shortens label to the characters that fit in width pixels.
func (r *renderer) fit(label string, width float64) string {
	glyph := float64(r.opts.FontSize) * r.opts.FontWidth
	room := int((width - 6) / glyph)
	if room < 3 {
		return ""
	}
	runes := []rune(label)
	if len(runes) <= room {
		return label
	}
	if r.opts.Truncate == TruncateLeft {
		return ".." + string(runes[len(runes)-(room-2):])
	}
	return string(runes[:room-2]) + ".."
}

// color picks a stable warm color per name.
func color(name string) string {
	h := fnv.New32a()
	h.Write([]byte(name))
	v := h.Sum32()
	v1 := float64(v&0xff) / 255
	v2 := float64((v>>8)&0xff) / 255
	v3 := float64((v>>16)&0xff) / 255
	return fmt.Sprintf("rgb(%d,%d,%d)", 205+int(50*v3), int(230*v1), int(55*v2))
}

func escape(s string) string {
	var sb strings.Builder
	_ = xml.EscapeText(&sb, []byte(s))
	return sb.String()
}
