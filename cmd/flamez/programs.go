package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode"

	"github.com/zoobzio/flamez"
)

// program is one instrumented demo. sleep stands in for real work so
// tests can drive it with a fake clock.
type program struct {
	sleep func(time.Duration)
	out   io.Writer
	n     int
}

var programs = map[string]func(p *program, ctx context.Context) int{
	"fib":    (*program).fibMain,
	"sample": (*program).sampleMain,
	"fanout": (*program).fanoutMain,
}

// defaultN is the problem size used when --size is not given.
var defaultN = map[string]int{
	"fib":    20,
	"sample": 0,
	"fanout": 25,
}

func (p *program) fibMain(ctx context.Context) int {
	return p.fib(ctx, p.n)
}

// fib is deliberately recursive to show how recursion nests in the graph.
func (p *program) fib(ctx context.Context, n int) int {
	ctx, span := flamez.Start(ctx, "fib")
	defer span.Finish()

	if p.isSmall(ctx, n) {
		return n
	}
	return p.fib(ctx, n-1) + p.fib(ctx, n-2)
}

func (p *program) isSmall(ctx context.Context, n int) bool {
	_, span := flamez.Start(ctx, "is_small")
	defer span.Finish()
	return n <= 2
}

// fanoutMain opens one differently labelled child per index, each
// running fib, and returns the number of spans opened.
func (p *program) fanoutMain(ctx context.Context) int {
	ctx, span := flamez.Start(ctx, "fanout")
	defer span.Finish()

	calls := 1
	for i := 0; i < p.n; i++ {
		calls += p.fan(ctx, i)
	}
	return calls
}

func (p *program) fan(ctx context.Context, i int) int {
	ctx, span := flamez.Start(ctx, fmt.Sprintf("f%d", i))
	defer span.Finish()
	return p.countedFib(ctx, i) + 1
}

func (p *program) countedFib(ctx context.Context, n int) int {
	ctx, span := flamez.Start(ctx, "fib")
	defer span.Finish()

	if p.isSmall(ctx, n) {
		return 2
	}
	return p.countedFib(ctx, n-1) + p.countedFib(ctx, n-2) + 2
}

const (
	sampleTitle     = "Sample Flame Graph"
	sampleParagraph = "This is a silly little text rendering program for the purpose of illustrating what flame graphs look like."
	lineWidth       = 40
)

// sampleMain renders a title and a paragraph one character at a time.
func (p *program) sampleMain(ctx context.Context) int {
	ctx, span := flamez.Start(ctx, "main")
	defer span.Finish()

	p.renderTitle(ctx, sampleTitle)
	p.renderParagraph(ctx, sampleParagraph)
	return 0
}

func (p *program) renderTitle(ctx context.Context, title string) {
	ctx, span := flamez.Start(ctx, "render_title")
	defer span.Finish()
	p.sleep(20 * time.Millisecond)

	for _, ch := range title {
		p.renderChar(ctx, unicode.ToUpper(ch))
	}
	p.renderChar(ctx, '\n')
	for range len(title) {
		p.renderChar(ctx, '=')
	}
	p.renderChar(ctx, '\n')
	p.renderChar(ctx, '\n')
}

func (p *program) renderParagraph(ctx context.Context, paragraph string) {
	ctx, span := flamez.Start(ctx, "render_paragraph")
	defer span.Finish()
	p.sleep(15 * time.Millisecond)

	for _, line := range p.splitLines(ctx, paragraph) {
		for _, ch := range line {
			p.renderChar(ctx, ch)
		}
		p.renderChar(ctx, '\n')
	}
}

func (p *program) splitLines(ctx context.Context, paragraph string) []string {
	_, span := flamez.Start(ctx, "split_lines")
	defer span.Finish()
	p.sleep(50 * time.Millisecond)

	lines := []string{""}
	for _, word := range strings.Split(paragraph, " ") {
		last := len(lines) - 1
		if len(lines[last])+1+len(word) > lineWidth {
			lines[last] = strings.TrimSuffix(lines[last], " ")
			lines = append(lines, "")
			last++
		}
		lines[last] += word + " "
	}
	return lines
}

func (p *program) renderChar(ctx context.Context, ch rune) {
	_, span := flamez.Start(ctx, "render_char")
	defer span.Finish()
	p.sleep(time.Millisecond)

	fmt.Fprint(p.out, string(ch))
}
