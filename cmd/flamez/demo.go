package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zoobzio/flamez"
)

var (
	demoOutput   string
	demoParallel int
	demoN        int
)

func init() {
	demoCmd.Flags().StringVarP(&demoOutput, "output", "o", "", "file to write each trace to (default from config)")
	demoCmd.Flags().IntVarP(&demoParallel, "parallel", "p", 1, "goroutines running the demo, each recording its own trace")
	demoCmd.Flags().IntVarP(&demoN, "size", "n", 0, "problem size for fib and fanout")
}

var demoCmd = &cobra.Command{
	Use:       "demo <" + strings.Join(demoNames(), "|") + ">",
	Short:     "Run an instrumented demo program and write its flame graph",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: demoNames(),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		if demoOutput != "" {
			cfg.Output = demoOutput
		}
		sink, err := cfg.Sink()
		if err != nil {
			return err
		}

		start := time.Now()
		traces, err := runDemo(cmd.Context(), args[0], demoOptions{
			n:        demoN,
			parallel: demoParallel,
			out:      cmd.OutOrStdout(),
			newTracer: func() (*flamez.Tracer, func(time.Duration)) {
				return flamez.New(), time.Sleep
			},
		})
		if err != nil {
			return err
		}
		elapsed := time.Since(start)

		spans := 0
		for i, tr := range traces {
			path := indexedPath(cfg.Output, i, len(traces))
			var buf bytes.Buffer
			if err := sink.Write(&buf, tr); err != nil {
				return err
			}
			if err := writeOutput(cmd.OutOrStdout(), path, buf.Bytes()); err != nil {
				return err
			}
			spans += spanCount(tr)
			log.Info().Str("trace_id", tr.ID).Str("path", path).Int("frames", tr.Len()).Msg("trace written")
		}
		if spans > 0 {
			log.Info().
				Int("spans", spans).
				Dur("elapsed", elapsed).
				Dur("per_span", elapsed/time.Duration(spans)).
				Msg("demo finished")
		}
		return nil
	},
}

func demoNames() []string {
	names := make([]string, 0, len(programs))
	for name := range programs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type demoOptions struct {
	n         int
	parallel  int
	out       io.Writer
	newTracer func() (*flamez.Tracer, func(time.Duration))
}

// runDemo runs the named program on opts.parallel goroutines, each with
// its own tracer, and returns the collected traces.
func runDemo(ctx context.Context, name string, opts demoOptions) ([]*flamez.Trace, error) {
	run, ok := programs[name]
	if !ok {
		return nil, fmt.Errorf("unknown demo %q", name)
	}
	if opts.parallel < 1 {
		opts.parallel = 1
	}
	if opts.n <= 0 {
		opts.n = defaultN[name]
	}
	if opts.out == nil || opts.parallel > 1 {
		opts.out = io.Discard
	}
	if ctx == nil {
		ctx = context.Background()
	}

	collector := flamez.NewCollector(name, opts.parallel)
	collector.SetSyncMode(true)
	defer collector.Close()

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < opts.parallel; i++ {
		g.Go(func() error {
			tracer, sleep := opts.newTracer()
			if err := tracer.OnTraceComplete(collector.Handler()); err != nil {
				return err
			}
			p := &program{sleep: sleep, out: opts.out, n: opts.n}
			result := run(p, flamez.WithTracer(gctx, tracer))
			log.Debug().Str("demo", name).Int("worker", i).Int("result", result).Msg("demo run complete")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return collector.Export(), nil
}

// indexedPath numbers output files when a run produced several traces:
// flamegraph.svg becomes flamegraph-0.svg, flamegraph-1.svg and so on.
func indexedPath(path string, i, n int) string {
	if n <= 1 || path == "-" {
		return path
	}
	ext := filepath.Ext(path)
	return fmt.Sprintf("%s-%d%s", strings.TrimSuffix(path, ext), i, ext)
}

// spanCount returns how many spans were closed while recording tr.
func spanCount(tr *flamez.Trace) int {
	n := 0
	tr.Walk(func(path []*flamez.Frame) bool {
		n += path[len(path)-1].Calls
		return true
	})
	return n
}
