package main

import (
	"bytes"
	"errors"

	"github.com/spf13/cobra"

	"github.com/zoobzio/flamez"
)

var (
	convertFormat string
	convertOutput string
)

func init() {
	convertCmd.Flags().StringVarP(&convertFormat, "format", "f", flamez.FormatJSON, "output format (json|pprof|folded|svg)")
	convertCmd.Flags().StringVarP(&convertOutput, "output", "o", "-", "file to write, - for stdout")
}

var convertCmd = &cobra.Command{
	Use:   "convert <folded|->",
	Short: "Convert folded stacks to JSON, pprof or SVG",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		stacks, err := readStacks(cmd.InOrStdin(), args[0])
		if err != nil {
			return err
		}
		tr, err := flamez.FromStacks(stacks)
		if err != nil {
			return err
		}

		cfg := loadConfig()
		cfg.Format = convertFormat
		sink, err := cfg.Sink()
		if err != nil {
			return err
		}
		if _, ok := sink.(flamez.PprofSink); ok && convertOutput == "-" {
			return errors.New("pprof output is binary; pass --output")
		}

		var buf bytes.Buffer
		if err := sink.Write(&buf, tr); err != nil {
			return err
		}
		return writeOutput(cmd.OutOrStdout(), convertOutput, buf.Bytes())
	},
}
