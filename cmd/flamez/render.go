package main

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/zoobzio/flamez/folded"
	"github.com/zoobzio/flamez/svg"
)

var (
	renderOutput   string
	renderTitle    string
	renderWidth    int
	renderTruncate string
)

func init() {
	renderCmd.Flags().StringVarP(&renderOutput, "output", "o", "", "SVG file to write (default from config)")
	renderCmd.Flags().StringVar(&renderTitle, "title", "", "graph title (default from config)")
	renderCmd.Flags().IntVar(&renderWidth, "width", 0, "image width in pixels (default from config)")
	renderCmd.Flags().StringVar(&renderTruncate, "truncate", "", "side long labels are cut on (left|right)")
}

var renderCmd = &cobra.Command{
	Use:   "render <folded|->",
	Short: "Render folded stacks as an SVG flame graph",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		stacks, err := readStacks(cmd.InOrStdin(), args[0])
		if err != nil {
			return err
		}

		cfg := loadConfig()
		if renderTitle != "" {
			cfg.Title = renderTitle
		}
		if renderWidth > 0 {
			cfg.Width = renderWidth
		}
		switch renderTruncate {
		case "":
		case "left", "right":
			cfg.Truncate = renderTruncate
		default:
			return fmt.Errorf("unknown truncation %q", renderTruncate)
		}
		out := renderOutput
		if out == "" {
			out = cfg.Output
		}

		var buf bytes.Buffer
		if err := svg.Render(&buf, stacks, cfg.SVGOptions()); err != nil {
			return err
		}
		return writeOutput(cmd.OutOrStdout(), out, buf.Bytes())
	},
}

// readStacks parses the folded file at path, or stdin when path is "-".
func readStacks(stdin io.Reader, path string) ([]folded.Stack, error) {
	if path == "-" {
		return folded.Parse(stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	stacks, err := folded.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return stacks, nil
}

// writeOutput writes data to path, or to stdout when path is "-".
func writeOutput(stdout io.Writer, path string, data []byte) error {
	if path == "-" {
		_, err := stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
