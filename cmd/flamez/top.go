package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/zoobzio/flamez/folded"
)

var (
	topLimit   int
	topNoColor bool

	hotColor  = color.New(color.FgRed, color.Bold)
	warmColor = color.New(color.FgYellow)
	headColor = color.New(color.Bold)
)

func init() {
	topCmd.Flags().IntVarP(&topLimit, "top", "n", 10, "rows to show, 0 for all")
	topCmd.Flags().BoolVar(&topNoColor, "no-color", false, "disable colored output")
}

var topCmd = &cobra.Command{
	Use:   "top <folded|->",
	Short: "Rank labels by self time",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if topNoColor {
			color.NoColor = true
		}
		stacks, err := readStacks(cmd.InOrStdin(), args[0])
		if err != nil {
			return err
		}
		printTop(cmd.OutOrStdout(), stacks, topLimit)
		return nil
	},
}

func printTop(w io.Writer, stacks []folded.Stack, limit int) {
	total := folded.Total(stacks)
	if total == 0 {
		fmt.Fprintln(w, "no time recorded")
		return
	}
	ranked := folded.Hot(stacks)
	if limit > 0 && limit < len(ranked) {
		ranked = ranked[:limit]
	}

	headColor.Fprintf(w, "%-40s %7s %7s %12s %8s\n", "LABEL", "SELF%", "TOTAL%", "SELF(μs)", "CALLS")
	for _, e := range ranked {
		sp := 100 * float64(e.Self) / float64(total)
		tp := 100 * float64(e.Total) / float64(total)
		row := fmt.Sprintf("%-40s %6.1f%% %6.1f%% %12d %8d", e.Name, sp, tp, e.Self, e.Calls)
		switch {
		case sp >= 20:
			hotColor.Fprintln(w, row)
		case sp >= 5:
			warmColor.Fprintln(w, row)
		default:
			fmt.Fprintln(w, row)
		}
	}
}
