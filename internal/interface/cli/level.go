package cli

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/habitquest/duel-engine/internal/domain/leveling"
)

// LevelCmd returns the level command.
func LevelCmd() *cobra.Command {
	var table int

	cmd := &cobra.Command{
		Use:   "level [xp]",
		Short: "Show the level reached with a lifetime XP total",
		Long: `Show where an XP total sits in the level schedule.

Examples:
  xpctl level 1250         # Level breakdown for 1250 XP
  xpctl level --table 10   # Thresholds for levels 1-10`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if table > 0 {
				return printLevelTable(out, table)
			}
			if len(args) == 0 {
				return fmt.Errorf("an xp argument or --table is required")
			}

			xp, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || xp < 0 {
				return fmt.Errorf("xp must be a non-negative integer, got %q", args[0])
			}
			printLevel(out, leveling.Calculate(xp))
			return nil
		},
	}

	cmd.Flags().IntVar(&table, "table", 0, "Print thresholds for the first N levels")

	return cmd
}

func printLevel(out io.Writer, info leveling.Info) {
	fmt.Fprintf(out, "Level %s  %s\n",
		color.New(color.FgYellow, color.Bold).Sprint(info.Level),
		color.New(color.FgCyan).Sprint(info.Title),
	)
	fmt.Fprintf(out, "Progress  %d / %d XP (%d%%)\n", info.CurrentXPInLevel, info.XPForNextLevel, info.ProgressPercent)
	fmt.Fprintf(out, "Total     %d XP\n", info.TotalXP)
}

func printLevelTable(out io.Writer, n int) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LEVEL\tSTARTS AT\tCOST\tTITLE")
	for level := leveling.MinLevel; level <= n; level++ {
		fmt.Fprintf(w, "%d\t%d\t%d\t%s\n",
			level,
			leveling.Threshold(level),
			leveling.XPForLevel(level),
			leveling.Title(level),
		)
	}
	return w.Flush()
}
