package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvell/issuelens/internal/store"
)

var statsRebuild bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate counts for the issue index",
	Long: `Print the indexed issue counts by category and confidence. With
--rebuild the counters are recomputed from the issue rows first, which
repairs any drift in the incremental tallies.`,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().BoolVar(&statsRebuild, "rebuild", false, "recompute counters from the issue rows")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	c, err := initComponents(cfg, logger)
	if err != nil {
		return err
	}
	defer c.Store.Close()

	var stats *store.Stats
	if statsRebuild {
		stats, err = c.Store.RebuildStats()
	} else {
		stats, err = c.Store.GetStats()
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Total indexed issues: %d\n", stats.Total)
	fmt.Fprintln(out, "By category:")
	fmt.Fprintf(out, "  Bug:             %d\n", stats.ByCategory.Bug)
	fmt.Fprintf(out, "  Feature Request: %d\n", stats.ByCategory.FeatureRequest)
	fmt.Fprintf(out, "  Question:        %d\n", stats.ByCategory.Question)
	fmt.Fprintf(out, "  Other:           %d\n", stats.ByCategory.Other)
	fmt.Fprintln(out, "By confidence:")
	fmt.Fprintf(out, "  High:   %d\n", stats.ByConfidence.High)
	fmt.Fprintf(out, "  Medium: %d\n", stats.ByConfidence.Medium)
	fmt.Fprintf(out, "  Low:    %d\n", stats.ByConfidence.Low)
	if stats.LastSync != nil {
		fmt.Fprintf(out, "Last sync: %s\n", stats.LastSync.Format("2006-01-02 15:04:05 UTC"))
	}
	return nil
}
