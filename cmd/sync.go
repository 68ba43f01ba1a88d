package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch, analyze and index new closed issues",
	Long: `Sync pages through the configured repository's closed issues, stages
the ones not yet indexed, fetches their comment threads, then analyzes
and stores each one. Already-indexed issues are skipped, so repeated
runs only pay for what changed.`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
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

	runner, err := newRunner(c)
	if err != nil {
		return err
	}

	if err := runner.Run(cmd.Context()); err != nil {
		return err
	}

	status, err := c.Store.GetSyncStatus()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), status.Message)
	return nil
}
