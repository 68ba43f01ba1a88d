package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nvell/issuelens/internal/search"
)

var (
	searchVector bool
	searchLimit  int
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search indexed issues",
	Long: `Search the indexed issues. The default mode is keyword matching over
title, summary, solution and category. With --vector the query is
embedded and matched semantically against the stored analyses.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().BoolVar(&searchVector, "vector", false, "semantic search instead of keyword matching")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "maximum number of results")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	logger := setupLogger()
	query := strings.Join(args, " ")

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	c, err := initComponents(cfg, logger)
	if err != nil {
		return err
	}
	defer c.Store.Close()

	var results []search.Result
	if searchVector {
		results, err = search.Vector(cmd.Context(), c.Store, c.Embedder, query, searchLimit, cfg.Search.SimilarityThreshold)
	} else {
		results, err = search.Keyword(c.Store, query, searchLimit)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(results) == 0 {
		fmt.Fprintln(out, "No matching issues found.")
		return nil
	}
	for _, res := range results {
		issue := res.Issue
		fmt.Fprintf(out, "#%d  %s  [%s/%s]  score=%.3f\n", issue.Number, issue.Title, issue.Category, issue.Confidence, res.Score)
		fmt.Fprintf(out, "    %s\n", issue.Summary)
		fmt.Fprintf(out, "    %s\n", issue.URL)
	}
	return nil
}
