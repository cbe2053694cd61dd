package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewSearchCmd creates the search command.
func NewSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search crawled pages by meaning",
		Long: `Search embeds the query with the configured embedding model and ranks
crawled pages by cosine similarity against the vector store.

Examples:
  semcrawl search "how do I rotate an api key"
  semcrawl search --top-k 10 onboarding checklist`,
		Args: cobra.MinimumNArgs(1),
		RunE: runSearchCmd,
	}

	cmd.Flags().IntP("top-k", "k", 0, "Number of results to return")

	return cmd
}

func runSearchCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// Search is only meaningful against the vector store, so the vector
	// section is required here even when the crawl config leaves it off.
	cfg.Vector.Enabled = true
	if flags := cmd.Flags(); flags.Changed("top-k") {
		cfg.Vector.TopK, _ = flags.GetInt("top-k")
	}
	if err := cfg.Vector.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	logger, err := setupLogger(cfg.Logging, verbose)
	if err != nil {
		return err
	}

	ix, err := buildIndexer(cfg, logger)
	if err != nil {
		return err
	}

	query := strings.Join(args, " ")
	hits, err := ix.Search(cmd.Context(), query, cfg.Vector.TopK)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(hits) == 0 {
		fmt.Fprintln(out, "No results.")
		return nil
	}
	for i, hit := range hits {
		fmt.Fprintf(out, "%2d. %s\n", i+1, hit.URL)
		if hit.Title != "" {
			fmt.Fprintf(out, "    %s\n", hit.Title)
		}
		fmt.Fprintf(out, "    distance: %.4f\n", hit.Distance)
	}
	return nil
}
