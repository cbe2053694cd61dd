// Package main provides the entry point for the semcrawl CLI.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"semcrawl/internal/config"
)

// NewRootCmd creates the root command for semcrawl.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "semcrawl",
		Short: "Authenticated site crawler with semantic search",
		Long: `semcrawl crawls one site breadth-first within its domain, keeping an
authenticated session alive across the run. Crawled pages are stored in
a relational database, exported as JSON, and optionally embedded into a
vector store so they can be searched by meaning rather than keyword.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
	cmd.PersistentFlags().StringP("config", "c", "", "Configuration file path (YAML)")

	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewSearchCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig assembles configuration from the optional --config file and
// the environment. Callers overlay their own flags and call Finalize.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	return config.Build(path)
}

// setupLogger builds the process logger from configuration. The
// --verbose flag forces debug level regardless of the configured level.
func setupLogger(cfg config.LoggingConfig, verbose bool) (*slog.Logger, error) {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("unsupported log level %q", cfg.Level)
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Structured {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler), nil
}
