// Package cmd holds the citylore server CLI.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	logLevel  string
	logFormat string

	rootCmd = &cobra.Command{
		Use:   "server",
		Short: "citylore server - cultural events aggregation backend",
		Long: `citylore server ingests cultural events from venue websites,
ticketing aggregators, and screenshots, deduplicates them across
sources, and serves them over a JSON API.

The server supports:
- Scraping venue sites with JSON-LD, microdata, and CSS heuristics
- Aggregator API extraction with cursor pagination
- OCR + LLM extraction of events from uploaded screenshots
- Cross-source deduplication with per-venue quotas
- Streaming scrape progress over server-sent events`,
		// Run the serve command by default if no subcommand is specified
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveCmd.RunE(cmd, args)
		},
	}
)

// Execute adds all child commands to the root command and sets flags
// appropriately. Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error) (default: info)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (json, console) (default: json)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(scrapeCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(healthcheckCmd)
}
