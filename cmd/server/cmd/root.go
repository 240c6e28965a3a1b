package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/bakeshelf/server/internal/config"
)

var (
	// Global flags
	logLevel  string
	logFormat string

	// rootCmd represents the base command when called without any subcommands
	rootCmd = &cobra.Command{
		Use:   "bakeshelf",
		Short: "Bakeshelf server - recipe aggregation backend",
		Long: `Bakeshelf scrapes recipes from configured cooking sites and stores them
in Postgres.

The server supports:
- Selector-driven scraping of configured recipe sites
- Paginated listing crawls with per-site courtesy delays
- Idempotent upserts keyed by (author, slug)
- Recipe image download and JPEG normalization
- Prometheus metrics for scrape runs`,
	}
)

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	// Global flags available to all subcommands
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error) (default: info)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (json, console) (default: json)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(healthcheckCmd)
	rootCmd.AddCommand(migrateCmd)
}

// newLogger builds the command logger from config plus any flag overrides.
func newLogger(cfg config.Config) zerolog.Logger {
	logging := cfg.Logging
	if logLevel != "" {
		logging.Level = logLevel
	}
	if logFormat != "" {
		logging.Format = logFormat
	}
	return config.NewLogger(logging)
}
