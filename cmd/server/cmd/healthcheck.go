package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/bakeshelf/server/internal/storage/postgres"
)

var (
	// healthcheckCmd represents the healthcheck command
	healthcheckCmd = &cobra.Command{
		Use:   "healthcheck",
		Short: "Check database connectivity",
		Long: `Performs a health check by connecting to the configured database
and issuing a ping.

This command is used by Docker HEALTHCHECK to monitor container health.
It exits with code 0 if the database is reachable, 1 otherwise.`,
		RunE: runHealthcheck,
	}

	healthcheckTimeout int
)

func init() {
	healthcheckCmd.Flags().IntVar(&healthcheckTimeout, "timeout", 5, "timeout in seconds")
}

func runHealthcheck(cmd *cobra.Command, args []string) error {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is not set")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(healthcheckTimeout)*time.Second)
	defer cancel()

	pool, err := postgres.Connect(ctx, databaseURL, 1, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
		return err
	}
	pool.Close()

	return nil
}
