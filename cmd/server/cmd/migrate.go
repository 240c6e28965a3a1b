package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bakeshelf/server/internal/storage/postgres"
)

var (
	migratePath  string
	migrateSteps int

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Manage database schema migrations",
	}

	migrateUpCmd = &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			databaseURL := os.Getenv("DATABASE_URL")
			if databaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required")
			}
			if err := postgres.MigrateUp(databaseURL, migratePath); err != nil {
				return err
			}
			fmt.Println("Migrations applied.")
			return nil
		},
	}

	migrateDownCmd = &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			databaseURL := os.Getenv("DATABASE_URL")
			if databaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required")
			}
			if err := postgres.MigrateDown(databaseURL, migratePath, migrateSteps); err != nil {
				return err
			}
			fmt.Printf("Rolled back %d migration(s).\n", migrateSteps)
			return nil
		},
	}
)

func init() {
	migrateCmd.PersistentFlags().StringVar(&migratePath, "path", "", "migrations directory (default: internal/storage/postgres/migrations)")
	migrateDownCmd.Flags().IntVar(&migrateSteps, "steps", 1, "number of migrations to roll back")

	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
}
