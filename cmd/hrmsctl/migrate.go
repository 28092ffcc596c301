package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/config"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long: `Apply the embedded schema migrations. With --down the most recent
Postgres migration is rolled back. SQLite databases are migrated in place
from the table definitions and cannot be rolled back.`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().Bool("down", false, "Roll back the most recent migration (postgres only)")
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	down, _ := cmd.Flags().GetBool("down")

	switch cfg.Database.Driver {
	case config.DriverPostgres:
		if err := storage.MigratePostgres(ctx, cfg.Database.DSN(), down); err != nil {
			return err
		}
	case config.DriverSQLite:
		if down {
			return errors.New("--down is not supported for sqlite")
		}
		s, err := storage.NewSQLiteStore(cfg.Database.SQLitePath)
		if err != nil {
			return err
		}
		defer s.Close()
		if err := s.Migrate(ctx); err != nil {
			return err
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s migrations applied\n", cfg.Database.Driver)
	return nil
}
