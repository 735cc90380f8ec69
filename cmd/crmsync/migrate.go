package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mkoziy/contratos/crmsync/internal/database"
	"github.com/mkoziy/contratos/crmsync/internal/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := database.Open(cmd.Context(), cfg.Database)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()

		group, err := migrations.RunMigrations(cmd.Context(), db)
		if err != nil {
			return err
		}
		if group.IsZero() {
			fmt.Println("Database is up to date")
			return nil
		}
		fmt.Printf("Migrated to %s\n", group)
		return nil
	},
}

var migrateRollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Roll back the last migration group",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := database.Open(cmd.Context(), cfg.Database)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()

		group, err := migrations.Rollback(cmd.Context(), db)
		if err != nil {
			return err
		}
		if group.IsZero() {
			fmt.Println("Nothing to roll back")
			return nil
		}
		fmt.Printf("Rolled back %s\n", group)
		return nil
	},
}

func init() {
	migrateCmd.AddCommand(migrateRollbackCmd)
	rootCmd.AddCommand(migrateCmd)
}
