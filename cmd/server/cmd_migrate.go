package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jengzang/farm-advisory-backend-go/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := database.Open(database.Config{Path: cfg.DBPath})
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := database.NewMigrationManager(db, logger).RunMigrations(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s) to %s\n", n, cfg.DBPath)
		return nil
	},
}
