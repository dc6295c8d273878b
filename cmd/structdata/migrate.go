package main

import (
	"github.com/spf13/cobra"

	"github.com/ryanbastic/go-structdata/internal/config"
	"github.com/ryanbastic/go-structdata/internal/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema and exit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger := newLogger(cfg)
		ctx := cmd.Context()

		pool, err := connect(ctx, cfg)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := storage.RunMigrations(ctx, pool); err != nil {
			return err
		}
		logger.Info("migrations complete", "tables", storage.Tables())
		return nil
	},
}
