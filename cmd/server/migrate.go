package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/iliyamo/owleye/internal/config"
	"github.com/iliyamo/owleye/internal/database"
	"github.com/iliyamo/owleye/internal/logging"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logging.Configure(cfg.LogLevel, cfg.LogPretty)

			db, err := database.Open(cfg)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			if err := database.Migrate(cmd.Context(), db, cfg.DBDriver); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			log.Info().Str("driver", cfg.DBDriver).Msg("schema up to date")
			return nil
		},
	}
}
