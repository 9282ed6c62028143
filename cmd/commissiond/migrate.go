package main

import (
	"github.com/spf13/cobra"

	"github.com/commissionhub/commission-api/internal/pkg/config"
	"github.com/commissionhub/commission-api/pkg/logger"
)

// migrateCmd prepares the configured store without starting the server.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema or indexes",
	Long: `Apply the PostgreSQL schema or create the MongoDB indexes for the
backend selected by STORE_DRIVER. Safe to run repeatedly.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := config.Load(ctx)
		if err != nil {
			return err
		}
		log := logger.Init(logger.Options{Level: cfg.LogLevel, Pretty: cfg.IsDevelopment(), Service: "commissiond"})

		st, err := openStores(ctx, cfg, true, log)
		if err != nil {
			return err
		}
		st.close(ctx)
		log.Info().Str("driver", cfg.StoreDriver).Msg("migration complete")
		return nil
	},
}
