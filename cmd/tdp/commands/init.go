package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/TOSIT-IO/tdp-lib/internal/config"
	"github.com/TOSIT-IO/tdp-lib/internal/store"
)

func newInitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the persistent store",
		Long: `Reads the TDP_* environment configuration and creates/migrates the
SQLite-backed deployment, status, and variable-commit tables.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}

			st, err := store.NewSQLiteStore(store.Config{Path: cfg.DatabaseDSN})
			if err != nil {
				return fmt.Errorf("configuring store: %w", err)
			}
			ctx := cmd.Context()
			if err := st.Open(ctx); err != nil {
				return fmt.Errorf("opening store at %s: %w", cfg.DatabaseDSN, err)
			}
			defer st.Close()

			if err := st.Migrate(ctx); err != nil {
				return fmt.Errorf("migrating store: %w", err)
			}

			log.Info().Str("database", cfg.DatabaseDSN).Msg("store initialized")
			fmt.Printf("initialized store at %s\n", cfg.DatabaseDSN)
			fmt.Printf("collection paths: %v\n", cfg.CollectionPaths)
			fmt.Printf("variables root: %s\n", cfg.VarsRoot)
			return nil
		},
	}
	return cmd
}
