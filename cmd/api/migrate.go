package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/simplifychat/backend/internal/config"
	"github.com/zhouzirui/simplifychat/backend/internal/store"
)

func newMigrateCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the PostgreSQL schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return migrate(ctx, cmd, cfg.Database)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "time limit for connecting and migrating")
	return cmd
}

func migrate(ctx context.Context, cmd *cobra.Command, dbCfg config.DatabaseConfig) error {
	if !dbCfg.Enabled() {
		return errors.New("DATABASE_URL is required to run migrations")
	}

	pg, err := store.OpenPostgres(ctx, dbCfg)
	if err != nil {
		return err
	}
	defer pg.Close()

	if err := pg.Migrate(ctx); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), color.RedString("migration failed: %v", err))
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), color.New(color.FgGreen, color.Bold).Sprint("schema is up to date"))
	return nil
}
