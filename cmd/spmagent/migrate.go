package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"spmagent/internal/repository"
)

func newMigrateCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, log, pool, err := bootstrap(ctx, flags)
			if err != nil {
				return err
			}
			defer log.Sync()
			defer pool.Close()

			if err := repository.Migrate(ctx, pool); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			log.Info("Schema applied")
			return nil
		},
	}
}
