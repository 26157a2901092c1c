package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"spmagent/internal/config"
	pkgconfig "spmagent/pkg/config"
	"spmagent/pkg/db"
	"spmagent/pkg/logger"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

type globalFlags struct {
	env       string
	configDir string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	cmd := &cobra.Command{
		Use:           "spmagent",
		Short:         "Roadmap planning API",
		Long:          "spmagent turns project descriptions into scheduled roadmaps and tracks progress on them.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&flags.env, "env", pkgconfig.GetConfigEnv(), "configuration environment (base.yaml overlaid with <env>.yaml)")
	cmd.PersistentFlags().StringVar(&flags.configDir, "config-dir", pkgconfig.GetEnv("CONFIG_DIR", "config"), "directory holding the YAML configuration")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd(flags))
	cmd.AddCommand(newMigrateCmd(flags))
	cmd.AddCommand(newDispatchOutboxCmd(flags))
	cmd.AddCommand(newOutboxReplayCmd(flags))
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "spmagent %s (commit: %s)\n", Version, Commit)
		},
	}
}

// bootstrap loads configuration, builds the logger and opens the database pool.
func bootstrap(ctx context.Context, flags *globalFlags) (*config.Config, *zap.Logger, *pgxpool.Pool, error) {
	cfg, err := config.Load(flags.env, flags.configDir)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.NewLogger(cfg.Log.Level)

	pool, err := db.NewConnection(ctx, cfg.DB, log)
	if err != nil {
		_ = log.Sync()
		return nil, nil, nil, fmt.Errorf("connect database: %w", err)
	}
	return cfg, log, pool, nil
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
