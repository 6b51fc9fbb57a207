package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/p-n-ai/pai-planner/internal/app"
	"github.com/p-n-ai/pai-planner/internal/platform/config"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "planctl",
		Short:         "Administer the weekly task planner",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("curriculum", "", "Curriculum catalog file or directory (overrides LEARN_CURRICULUM_PATH)")

	root.AddCommand(newMigrateCmd())
	root.AddCommand(newPreviewCmd())
	root.AddCommand(newExportCmd())
	root.AddCommand(newCatalogCmd())
	return root
}

// loadConfig reads the environment configuration, applying command-line
// overrides, and installs the configured logger.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if p, _ := cmd.Flags().GetString("curriculum"); p != "" {
		cfg.Curriculum.Path = p
	}
	slog.SetDefault(app.NewLogger(cfg.Log))
	return cfg, nil
}
