// Package cli implements xpctl, the operator tool for the duel engine.
package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/habitquest/duel-engine/config"
)

// ConfigLoader resolves the process configuration on demand, so commands that
// need no backing services never touch the environment.
type ConfigLoader func() (*config.Config, error)

// NewRootCmd assembles the xpctl command tree.
func NewRootCmd(version string) *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:     "xpctl",
		Short:   "Operate the challenge and XP settlement engine",
		Version: version,
		Long: `xpctl runs maintenance tasks against the duel engine.

Commands that touch storage read the same configuration as the API server:
defaults, then CONFIG_FILE (or --config), then .env, then the environment.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML configuration file")

	load := func() (*config.Config, error) {
		if configFile != "" {
			if err := os.Setenv("CONFIG_FILE", configFile); err != nil {
				return nil, err
			}
		}
		return config.Load()
	}

	rootCmd.AddCommand(LevelCmd())
	rootCmd.AddCommand(PersonaCmd())
	rootCmd.AddCommand(MigrateCmd(load))
	rootCmd.AddCommand(SweepCmd(load))

	return rootCmd
}
