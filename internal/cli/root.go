// Package cli holds the copilot command tree.
package cli

import (
	"github.com/spf13/cobra"

	"interview-copilot-service/internal/config"
)

type Dependencies struct {
	Config *config.Configuration
}

func NewRootCmd(deps *Dependencies) *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "copilot",
		Short: "Real-time interview co-pilot",
		Long: "Listens to an interview audio stream, segments the interviewer's turns and " +
			"suggests answers through a batch or streaming AI backend.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return nil
			}
			cfg, err := config.LoadFile(configPath)
			if err != nil {
				return err
			}
			deps.Config = cfg
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML configuration file (overrides CONFIG_FILE)")

	rootCmd.AddCommand(NewServeCmd(deps))
	rootCmd.AddCommand(NewReplayCmd(deps))
	rootCmd.AddCommand(NewTailCmd(deps))

	return rootCmd
}
