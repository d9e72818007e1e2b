// Package cli implements the mudclient command tree.
package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/cory-johannsen/mudclient/internal/config"
)

// AppName is the binary name.
const AppName = "mudclient"

// NewRootCmd creates the root command with every subcommand attached.
func NewRootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           AppName,
		Short:         "Console client for the MUD session protocol",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.Version = version
	cmd.SetVersionTemplate(AppName + " version {{.Version}}\n")
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.PersistentFlags().String("config", "configs/dev.yaml", "path to configuration file")

	cmd.AddCommand(
		NewPlayCmd(),
		NewNPCsCmd(),
		NewHistoryCmd(),
	)
	return cmd
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}
