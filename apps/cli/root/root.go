package root

import (
	"github.com/spf13/cobra"
)

// rootCmd is the base command for the tracker admin CLI. Subcommands (auth, bootstrap, etc.) are attached here.
var rootCmd = &cobra.Command{
	Use:           "tracker",
	Short:         "Tracker admin CLI",
	Long:          "Administrative utilities for the tracker backend (schema bootstrap, admin user seeding, dev tokens).",
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

// Root returns the mutable root command for wiring from subpackages.
func Root() *cobra.Command {
	return rootCmd
}
