package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "courier",
	Short: "Courier message delivery service",
	Long: `Courier is a store-and-forward delivery pipeline for chat messages.

Available commands:
  serve      Run the delivery service
  version    Print the version

Use "courier [command] --help" for more information about a specific command.`,
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
