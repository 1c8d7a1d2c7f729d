package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "warden",
	Short: "Content moderation and trust enforcement for chat platforms",
	Long:  "Evaluates chat messages against pattern denylists, behavioral signals, and a remote classifier.\nMaintains per-user trust profiles, applies graduated restrictions, and handles appeals.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
