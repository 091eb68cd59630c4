package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mutex",
	Short: "Distributed named-lock service",
	Long:  "A named, TTL-bounded lock manager backed by Redis or MySQL, usable as an HTTP sidecar or as a cron job wrapper.",
}

// Execute runs the root Cobra command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
