package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the lock store and print the effective configuration",
	Run:   runStatus,
}

// init registers the status command.
func init() {
	rootCmd.AddCommand(statusCmd)
}

// runStatus pings the store and prints the manager options.
func runStatus(cmd *cobra.Command, _ []string) {
	cfg, logger, store, manager := bootstrap()
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		logger.Fatalf("Lock store %s unreachable: %v", cfg.Store, err)
	}

	opts := manager.Options()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "store=%s\n", cfg.Store)
	fmt.Fprintf(out, "key_prefix=%q hash_key=%v\n", opts.KeyPrefix, opts.HashKey)
	fmt.Fprintf(out, "ttl=%s wait_interval=%s\n", opts.TTL, opts.WaitInterval)
	fmt.Fprintf(out, "auto_release=%v shutdown_cleanup=%v reentrant=%v\n", opts.AutoRelease, opts.ShutdownCleanup, opts.Reentrant)
	fmt.Fprintf(out, "sample_key=%s\n", opts.StorageKey("sample"))
}
