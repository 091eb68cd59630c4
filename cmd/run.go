package cmd

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/vibast-solutions/ms-go-mutex/app/service"

	"github.com/spf13/cobra"
)

var (
	runWait      time.Duration
	runKeepAlive bool
)

var runCmd = &cobra.Command{
	Use:   "run [name] -- [command...]",
	Short: "Run a command while holding a named lock",
	Long:  "Acquire the named lock, run the command under it and release the lock. When the lock is held elsewhere the command is skipped and the exit code is 0.",
	Args:  cobra.MinimumNArgs(2),
	Run:   runRun,
}

// init registers the run command.
func init() {
	runCmd.Flags().DurationVar(&runWait, "wait", 0, "How long to wait for the lock (0 tries once)")
	runCmd.Flags().BoolVar(&runKeepAlive, "keepalive", true, "Refresh the lock while the command runs")
	rootCmd.AddCommand(runCmd)
}

// runRun executes the wrapped command under the lock.
func runRun(_ *cobra.Command, args []string) {
	_, logger, store, manager := bootstrap()
	defer store.Close()

	name := args[0]
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		logger.Info("Received shutdown signal, stopping command...")
		cancel()
	}()

	runner := service.NewJobRunner(manager, logger, runKeepAlive)
	err := runner.Run(ctx, name, runWait, func(ctx context.Context) error {
		command := exec.CommandContext(ctx, args[1], args[2:]...)
		command.Stdin = os.Stdin
		command.Stdout = os.Stdout
		command.Stderr = os.Stderr
		return command.Run()
	})

	if cerr := manager.Close(context.Background()); cerr != nil {
		logger.Errorf("Lock cleanup error: %v", cerr)
	}

	switch {
	case err == nil:
	case errors.Is(err, service.ErrJobLocked):
		logger.Infof("Lock %s is held elsewhere, command not run", name)
	case errors.Is(err, service.ErrLockLost):
		store.Close()
		logger.Fatalf("Lock %s lost, command stopped", name)
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			store.Close()
			os.Exit(exitErr.ExitCode())
		}
		store.Close()
		logger.Fatalf("Run failed: %v", err)
	}
}
