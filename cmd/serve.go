package cmd

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vibast-solutions/ms-go-mutex/app/controller"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP lock sidecar",
	Long:  "Start an HTTP (Echo) server that acquires, refreshes and releases named locks on behalf of local workers.",
	Run:   runServe,
}

// init registers the serve command.
func init() {
	rootCmd.AddCommand(serveCmd)
}

// runServe wires dependencies and starts the HTTP server.
func runServe(_ *cobra.Command, _ []string) {
	cfg, logger, store, manager := bootstrap()
	defer store.Close()

	lockController := controller.NewLockController(manager, store, logger)
	e := setupHTTPServer(lockController)

	go func() {
		httpAddr := net.JoinHostPort(cfg.HTTPHost, cfg.HTTPPort)
		logger.Infof("Starting HTTP server on %s", httpAddr)
		if err := e.Start(httpAddr); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("HTTP server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("HTTP shutdown error: %v", err)
	}
	if err := manager.Close(shutdownCtx); err != nil {
		logger.Errorf("Lock cleanup error: %v", err)
	}

	logger.Info("Server stopped")
}

// setupHTTPServer configures the Echo HTTP server and routes.
func setupHTTPServer(lockController *controller.LockController) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomiddleware.Logger())
	e.Use(echomiddleware.Recover())

	locks := e.Group("/locks")
	locks.GET("", lockController.List)
	locks.POST("/:name", lockController.Acquire)
	locks.DELETE("/:name", lockController.Release)
	locks.PUT("/:name/refresh", lockController.Refresh)
	locks.GET("/:name", lockController.Status)

	e.GET("/health", lockController.Health)
	e.GET("/metrics", lockController.Metrics)

	return e
}
