/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dwitter/apiserver/config"
	"github.com/dwitter/apiserver/internal/logging"
	"github.com/dwitter/apiserver/internal/server"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 15 * time.Second

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Starts the dwitter backend server",
	Long: `Starts the dwitter backend server. Usage:

	dwitter server
`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.LoadConfig()
		logger := logging.New(cfg.Log.Level, cfg.Log.Format)

		if err := cfg.Validate(); err != nil {
			logger.WithError(err).Fatal("invalid configuration")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv, err := server.New(ctx, cfg, logger)
		if err != nil {
			logger.WithError(err).Fatal("failed to start server")
		}

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start()
		}()
		logger.WithField("port", cfg.ServerPort).Info("server listening")

		select {
		case err := <-errCh:
			if err != nil {
				logger.WithError(err).Error("server error")
			}
		case <-ctx.Done():
			logger.Info("shutting down")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("shutdown incomplete")
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
