package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/upb/coursehub/routes"
	"go.uber.org/zap"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the local web server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			deps, err := bootstrap(cmd)
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), deps.Config.Server.ShutdownTimeout)
				defer cancel()
				if err := deps.Close(shutdownCtx); err != nil {
					fmt.Fprintln(os.Stderr, err)
				}
			}()

			cfg := deps.Config.Server
			server := &http.Server{
				Addr:              cfg.Address(),
				Handler:           routes.SetupRoutes(deps),
				ReadHeaderTimeout: 10 * time.Second,
				ReadTimeout:       cfg.ReadTimeout,
				WriteTimeout:      cfg.WriteTimeout,
				IdleTimeout:       60 * time.Second,
			}

			// Graceful shutdown on SIGINT/SIGTERM.
			done := make(chan error, 1)
			go func() {
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					done <- fmt.Errorf("server failed: %w", err)
					return
				}
				done <- nil
			}()

			deps.Logger.Info("server listening", zap.String("address", cfg.Address()))

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(quit)

			select {
			case sig := <-quit:
				deps.Logger.Info("shutting down", zap.String("signal", sig.String()))
			case <-ctx.Done():
				deps.Logger.Info("shutting down", zap.Error(ctx.Err()))
			case err := <-done:
				return err
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		},
	}
}
