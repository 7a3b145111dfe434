package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/upb/coursehub/app"
	"github.com/upb/coursehub/config"
	"github.com/upb/coursehub/internal/observability"
	"go.uber.org/zap"
)

// sessionWait bounds how long account commands wait for the stored session
// to be restored
const sessionWait = 30 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "coursehub",
		Short: "CourseHub is a local course marketplace client",
		Long: `CourseHub serves the course marketplace pages on a local address and keeps
the signed-in session of its single user.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().Bool("offline", false, "Use the in-memory identity provider instead of the user pool")

	root.AddCommand(newServeCmd(), newLoginCmd(), newLogoutCmd(), newWhoamiCmd())
	return root
}

// initLogger builds the process logger from LOG_LEVEL and LOG_FORMAT
func initLogger() (*zap.Logger, error) {
	return observability.NewLogger(observability.LoggerConfig{
		Level:  os.Getenv("LOG_LEVEL"),
		Format: os.Getenv("LOG_FORMAT"),
	})
}

// bootstrap loads the configuration and wires the application. The --offline
// flag of cmd overrides COURSEHUB_OFFLINE.
func bootstrap(cmd *cobra.Command) (*app.Dependencies, error) {
	ctx := commandContext(cmd)
	offline, err := cmd.Flags().GetBool("offline")
	if err != nil {
		return nil, err
	}

	logger, err := initLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	cfg, err := config.New(ctx, config.WithOffline(offline))
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	deps, err := app.NewDependencies(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return deps, nil
}

// commandContext returns the context of cmd, or Background when run without one
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// waitForSession blocks until the stored session has been restored
func waitForSession(ctx context.Context, deps *app.Dependencies) error {
	ctx, cancel := context.WithTimeout(ctx, sessionWait)
	defer cancel()

	select {
	case <-deps.Sessions.Ready():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("session not restored: %w", ctx.Err())
	}
}
