package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vnmchuo/datacap/config"
	"github.com/vnmchuo/datacap/internal/app"
	"github.com/vnmchuo/datacap/internal/billing"
	"github.com/vnmchuo/datacap/internal/logging"
)

var (
	flagLogLevel string
	flagQuiet    bool
)

var rootCmd = &cobra.Command{
	Use:           "datacapctl",
	Short:         "Data cap usage CLI",
	Long:          "Import usage exports and report per-client data usage against monthly caps.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the main entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "  Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "Suppress progress output")
}

// connect loads config and opens the configured backends. Callers must Close
// the returned app.
func connect(ctx context.Context) (*app.App, *config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := logging.New(flagLogLevel, "console")
	if err != nil {
		return nil, nil, nil, err
	}
	if !flagQuiet {
		fmt.Fprintf(os.Stderr, "  Connecting to %s store...\n", cfg.StoreDriver)
	}
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return a, cfg, logger, nil
}

// resolveClient looks a client up by name, falling back to a numeric ID.
func resolveClient(ctx context.Context, store billing.Store, ref string) (*billing.Client, error) {
	if ref == "" {
		return nil, errors.New("--client is required")
	}
	c, err := store.GetClientByName(ctx, ref)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, billing.ErrClientNotFound) {
		return nil, err
	}
	if id, perr := strconv.ParseInt(ref, 10, 64); perr == nil {
		return store.GetClient(ctx, id)
	}
	return nil, fmt.Errorf("%w: %s", billing.ErrClientNotFound, ref)
}
