package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/ThiagoRGoveia/stm-bigblue/internal/config"
	"github.com/ThiagoRGoveia/stm-bigblue/internal/database"
	"github.com/ThiagoRGoveia/stm-bigblue/internal/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app bundles what every subcommand needs once the configuration is loaded.
type app struct {
	cfg     *config.Config
	log     *logging.Logger
	store   *database.Store
	cleanup func()
}

func setup(ctx context.Context) (*app, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	z, err := logging.Init(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return nil, fmt.Errorf("failed to configure logging: %w", err)
	}
	logger := logging.New(z, cfg.User)

	store, closeStore, err := database.Open(ctx, cfg.Driver, cfg.DatabaseURL, cfg.LockMode, logger)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	return &app{
		cfg:   cfg,
		log:   logger,
		store: store,
		cleanup: func() {
			closeStore()
			_ = z.Sync()
		},
	}, nil
}

// withApp runs fn with a ready app and releases it afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.cleanup()

	if err := fn(ctx, a); err != nil {
		a.log.Error("Command failed", zap.String("command", cmd.Name()), zap.Error(err))
		return err
	}
	return nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "stmdb",
		Short:         "Catalogue STM instrument exports in a relational store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newSetupCmd(),
		newIngestCmd(),
		newQueryCmd(),
		newDeleteCmd(),
		newOrphansCmd(),
		newServeCmd(),
	)
	return root
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: could not load .env file: %v", err)
	}

	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
