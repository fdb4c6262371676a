package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"pix-settlement-bridge/internal/common"
	"pix-settlement-bridge/internal/config"
	"pix-settlement-bridge/internal/database"
	"pix-settlement-bridge/internal/models"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:          "pixctl",
		Short:        "Operate the PIX settlement bridge",
		Version:      Version,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(limitsCmd())
	rootCmd.AddCommand(txCmd())
	rootCmd.AddCommand(reputationCmd())
	rootCmd.AddCommand(cleanupCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(settingsCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withServices wires the whole bridge for the duration of one command
func withServices(cmd *cobra.Command, run func(ctx context.Context, cfg *models.Config, services *common.Services) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	ctx := cmd.Context()
	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	defer services.Close()

	return run(ctx, cfg, services)
}

// withDatabase opens only the database (no provider needed for local reads)
func withDatabase(cmd *cobra.Command, run func(ctx context.Context, dbService *database.Service) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	ctx := cmd.Context()
	zap.L().Info("Connecting to database", zap.String("path", cfg.Database.Path))
	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbService.Close()

	return run(ctx, dbService)
}
