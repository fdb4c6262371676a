package common

import (
	"context"
	"fmt"
	"log"
	"strings"

	"pix-settlement-bridge/internal/api"
	"pix-settlement-bridge/internal/cleanup"
	"pix-settlement-bridge/internal/config"
	"pix-settlement-bridge/internal/database"
	"pix-settlement-bridge/internal/formance"
	"pix-settlement-bridge/internal/limits"
	"pix-settlement-bridge/internal/models"
	"pix-settlement-bridge/internal/provider"
	"pix-settlement-bridge/internal/ratelimit"
	"pix-settlement-bridge/internal/reconcile"
	"pix-settlement-bridge/internal/reputation"
	"pix-settlement-bridge/internal/store"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Ledger backends
const (
	LedgerBackendSQLite   = "sqlite"
	LedgerBackendFormance = "formance"
)

// init loads environment variables from .env file if it exists
func init() {
	// Try to load .env file - if it doesn't exist, that's okay
	// Environment variables can be set via other means (shell export, docker, etc.)
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
		log.Println("Make sure to set environment variables via export or other means")
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

// Services is the fully wired bridge
type Services struct {
	DbService  *database.Service
	Runtime    *config.Runtime
	Provider   *provider.Client
	Limits     *limits.Engine
	Reputation *reputation.Manager
	Reconciler *reconcile.Machine
	Sweeper    *cleanup.Sweeper
	Payments   *api.PaymentService
	Journal    store.SettlementJournal
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	profiles, err := LoadLimitsConfig(cfg.Limits.File)
	if err != nil {
		return nil, err
	}

	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	services, err := wireServices(ctx, cfg, *profiles, dbService)
	if err != nil {
		dbService.Close()
		return nil, err
	}
	return services, nil
}

func wireServices(ctx context.Context, cfg *models.Config, profiles models.LimitsDefinition, dbService *database.Service) (*Services, error) {
	runtime := config.NewRuntime(dbService, cfg.Provider.ApiToken, profiles.Tiers)

	var quota ratelimit.QuotaCounter
	if cfg.RateLimit.SharedQuota {
		zap.L().Info("Sharing provider daily quotas through the database")
		quota = dbService.QuotaCounter()
	}
	limiter := ratelimit.NewWindowLimiter(cfg.RateLimit.Rules, quota, ratelimit.WithLocation(cfg.Limits.Location))

	providerClient, err := provider.NewClient(cfg.Provider, limiter, runtime)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider client: %w", err)
	}

	journal, err := newJournal(ctx, cfg.Ledger, dbService)
	if err != nil {
		return nil, err
	}

	engine := limits.NewEngine(dbService, profiles, cfg.Limits)
	rep := reputation.NewManager(dbService, runtime, engine)
	machine := reconcile.NewMachine(dbService, providerClient, engine, rep, journal)
	sweeper := cleanup.NewSweeper(dbService, cfg.Listener.CleanupTimeout)

	payments := api.NewPaymentService(api.PaymentServiceConfig{
		Store:      dbService,
		Provider:   providerClient,
		Limits:     engine,
		Reputation: rep,
		Reconciler: machine,
		Sweeper:    sweeper,
		Features:   runtime,
	})

	zap.L().Info("Services initialized",
		zap.String("provider", cfg.Provider.BaseURL),
		zap.String("ledger_backend", cfg.Ledger.Backend),
		zap.Bool("shared_quota", cfg.RateLimit.SharedQuota))

	return &Services{
		DbService:  dbService,
		Runtime:    runtime,
		Provider:   providerClient,
		Limits:     engine,
		Reputation: rep,
		Reconciler: machine,
		Sweeper:    sweeper,
		Payments:   payments,
		Journal:    journal,
	}, nil
}

func newJournal(ctx context.Context, cfg models.LedgerConfig, dbService *database.Service) (store.SettlementJournal, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", LedgerBackendSQLite:
		return dbService, nil
	case LedgerBackendFormance:
		journal, err := formance.NewService(ctx, cfg.Formance)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize formance journal: %w", err)
		}
		return journal, nil
	default:
		return nil, fmt.Errorf("unknown ledger backend %q (want %s or %s)", cfg.Backend, LedgerBackendSQLite, LedgerBackendFormance)
	}
}

// InitializeDatabaseOnly initializes just the database service without the provider.
// Useful for settings and user lookups.
func InitializeDatabaseOnly(ctx context.Context, cfg *models.Config) (*database.Service, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	return dbService, nil
}

func (cs *Services) Close() {
	if cs.DbService != nil {
		cs.DbService.Close()
	}
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
