package common

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"pix-settlement-bridge/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

func typeLimits(perTx, daily, monthly int64) models.TypeLimits {
	return models.TypeLimits{
		PerTransaction: decimal.NewFromInt(perTx),
		Daily:          decimal.NewFromInt(daily),
		Monthly:        decimal.NewFromInt(monthly),
	}
}

// DefaultLimits are the profiles used when no limits file is present
func DefaultLimits() models.LimitsDefinition {
	outbound := typeLimits(1000, 1000, 10000)
	return models.LimitsDefinition{
		FirstDay: models.LimitProfile{
			Deposit:  typeLimits(5000, 5000, 50000),
			Withdraw: outbound,
			Transfer: outbound,
		},
		Standard: models.LimitProfile{
			Deposit:  typeLimits(5000, 10000, 100000),
			Withdraw: outbound,
			Transfer: outbound,
		},
		Verified: models.LimitProfile{
			Deposit:  typeLimits(50000, 50000, 500000),
			Withdraw: typeLimits(50000, 50000, 500000),
			Transfer: typeLimits(50000, 50000, 500000),
		},
		Tiers: models.TierTable{
			// tier 0 is the standard deposit daily cap; every step above raises it
			DailyLimits: []decimal.Decimal{
				decimal.NewFromInt(10000),
				decimal.NewFromInt(15000),
				decimal.NewFromInt(25000),
				decimal.NewFromInt(50000),
				decimal.NewFromInt(100000),
			},
			Thresholds: []decimal.Decimal{
				decimal.NewFromInt(1000),
				decimal.NewFromInt(5000),
				decimal.NewFromInt(15000),
				decimal.NewFromInt(50000),
			},
		},
	}
}

// LoadLimitsConfig reads limit profiles and the tier table from limitsFile.
// A missing file yields DefaultLimits; a present but invalid file is an error.
func LoadLimitsConfig(limitsFile string) (*models.LimitsDefinition, error) {
	var limitsPath string
	if filepath.IsAbs(limitsFile) {
		limitsPath = limitsFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		limitsPath = filepath.Join(wd, limitsFile)
	}

	defaults := DefaultLimits()
	data, err := os.ReadFile(limitsPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			zap.L().Info("No limits file found, using built-in profiles", zap.String("file", limitsPath))
			return &defaults, nil
		}
		return nil, fmt.Errorf("unable to read %s: %w", limitsFile, err)
	}

	// start from defaults so a partial file only overrides what it names
	config := defaults
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", limitsFile, err)
	}

	profiles := map[string]models.LimitProfile{
		"first_day": config.FirstDay,
		"standard":  config.Standard,
		"verified":  config.Verified,
	}
	for name, profile := range profiles {
		for _, t := range models.TransactionTypes {
			if err := validateTypeLimits(profile.For(t)); err != nil {
				return nil, fmt.Errorf("%s: profile %s %s: %w", limitsFile, name, t, err)
			}
		}
	}
	if err := config.Tiers.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", limitsFile, err)
	}
	top := config.Tiers.DailyLimit(config.Tiers.MaxTier())
	if !top.GreaterThan(config.Standard.Deposit.Daily) {
		zap.L().Warn("No reputation tier exceeds the standard deposit daily cap, tier advancement will not raise limits",
			zap.String("top_tier_daily", top.String()),
			zap.String("standard_daily", config.Standard.Deposit.Daily.String()))
	}

	return &config, nil
}

func validateTypeLimits(l models.TypeLimits) error {
	if !l.PerTransaction.IsPositive() || !l.Daily.IsPositive() || !l.Monthly.IsPositive() {
		return fmt.Errorf("caps must be positive")
	}
	if l.Daily.GreaterThan(l.Monthly) {
		return fmt.Errorf("daily cap %s exceeds monthly cap %s", l.Daily, l.Monthly)
	}
	return nil
}
