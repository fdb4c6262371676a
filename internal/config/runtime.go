package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"pix-settlement-bridge/internal/models"
	"pix-settlement-bridge/internal/store"

	"go.uber.org/zap"
)

// Runtime setting keys
const (
	SettingProviderToken           = "provider.api_token"
	SettingReputationTiers         = "reputation.tiers"
	SettingWebhookSecret           = "webhook.secret"
	FeatureRemoteAddressValidation = "remote_address_validation"

	featurePrefix = "feature."
)

// ErrMissingCredential is returned when neither the settings store nor the
// environment provides a provider token.
var ErrMissingCredential = errors.New("provider api token is not configured")

type settingsReader interface {
	GetSetting(ctx context.Context, key string) (*models.Setting, error)
}

// Runtime reads mutable operational settings through to the store on every
// call. Nothing is cached; each getter documents the fallback used when the
// key is absent.
type Runtime struct {
	settings      settingsReader
	fallbackToken string
	fallbackTiers models.TierTable
}

func NewRuntime(settings settingsReader, fallbackToken string, fallbackTiers models.TierTable) *Runtime {
	return &Runtime{
		settings:      settings,
		fallbackToken: fallbackToken,
		fallbackTiers: fallbackTiers,
	}
}

// lookup returns the stored value, or ok=false when the key is absent.
// Store failures other than absence are returned.
func (r *Runtime) lookup(ctx context.Context, key string) (string, bool, error) {
	setting, err := r.settings.GetSetting(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return setting.Value, true, nil
}

// ProviderToken returns the bearer credential; falls back to PROVIDER_API_TOKEN.
func (r *Runtime) ProviderToken(ctx context.Context) (string, error) {
	value, ok, err := r.lookup(ctx, SettingProviderToken)
	if err != nil {
		return "", err
	}
	if ok && value != "" {
		return value, nil
	}
	if r.fallbackToken != "" {
		return r.fallbackToken, nil
	}
	return "", ErrMissingCredential
}

// TierTable returns the reputation ladder; falls back to the limits file tiers
// when the setting is absent or malformed.
func (r *Runtime) TierTable(ctx context.Context) models.TierTable {
	value, ok, err := r.lookup(ctx, SettingReputationTiers)
	if err != nil {
		zap.L().Warn("Using default tier table", zap.Error(err))
		return r.fallbackTiers
	}
	if !ok {
		return r.fallbackTiers
	}

	var table models.TierTable
	if err := json.Unmarshal([]byte(value), &table); err != nil {
		zap.L().Warn("Malformed tier table setting, using default", zap.Error(err))
		return r.fallbackTiers
	}
	if err := table.Validate(); err != nil {
		zap.L().Warn("Invalid tier table setting, using default", zap.Error(err))
		return r.fallbackTiers
	}
	return table
}

// FeatureEnabled reports whether feature.<name> is set to a true value; absent means off.
func (r *Runtime) FeatureEnabled(ctx context.Context, name string) bool {
	value, ok, err := r.lookup(ctx, featurePrefix+name)
	if err != nil {
		zap.L().Warn("Feature flag unreadable, treating as disabled", zap.String("feature", name), zap.Error(err))
		return false
	}
	if !ok {
		return false
	}
	enabled, err := strconv.ParseBool(value)
	if err != nil {
		zap.L().Warn("Feature flag is not a boolean", zap.String("feature", name), zap.String("value", value))
		return false
	}
	return enabled
}

// WebhookSecret returns the shared webhook secret; empty disables the check.
func (r *Runtime) WebhookSecret(ctx context.Context) (string, error) {
	value, _, err := r.lookup(ctx, SettingWebhookSecret)
	return value, err
}
