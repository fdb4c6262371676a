package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Config represents the application configuration
type Config struct {
	Database  DatabaseConfig
	Listener  ListenerConfig
	Provider  ProviderConfig
	Limits    LimitsConfig
	RateLimit RateLimitConfig
	Ledger    LedgerConfig
	HTTP      HTTPConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// ListenerConfig holds background reconciliation and cleanup settings
type ListenerConfig struct {
	PollingInterval    time.Duration
	ReconcileMinAge    time.Duration
	ReconcileBatchSize int
	CleanupInterval    time.Duration
	CleanupTimeout     time.Duration
}

// ProviderConfig holds settlement provider connection settings.
// ApiToken is only the fallback used when the runtime settings store has no credential.
type ProviderConfig struct {
	BaseURL        string
	ApiToken       string
	RequestTimeout time.Duration
}

// LimitsConfig holds quota engine settings
type LimitsConfig struct {
	File               string
	FirstDayDepositCap decimal.Decimal
	HighRiskFactor     decimal.Decimal
	Location           *time.Location
}

// RateLimitRule bounds the outbound calls made against one provider endpoint
type RateLimitRule struct {
	Calls      int
	Window     time.Duration
	DailyQuota int
}

// RateLimitConfig holds per-endpoint outbound rate limits
type RateLimitConfig struct {
	Rules       map[string]RateLimitRule
	SharedQuota bool
}

// LedgerConfig selects where settled transactions are journaled
type LedgerConfig struct {
	Backend  string // "sqlite" or "formance"
	Formance FormanceConfig
}

// FormanceConfig holds Formance Stack connection settings
type FormanceConfig struct {
	StackURL     string
	ClientID     string
	ClientSecret string
	LedgerName   string
}

// HTTPConfig holds webhook/admin listener settings
type HTTPConfig struct {
	Addr string
}

// LimitsDefinition is the content of the limits YAML file
type LimitsDefinition struct {
	FirstDay LimitProfile `yaml:"first_day"`
	Standard LimitProfile `yaml:"standard"`
	Verified LimitProfile `yaml:"verified"`
	Tiers    TierTable    `yaml:"tiers"`
}

// TierTable is the ordered reputation ladder. Tier i grants DailyLimits[i];
// leaving tier i requires cumulative approved volume of Thresholds[i].
type TierTable struct {
	DailyLimits []decimal.Decimal `json:"daily_limits" yaml:"daily_limits"`
	Thresholds  []decimal.Decimal `json:"thresholds" yaml:"thresholds"`
}

// MaxTier is the highest reachable tier
func (t TierTable) MaxTier() int {
	return len(t.DailyLimits) - 1
}

// DailyLimit returns the daily cap granted at tier, clamped to the table
func (t TierTable) DailyLimit(tier int) decimal.Decimal {
	if len(t.DailyLimits) == 0 {
		return decimal.Zero
	}
	return t.DailyLimits[clampTier(tier, len(t.DailyLimits)-1)]
}

// Threshold returns the volume needed to leave tier; zero at the top tier
func (t TierTable) Threshold(tier int) decimal.Decimal {
	if tier < 0 {
		tier = 0
	}
	if tier >= t.MaxTier() || tier >= len(t.Thresholds) {
		return decimal.Zero
	}
	return t.Thresholds[tier]
}

// Validate checks the table is usable: non-empty, one threshold per
// non-top tier, both columns strictly increasing.
func (t TierTable) Validate() error {
	if len(t.DailyLimits) == 0 {
		return fmt.Errorf("tier table has no tiers")
	}
	if len(t.Thresholds) != len(t.DailyLimits)-1 {
		return fmt.Errorf("tier table needs %d thresholds, got %d", len(t.DailyLimits)-1, len(t.Thresholds))
	}
	for i := 1; i < len(t.DailyLimits); i++ {
		if !t.DailyLimits[i].GreaterThan(t.DailyLimits[i-1]) {
			return fmt.Errorf("tier %d daily limit must exceed tier %d", i, i-1)
		}
	}
	for i := 1; i < len(t.Thresholds); i++ {
		if !t.Thresholds[i].GreaterThan(t.Thresholds[i-1]) {
			return fmt.Errorf("threshold %d must exceed threshold %d", i, i-1)
		}
	}
	return nil
}

func clampTier(tier, top int) int {
	if tier < 0 {
		return 0
	}
	if tier > top {
		return top
	}
	return tier
}
