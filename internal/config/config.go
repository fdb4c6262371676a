/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"pix-settlement-bridge/internal/models"

	"github.com/shopspring/decimal"
)

// Provider endpoint keys. Each key has its own rate-limit rule.
const (
	EndpointPing            = "ping"
	EndpointDeposit         = "deposit"
	EndpointDepositStatus   = "deposit-status"
	EndpointValidateAddress = "validate-address"
)

var defaultRateLimits = map[string]models.RateLimitRule{
	EndpointPing:            {Calls: 10, Window: time.Minute, DailyQuota: 1000},
	EndpointDeposit:         {Calls: 10, Window: time.Minute, DailyQuota: 500},
	EndpointDepositStatus:   {Calls: 60, Window: time.Minute, DailyQuota: 5000},
	EndpointValidateAddress: {Calls: 30, Window: time.Minute, DailyQuota: 1000},
}

func Load() (*models.Config, error) {
	pollingInterval, err := getEnvDuration("LISTENER_POLLING_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, err
	}

	reconcileMinAge, err := getEnvDuration("RECONCILE_MIN_AGE", 10*time.Second)
	if err != nil {
		return nil, err
	}

	cleanupInterval, err := getEnvDuration("CLEANUP_INTERVAL", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	cleanupTimeout, err := getEnvDuration("CLEANUP_TIMEOUT", 30*time.Minute)
	if err != nil {
		return nil, err
	}

	connMaxLifetime, err := getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	connMaxIdleTime, err := getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Second)
	if err != nil {
		return nil, err
	}

	pingTimeout, err := getEnvDuration("DB_PING_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	providerTimeout, err := getEnvDuration("PROVIDER_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	firstDayCap, err := getEnvDecimal("FIRST_DAY_DEPOSIT_CAP", decimal.NewFromInt(500))
	if err != nil {
		return nil, err
	}

	highRiskFactor, err := getEnvDecimal("HIGH_RISK_FACTOR", decimal.RequireFromString("0.5"))
	if err != nil {
		return nil, err
	}

	location, err := getEnvLocation("LIMITS_TIMEZONE", "America/Sao_Paulo")
	if err != nil {
		return nil, err
	}

	rules, err := loadRateLimitRules()
	if err != nil {
		return nil, err
	}

	return &models.Config{
		Database: models.DatabaseConfig{
			Path:            getEnvString("DATABASE_PATH", "bridge.db"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
			PingTimeout:     pingTimeout,
		},
		Listener: models.ListenerConfig{
			PollingInterval:    pollingInterval,
			ReconcileMinAge:    reconcileMinAge,
			ReconcileBatchSize: getEnvInt("RECONCILE_BATCH_SIZE", 50),
			CleanupInterval:    cleanupInterval,
			CleanupTimeout:     cleanupTimeout,
		},
		Provider: models.ProviderConfig{
			BaseURL:        strings.TrimRight(getEnvString("PROVIDER_BASE_URL", ""), "/"),
			ApiToken:       getEnvString("PROVIDER_API_TOKEN", ""),
			RequestTimeout: providerTimeout,
		},
		Limits: models.LimitsConfig{
			File:               getEnvString("LIMITS_FILE", "limits.yaml"),
			FirstDayDepositCap: firstDayCap,
			HighRiskFactor:     highRiskFactor,
			Location:           location,
		},
		RateLimit: models.RateLimitConfig{
			Rules:       rules,
			SharedQuota: getEnvBool("RATE_LIMIT_SHARED_QUOTA", false),
		},
		Ledger: models.LedgerConfig{
			Backend: getEnvString("LEDGER_BACKEND", "sqlite"),
			Formance: models.FormanceConfig{
				StackURL:     getEnvString("FORMANCE_STACK_URL", ""),
				ClientID:     getEnvString("FORMANCE_CLIENT_ID", ""),
				ClientSecret: getEnvString("FORMANCE_CLIENT_SECRET", ""),
				LedgerName:   getEnvString("FORMANCE_LEDGER", "pix-bridge"),
			},
		},
		HTTP: models.HTTPConfig{
			Addr: getEnvString("HTTP_ADDR", ":8080"),
		},
	}, nil
}

// loadRateLimitRules applies RATE_LIMIT_<KEY>_CALLS/_WINDOW/_DAILY_QUOTA
// overrides on top of the built-in rule for each endpoint.
func loadRateLimitRules() (map[string]models.RateLimitRule, error) {
	rules := make(map[string]models.RateLimitRule, len(defaultRateLimits))
	for key, rule := range defaultRateLimits {
		prefix := "RATE_LIMIT_" + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))

		window, err := getEnvDuration(prefix+"_WINDOW", rule.Window)
		if err != nil {
			return nil, err
		}
		rule.Window = window
		rule.Calls = getEnvInt(prefix+"_CALLS", rule.Calls)
		rule.DailyQuota = getEnvInt(prefix+"_DAILY_QUOTA", rule.DailyQuota)

		if rule.Calls <= 0 || rule.Window <= 0 {
			return nil, fmt.Errorf("invalid rate limit for %s: %d calls per %v", key, rule.Calls, rule.Window)
		}
		rules[key] = rule
	}
	return rules, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) (decimal.Decimal, error) {
	if value := os.Getenv(key); value != "" {
		d, err := decimal.NewFromString(value)
		if err != nil {
			return decimal.Zero, fmt.Errorf("invalid decimal for %s: %q (%w)", key, value, err)
		}
		return d, nil
	}
	return defaultValue, nil
}

func getEnvLocation(key, defaultValue string) (*time.Location, error) {
	name := getEnvString(key, defaultValue)
	location, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid time zone for %s: %q (%w)", key, name, err)
	}
	return location, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
