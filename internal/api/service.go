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

package api

import (
	"context"
	"fmt"
	"time"

	"pix-settlement-bridge/internal/cleanup"
	"pix-settlement-bridge/internal/limits"
	"pix-settlement-bridge/internal/models"
	"pix-settlement-bridge/internal/provider"
	"pix-settlement-bridge/internal/reconcile"
	"pix-settlement-bridge/internal/reputation"
	"pix-settlement-bridge/internal/store"

	"github.com/shopspring/decimal"
)

// Store is the persistence the payment service talks to directly
type Store interface {
	CreateTransaction(ctx context.Context, tx *models.Transaction) (*models.Transaction, error)
	AttachExternalId(ctx context.Context, id, externalId string, metadata models.TransactionMetadata) (*models.Transaction, error)
	ApplyTransition(ctx context.Context, params store.TransitionParams) (*models.Transaction, error)
	CreateUser(ctx context.Context, params store.CreateUserParams) (*models.User, error)
	Ping(ctx context.Context) error
}

// Provider is the outbound PIX provider
type Provider interface {
	Ping(ctx context.Context) error
	CreateDeposit(ctx context.Context, amount decimal.Decimal, destination, description string) (*provider.Deposit, error)
	ValidateDestinationAddress(ctx context.Context, address string) (bool, error)
}

// FeatureFlags reports runtime feature switches
type FeatureFlags interface {
	FeatureEnabled(ctx context.Context, name string) bool
}

// PaymentServiceConfig contains the collaborators of PaymentService
type PaymentServiceConfig struct {
	Store      Store
	Provider   Provider
	Limits     *limits.Engine
	Reputation *reputation.Manager
	Reconciler *reconcile.Machine
	Sweeper    *cleanup.Sweeper
	Features   FeatureFlags
}

// PaymentService is the entry point for user and operator requests
type PaymentService struct {
	store      Store
	provider   Provider
	limits     *limits.Engine
	reputation *reputation.Manager
	reconciler *reconcile.Machine
	sweeper    *cleanup.Sweeper
	features   FeatureFlags
}

func NewPaymentService(cfg PaymentServiceConfig) *PaymentService {
	return &PaymentService{
		store:      cfg.Store,
		provider:   cfg.Provider,
		limits:     cfg.Limits,
		reputation: cfg.Reputation,
		reconciler: cfg.Reconciler,
		sweeper:    cfg.Sweeper,
		features:   cfg.Features,
	}
}

// HealthCheck verifies the store and the provider are reachable
func (s *PaymentService) HealthCheck(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	if err := s.provider.Ping(ctx); err != nil {
		return fmt.Errorf("provider health check failed: %w", err)
	}
	return nil
}

// CheckStatus reconciles one of the user's transactions with the provider
func (s *PaymentService) CheckStatus(ctx context.Context, userId, transactionId string) (*models.StatusResult, error) {
	if userId == "" {
		return nil, models.NewValidationError("user_id", "is required")
	}
	if transactionId == "" {
		return nil, models.NewValidationError("transaction_id", "is required")
	}
	return s.reconciler.CheckStatus(ctx, transactionId, userId)
}

// HandleProviderHint polls the provider for the deposit a notification named
func (s *PaymentService) HandleProviderHint(ctx context.Context, externalId string) (*models.StatusResult, error) {
	if externalId == "" {
		return nil, models.NewValidationError("id", "is required")
	}
	return s.reconciler.HandleHint(ctx, externalId)
}

// ReconcileOpen polls the provider for open transactions in bulk
func (s *PaymentService) ReconcileOpen(ctx context.Context, minAge time.Duration, batch int) (*models.ReconcileResult, error) {
	return s.reconciler.ReconcileOpen(ctx, minAge, batch)
}

func (s *PaymentService) GetLimitsSummary(ctx context.Context, userId string) (*models.LimitsSummary, error) {
	if userId == "" {
		return nil, models.NewValidationError("user_id", "is required")
	}
	return s.limits.GetLimitsSummary(ctx, userId)
}
