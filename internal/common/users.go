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

package common

import (
	"context"
	"fmt"
	"strings"

	"pix-settlement-bridge/internal/models"
	"pix-settlement-bridge/internal/store"

	"go.uber.org/zap"
)

// ResolveUser finds an account by email when ref contains '@', by id otherwise
func ResolveUser(ctx context.Context, users store.UserStore, ref string) (*models.User, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("a user id or email is required")
	}

	var user *models.User
	var err error
	if strings.Contains(ref, "@") {
		user, err = users.GetUserByEmail(ctx, ref)
	} else {
		user, err = users.GetUserById(ctx, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("user %s not found: %w", ref, err)
	}
	return user, nil
}

// ListUsers returns every account, or only the one matching emailFilter
func ListUsers(ctx context.Context, users store.UserStore, emailFilter string) ([]models.User, error) {
	if emailFilter != "" {
		zap.L().Info("Looking up user by email", zap.String("email", emailFilter))
		user, err := users.GetUserByEmail(ctx, emailFilter)
		if err != nil {
			return nil, fmt.Errorf("user not found: %w", err)
		}
		return []models.User{*user}, nil
	}

	all, err := users.GetUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get users: %w", err)
	}
	zap.L().Info("Retrieved users", zap.Int("count", len(all)))
	return all, nil
}
