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

package database

const (
	// User queries
	queryGetActiveUsers = `
		SELECT id, name, email, created_at, updated_at
		FROM users
		WHERE active = 1
		ORDER BY created_at`

	queryInsertUser = `
		INSERT OR IGNORE INTO users (id, name, email, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`

	queryGetUserById = `
		SELECT id, name, email, created_at, updated_at
		FROM users
		WHERE id = ? AND active = 1`

	queryGetUserByEmail = `
		SELECT id, name, email, created_at, updated_at
		FROM users
		WHERE email = ? AND active = 1`

	// Transaction queries
	transactionColumns = `
		id, user_id, type, status, amount, external_id, metadata, error_message,
		created_at, updated_at, processed_at`

	queryInsertTransaction = `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetTransaction = `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE id = ?`

	queryGetTransactionByExternalId = `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE external_id = ?`

	queryLockTransaction = `
		SELECT status, external_id, metadata
		FROM transactions
		WHERE id = ?`

	queryAttachExternalId = `
		UPDATE transactions
		SET external_id = ?, status = ?, metadata = ?, updated_at = ?
		WHERE id = ? AND status = ? AND external_id IS NULL`

	queryApplyTransition = `
		UPDATE transactions
		SET status = ?,
		    metadata = ?,
		    error_message = CASE WHEN ? != '' THEN ? ELSE error_message END,
		    processed_at = CASE WHEN processed_at IS NULL AND ? THEN ? ELSE processed_at END,
		    updated_at = ?
		WHERE id = ? AND status = ?`

	queryListOpenBefore = `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE status IN ('PENDING', 'PROCESSING') AND created_at < ?
		ORDER BY created_at
		LIMIT ?`

	queryListOpenWithExternalId = `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE status IN ('PENDING', 'PROCESSING')
		  AND external_id IS NOT NULL
		  AND created_at <= ?
		ORDER BY last_polled_at, created_at, id
		LIMIT ?`

	queryMarkPolled = `
		UPDATE transactions
		SET last_polled_at = ?
		WHERE id = ?`

	// User limit queries
	userLimitColumns = `
		user_id,
		deposit_per_transaction, deposit_daily, deposit_monthly,
		withdraw_per_transaction, withdraw_daily, withdraw_monthly,
		transfer_per_transaction, transfer_daily, transfer_monthly,
		is_first_day, is_kyc_verified, is_high_risk_user,
		created_at, updated_at`

	queryInsertUserLimit = `
		INSERT OR IGNORE INTO user_limits (` + userLimitColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, 0, 0, ?, ?)`

	queryGetUserLimit = `
		SELECT ` + userLimitColumns + `
		FROM user_limits
		WHERE user_id = ?`

	queryUpdateUserLimit = `
		UPDATE user_limits
		SET deposit_per_transaction = ?, deposit_daily = ?, deposit_monthly = ?,
		    withdraw_per_transaction = ?, withdraw_daily = ?, withdraw_monthly = ?,
		    transfer_per_transaction = ?, transfer_daily = ?, transfer_monthly = ?,
		    is_first_day = ?, is_kyc_verified = ?, is_high_risk_user = ?,
		    updated_at = ?
		WHERE user_id = ?`

	queryCompleteFirstDay = `
		UPDATE user_limits
		SET deposit_per_transaction = ?, deposit_daily = ?, deposit_monthly = ?,
		    withdraw_per_transaction = ?, withdraw_daily = ?, withdraw_monthly = ?,
		    transfer_per_transaction = ?, transfer_daily = ?, transfer_monthly = ?,
		    is_first_day = 0,
		    updated_at = ?
		WHERE user_id = ? AND is_first_day = 1`

	// Reputation queries
	reputationColumns = `
		user_id, reputation_score, total_approved_volume, total_approved_count,
		total_rejected_count, current_daily_limit, limit_tier, next_limit_threshold,
		created_at, updated_at`

	queryInsertReputation = `
		INSERT OR IGNORE INTO user_reputations (` + reputationColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetReputation = `
		SELECT ` + reputationColumns + `
		FROM user_reputations
		WHERE user_id = ?`

	queryUpdateReputation = `
		UPDATE user_reputations
		SET reputation_score = ?, total_approved_volume = ?, total_approved_count = ?,
		    total_rejected_count = ?, current_daily_limit = ?, limit_tier = ?,
		    next_limit_threshold = ?, updated_at = ?
		WHERE user_id = ?`

	// Settings queries
	queryGetSetting = `
		SELECT key, value, version, updated_at
		FROM settings
		WHERE key = ?`

	queryListSettings = `
		SELECT key, value, version, updated_at
		FROM settings
		ORDER BY key`

	queryUpsertSetting = `
		INSERT INTO settings (key, value, version, updated_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(key) DO UPDATE
		SET value = excluded.value, version = settings.version + 1, updated_at = excluded.updated_at`

	// Quota counter queries
	queryTakeQuota = `
		INSERT INTO quota_counters (endpoint_key, day, count)
		VALUES (?, ?, 1)
		ON CONFLICT(endpoint_key, day) DO UPDATE
		SET count = quota_counters.count + 1
		WHERE quota_counters.count < ?`

	queryGetQuota = `
		SELECT count FROM quota_counters WHERE endpoint_key = ? AND day = ?`

	// Journal queries
	queryCountJournalEntries = `
		SELECT COUNT(*) FROM journal_entries WHERE transaction_id = ?`

	queryInsertJournalEntry = `
		INSERT INTO journal_entries (id, transaction_id, account_type, account_id, debit_amount, credit_amount, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	queryGetJournalEntries = `
		SELECT id, transaction_id, account_type, account_id, debit_amount, credit_amount, created_at
		FROM journal_entries
		WHERE transaction_id = ?
		ORDER BY account_type`
)
