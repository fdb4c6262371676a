package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"pix-settlement-bridge/internal/models"
	"pix-settlement-bridge/internal/store"

	"go.uber.org/zap"
)

func (s *Service) GetSetting(ctx context.Context, key string) (*models.Setting, error) {
	var setting models.Setting
	err := s.db.QueryRowContext(ctx, queryGetSetting, key).Scan(
		&setting.Key, &setting.Value, &setting.Version, &setting.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("setting %s: %w", key, store.ErrNotFound)
		}
		return nil, fmt.Errorf("unable to query setting: %w", err)
	}
	return &setting, nil
}

// PutSetting writes value under key, bumping the version on every write.
func (s *Service) PutSetting(ctx context.Context, key, value string) (*models.Setting, error) {
	if key == "" {
		return nil, fmt.Errorf("setting key cannot be empty")
	}
	if _, err := s.db.ExecContext(ctx, queryUpsertSetting, key, value, s.timestamp()); err != nil {
		return nil, fmt.Errorf("unable to write setting: %w", err)
	}

	setting, err := s.GetSetting(ctx, key)
	if err != nil {
		return nil, err
	}
	// values may be credentials; never log them
	zap.L().Info("Setting updated", zap.String("key", key), zap.Int64("version", setting.Version))
	return setting, nil
}

func (s *Service) ListSettings(ctx context.Context) ([]models.Setting, error) {
	rows, err := s.db.QueryContext(ctx, queryListSettings)
	if err != nil {
		return nil, fmt.Errorf("unable to query settings: %w", err)
	}
	defer closeRows(rows)

	var settings []models.Setting
	for rows.Next() {
		var setting models.Setting
		if err := rows.Scan(&setting.Key, &setting.Value, &setting.Version, &setting.UpdatedAt); err != nil {
			return nil, fmt.Errorf("unable to scan setting row: %w", err)
		}
		settings = append(settings, setting)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating setting rows: %w", err)
	}
	return settings, nil
}
