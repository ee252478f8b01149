package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safar/electrostore/internal/database"
	"github.com/safar/electrostore/internal/models"
)

func GetSetting(ctx context.Context, db *sql.DB, key string) (*models.SystemSetting, error) {
	setting := &models.SystemSetting{}

	query := `
		SELECT key, value, description, created_at, updated_at
		FROM system_settings
		WHERE key = $1`

	err := db.QueryRowContext(ctx, query, key).Scan(
		&setting.Key,
		&setting.Value,
		&setting.Description,
		&setting.CreatedAt,
		&setting.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrSettingNotFound
		}
		return nil, fmt.Errorf("get setting: %w", err)
	}

	return setting, nil
}

// SettingValue adapts GetSetting to the lookup shape the checkout pricing
// resolver expects.
func SettingValue(db *sql.DB) func(ctx context.Context, key string) (string, error) {
	return func(ctx context.Context, key string) (string, error) {
		setting, err := GetSetting(ctx, db, key)
		if err != nil {
			return "", err
		}
		return setting.Value, nil
	}
}

func ListSettings(ctx context.Context, db *sql.DB) ([]models.SystemSetting, error) {
	query := `
		SELECT key, value, description, created_at, updated_at
		FROM system_settings
		ORDER BY key`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	defer rows.Close()

	var settings []models.SystemSetting
	for rows.Next() {
		var setting models.SystemSetting
		err := rows.Scan(
			&setting.Key,
			&setting.Value,
			&setting.Description,
			&setting.CreatedAt,
			&setting.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		settings = append(settings, setting)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return settings, nil
}

// UpsertSetting creates the key on first write and updates it afterwards.
// Settings are never deleted in normal operation.
func UpsertSetting(ctx context.Context, db *sql.DB, key, value, description string) (*models.SystemSetting, error) {
	setting := &models.SystemSetting{}

	query := `
		INSERT INTO system_settings (key, value, description, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value,
		    description = EXCLUDED.description,
		    updated_at = NOW()
		RETURNING key, value, description, created_at, updated_at`

	err := db.QueryRowContext(ctx, query, key, value, description).Scan(
		&setting.Key,
		&setting.Value,
		&setting.Description,
		&setting.CreatedAt,
		&setting.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert setting: %w", err)
	}

	return setting, nil
}
