package repository

import (
	"context"
	"fmt"

	"github.com/mmeshcher/impact-portal/internal/model"
)

// GetAchievementDefinitions возвращает все достижения каталога, включая неактивные.
func (r *PostgresRepository) GetAchievementDefinitions(ctx context.Context) ([]model.AchievementDefinition, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, code, name, description, threshold_type, threshold_value, points, is_active
		 FROM achievement_definitions
		 ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("select achievement definitions: %w", err)
	}
	defer rows.Close()

	var res []model.AchievementDefinition
	for rows.Next() {
		var (
			d             model.AchievementDefinition
			thresholdType string
		)
		if err := rows.Scan(&d.ID, &d.Code, &d.Name, &d.Description, &thresholdType, &d.ThresholdValue, &d.Points, &d.IsActive); err != nil {
			return nil, fmt.Errorf("scan achievement definition: %w", err)
		}
		d.ThresholdType = model.ThresholdType(thresholdType)
		res = append(res, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// UpsertAchievementDefinition создаёт или обновляет достижение по коду и возвращает его id.
func (r *PostgresRepository) UpsertAchievementDefinition(ctx context.Context, d model.AchievementDefinition) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO achievement_definitions (code, name, description, threshold_type, threshold_value, points, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (code) DO UPDATE
		 SET name = EXCLUDED.name,
		     description = EXCLUDED.description,
		     threshold_type = EXCLUDED.threshold_type,
		     threshold_value = EXCLUDED.threshold_value,
		     points = EXCLUDED.points,
		     is_active = EXCLUDED.is_active
		 RETURNING id`,
		d.Code, d.Name, d.Description, string(d.ThresholdType), d.ThresholdValue, d.Points, d.IsActive,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert achievement definition: %w", err)
	}
	return id, nil
}

// GetEquivalencySettings возвращает настройки эквивалентов в порядке их создания.
func (r *PostgresRepository) GetEquivalencySettings(ctx context.Context) ([]model.EquivalencySetting, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, description, conversion_factor, conversion_operation, is_active
		 FROM equivalency_settings
		 ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("select equivalency settings: %w", err)
	}
	defer rows.Close()

	var res []model.EquivalencySetting
	for rows.Next() {
		var (
			s  model.EquivalencySetting
			op string
		)
		if err := rows.Scan(&s.ID, &s.Name, &s.Description, &s.ConversionFactor, &op, &s.IsActive); err != nil {
			return nil, fmt.Errorf("scan equivalency setting: %w", err)
		}
		s.ConversionOperation = model.ConversionOperation(op)
		res = append(res, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// UpsertEquivalencySetting создаёт или обновляет настройку эквивалента по имени и возвращает её id.
func (r *PostgresRepository) UpsertEquivalencySetting(ctx context.Context, s model.EquivalencySetting) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO equivalency_settings (name, description, conversion_factor, conversion_operation, is_active)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (name) DO UPDATE
		 SET description = EXCLUDED.description,
		     conversion_factor = EXCLUDED.conversion_factor,
		     conversion_operation = EXCLUDED.conversion_operation,
		     is_active = EXCLUDED.is_active
		 RETURNING id`,
		s.Name, s.Description, s.ConversionFactor, string(s.ConversionOperation), s.IsActive,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert equivalency setting: %w", err)
	}
	return id, nil
}
