package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/impact-portal/internal/model"
)

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// GetUserProgress возвращает прогресс пользователя. Для нового пользователя возвращается нулевой прогресс.
func (r *PostgresRepository) GetUserProgress(ctx context.Context, userID int64) (model.UserProgress, error) {
	return selectProgress(ctx, r.pool, userID, false)
}

// GetAchievementProgress возвращает прогресс пользователя по всем достижениям с ключом по id достижения.
func (r *PostgresRepository) GetAchievementProgress(ctx context.Context, userID int64) (map[int64]model.AchievementProgress, error) {
	return selectAchievementProgress(ctx, r.pool, userID)
}

// UpdateUserState загружает состояние пользователя под блокировкой строки, применяет fn и сохраняет результат.
// Параллельные вызовы для одного пользователя выполняются строго по очереди.
// При конфликте сериализации fn вызывается повторно на свежем снимке.
func (r *PostgresRepository) UpdateUserState(ctx context.Context, userID int64, fn func(*model.UserState) error) (model.UserState, error) {
	var state model.UserState

	err := r.withRetry(ctx, func() error {
		return r.inTx(ctx, func(tx pgx.Tx) error {
			st, err := updateUserStateTx(ctx, tx, userID, fn)
			if err != nil {
				return err
			}
			state = st
			return nil
		})
	})
	if err != nil {
		return model.UserState{}, err
	}

	return state, nil
}

// updateUserStateTx блокирует строку прогресса, читает снимок вместе с записями об эффекте,
// применяет fn и сохраняет прогресс и достижения в транзакции tx.
func updateUserStateTx(ctx context.Context, tx pgx.Tx, userID int64, fn func(*model.UserState) error) (model.UserState, error) {
	_, err := tx.Exec(ctx,
		`INSERT INTO user_progress (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`,
		userID,
	)
	if err != nil {
		return model.UserState{}, fmt.Errorf("ensure progress row: %w", err)
	}

	progress, err := selectProgress(ctx, tx, userID, true)
	if err != nil {
		return model.UserState{}, err
	}

	achievements, err := selectAchievementProgress(ctx, tx, userID)
	if err != nil {
		return model.UserState{}, err
	}

	impact, err := selectImpactRecords(ctx, tx, userID)
	if err != nil {
		return model.UserState{}, err
	}

	st := model.UserState{Progress: progress, Achievements: achievements, Impact: impact}
	if err := fn(&st); err != nil {
		return model.UserState{}, err
	}

	_, err = tx.Exec(ctx,
		`UPDATE user_progress
		 SET experience_points = $2, current_streak = $3, longest_streak = $4, last_activity_date = $5
		 WHERE user_id = $1`,
		userID, st.Progress.ExperiencePoints, st.Progress.CurrentStreak,
		st.Progress.LongestStreak, st.Progress.LastActivityDate,
	)
	if err != nil {
		return model.UserState{}, fmt.Errorf("update progress: %w", err)
	}

	batch := &pgx.Batch{}
	for _, ap := range st.Achievements {
		batch.Queue(
			`INSERT INTO achievement_progress
			 (user_id, achievement_id, current_value, progress_percent, is_unlocked, unlocked_at)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (user_id, achievement_id) DO UPDATE
			 SET current_value = EXCLUDED.current_value,
			     progress_percent = EXCLUDED.progress_percent,
			     is_unlocked = achievement_progress.is_unlocked OR EXCLUDED.is_unlocked,
			     unlocked_at = COALESCE(achievement_progress.unlocked_at, EXCLUDED.unlocked_at)`,
			userID, ap.AchievementID, ap.CurrentValue, ap.ProgressPercent, ap.IsUnlocked, ap.UnlockedAt,
		)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return model.UserState{}, fmt.Errorf("upsert achievement progress: %w", err)
		}
	}

	st.Progress.UserID = userID
	return st, nil
}

func selectProgress(ctx context.Context, q querier, userID int64, forUpdate bool) (model.UserProgress, error) {
	query := `SELECT experience_points, current_streak, longest_streak, last_activity_date
		 FROM user_progress WHERE user_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	p := model.UserProgress{UserID: userID}
	err := q.QueryRow(ctx, query, userID).Scan(
		&p.ExperiencePoints, &p.CurrentStreak, &p.LongestStreak, &p.LastActivityDate,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.UserProgress{UserID: userID}, nil
		}
		return model.UserProgress{}, fmt.Errorf("select progress: %w", err)
	}
	return p, nil
}

func selectAchievementProgress(ctx context.Context, q querier, userID int64) (map[int64]model.AchievementProgress, error) {
	rows, err := q.Query(ctx,
		`SELECT achievement_id, current_value, progress_percent, is_unlocked, unlocked_at
		 FROM achievement_progress WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select achievement progress: %w", err)
	}
	defer rows.Close()

	res := make(map[int64]model.AchievementProgress)
	for rows.Next() {
		var ap model.AchievementProgress
		if err := rows.Scan(&ap.AchievementID, &ap.CurrentValue, &ap.ProgressPercent, &ap.IsUnlocked, &ap.UnlockedAt); err != nil {
			return nil, fmt.Errorf("scan achievement progress: %w", err)
		}
		res[ap.AchievementID] = ap
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
