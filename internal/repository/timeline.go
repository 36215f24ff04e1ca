package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/impact-portal/internal/model"
)

// GetDeliveryTimeline возвращает хронологию доставки заказа.
func (r *PostgresRepository) GetDeliveryTimeline(ctx context.Context, number string) (model.DeliveryTimeline, error) {
	return selectTimeline(ctx, r.pool, number, false)
}

// UpdateDeliveryTimeline применяет fn к хронологии заказа под блокировкой строки и сохраняет результат.
func (r *PostgresRepository) UpdateDeliveryTimeline(ctx context.Context, number string, fn func(*model.DeliveryTimeline) error) (model.DeliveryTimeline, error) {
	var res model.DeliveryTimeline

	err := r.withRetry(ctx, func() error {
		return r.inTx(ctx, func(tx pgx.Tx) error {
			t, err := selectTimeline(ctx, tx, number, true)
			if err != nil {
				return err
			}

			if err := fn(&t); err != nil {
				return err
			}

			err = tx.QueryRow(ctx,
				`UPDATE delivery_timelines SET stages = $2, updated_at = now()
				 WHERE order_number = $1
				 RETURNING updated_at`,
				number, stageNames(t),
			).Scan(&t.UpdatedAt)
			if err != nil {
				return fmt.Errorf("update timeline: %w", err)
			}

			res = t
			return nil
		})
	})
	if err != nil {
		return model.DeliveryTimeline{}, err
	}

	return res, nil
}

// GetPendingTimelines возвращает номера заказов с незавершённой хронологией, начиная с давно не обновлявшихся.
func (r *PostgresRepository) GetPendingTimelines(ctx context.Context, limit int) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT order_number
		 FROM delivery_timelines
		 WHERE cardinality(stages) < $1
		 ORDER BY updated_at
		 LIMIT $2`,
		model.StageCount, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select pending timelines: %w", err)
	}
	defer rows.Close()

	var res []string
	for rows.Next() {
		var number string
		if err := rows.Scan(&number); err != nil {
			return nil, fmt.Errorf("scan timeline: %w", err)
		}
		res = append(res, number)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

func selectTimeline(ctx context.Context, q querier, number string, forUpdate bool) (model.DeliveryTimeline, error) {
	query := `SELECT stages, updated_at FROM delivery_timelines WHERE order_number = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var (
		stages    []string
		updatedAt time.Time
	)
	err := q.QueryRow(ctx, query, number).Scan(&stages, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.DeliveryTimeline{}, ErrTimelineNotFound
		}
		return model.DeliveryTimeline{}, fmt.Errorf("select timeline: %w", err)
	}

	t := model.DeliveryTimeline{OrderNumber: number, UpdatedAt: updatedAt}
	for _, name := range stages {
		// Этапы, исключённые из перечня после записи, пропускаются.
		if i, ok := model.StageIndex(model.Stage(name)); ok {
			t.Flags[i] = true
		}
	}
	return t, nil
}

func stageNames(t model.DeliveryTimeline) []string {
	done := t.CompletedStages()
	res := make([]string, len(done))
	for i, s := range done {
		res[i] = string(s)
	}
	return res
}
