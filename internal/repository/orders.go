package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/impact-portal/internal/model"
)

// AddOrder сохраняет заказ вместе с записью об эффекте и начальной хронологией доставки
// и в той же транзакции применяет fn к состоянию владельца (см. UpdateUserState).
// Если fn вернула ошибку, заказ не сохраняется, и повторная загрузка начислит всё заново.
// Возвращает true, если этот заказ уже был загружен тем же пользователем; fn тогда не вызывается.
func (r *PostgresRepository) AddOrder(
	ctx context.Context,
	order model.Order,
	impact model.EnvironmentalImpactRecord,
	fn func(*model.UserState) error,
) (bool, model.UserState, error) {
	var (
		existed bool
		state   model.UserState
	)

	err := r.withRetry(ctx, func() error {
		return r.inTx(ctx, func(tx pgx.Tx) error {
			cmdTag, err := tx.Exec(ctx,
				`INSERT INTO orders (number, user_id, placed_at) VALUES ($1, $2, $3) ON CONFLICT (number) DO NOTHING`,
				order.Number, order.UserID, order.PlacedAt,
			)
			if err != nil {
				return fmt.Errorf("insert order: %w", err)
			}

			if cmdTag.RowsAffected() == 0 {
				var ownerID int64
				err = tx.QueryRow(ctx, `SELECT user_id FROM orders WHERE number = $1`, order.Number).Scan(&ownerID)
				if err != nil {
					return fmt.Errorf("select existing order: %w", err)
				}
				if ownerID != order.UserID {
					return ErrOrderOwnedByAnother
				}
				existed = true
				state = model.UserState{}
				return nil
			}

			_, err = tx.Exec(ctx,
				`INSERT INTO impact_records
				 (order_number, carbon_saved_grams, water_provided_litres, minerals_saved_grams, water_saved_litres, order_date)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				order.Number, impact.CarbonSavedGrams, impact.WaterProvidedLitres,
				impact.MineralsSavedGrams, impact.WaterSavedLitres, impact.OrderDate,
			)
			if err != nil {
				return fmt.Errorf("insert impact record: %w", err)
			}

			_, err = tx.Exec(ctx,
				`INSERT INTO delivery_timelines (order_number, stages, updated_at) VALUES ($1, $2, now())`,
				order.Number, []string{string(model.StageOrderPlaced)},
			)
			if err != nil {
				return fmt.Errorf("insert timeline: %w", err)
			}

			st, err := updateUserStateTx(ctx, tx, order.UserID, fn)
			if err != nil {
				return err
			}

			existed = false
			state = st
			return nil
		})
	})
	if err != nil {
		return false, model.UserState{}, err
	}

	return existed, state, nil
}

// GetOrderOwner возвращает идентификатор пользователя, загрузившего заказ.
func (r *PostgresRepository) GetOrderOwner(ctx context.Context, number string) (int64, error) {
	var userID int64
	err := r.pool.QueryRow(ctx, `SELECT user_id FROM orders WHERE number = $1`, number).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrOrderNotFound
		}
		return 0, fmt.Errorf("get order owner: %w", err)
	}
	return userID, nil
}

// GetImpactRecords возвращает записи об эффекте всех заказов пользователя.
func (r *PostgresRepository) GetImpactRecords(ctx context.Context, userID int64) ([]model.EnvironmentalImpactRecord, error) {
	return selectImpactRecords(ctx, r.pool, userID)
}

func selectImpactRecords(ctx context.Context, q querier, userID int64) ([]model.EnvironmentalImpactRecord, error) {
	rows, err := q.Query(ctx,
		`SELECT i.order_number, i.carbon_saved_grams, i.water_provided_litres,
		        i.minerals_saved_grams, i.water_saved_litres, i.order_date
		 FROM impact_records i
		 JOIN orders o ON o.number = i.order_number
		 WHERE o.user_id = $1
		 ORDER BY i.order_date`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select impact records: %w", err)
	}
	defer rows.Close()

	var res []model.EnvironmentalImpactRecord
	for rows.Next() {
		var rec model.EnvironmentalImpactRecord
		if err := rows.Scan(
			&rec.OrderNumber, &rec.CarbonSavedGrams, &rec.WaterProvidedLitres,
			&rec.MineralsSavedGrams, &rec.WaterSavedLitres, &rec.OrderDate,
		); err != nil {
			return nil, fmt.Errorf("scan impact record: %w", err)
		}
		res = append(res, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ListUserIDs возвращает всех пользователей, у которых есть заказы или прогресс.
func (r *PostgresRepository) ListUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id FROM user_progress
		 UNION
		 SELECT user_id FROM orders
		 ORDER BY user_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("select users: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return ids, nil
}
