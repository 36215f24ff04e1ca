// Package service связывает движок прогресса с хранилищем и CRM доставки.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/impact-portal/internal/crm"
	"github.com/mmeshcher/impact-portal/internal/engine"
	"github.com/mmeshcher/impact-portal/internal/metrics"
	"github.com/mmeshcher/impact-portal/internal/model"
	"github.com/mmeshcher/impact-portal/internal/validation"
)

// ErrNotOrderOwner возвращается, если пользователь обращается к чужому заказу.
var ErrNotOrderOwner = errors.New("order belongs to another user")

// syncBatchSize: сколько незавершённых хронологий опрашивается в CRM за один проход.
const syncBatchSize = 100

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	AddOrder(ctx context.Context, order model.Order, impact model.EnvironmentalImpactRecord, fn func(*model.UserState) error) (bool, model.UserState, error)
	GetOrderOwner(ctx context.Context, number string) (int64, error)
	GetImpactRecords(ctx context.Context, userID int64) ([]model.EnvironmentalImpactRecord, error)
	ListUserIDs(ctx context.Context) ([]int64, error)
	GetUserProgress(ctx context.Context, userID int64) (model.UserProgress, error)
	GetAchievementProgress(ctx context.Context, userID int64) (map[int64]model.AchievementProgress, error)
	UpdateUserState(ctx context.Context, userID int64, fn func(*model.UserState) error) (model.UserState, error)
	GetAchievementDefinitions(ctx context.Context) ([]model.AchievementDefinition, error)
	UpsertAchievementDefinition(ctx context.Context, d model.AchievementDefinition) (int64, error)
	GetEquivalencySettings(ctx context.Context) ([]model.EquivalencySetting, error)
	UpsertEquivalencySetting(ctx context.Context, s model.EquivalencySetting) (int64, error)
	GetDeliveryTimeline(ctx context.Context, number string) (model.DeliveryTimeline, error)
	UpdateDeliveryTimeline(ctx context.Context, number string, fn func(*model.DeliveryTimeline) error) (model.DeliveryTimeline, error)
	GetPendingTimelines(ctx context.Context, limit int) ([]string, error)
}

// DeliverySource сообщает завершённые этапы доставки заказа.
type DeliverySource interface {
	GetDeliveryStatus(ctx context.Context, number string) (crm.Result, error)
}

// Service содержит бизнес-логику портала.
type Service struct {
	repo    Repository
	crm     DeliverySource
	engine  *engine.Engine
	weights engine.XPWeights
	logger  *zap.Logger
	now     func() time.Time
}

// NewService создаёт новый сервис. crmClient может быть nil, тогда синхронизация доставки отключена.
func NewService(repo Repository, crmClient DeliverySource, eng *engine.Engine, weights engine.XPWeights, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if eng == nil {
		eng = engine.New(logger)
	}
	return &Service{
		repo:    repo,
		crm:     crmClient,
		engine:  eng,
		weights: weights,
		logger:  logger,
		now:     time.Now,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// ActivityResult: итог обработки активности пользователя.
type ActivityResult struct {
	Progress      model.UserProgress
	Level         engine.LevelProgress
	XPGained      int64
	NewlyUnlocked []model.AchievementDefinition
}

// RecordOrder сохраняет заказ с его экологическим эффектом и засчитывает активность order_placed.
// Заказ и начисление фиксируются вместе: если начисление не удалось, заказ не сохраняется.
// Повторная загрузка того же заказа тем же пользователем ничего не начисляет и возвращает duplicate = true.
func (s *Service) RecordOrder(ctx context.Context, userID int64, number string, impact model.EnvironmentalImpactRecord) (ActivityResult, bool, error) {
	if !validation.IsValidOrderNumber(number) {
		return ActivityResult{}, false, fmt.Errorf("%w: order number %q", model.ErrInvalidArgument, number)
	}
	impact.OrderNumber = number
	if err := validation.ValidateImpactRecord(impact); err != nil {
		return ActivityResult{}, false, fmt.Errorf("%w: %w", model.ErrInvalidArgument, err)
	}

	xp, err := s.weights.For(model.ActivityOrderPlaced)
	if err != nil {
		return ActivityResult{}, false, err
	}

	defs, err := s.repo.GetAchievementDefinitions(ctx)
	if err != nil {
		return ActivityResult{}, false, err
	}

	var upd stateUpdate
	order := model.Order{Number: number, UserID: userID, PlacedAt: impact.OrderDate}
	fn := s.stateFunc(defs, &upd, s.activity(impact.OrderDate, xp))

	existed, state, err := s.repo.AddOrder(ctx, order, impact, fn)
	if err != nil {
		return ActivityResult{}, false, err
	}

	if existed {
		progress, err := s.repo.GetUserProgress(ctx, userID)
		if err != nil {
			return ActivityResult{}, true, err
		}
		return ActivityResult{Progress: progress, Level: engine.ProgressWithinLevel(progress.ExperiencePoints)}, true, nil
	}

	s.logger.Info("order recorded", zap.Int64("userID", userID), zap.String("order", number))
	metrics.ActivitiesRecorded.WithLabelValues(string(model.ActivityOrderPlaced)).Inc()

	return s.activityResult(userID, state, upd), false, nil
}

// RecordActivity засчитывает активность: продлевает серию, начисляет опыт и открывает достижения.
// Очки за открытые достижения тоже являются опытом и могут открыть следующие достижения.
func (s *Service) RecordActivity(ctx context.Context, userID int64, activity model.ActivityType, at time.Time) (ActivityResult, error) {
	xp, err := s.weights.For(activity)
	if err != nil {
		return ActivityResult{}, err
	}

	res, err := s.updateUser(ctx, userID, s.activity(at, xp))
	if err != nil {
		return ActivityResult{}, err
	}
	metrics.ActivitiesRecorded.WithLabelValues(string(activity)).Inc()
	return res, nil
}

// ReevaluateUser пересчитывает достижения пользователя без новой активности.
func (s *Service) ReevaluateUser(ctx context.Context, userID int64) (ActivityResult, error) {
	return s.updateUser(ctx, userID, func(*model.UserState) (int64, error) {
		return 0, nil
	})
}

// activity продлевает серию на день at и начисляет xp.
// Дата из будущего заменяется текущим моментом, иначе серия застынет до этой даты.
func (s *Service) activity(at time.Time, xp int64) func(*model.UserState) (int64, error) {
	now := s.now()
	if at.IsZero() || at.After(now) {
		at = now
	}

	return func(st *model.UserState) (int64, error) {
		st.Progress = engine.RecordActivity(st.Progress, at)
		p, err := engine.ApplyXPGain(st.Progress, xp)
		if err != nil {
			return 0, err
		}
		st.Progress = p
		return xp, nil
	}
}

// stateUpdate накапливает итог одного применения stateFunc.
type stateUpdate struct {
	gained int64
	newly  []model.AchievementDefinition
}

func (s *Service) updateUser(ctx context.Context, userID int64, apply func(*model.UserState) (int64, error)) (ActivityResult, error) {
	defs, err := s.repo.GetAchievementDefinitions(ctx)
	if err != nil {
		return ActivityResult{}, err
	}

	var upd stateUpdate
	state, err := s.repo.UpdateUserState(ctx, userID, s.stateFunc(defs, &upd, apply))
	if err != nil {
		return ActivityResult{}, err
	}

	return s.activityResult(userID, state, upd), nil
}

// stateFunc применяет apply и оценивает достижения по записям об эффекте, прочитанным под блокировкой.
// Функция может вызываться повторно при повторе транзакции, поэтому upd сбрасывается на каждом вызове.
func (s *Service) stateFunc(defs []model.AchievementDefinition, upd *stateUpdate, apply func(*model.UserState) (int64, error)) func(*model.UserState) error {
	return func(st *model.UserState) error {
		*upd = stateUpdate{}
		if st.Achievements == nil {
			st.Achievements = make(map[int64]model.AchievementProgress)
		}

		xp, err := apply(st)
		if err != nil {
			return err
		}

		unlocked, points, err := s.evaluate(st, st.Impact, defs, s.now())
		if err != nil {
			return err
		}

		upd.gained = xp + points
		upd.newly = unlocked
		return nil
	}
}

func (s *Service) activityResult(userID int64, state model.UserState, upd stateUpdate) ActivityResult {
	for _, d := range upd.newly {
		metrics.AchievementsUnlocked.WithLabelValues(d.Code).Inc()
		s.logger.Info("achievement unlocked",
			zap.Int64("userID", userID),
			zap.String("code", d.Code),
			zap.Int64("points", d.Points),
		)
	}

	return ActivityResult{
		Progress:      state.Progress,
		Level:         engine.ProgressWithinLevel(state.Progress.ExperiencePoints),
		XPGained:      upd.gained,
		NewlyUnlocked: upd.newly,
	}
}

// evaluate оценивает достижения до неподвижной точки: каждое начисление очков может открыть новые достижения.
// Цикл конечен, так как каждая итерация с очками открывает хотя бы одно ранее закрытое достижение.
func (s *Service) evaluate(
	st *model.UserState,
	records []model.EnvironmentalImpactRecord,
	defs []model.AchievementDefinition,
	now time.Time,
) ([]model.AchievementDefinition, int64, error) {
	var (
		newly []model.AchievementDefinition
		total int64
	)

	for {
		m := engine.BuildMetrics(records, st.Progress)
		evals, points := s.engine.EvaluateAll(defs, m, st.Achievements, now)

		for _, ev := range evals {
			if prev, ok := st.Achievements[ev.Definition.ID]; ok {
				if err := engine.CheckUnlockTransition(prev, ev.Progress); err != nil {
					return nil, 0, err
				}
			}
			st.Achievements[ev.Definition.ID] = ev.Progress
			if ev.NewlyUnlocked {
				newly = append(newly, ev.Definition)
			}
		}

		if points == 0 {
			return newly, total, nil
		}

		p, err := engine.ApplyXPGain(st.Progress, points)
		if err != nil {
			return nil, 0, err
		}
		st.Progress = p
		total += points
	}
}

// GetProgress возвращает прогресс пользователя вместе с положением внутри уровня.
func (s *Service) GetProgress(ctx context.Context, userID int64) (model.UserProgress, engine.LevelProgress, error) {
	p, err := s.repo.GetUserProgress(ctx, userID)
	if err != nil {
		return model.UserProgress{}, engine.LevelProgress{}, err
	}
	return p, engine.ProgressWithinLevel(p.ExperiencePoints), nil
}

// AchievementView: активное достижение и прогресс пользователя по нему.
type AchievementView struct {
	Definition model.AchievementDefinition
	Progress   model.AchievementProgress
}

// GetAchievements возвращает все активные достижения с прогрессом пользователя.
func (s *Service) GetAchievements(ctx context.Context, userID int64) ([]AchievementView, error) {
	defs, err := s.repo.GetAchievementDefinitions(ctx)
	if err != nil {
		return nil, err
	}
	progress, err := s.repo.GetAchievementProgress(ctx, userID)
	if err != nil {
		return nil, err
	}

	res := make([]AchievementView, 0, len(defs))
	for _, d := range defs {
		if !d.IsActive {
			continue
		}
		p, ok := progress[d.ID]
		if !ok {
			p = model.AchievementProgress{AchievementID: d.ID}
		}
		res = append(res, AchievementView{Definition: d, Progress: p})
	}
	return res, nil
}

// ImpactSummary: суммарный эффект пользователя и его эквиваленты.
type ImpactSummary struct {
	Totals      engine.ImpactTotals
	Equivalents []engine.Equivalent
}

// GetImpactSummary возвращает суммарный эффект пользователя.
func (s *Service) GetImpactSummary(ctx context.Context, userID int64) (ImpactSummary, error) {
	records, err := s.repo.GetImpactRecords(ctx, userID)
	if err != nil {
		return ImpactSummary{}, err
	}
	settings, err := s.repo.GetEquivalencySettings(ctx)
	if err != nil {
		return ImpactSummary{}, err
	}

	totals := engine.AggregateTotals(records)
	return ImpactSummary{
		Totals:      totals,
		Equivalents: s.engine.ComputeEquivalents(engine.GramsToKg(totals.CarbonSaved), settings),
	}, nil
}

// GetMonthlyImpact возвращает эффект по месяцам; при normalized значения приводятся к шкале 0–100.
func (s *Service) GetMonthlyImpact(ctx context.Context, userID int64, months int, normalized bool) ([]engine.MonthBucket, error) {
	if months < 1 || months > engine.MaxMonthCount {
		return nil, fmt.Errorf("%w: months must be in [1, %d], got %d", model.ErrInvalidArgument, engine.MaxMonthCount, months)
	}

	records, err := s.repo.GetImpactRecords(ctx, userID)
	if err != nil {
		return nil, err
	}

	buckets, err := engine.BucketByMonth(records, months, s.now())
	if err != nil {
		return nil, err
	}
	if normalized {
		buckets = engine.NormalizeForChart(buckets)
	}
	return buckets, nil
}

// SeedCatalog сохраняет достижения и эквиваленты каталога.
func (s *Service) SeedCatalog(ctx context.Context, defs []model.AchievementDefinition, settings []model.EquivalencySetting) error {
	for _, d := range defs {
		if _, err := s.repo.UpsertAchievementDefinition(ctx, d); err != nil {
			return fmt.Errorf("seed achievement %q: %w", d.Code, err)
		}
	}
	for _, st := range settings {
		if _, err := s.repo.UpsertEquivalencySetting(ctx, st); err != nil {
			return fmt.Errorf("seed equivalency %q: %w", st.Name, err)
		}
	}

	s.logger.Info("catalog seeded",
		zap.Int("achievements", len(defs)),
		zap.Int("equivalencies", len(settings)),
	)
	return nil
}

// SweepAchievements пересчитывает достижения всех пользователей.
// Ошибка одного пользователя не останавливает проход. Возвращает число пользователей с новыми достижениями.
func (s *Service) SweepAchievements(ctx context.Context) (int, error) {
	ids, err := s.repo.ListUserIDs(ctx)
	if err != nil {
		return 0, err
	}

	unlocked := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return unlocked, ctx.Err()
		}

		res, err := s.ReevaluateUser(ctx, id)
		if err != nil {
			s.logger.Error("reevaluate user", zap.Int64("userID", id), zap.Error(err))
			continue
		}
		if len(res.NewlyUnlocked) > 0 {
			unlocked++
		}
	}
	return unlocked, nil
}

// checkOwner проверяет, что заказ принадлежит пользователю.
func (s *Service) checkOwner(ctx context.Context, userID int64, number string) error {
	owner, err := s.repo.GetOrderOwner(ctx, number)
	if err != nil {
		return err
	}
	if owner != userID {
		return ErrNotOrderOwner
	}
	return nil
}

