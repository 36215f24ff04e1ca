package engine

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/impact-portal/internal/model"
)

// Evaluation: результат оценки одного достижения.
type Evaluation struct {
	Definition    model.AchievementDefinition
	Progress      model.AchievementProgress
	NewlyUnlocked bool
}

// MetricValue выбирает значение метрики для типа порога.
func MetricValue(t model.ThresholdType, m model.Metrics) (float64, error) {
	switch t {
	case model.ThresholdCarbonSaved:
		return m.CarbonSavedGrams, nil
	case model.ThresholdFamiliesHelped:
		return float64(m.FamiliesHelped), nil
	case model.ThresholdOrdersPlaced:
		return float64(m.OrdersPlaced), nil
	case model.ThresholdStreakDays:
		return float64(m.CurrentStreak), nil
	case model.ThresholdLongestStreak:
		return float64(m.LongestStreak), nil
	case model.ThresholdWaterSaved:
		return m.WaterSavedLitres, nil
	case model.ThresholdWaterProvided:
		return m.WaterProvidedLitres, nil
	case model.ThresholdMineralsSaved:
		return m.MineralsSavedGrams, nil
	case model.ThresholdTreesPlanted:
		return float64(m.TreesEquivalent), nil
	case model.ThresholdLevelReached:
		return float64(m.Level), nil
	default:
		return 0, fmt.Errorf("%w: %q", model.ErrUnknownThresholdType, t)
	}
}

// ProgressPercent возвращает min(100, round(v / threshold * 100)), не меньше нуля.
func ProgressPercent(v, threshold float64) int {
	if math.IsNaN(v) || math.IsNaN(threshold) || threshold <= 0 || v <= 0 {
		return 0
	}
	pct := math.Round(v / threshold * 100)
	if pct > 100 {
		return 100
	}
	return int(pct)
}

// Evaluate пересчитывает прогресс по достижению. Открытие необратимо: если existing уже открыт,
// результат тоже открыт, даже если метрика уменьшилась. Ошибки конфигурации не прерывают оценку:
// прогресс остаётся нулевым, в лог пишется предупреждение.
func (e *Engine) Evaluate(def model.AchievementDefinition, m model.Metrics, existing *model.AchievementProgress, now time.Time) Evaluation {
	var prev model.AchievementProgress
	if existing != nil {
		prev = *existing
	}

	next := model.AchievementProgress{
		AchievementID: def.ID,
		IsUnlocked:    prev.IsUnlocked,
		UnlockedAt:    prev.UnlockedAt,
	}

	v, err := MetricValue(def.ThresholdType, m)
	if err == nil && def.ThresholdValue <= 0 {
		err = fmt.Errorf("%w: threshold value %v must be positive", model.ErrInvalidArgument, def.ThresholdValue)
	}
	if err != nil {
		e.logger.Warn("achievement misconfigured",
			zap.Int64("achievementID", def.ID),
			zap.String("code", def.Code),
			zap.Error(err),
		)
		return Evaluation{Definition: def, Progress: next}
	}

	next.CurrentValue = v
	next.ProgressPercent = ProgressPercent(v, def.ThresholdValue)

	newly := false
	if !next.IsUnlocked && next.ProgressPercent >= 100 {
		unlockedAt := now
		next.IsUnlocked = true
		next.UnlockedAt = &unlockedAt
		newly = true
	}

	return Evaluation{Definition: def, Progress: next, NewlyUnlocked: newly}
}

// EvaluateAll оценивает все активные достижения и возвращает сумму очков за впервые открытые.
// Повторный вызов с теми же метриками и результатами предыдущего вызова ничего не начисляет.
func (e *Engine) EvaluateAll(
	defs []model.AchievementDefinition,
	m model.Metrics,
	existing map[int64]model.AchievementProgress,
	now time.Time,
) ([]Evaluation, int64) {
	res := make([]Evaluation, 0, len(defs))
	var points int64

	for _, def := range defs {
		if !def.IsActive {
			continue
		}

		var prev *model.AchievementProgress
		if p, ok := existing[def.ID]; ok {
			prev = &p
		}

		ev := e.Evaluate(def, m, prev, now)
		if ev.NewlyUnlocked && def.Points > 0 {
			points += def.Points
		}
		res = append(res, ev)
	}

	return res, points
}

// CheckUnlockTransition запрещает переход открытого достижения обратно в закрытое.
func CheckUnlockTransition(prev, next model.AchievementProgress) error {
	if prev.IsUnlocked && !next.IsUnlocked {
		return fmt.Errorf("%w: achievement %d is already unlocked", model.ErrInvalidTransition, prev.AchievementID)
	}
	return nil
}
