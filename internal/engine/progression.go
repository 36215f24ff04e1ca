package engine

import (
	"fmt"

	"github.com/mmeshcher/impact-portal/internal/model"
)

// LevelProgress описывает положение пользователя внутри текущего уровня.
type LevelProgress struct {
	Level     int   `json:"level"`
	Current   int64 `json:"current"`
	Total     int64 `json:"total"`
	Remaining int64 `json:"remaining"`
}

// LevelOf возвращает уровень для количества опыта: floor(xp/1000) + 1.
func LevelOf(xp int64) int {
	return model.UserProgress{ExperiencePoints: xp}.Level()
}

// ProgressWithinLevel возвращает прогресс внутри уровня.
func ProgressWithinLevel(xp int64) LevelProgress {
	if xp < 0 {
		xp = 0
	}
	current := xp % model.XPPerLevel
	return LevelProgress{
		Level:     LevelOf(xp),
		Current:   current,
		Total:     model.XPPerLevel,
		Remaining: model.XPPerLevel - current,
	}
}

// ApplyXPGain начисляет опыт. Уровень не хранится отдельно и поэтому не может разойтись с опытом.
// Списание опыта не поддерживается, отрицательная дельта считается ошибкой вызывающей стороны.
func ApplyXPGain(progress model.UserProgress, delta int64) (model.UserProgress, error) {
	if delta < 0 {
		return progress, fmt.Errorf("%w: xp delta must be non-negative, got %d", model.ErrInvalidArgument, delta)
	}
	progress.ExperiencePoints += delta
	return progress, nil
}

// XPWeights задаёт количество опыта за каждый тип активности.
type XPWeights struct {
	OrderPlaced int64
	DailyLogin  int64
	Share       int64
}

// DefaultXPWeights: веса по умолчанию.
var DefaultXPWeights = XPWeights{
	OrderPlaced: 250,
	DailyLogin:  10,
	Share:       50,
}

// For возвращает опыт за активность. Для неизвестной активности возвращает ошибку.
func (w XPWeights) For(a model.ActivityType) (int64, error) {
	switch a {
	case model.ActivityOrderPlaced:
		return w.OrderPlaced, nil
	case model.ActivityDailyLogin:
		return w.DailyLogin, nil
	case model.ActivityShare:
		return w.Share, nil
	default:
		return 0, fmt.Errorf("%w: activity type %q", model.ErrInvalidArgument, a)
	}
}
