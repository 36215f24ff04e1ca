// Package engine вычисляет уровень, серии, достижения, экологический эффект и прогресс доставки.
// Все функции работают только с переданными снимками состояния и не выполняют ввода-вывода;
// сохранение и сериализация записей по одному агрегату остаются на вызывающей стороне.
package engine

import (
	"go.uber.org/zap"

	"github.com/mmeshcher/impact-portal/internal/model"
)

// Engine хранит логгер для предупреждений о некорректной конфигурации.
// Изменяемого состояния у Engine нет, его можно использовать из нескольких горутин.
type Engine struct {
	logger *zap.Logger
}

// New создаёт движок. При nil логгере предупреждения отбрасываются.
func New(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{logger: logger}
}

// BuildMetrics собирает показатели пользователя из записей об эффекте и текущего прогресса.
// Каждая запись соответствует одному заказу; семья считается поддержанной, если заказ обеспечил воду.
func BuildMetrics(records []model.EnvironmentalImpactRecord, progress model.UserProgress) model.Metrics {
	totals := AggregateTotals(records)

	var families int64
	for _, r := range records {
		if r.WaterProvidedLitres > 0 {
			families++
		}
	}

	return model.Metrics{
		CarbonSavedGrams:    totals.CarbonSaved,
		WaterProvidedLitres: totals.WaterProvided,
		MineralsSavedGrams:  totals.MineralsSaved,
		WaterSavedLitres:    totals.WaterSaved,
		TreesEquivalent:     totals.TreesEquivalent,
		FamiliesHelped:      families,
		OrdersPlaced:        int64(len(records)),
		CurrentStreak:       progress.CurrentStreak,
		LongestStreak:       progress.LongestStreak,
		Level:               progress.Level(),
	}
}
