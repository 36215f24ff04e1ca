package engine

import (
	"fmt"
	"math"

	"github.com/mmeshcher/impact-portal/internal/model"
)

// NewDeliveryTimeline создаёт хронологию заказа без завершённых этапов.
func NewDeliveryTimeline(orderNumber string) model.DeliveryTimeline {
	return model.DeliveryTimeline{OrderNumber: orderNumber}
}

// SetStage отмечает этап завершённым. Этапы можно отмечать в любом порядке.
// Повторная отметка ничего не меняет, снятие отметки запрещено.
// При ошибке возвращается исходная хронология без изменений.
func SetStage(t model.DeliveryTimeline, name string, value bool) (model.DeliveryTimeline, error) {
	i, ok := model.StageIndex(model.Stage(name))
	if !ok {
		return t, fmt.Errorf("%w: %q", model.ErrUnknownStage, name)
	}
	if !value {
		return t, fmt.Errorf("%w: stage %q cannot be reset", model.ErrInvalidTransition, name)
	}

	t.Flags[i] = true
	return t, nil
}

// TimelineProgress возвращает число завершённых этапов и процент выполнения.
func TimelineProgress(t model.DeliveryTimeline) model.TimelineProgress {
	completed := 0
	for _, done := range t.Flags {
		if done {
			completed++
		}
	}
	return model.TimelineProgress{
		CompletedCount: completed,
		TotalCount:     model.StageCount,
		Percent:        int(math.Round(float64(completed) * 100 / float64(model.StageCount))),
	}
}

// NextPendingStage возвращает первый незавершённый этап в объявленном порядке.
// Порядок не обязателен для выполнения и служит только для отображения.
func NextPendingStage(t model.DeliveryTimeline) (model.Stage, bool) {
	for i, done := range t.Flags {
		if !done {
			return model.Stages[i], true
		}
	}
	return "", false
}
