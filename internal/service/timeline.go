package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/impact-portal/internal/engine"
	"github.com/mmeshcher/impact-portal/internal/metrics"
	"github.com/mmeshcher/impact-portal/internal/model"
)

// TimelineView: хронология доставки с вычисленным прогрессом.
type TimelineView struct {
	Timeline  model.DeliveryTimeline
	Progress  model.TimelineProgress
	NextStage model.Stage
	HasNext   bool
}

func newTimelineView(t model.DeliveryTimeline) TimelineView {
	next, ok := engine.NextPendingStage(t)
	return TimelineView{
		Timeline:  t,
		Progress:  engine.TimelineProgress(t),
		NextStage: next,
		HasNext:   ok,
	}
}

// GetTimeline возвращает хронологию доставки заказа пользователя.
func (s *Service) GetTimeline(ctx context.Context, userID int64, number string) (TimelineView, error) {
	if err := s.checkOwner(ctx, userID, number); err != nil {
		return TimelineView{}, err
	}

	t, err := s.repo.GetDeliveryTimeline(ctx, number)
	if err != nil {
		return TimelineView{}, err
	}
	return newTimelineView(t), nil
}

// SetTimelineStage отмечает этап доставки по сигналу CRM.
func (s *Service) SetTimelineStage(ctx context.Context, number, stage string, value bool) (TimelineView, error) {
	return s.setStage(ctx, number, stage, value, metrics.SourceWebhook)
}

func (s *Service) setStage(ctx context.Context, number, stage string, value bool, source string) (TimelineView, error) {
	var added int
	t, err := s.repo.UpdateDeliveryTimeline(ctx, number, func(t *model.DeliveryTimeline) error {
		before := engine.TimelineProgress(*t).CompletedCount
		next, err := engine.SetStage(*t, stage, value)
		if err != nil {
			return err
		}
		added = engine.TimelineProgress(next).CompletedCount - before
		*t = next
		return nil
	})
	if err != nil {
		return TimelineView{}, err
	}
	metrics.TimelineStagesSet.WithLabelValues(source).Add(float64(added))
	return newTimelineView(t), nil
}

// SetUserTimelineStage отмечает этап доставки по действию пользователя, например подтверждение получения.
func (s *Service) SetUserTimelineStage(ctx context.Context, userID int64, number, stage string) (TimelineView, error) {
	if err := s.checkOwner(ctx, userID, number); err != nil {
		return TimelineView{}, err
	}
	return s.setStage(ctx, number, stage, true, metrics.SourceUser)
}

// SyncDeliveries опрашивает CRM по незавершённым хронологиям и отмечает сообщённые этапы.
// Неизвестные этапы пропускаются с предупреждением, ответ 429 приостанавливает проход на Retry-After.
func (s *Service) SyncDeliveries(ctx context.Context) error {
	if s.crm == nil {
		return nil
	}

	numbers, err := s.repo.GetPendingTimelines(ctx, syncBatchSize)
	if err != nil {
		return err
	}

	for _, number := range numbers {
		res, err := s.crm.GetDeliveryStatus(ctx, number)
		if err != nil {
			s.logger.Warn("get delivery status", zap.String("order", number), zap.Error(err))
			continue
		}

		if res.StatusCode == http.StatusTooManyRequests {
			if res.RetryAfter > 0 {
				timer := time.NewTimer(res.RetryAfter)
				select {
				case <-ctx.Done():
					timer.Stop()
					return ctx.Err()
				case <-timer.C:
				}
			}
			continue
		}

		if res.Status == nil {
			continue
		}

		if err := s.applyStages(ctx, number, res.Status.Stages); err != nil {
			s.logger.Error("apply delivery stages", zap.String("order", number), zap.Error(err))
		}
	}

	return nil
}

func (s *Service) applyStages(ctx context.Context, number string, stages []string) error {
	var added int
	_, err := s.repo.UpdateDeliveryTimeline(ctx, number, func(t *model.DeliveryTimeline) error {
		before := engine.TimelineProgress(*t).CompletedCount
		for _, name := range stages {
			next, err := engine.SetStage(*t, name, true)
			if err != nil {
				if errors.Is(err, model.ErrUnknownStage) {
					s.logger.Warn("skip unknown delivery stage", zap.String("order", number), zap.String("stage", name))
					continue
				}
				return err
			}
			*t = next
		}
		added = engine.TimelineProgress(*t).CompletedCount - before
		return nil
	})
	if err != nil {
		return err
	}
	metrics.TimelineStagesSet.WithLabelValues(metrics.SourceSync).Add(float64(added))
	return nil
}
