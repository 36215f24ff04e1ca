// Package worker запускает периодические задачи портала: синхронизацию доставки с CRM и пересчёт достижений.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/mmeshcher/impact-portal/internal/metrics"
)

// Jobs: операции сервиса, выполняемые по расписанию.
type Jobs interface {
	SyncDeliveries(ctx context.Context) error
	SweepAchievements(ctx context.Context) (int, error)
}

// Worker оборачивает планировщик gocron.
type Worker struct {
	ctx    context.Context
	sched  gocron.Scheduler
	jobs   Jobs
	logger *zap.Logger
}

// New создаёт планировщик с двумя задачами. Задачи выполняются с контекстом ctx
// и не запускаются повторно, пока предыдущий запуск не завершился.
func New(ctx context.Context, jobs Jobs, logger *zap.Logger, syncEvery, sweepEvery time.Duration) (*Worker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	w := &Worker{ctx: ctx, sched: sched, jobs: jobs, logger: logger}

	if _, err := sched.NewJob(
		gocron.DurationJob(syncEvery),
		gocron.NewTask(w.syncDeliveries),
		gocron.WithName("delivery-sync"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return nil, fmt.Errorf("schedule delivery sync: %w", err)
	}

	if _, err := sched.NewJob(
		gocron.DurationJob(sweepEvery),
		gocron.NewTask(w.sweepAchievements),
		gocron.WithName("achievement-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	); err != nil {
		return nil, fmt.Errorf("schedule achievement sweep: %w", err)
	}

	return w, nil
}

// Start запускает планировщик.
func (w *Worker) Start() {
	w.sched.Start()
}

// Shutdown останавливает планировщик и ждёт завершения выполняющихся задач.
func (w *Worker) Shutdown() error {
	return w.sched.Shutdown()
}

func (w *Worker) syncDeliveries() {
	err := w.jobs.SyncDeliveries(w.ctx)
	metrics.JobRuns.WithLabelValues("delivery-sync", metrics.JobResult(err)).Inc()
	if err != nil {
		w.logger.Error("delivery sync failed", zap.Error(err))
	}
}

func (w *Worker) sweepAchievements() {
	start := time.Now()
	n, err := w.jobs.SweepAchievements(w.ctx)
	metrics.JobRuns.WithLabelValues("achievement-sweep", metrics.JobResult(err)).Inc()
	if err != nil {
		w.logger.Error("achievement sweep failed", zap.Error(err))
		return
	}
	w.logger.Info("achievement sweep done",
		zap.Int("usersWithUnlocks", n),
		zap.Duration("duration", time.Since(start)),
	)
}
