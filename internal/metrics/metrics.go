// Package metrics содержит метрики Prometheus портала.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "impactportal"

// HTTPRequestDuration: длительность обработки HTTP-запросов.
var HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Name:      "http_request_duration_seconds",
	Help:      "HTTP request duration in seconds.",
	Buckets:   prometheus.DefBuckets,
}, []string{"method", "status"})

// ActivitiesRecorded считает применённые активности по типу.
var ActivitiesRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "activities_recorded_total",
	Help:      "Total activities applied to user progress.",
}, []string{"activity"})

// AchievementsUnlocked считает переходы достижений в открытое состояние.
var AchievementsUnlocked = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "achievements_unlocked_total",
	Help:      "Total achievement unlocks.",
}, []string{"code"})

var TimelineStagesSet = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "timeline_stages_set_total",
	Help:      "Total delivery timeline stages newly marked complete.",
}, []string{"source"})

// JobRuns считает запуски фоновых задач по результату.
var JobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "job_runs_total",
	Help:      "Total background job runs.",
}, []string{"job", "result"})

// Источники отметки этапов хронологии.
const (
	SourceWebhook = "webhook"
	SourceUser    = "user"
	SourceSync    = "sync"
)

// JobResult возвращает метку результата задачи.
func JobResult(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
