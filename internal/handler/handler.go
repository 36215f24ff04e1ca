// Package handler содержит HTTP-обработчики API портала.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/impact-portal/internal/engine"
	"github.com/mmeshcher/impact-portal/internal/middleware"
	"github.com/mmeshcher/impact-portal/internal/model"
	"github.com/mmeshcher/impact-portal/internal/repository"
	"github.com/mmeshcher/impact-portal/internal/service"
)

const defaultMonths = 6

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RecordOrder(ctx context.Context, userID int64, number string, impact model.EnvironmentalImpactRecord) (service.ActivityResult, bool, error)
	RecordActivity(ctx context.Context, userID int64, activity model.ActivityType, at time.Time) (service.ActivityResult, error)
	GetProgress(ctx context.Context, userID int64) (model.UserProgress, engine.LevelProgress, error)
	GetAchievements(ctx context.Context, userID int64) ([]service.AchievementView, error)
	GetImpactSummary(ctx context.Context, userID int64) (service.ImpactSummary, error)
	GetMonthlyImpact(ctx context.Context, userID int64, months int, normalized bool) ([]engine.MonthBucket, error)
	GetTimeline(ctx context.Context, userID int64, number string) (service.TimelineView, error)
	SetTimelineStage(ctx context.Context, number, stage string, value bool) (service.TimelineView, error)
	SetUserTimelineStage(ctx context.Context, userID int64, number, stage string) (service.TimelineView, error)
}

// Handler реализует HTTP-обработчики API портала.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	internalToken  string
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, internalToken string) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		internalToken:  internalToken,
	}
}

type progressResponse struct {
	UserID           int64                `json:"user_id"`
	ExperiencePoints int64                `json:"experience_points"`
	Level            int                  `json:"level"`
	LevelProgress    engine.LevelProgress `json:"level_progress"`
	CurrentStreak    int                  `json:"current_streak"`
	LongestStreak    int                  `json:"longest_streak"`
	LastActivityDate *time.Time           `json:"last_activity_date,omitempty"`
}

func newProgressResponse(p model.UserProgress, lp engine.LevelProgress) progressResponse {
	return progressResponse{
		UserID:           p.UserID,
		ExperiencePoints: p.ExperiencePoints,
		Level:            lp.Level,
		LevelProgress:    lp,
		CurrentStreak:    p.CurrentStreak,
		LongestStreak:    p.LongestStreak,
		LastActivityDate: p.LastActivityDate,
	}
}

type unlockedResponse struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Points int64  `json:"points"`
}

type activityResponse struct {
	progressResponse
	XPGained      int64              `json:"xp_gained"`
	NewlyUnlocked []unlockedResponse `json:"newly_unlocked"`
}

func newActivityResponse(res service.ActivityResult) activityResponse {
	unlocked := make([]unlockedResponse, 0, len(res.NewlyUnlocked))
	for _, d := range res.NewlyUnlocked {
		unlocked = append(unlocked, unlockedResponse{Code: d.Code, Name: d.Name, Points: d.Points})
	}
	return activityResponse{
		progressResponse: newProgressResponse(res.Progress, res.Level),
		XPGained:         res.XPGained,
		NewlyUnlocked:    unlocked,
	}
}

// GetProgress возвращает опыт, уровень и серию текущего пользователя.
func (h *Handler) GetProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	p, lp, err := h.service.GetProgress(r.Context(), userID)
	if err != nil {
		h.writeError(w, err, "get progress", zap.Int64("userID", userID))
		return
	}

	h.writeJSON(w, http.StatusOK, newProgressResponse(p, lp))
}

type activityRequest struct {
	Type model.ActivityType `json:"type"`
}

// RecordActivity засчитывает пользовательскую активность: ежедневный вход или публикацию.
func (h *Handler) RecordActivity(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req activityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	// order_placed засчитывается только при загрузке заказа через внутренний API.
	if req.Type != model.ActivityDailyLogin && req.Type != model.ActivityShare {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	res, err := h.service.RecordActivity(r.Context(), userID, req.Type, time.Time{})
	if err != nil {
		h.writeError(w, err, "record activity", zap.Int64("userID", userID))
		return
	}

	h.writeJSON(w, http.StatusOK, newActivityResponse(res))
}

type achievementResponse struct {
	ID              int64               `json:"id"`
	Code            string              `json:"code"`
	Name            string              `json:"name"`
	Description     string              `json:"description"`
	ThresholdType   model.ThresholdType `json:"threshold_type"`
	ThresholdValue  float64             `json:"threshold_value"`
	Points          int64               `json:"points"`
	CurrentValue    float64             `json:"current_value"`
	ProgressPercent int                 `json:"progress_percent"`
	IsUnlocked      bool                `json:"is_unlocked"`
	UnlockedAt      *time.Time          `json:"unlocked_at,omitempty"`
}

// GetAchievements возвращает активные достижения с прогрессом текущего пользователя.
func (h *Handler) GetAchievements(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	views, err := h.service.GetAchievements(r.Context(), userID)
	if err != nil {
		h.writeError(w, err, "get achievements", zap.Int64("userID", userID))
		return
	}

	if len(views) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]achievementResponse, 0, len(views))
	for _, v := range views {
		resp = append(resp, achievementResponse{
			ID:              v.Definition.ID,
			Code:            v.Definition.Code,
			Name:            v.Definition.Name,
			Description:     v.Definition.Description,
			ThresholdType:   v.Definition.ThresholdType,
			ThresholdValue:  v.Definition.ThresholdValue,
			Points:          v.Definition.Points,
			CurrentValue:    v.Progress.CurrentValue,
			ProgressPercent: v.Progress.ProgressPercent,
			IsUnlocked:      v.Progress.IsUnlocked,
			UnlockedAt:      v.Progress.UnlockedAt,
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}

type impactResponse struct {
	Totals      engine.ImpactTotals `json:"totals"`
	Equivalents []engine.Equivalent `json:"equivalents"`
}

// GetImpact возвращает суммарный экологический эффект пользователя и его эквиваленты.
func (h *Handler) GetImpact(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	sum, err := h.service.GetImpactSummary(r.Context(), userID)
	if err != nil {
		h.writeError(w, err, "get impact", zap.Int64("userID", userID))
		return
	}

	h.writeJSON(w, http.StatusOK, impactResponse{Totals: sum.Totals, Equivalents: sum.Equivalents})
}

// GetMonthlyImpact возвращает эффект по месяцам для графика.
func (h *Handler) GetMonthlyImpact(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	months := defaultMonths
	if v := r.URL.Query().Get("months"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > engine.MaxMonthCount {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		months = n
	}

	normalized := false
	if v := r.URL.Query().Get("normalized"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		normalized = b
	}

	buckets, err := h.service.GetMonthlyImpact(r.Context(), userID, months, normalized)
	if err != nil {
		h.writeError(w, err, "get monthly impact", zap.Int64("userID", userID))
		return
	}

	h.writeJSON(w, http.StatusOK, buckets)
}

type stageResponse struct {
	Name      model.Stage `json:"name"`
	Completed bool        `json:"completed"`
}

type timelineResponse struct {
	Order          string          `json:"order"`
	Stages         []stageResponse `json:"stages"`
	CompletedCount int             `json:"completed_count"`
	TotalCount     int             `json:"total_count"`
	Percent        int             `json:"percent"`
	NextStage      model.Stage     `json:"next_stage,omitempty"`
	UpdatedAt      *time.Time      `json:"updated_at,omitempty"`
}

func newTimelineResponse(v service.TimelineView) timelineResponse {
	stages := make([]stageResponse, 0, model.StageCount)
	for i, s := range model.Stages {
		stages = append(stages, stageResponse{Name: s, Completed: v.Timeline.Flags[i]})
	}

	resp := timelineResponse{
		Order:          v.Timeline.OrderNumber,
		Stages:         stages,
		CompletedCount: v.Progress.CompletedCount,
		TotalCount:     v.Progress.TotalCount,
		Percent:        v.Progress.Percent,
	}
	if v.HasNext {
		resp.NextStage = v.NextStage
	}
	if !v.Timeline.UpdatedAt.IsZero() {
		updated := v.Timeline.UpdatedAt
		resp.UpdatedAt = &updated
	}
	return resp
}

// GetTimeline возвращает хронологию доставки заказа текущего пользователя.
func (h *Handler) GetTimeline(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	number := chi.URLParam(r, "number")

	view, err := h.service.GetTimeline(r.Context(), userID, number)
	if err != nil {
		h.writeError(w, err, "get timeline", zap.Int64("userID", userID), zap.String("order", number))
		return
	}

	h.writeJSON(w, http.StatusOK, newTimelineResponse(view))
}

// CompleteTimelineStage отмечает этап доставки по действию пользователя.
func (h *Handler) CompleteTimelineStage(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	number := chi.URLParam(r, "number")
	stage := chi.URLParam(r, "stage")

	view, err := h.service.SetUserTimelineStage(r.Context(), userID, number, stage)
	if err != nil {
		h.writeError(w, err, "complete timeline stage",
			zap.Int64("userID", userID), zap.String("order", number), zap.String("stage", stage))
		return
	}

	h.writeJSON(w, http.StatusOK, newTimelineResponse(view))
}

type orderRequest struct {
	UserID int64                           `json:"user_id"`
	Order  string                          `json:"order"`
	Impact model.EnvironmentalImpactRecord `json:"impact"`
}

// UploadOrder принимает заказ с рассчитанным экологическим эффектом от внутренней системы.
// 202: заказ принят впервые, 200: заказ уже был загружен этим пользователем.
func (h *Handler) UploadOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.UserID <= 0 || req.Order == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	res, alreadyExists, err := h.service.RecordOrder(r.Context(), req.UserID, req.Order, req.Impact)
	if err != nil {
		h.writeError(w, err, "upload order", zap.Int64("userID", req.UserID), zap.String("order", req.Order))
		return
	}

	status := http.StatusAccepted
	if alreadyExists {
		status = http.StatusOK
	}
	h.writeJSON(w, status, newActivityResponse(res))
}

type deliveryWebhookRequest struct {
	Order     string `json:"order"`
	Stage     string `json:"stage"`
	Completed *bool  `json:"completed,omitempty"`
}

// DeliveryWebhook принимает событие CRM о завершении этапа доставки.
func (h *Handler) DeliveryWebhook(w http.ResponseWriter, r *http.Request) {
	var req deliveryWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Order == "" || req.Stage == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	completed := true
	if req.Completed != nil {
		completed = *req.Completed
	}

	view, err := h.service.SetTimelineStage(r.Context(), req.Order, req.Stage, completed)
	if err != nil {
		h.writeError(w, err, "delivery webhook", zap.String("order", req.Order), zap.String("stage", req.Stage))
		return
	}

	h.writeJSON(w, http.StatusOK, newTimelineResponse(view))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response", zap.Error(err))
	}
}

// writeError переводит доменную ошибку в HTTP-статус. Неизвестные ошибки пишутся в лог как 500.
func (h *Handler) writeError(w http.ResponseWriter, err error, op string, fields ...zap.Field) {
	var status int
	switch {
	case errors.Is(err, model.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, model.ErrUnknownStage):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, repository.ErrOrderOwnedByAnother):
		status = http.StatusConflict
	case errors.Is(err, service.ErrNotOrderOwner):
		status = http.StatusForbidden
	case errors.Is(err, repository.ErrOrderNotFound), errors.Is(err, repository.ErrTimelineNotFound):
		status = http.StatusNotFound
	default:
		h.logger.Error(op+" error", append(fields, zap.Error(err))...)
		status = http.StatusInternalServerError
	}

	http.Error(w, http.StatusText(status), status)
}
