package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	custommiddleware "github.com/mmeshcher/impact-portal/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware портала.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/user", func(r chi.Router) {
		r.Use(h.authMiddleware.Middleware)

		r.Get("/progress", h.GetProgress)
		r.Post("/activity", h.RecordActivity)
		r.Get("/achievements", h.GetAchievements)

		r.Get("/impact", h.GetImpact)
		r.Get("/impact/monthly", h.GetMonthlyImpact)

		r.Get("/orders/{number}/timeline", h.GetTimeline)
		r.Post("/orders/{number}/timeline/{stage}", h.CompleteTimelineStage)
	})

	r.Route("/api/internal", func(r chi.Router) {
		r.Use(custommiddleware.InternalToken(h.internalToken))

		r.Post("/orders", h.UploadOrder)
		r.Post("/webhooks/delivery", h.DeliveryWebhook)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
