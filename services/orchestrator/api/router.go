package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Router mounts the control API routes on a chi router.
func Router(h *Handler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(RequestLogger(logger))
	r.Use(MaxBodySize(1 << 20)) // 1MB limit

	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/plans", h.CreatePlan)
		r.Get("/plans/{id}", h.GetPlan)

		r.Post("/content", h.CreatePiece)
		r.Get("/content/{id}", h.GetPiece)
		r.Post("/content/{id}/advance", h.Advance)
		r.Post("/content/{id}/resume", h.Resume)
		r.Post("/content/{id}/abandon", h.Abandon)

		r.Post("/poll", h.TriggerPoll)

		r.Post("/schedules", h.CreateSchedule)
		r.Get("/schedules", h.ListSchedules)
	})

	return r
}
