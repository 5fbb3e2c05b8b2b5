package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires the REST handler into a chi mux.
func NewRouter(h *REST) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", h.Healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", h.SubmitTask)
			r.Get("/", h.ListTasks)
			r.Get("/{id}", h.GetTask)
			r.Delete("/{id}", h.RemoveTask)
			r.Post("/{id}/start", h.taskAction(h.scheduler.StartTask))
			r.Post("/{id}/pause", h.taskAction(h.scheduler.PauseTask))
			r.Post("/{id}/resume", h.taskAction(h.scheduler.ResumeTask))
			r.Post("/{id}/complete", func(w http.ResponseWriter, req *http.Request) {
				h.taskAction(func(taskID string) error {
					return h.scheduler.CompleteTask(req.Context(), taskID)
				})(w, req)
			})
			r.Post("/{id}/requeue", h.taskAction(h.scheduler.RequeueTask))
			r.Post("/{id}/fail", h.FailTask)
			r.Post("/{id}/progress", h.ReportProgress)
		})

		r.Post("/schedule", h.Schedule)
		r.Get("/strategy", h.GetStrategy)
		r.Put("/strategy", h.SetStrategy)
		r.Get("/statistics", h.Statistics)

		r.Get("/machines", h.Machines)
		r.Put("/machines/{id}", h.UpdateMachine)

		r.Get("/materials", h.Materials)
		r.Get("/materials/report", h.MaterialReport)
		r.Get("/materials/{key}", h.LookupMaterial)

		r.Post("/approvals/{taskID}", h.ResolveApproval)
	})

	return r
}
