package jobshandler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"staffdesk/internal/domain/auth"
	"staffdesk/internal/platform/jobs"
	"staffdesk/internal/transport/http/api"
	"staffdesk/internal/transport/http/middleware"
	"staffdesk/internal/transport/http/shared"
)

type Handler struct {
	Jobs *jobs.Service
	// Reconcile is the scan run on demand; nil disables the endpoint.
	Reconcile jobs.RunFunc
}

func NewHandler(jobsSvc *jobs.Service, reconcile jobs.RunFunc) *Handler {
	return &Handler{Jobs: jobsSvc, Reconcile: reconcile}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/jobs", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermAuditRead)).Get("/runs", h.handleListRuns)
		r.With(middleware.RequirePermission(auth.PermStaffReconcile)).Post("/reconcile/run", h.handleRunReconcile)
	})
}

func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	page := shared.ParsePagination(r, 50, 200)
	runs, total, err := h.Jobs.Runs(r.Context(), r.URL.Query().Get("type"), page.Limit, page.Offset)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "job_runs_failed", "failed to list job runs", middleware.GetRequestID(r.Context()))
		return
	}
	page.WriteHeaders(w, total)
	api.Success(w, runs, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleRunReconcile(w http.ResponseWriter, r *http.Request) {
	if h.Reconcile == nil {
		api.Fail(w, http.StatusNotFound, "not_found", "reconcile job is not configured", middleware.GetRequestID(r.Context()))
		return
	}
	details, err := h.Jobs.RunNow(r.Context(), jobs.JobReconcile, h.Reconcile)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "job_failed", "reconcile scan failed", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, details, middleware.GetRequestID(r.Context()))
}
