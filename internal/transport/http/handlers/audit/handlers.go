package audithandler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"staffdesk/internal/domain/audit"
	"staffdesk/internal/domain/auth"
	"staffdesk/internal/domain/staff"
	"staffdesk/internal/transport/http/api"
	"staffdesk/internal/transport/http/middleware"
	"staffdesk/internal/transport/http/shared"
)

type Handler struct {
	Service *audit.Service
}

func NewHandler(service *audit.Service) *Handler {
	return &Handler{Service: service}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/audit", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermAuditRead)).Get("/lifecycle", h.handleListLifecycle)
	})
}

// handleListLifecycle serves the global lifecycle feed. from and to are
// calendar days, both inclusive.
func (h *Handler) handleListLifecycle(w http.ResponseWriter, r *http.Request) {
	page := shared.ParsePagination(r, 100, 500)
	query := r.URL.Query()
	validator := shared.NewValidator()
	validator.Enum("type", query.Get("type"), []string{"Removal", "Return"}, "must be Removal or Return")
	validator.Key("staffId", query.Get("staffId"))
	from := validator.Date("from", query.Get("from"))
	to := validator.Date("to", query.Get("to"))
	validator.DateOrder("from", from, "to", to)
	if validator.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}
	filter := audit.Filter{
		StaffID: query.Get("staffId"),
		Type:    query.Get("type"),
		ActorID: query.Get("actorId"),
		From:    from,
	}
	if !to.IsZero() {
		filter.To = shared.EndOfDay(to)
	}
	if t, ok := staff.ParseEventType(filter.Type); ok {
		filter.Type = string(t)
	}

	entries, total, err := h.Service.List(r.Context(), filter, page.Limit, page.Offset)
	if err != nil {
		slog.Warn("audit list failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, "audit_list_failed", "failed to list audit events", middleware.GetRequestID(r.Context()))
		return
	}

	page.WriteHeaders(w, total)
	api.Success(w, entries, middleware.GetRequestID(r.Context()))
}
