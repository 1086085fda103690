package staffhandler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"staffdesk/internal/domain/auth"
	"staffdesk/internal/domain/reports"
	"staffdesk/internal/domain/staff"
	"staffdesk/internal/platform/crypto"
	"staffdesk/internal/platform/requestctx"
	"staffdesk/internal/transport/http/api"
	"staffdesk/internal/transport/http/middleware"
	"staffdesk/internal/transport/http/shared"
)

type Handler struct {
	Service     *staff.Service
	Idempotency *middleware.IdempotencyStore
	// Archives lists exit archives; nil disables the route.
	Archives *reports.Archiver
	// AllowedOrigins limits websocket upgrades; empty means same origin only.
	AllowedOrigins []string
	Now            func() time.Time
}

func NewHandler(service *staff.Service, idempotency *middleware.IdempotencyStore) *Handler {
	return &Handler{Service: service, Idempotency: idempotency, Now: time.Now}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/reasons", h.handleReasons)
	r.Route("/staff", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermStaffRead)).Get("/", h.handleList)
		r.With(middleware.RequirePermission(auth.PermStaffRead)).Get("/{staffID}", h.handleGet)
		r.With(middleware.RequirePermission(auth.PermStaffWrite)).Put("/{staffID}", h.handleSave)
		r.With(middleware.RequirePermission(auth.PermStaffRead)).Post("/{staffID}/validate", h.handleValidate)
		r.With(middleware.RequirePermission(auth.PermStaffExit)).Post("/{staffID}/removal", h.handleRemoval)
		r.With(middleware.RequirePermission(auth.PermStaffReturn)).Post("/{staffID}/return", h.handleReturn)
		r.With(middleware.RequirePermission(auth.PermStaffRead)).Get("/{staffID}/lifecycle", h.handleLifecycle)
		r.With(middleware.RequirePermission(auth.PermStaffRead)).Get("/{staffID}/statement.pdf", h.handleStatement)
		r.With(middleware.RequirePermission(auth.PermAuditRead)).Get("/{staffID}/archives", h.handleArchives)
	})
	r.Route("/reconciliation", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermStaffReconcile)).Get("/", h.handleDuplicates)
		r.With(middleware.RequirePermission(auth.PermStaffReconcile)).Post("/{staffID}", h.handleResolve)
	})
	r.With(middleware.RequirePermission(auth.PermStaffRead)).Get("/ws/staff", h.handleWatch)
}

func (h *Handler) handleReasons(w http.ResponseWriter, r *http.Request) {
	api.Success(w, map[string]any{
		"removal":         staff.RemovalReasons,
		"return":          staff.ReturnReasons,
		"paymentTypes":    staff.PaymentTypes,
		"paymentPurposes": staff.PaymentPurposes,
		"statuses":        staff.Statuses,
	}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	loc, ok := parseLocation(w, r, "location", staff.LocationActive)
	if !ok {
		return
	}
	items, err := h.Service.List(r.Context(), actor, loc)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(len(items)))
	api.Success(w, items, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	view, err := h.Service.Get(r.Context(), actor, chi.URLParam(r, "staffID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	api.Success(w, view, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleSave(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	var rec staff.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}
	section := staff.Section(r.URL.Query().Get("section"))
	result, err := h.Service.Save(r.Context(), actor, chi.URLParam(r, "staffID"), rec, section)
	if err != nil {
		writeError(w, r, err)
		return
	}
	api.Success(w, result, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	var rec staff.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	rec, err := h.Service.Draft(r.Context(), actor, chi.URLParam(r, "staffID"), rec)
	if err != nil {
		writeError(w, r, err)
		return
	}
	now := h.Now()

	raw := r.URL.Query().Get("section")
	if raw == "" {
		result, tab := staff.ValidateAll(rec, now)
		api.Success(w, map[string]any{"result": result, "tab": tab}, middleware.GetRequestID(r.Context()))
		return
	}
	section, ok := staff.ParseSection(raw)
	if !ok {
		shared.FailValidation(w, middleware.GetRequestID(r.Context()), []shared.ValidationIssue{{Field: "section", Reason: "unknown section"}})
		return
	}
	api.Success(w, map[string]any{"result": staff.ValidateSection(rec, section, now), "tab": section}, middleware.GetRequestID(r.Context()))
}

type transitionRequest struct {
	ReasonType string `json:"reasonType"`
	Comment    string `json:"comment"`
}

func (h *Handler) handleRemoval(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, staff.EventRemoval)
}

func (h *Handler) handleReturn(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, staff.EventReturn)
}

// handleTransition replays the stored response when a retried request carries
// the same Idempotency-Key and body.
func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request, kind staff.EventType) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	requestID := middleware.GetRequestID(r.Context())
	body, err := io.ReadAll(r.Body)
	if err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestID)
		return
	}
	var payload transitionRequest
	if err := json.Unmarshal(body, &payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestID)
		return
	}

	id := chi.URLParam(r, "staffID")
	endpoint := string(kind) + ":" + id
	key := r.Header.Get("Idempotency-Key")
	hash := middleware.RequestHash(body)
	stored, found, err := h.Idempotency.Check(r.Context(), actor.ID, endpoint, key, hash)
	if errors.Is(err, middleware.ErrIdempotencyConflict) {
		api.Fail(w, http.StatusConflict, "idempotency_conflict", "idempotency key was used with a different payload", requestID)
		return
	}
	if err != nil {
		requestctx.Logger(r.Context()).Warn("idempotency lookup failed", "err", err)
	}
	if found {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Idempotent-Replay", "true")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(stored)
		return
	}

	var t staff.Transition
	if kind == staff.EventRemoval {
		t, err = h.Service.RequestRemoval(r.Context(), actor, id, payload.ReasonType, payload.Comment)
	} else {
		t, err = h.Service.RequestReturn(r.Context(), actor, id, payload.ReasonType, payload.Comment)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(api.Envelope{Success: true, Data: t, RequestID: requestID}); err != nil {
		api.Fail(w, http.StatusInternalServerError, "encode_failed", "failed to encode response", requestID)
		return
	}
	if err := h.Idempotency.Save(r.Context(), actor.ID, endpoint, key, hash, buf.Bytes()); err != nil {
		requestctx.Logger(r.Context()).Warn("idempotency save failed", "err", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) handleLifecycle(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	events, loc, err := h.Service.Lifecycle(r.Context(), actor, chi.URLParam(r, "staffID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	api.Success(w, map[string]any{"location": loc, "events": events}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleStatement(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "staffID")
	view, err := h.Service.Get(r.Context(), actor, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	pdf, err := reports.StatementPDF(view.Record, view.Location, staff.OrderedEvents(view.Record), h.Now())
	if err != nil {
		requestctx.Logger(r.Context()).Warn("statement render failed", "staffId", id, "err", err)
		api.Fail(w, http.StatusInternalServerError, "statement_failed", "failed to render statement", middleware.GetRequestID(r.Context()))
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "inline; filename=statement-"+id+".pdf")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func (h *Handler) handleArchives(w http.ResponseWriter, r *http.Request) {
	if h.Archives == nil {
		api.Fail(w, http.StatusNotFound, "not_found", "archives are not configured", middleware.GetRequestID(r.Context()))
		return
	}
	items, err := h.Archives.List(r.Context(), chi.URLParam(r, "staffID"))
	if err != nil {
		requestctx.Logger(r.Context()).Warn("archive list failed", "err", err)
		api.Fail(w, http.StatusBadGateway, "archive_list_failed", "failed to list archives", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, items, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleDuplicates(w http.ResponseWriter, r *http.Request) {
	ids, err := h.Service.Duplicates(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	api.Success(w, map[string]any{"ids": ids}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	keep, ok := staff.ParseLocation(r.URL.Query().Get("keep"))
	if !ok {
		shared.FailValidation(w, middleware.GetRequestID(r.Context()), []shared.ValidationIssue{{Field: "keep", Reason: "must be active or exited"}})
		return
	}
	id := chi.URLParam(r, "staffID")
	if err := h.Service.Resolve(r.Context(), actor, id, keep); err != nil {
		writeError(w, r, err)
		return
	}
	api.Success(w, map[string]any{"id": id, "kept": keep}, middleware.GetRequestID(r.Context()))
}

func currentActor(w http.ResponseWriter, r *http.Request) (auth.Actor, bool) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return auth.Actor{}, false
	}
	return user.Actor(), true
}

func parseLocation(w http.ResponseWriter, r *http.Request, param string, fallback staff.Location) (staff.Location, bool) {
	raw := r.URL.Query().Get(param)
	if raw == "" {
		return fallback, true
	}
	loc, ok := staff.ParseLocation(raw)
	if !ok {
		shared.FailValidation(w, middleware.GetRequestID(r.Context()), []shared.ValidationIssue{{Field: param, Reason: "must be active or exited"}})
		return "", false
	}
	return loc, true
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := middleware.GetRequestID(r.Context())
	var validation *staff.ValidationError
	var precondition *staff.PreconditionError
	var reconcile *staff.ReconcileError
	var storeErr *staff.StoreError
	switch {
	case errors.As(err, &validation):
		api.FailWithDetails(w, http.StatusUnprocessableEntity, "validation_failed", validation.Error(), map[string]any{
			"tab":    validation.Section,
			"errors": validation.Result.Errors,
			"issues": validation.Result.Issues,
		}, requestID)
	case errors.As(err, &precondition):
		api.FailWithDetails(w, http.StatusUnprocessableEntity, "precondition_failed", precondition.Error(), map[string]any{
			"fields": []shared.ValidationIssue{{Field: precondition.Field, Reason: precondition.Reason}},
		}, requestID)
	case errors.Is(err, staff.ErrForbidden):
		api.Fail(w, http.StatusForbidden, "forbidden", "insufficient permissions", requestID)
	case errors.Is(err, staff.ErrNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", "staff record not found", requestID)
	case errors.Is(err, staff.ErrWrongLocation):
		api.Fail(w, http.StatusConflict, "wrong_location", err.Error(), requestID)
	case errors.Is(err, staff.ErrTransitionInFlight):
		api.Fail(w, http.StatusConflict, "in_flight", err.Error(), requestID)
	case errors.Is(err, staff.ErrNotDuplicated):
		api.Fail(w, http.StatusConflict, "not_duplicated", err.Error(), requestID)
	case errors.Is(err, staff.ErrTransitionTimeout):
		api.Fail(w, http.StatusGatewayTimeout, "transition_timeout", err.Error(), requestID)
	case errors.As(err, &reconcile):
		api.FailWithDetails(w, http.StatusBadGateway, "reconcile_required", "record may exist in both locations", map[string]any{
			"stage":       reconcile.Stage,
			"source":      reconcile.Source,
			"destination": reconcile.Destination,
		}, requestID)
	case errors.As(err, &storeErr):
		requestctx.Logger(r.Context()).Warn("staff store operation failed", "op", storeErr.Op, "paths", storeErr.Paths, "err", storeErr.Err)
		api.Fail(w, http.StatusBadGateway, "store_failed", "record store unavailable", requestID)
	case errors.Is(err, crypto.ErrNotConfigured):
		api.Fail(w, http.StatusInternalServerError, "encryption_unavailable", "field encryption is not configured", requestID)
	default:
		requestctx.Logger(r.Context()).Warn("staff request failed", "path", r.URL.Path, "err", err)
		api.Fail(w, http.StatusInternalServerError, "internal_error", "request failed", requestID)
	}
}
