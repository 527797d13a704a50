package appraisalhandler

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"appraisal/internal/domain/appraisal"
	"appraisal/internal/domain/audit"
	"appraisal/internal/domain/auth"
	"appraisal/internal/transport/http/api"
	"appraisal/internal/transport/http/middleware"
	"appraisal/internal/transport/http/shared"
)

const entityAppraisal = "appraisal"

// goalAuditKeys are audit payload fields derived from the goal list.
var goalAuditKeys = []string{"weightage", "added", "updated", "removed", "templateIds"}

type Handler struct {
	Service *appraisal.Service
	Perms   middleware.PermissionStore
	Audit   audit.Log
}

func NewHandler(service *appraisal.Service, perms middleware.PermissionStore, auditLog audit.Log) *Handler {
	return &Handler{Service: service, Perms: perms, Audit: auditLog}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/appraisals", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermAppraisalRead, h.Perms)).Get("/", h.handleList)
		r.With(middleware.RequirePermission(auth.PermAppraisalCreate, h.Perms)).Post("/", h.handleCreate)
		r.Route("/{appraisalID}", func(r chi.Router) {
			r.With(middleware.RequirePermission(auth.PermAppraisalRead, h.Perms)).Get("/", h.handleGet)
			r.With(middleware.RequirePermission(auth.PermAppraisalRead, h.Perms)).Get("/access", h.handleAccess)
			r.With(middleware.RequirePermission(auth.PermAppraisalRead, h.Perms)).Get("/weightage", h.handleWeightage)
			r.With(middleware.RequirePermission(auth.PermAppraisalRead, h.Perms)).Get("/scorecard", h.handleScorecard)
			r.With(middleware.RequirePermission(auth.PermAppraisalRead, h.Perms)).Get("/history", h.handleHistory)
			r.With(middleware.RequirePermission(auth.PermAppraisalReport, h.Perms)).Get("/report.pdf", h.handleReport)
			r.With(middleware.RequirePermission(auth.PermAppraisalWrite, h.Perms)).Put("/goals", h.handleSaveGoals)
			r.With(middleware.RequirePermission(auth.PermAppraisalWrite, h.Perms)).Post("/goals/import", h.handleImportTemplates)
			r.With(middleware.RequirePermission(auth.PermAppraisalWrite, h.Perms)).Post("/submit", h.handleSubmit)
			r.With(middleware.RequirePermission(auth.PermAppraisalWrite, h.Perms)).Post("/acknowledge", h.handleAcknowledge)
			r.With(middleware.RequirePermission(auth.PermAppraisalWrite, h.Perms)).Post("/self-assessment", h.handleSelfAssessment)
			r.With(middleware.RequirePermission(auth.PermAppraisalWrite, h.Perms)).Post("/appraiser-evaluation", h.handleAppraiserEvaluation)
			r.With(middleware.RequirePermission(auth.PermAppraisalWrite, h.Perms)).Post("/reviewer-evaluation", h.handleReviewerEvaluation)
		})
	})
	r.With(middleware.RequirePermission(auth.PermGoalTemplatesRead, h.Perms)).Get("/goal-templates", h.handleListTemplates)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	filter := appraisal.ListFilter{}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := appraisal.ParseStatus(raw)
		if err != nil {
			api.Fail(w, http.StatusBadRequest, "invalid_status", "unknown appraisal status", middleware.GetRequestID(r.Context()))
			return
		}
		filter.Status = status
	}
	page := shared.ParsePagination(r, 50, 200)
	filter.Limit = page.Limit
	filter.Offset = page.Offset

	items, err := h.Service.List(r.Context(), actor, filter)
	if err != nil {
		writeError(w, r, err, "appraisal_list_failed", "failed to list appraisals")
		return
	}
	api.Success(w, items, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var payload struct {
		AppraiseeID     string `json:"appraiseeId"`
		AppraiserID     string `json:"appraiserId"`
		ReviewerID      string `json:"reviewerId"`
		AppraisalTypeID string `json:"appraisalTypeId"`
		RangeID         string `json:"rangeId"`
		PeriodStart     string `json:"periodStart"`
		PeriodEnd       string `json:"periodEnd"`
	}
	if !shared.DecodeJSON(w, r, &payload, middleware.GetRequestID(r.Context())) {
		return
	}

	validator := shared.NewValidator()
	validator.Required("appraiseeId", payload.AppraiseeID, "is required")
	validator.Required("appraiserId", payload.AppraiserID, "is required")
	validator.Required("reviewerId", payload.ReviewerID, "is required")
	start, _ := validator.Date("periodStart", payload.PeriodStart)
	end, _ := validator.Date("periodEnd", payload.PeriodEnd)
	validator.DateOrder("periodStart", start, "periodEnd", end)
	if validator.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	view, err := h.Service.CreateDraft(r.Context(), actor, appraisal.CreateDraftInput{
		AppraiseeID:     payload.AppraiseeID,
		AppraiserID:     payload.AppraiserID,
		ReviewerID:      payload.ReviewerID,
		AppraisalTypeID: payload.AppraisalTypeID,
		RangeID:         payload.RangeID,
		Period:          appraisal.Period{Start: start, End: end},
	})
	if err != nil {
		writeError(w, r, err, "appraisal_create_failed", "failed to create appraisal")
		return
	}

	h.record(r, actor, "appraisal.create", view.Appraisal.ID, nil, stateOf(view))
	api.Created(w, view, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	view, err := h.Service.Get(r.Context(), actor, chi.URLParam(r, "appraisalID"))
	if err != nil {
		writeError(w, r, err, "appraisal_get_failed", "failed to load appraisal")
		return
	}
	api.Success(w, view, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleAccess(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	view, err := h.Service.AccessView(r.Context(), actor, chi.URLParam(r, "appraisalID"))
	if err != nil {
		writeError(w, r, err, "appraisal_access_failed", "failed to resolve access")
		return
	}
	api.Success(w, view, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleWeightage(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	summary, err := h.Service.WeightageSummary(r.Context(), actor, chi.URLParam(r, "appraisalID"))
	if err != nil {
		writeError(w, r, err, "appraisal_weightage_failed", "failed to load weightage")
		return
	}
	api.Success(w, summary, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleScorecard(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	card, err := h.Service.Scorecard(r.Context(), actor, chi.URLParam(r, "appraisalID"))
	if err != nil {
		writeError(w, r, err, "appraisal_scorecard_failed", "failed to build scorecard")
		return
	}
	api.Success(w, card, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	appraisalID := chi.URLParam(r, "appraisalID")
	access, err := h.Service.AccessView(r.Context(), actor, appraisalID)
	if err != nil {
		writeError(w, r, err, "appraisal_history_failed", "failed to load history")
		return
	}
	if h.Audit == nil {
		api.Success(w, []audit.Event{}, middleware.GetRequestID(r.Context()))
		return
	}

	page := shared.ParsePagination(r, 100, 500)
	events, err := h.Audit.List(r.Context(), actor.TenantID, audit.Filter{EntityType: entityAppraisal, EntityID: appraisalID}, page.Limit, page.Offset)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "appraisal_history_failed", "failed to load history", middleware.GetRequestID(r.Context()))
		return
	}
	if !access.GoalList.Visible() {
		for i := range events {
			events[i].Before = withoutGoalData(events[i].Before)
			events[i].After = withoutGoalData(events[i].After)
		}
	}
	api.Success(w, events, middleware.GetRequestID(r.Context()))
}

// withoutGoalData drops goal-derived fields from an audit payload. Payloads
// that are not JSON objects are dropped entirely.
func withoutGoalData(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return raw
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil
	}
	for _, key := range goalAuditKeys {
		delete(fields, key)
	}
	if len(fields) == 0 {
		return nil
	}
	out, err := json.Marshal(fields)
	if err != nil {
		return nil
	}
	return out
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	appraisalID := chi.URLParam(r, "appraisalID")

	var buf bytes.Buffer
	if err := h.Service.Report(r.Context(), actor, appraisalID, &buf); err != nil {
		writeError(w, r, err, "appraisal_report_failed", "failed to render report")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="appraisal-`+appraisalID+`.pdf"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		slog.Warn("appraisal report write failed", "err", err)
	}
}

func (h *Handler) handleSaveGoals(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var payload struct {
		ExpectedVersion int                    `json:"expectedVersion"`
		Removed         []string               `json:"removed"`
		Updated         []appraisal.GoalUpdate `json:"updated"`
		Added           []appraisal.NewGoal    `json:"added"`
	}
	if !shared.DecodeJSON(w, r, &payload, middleware.GetRequestID(r.Context())) {
		return
	}

	appraisalID := chi.URLParam(r, "appraisalID")
	view, err := h.Service.SaveDraftGoals(r.Context(), actor, appraisalID, appraisal.GoalChanges{
		Removed: payload.Removed,
		Updated: payload.Updated,
		Added:   payload.Added,
	}, versionOpts(payload.ExpectedVersion)...)
	if err != nil {
		writeError(w, r, err, "appraisal_goals_failed", "failed to save goals")
		return
	}

	h.record(r, actor, "appraisal.save_goals", appraisalID, map[string]any{
		"removed": len(payload.Removed),
		"updated": len(payload.Updated),
		"added":   len(payload.Added),
	}, stateOf(view))
	api.Success(w, view, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleImportTemplates(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var payload struct {
		ExpectedVersion int      `json:"expectedVersion"`
		TemplateIDs     []string `json:"templateIds"`
	}
	if !shared.DecodeJSON(w, r, &payload, middleware.GetRequestID(r.Context())) {
		return
	}
	if len(payload.TemplateIDs) == 0 {
		shared.FailValidation(w, middleware.GetRequestID(r.Context()), []shared.ValidationIssue{{Field: "templateIds", Reason: "at least one template is required"}})
		return
	}

	appraisalID := chi.URLParam(r, "appraisalID")
	view, err := h.Service.ImportTemplates(r.Context(), actor, appraisalID, payload.TemplateIDs, versionOpts(payload.ExpectedVersion)...)
	if err != nil {
		writeError(w, r, err, "appraisal_import_failed", "failed to import templates")
		return
	}

	h.record(r, actor, "appraisal.import_templates", appraisalID, map[string]any{"templateIds": payload.TemplateIDs}, stateOf(view))
	api.Success(w, view, middleware.GetRequestID(r.Context()))
}

type versionPayload struct {
	ExpectedVersion int `json:"expectedVersion"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var payload versionPayload
	if !shared.DecodeJSON(w, r, &payload, middleware.GetRequestID(r.Context())) {
		return
	}
	appraisalID := chi.URLParam(r, "appraisalID")
	view, err := h.Service.Submit(r.Context(), actor, appraisalID, versionOpts(payload.ExpectedVersion)...)
	h.finishTransition(w, r, actor, "appraisal.submit", appraisal.StatusDraft, view, err)
}

func (h *Handler) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var payload versionPayload
	if !shared.DecodeJSON(w, r, &payload, middleware.GetRequestID(r.Context())) {
		return
	}
	appraisalID := chi.URLParam(r, "appraisalID")
	view, err := h.Service.Acknowledge(r.Context(), actor, appraisalID, versionOpts(payload.ExpectedVersion)...)
	h.finishTransition(w, r, actor, "appraisal.acknowledge", appraisal.StatusSubmitted, view, err)
}

func (h *Handler) handleSelfAssessment(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var payload struct {
		ExpectedVersion int                             `json:"expectedVersion"`
		Goals           map[string]appraisal.Assessment `json:"goals"`
	}
	if !shared.DecodeJSON(w, r, &payload, middleware.GetRequestID(r.Context())) {
		return
	}
	appraisalID := chi.URLParam(r, "appraisalID")
	view, err := h.Service.RecordSelfAssessment(r.Context(), actor, appraisalID, payload.Goals, versionOpts(payload.ExpectedVersion)...)
	h.finishTransition(w, r, actor, "appraisal.self_assessment", appraisal.StatusSelfAssessment, view, err)
}

func (h *Handler) handleAppraiserEvaluation(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var payload struct {
		ExpectedVersion int                             `json:"expectedVersion"`
		Goals           map[string]appraisal.Assessment `json:"goals"`
		OverallRating   int                             `json:"overallRating"`
		OverallComment  string                          `json:"overallComment"`
	}
	if !shared.DecodeJSON(w, r, &payload, middleware.GetRequestID(r.Context())) {
		return
	}
	appraisalID := chi.URLParam(r, "appraisalID")
	view, err := h.Service.RecordAppraiserEvaluation(r.Context(), actor, appraisalID, payload.Goals, payload.OverallRating, payload.OverallComment, versionOpts(payload.ExpectedVersion)...)
	h.finishTransition(w, r, actor, "appraisal.appraiser_evaluation", appraisal.StatusAppraiserEvaluation, view, err)
}

func (h *Handler) handleReviewerEvaluation(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var payload struct {
		ExpectedVersion int    `json:"expectedVersion"`
		OverallRating   int    `json:"overallRating"`
		OverallComment  string `json:"overallComment"`
	}
	if !shared.DecodeJSON(w, r, &payload, middleware.GetRequestID(r.Context())) {
		return
	}
	appraisalID := chi.URLParam(r, "appraisalID")
	view, err := h.Service.RecordReviewerEvaluation(r.Context(), actor, appraisalID, payload.OverallRating, payload.OverallComment, versionOpts(payload.ExpectedVersion)...)
	h.finishTransition(w, r, actor, "appraisal.reviewer_evaluation", appraisal.StatusReviewerEvaluation, view, err)
}

func (h *Handler) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	templates, err := h.Service.VisibleTemplates(r.Context(), actor)
	if err != nil {
		writeError(w, r, err, "goal_template_list_failed", "failed to list goal templates")
		return
	}

	type templateView struct {
		appraisal.GoalTemplate
		Header *appraisal.GoalTemplateHeader `json:"header,omitempty"`
	}
	out := make([]templateView, 0, len(templates))
	for _, t := range templates {
		out = append(out, templateView{GoalTemplate: t.Template, Header: t.Header})
	}
	api.Success(w, out, middleware.GetRequestID(r.Context()))
}

func (h *Handler) finishTransition(w http.ResponseWriter, r *http.Request, actor appraisal.Actor, action string, from appraisal.Status, view appraisal.AppraisalView, err error) {
	if err != nil {
		writeError(w, r, err, "appraisal_transition_failed", "failed to update appraisal")
		return
	}
	h.record(r, actor, action, view.Appraisal.ID,
		map[string]any{"status": from, "version": view.Appraisal.Version - 1},
		stateOf(view))
	api.Success(w, view, middleware.GetRequestID(r.Context()))
}

func (h *Handler) record(r *http.Request, actor appraisal.Actor, action, appraisalID string, before, after any) {
	if h.Audit == nil {
		return
	}
	if err := h.Audit.Record(r.Context(), actor.TenantID, actor.UserID, action, entityAppraisal, appraisalID, middleware.GetRequestID(r.Context()), shared.ClientIP(r), before, after); err != nil {
		slog.Warn("audit "+action+" failed", "err", err)
	}
}

func stateOf(view appraisal.AppraisalView) map[string]any {
	return map[string]any{
		"status":    view.Appraisal.Status,
		"version":   view.Appraisal.Version,
		"weightage": appraisal.SumWeightage(view.Goals),
	}
}

func actorFrom(w http.ResponseWriter, r *http.Request) (appraisal.Actor, bool) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return appraisal.Actor{}, false
	}
	return appraisal.ActorFromUser(user), true
}

func versionOpts(expected int) []appraisal.CommandOption {
	if expected <= 0 {
		return nil
	}
	return []appraisal.CommandOption{appraisal.WithExpectedVersion(expected)}
}

// writeError maps domain errors onto response envelopes. Anything it does not
// recognise is logged and reported as code with a 500.
func writeError(w http.ResponseWriter, r *http.Request, err error, code, message string) {
	reqID := middleware.GetRequestID(r.Context())

	var mismatch *appraisal.WeightageMismatchError
	var capacity *appraisal.CapacityExceededError
	var incomplete *appraisal.IncompleteEvaluationError
	var transition *appraisal.TransitionError
	switch {
	case errors.As(err, &mismatch):
		api.FailWithDetails(w, http.StatusUnprocessableEntity, "weightage_mismatch", err.Error(),
			map[string]int{"current": mismatch.Current, "required": mismatch.Required}, reqID)
	case errors.As(err, &capacity):
		api.FailWithDetails(w, http.StatusUnprocessableEntity, "capacity_exceeded", err.Error(),
			map[string]any{"goal": capacity.GoalKey, "requested": capacity.Requested, "remaining": capacity.Remaining}, reqID)
	case errors.As(err, &incomplete):
		api.FailWithDetails(w, http.StatusUnprocessableEntity, "incomplete_evaluation", err.Error(),
			map[string]any{"stage": incomplete.Stage, "missing": incomplete.Missing}, reqID)
	case errors.As(err, &transition):
		api.FailWithDetails(w, http.StatusConflict, "invalid_transition", err.Error(),
			map[string]any{"from": transition.From, "to": transition.To}, reqID)
	case errors.Is(err, appraisal.ErrInvalidTransition):
		api.Fail(w, http.StatusConflict, "invalid_transition", err.Error(), reqID)
	case errors.Is(err, appraisal.ErrGoalsLocked):
		api.Fail(w, http.StatusConflict, "goals_locked", err.Error(), reqID)
	case errors.Is(err, appraisal.ErrStaleVersion):
		api.Fail(w, http.StatusConflict, "stale_version", err.Error(), reqID)
	case errors.Is(err, appraisal.ErrNotComplete):
		api.Fail(w, http.StatusConflict, "not_complete", err.Error(), reqID)
	case errors.Is(err, appraisal.ErrInvalidWeightage):
		api.Fail(w, http.StatusBadRequest, "invalid_weightage", err.Error(), reqID)
	case errors.Is(err, appraisal.ErrParticipantConstraint):
		api.Fail(w, http.StatusBadRequest, "participant_constraint_violation", err.Error(), reqID)
	case errors.Is(err, appraisal.ErrInvalidPeriod):
		api.Fail(w, http.StatusBadRequest, "invalid_period", err.Error(), reqID)
	case appraisal.IsNotFound(err):
		api.Fail(w, http.StatusNotFound, "not_found", err.Error(), reqID)
	case errors.Is(err, appraisal.ErrAccessDenied):
		api.Fail(w, http.StatusForbidden, "forbidden", err.Error(), reqID)
	default:
		slog.Error(message, "err", err, "requestId", reqID)
		api.Fail(w, http.StatusInternalServerError, code, message, reqID)
	}
}
