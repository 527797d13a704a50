package appraisalhandler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"appraisal/internal/domain/appraisal"
	"appraisal/internal/domain/appraisal/memstore"
	"appraisal/internal/domain/audit"
	"appraisal/internal/domain/auth"
	"appraisal/internal/transport/http/middleware"
)

const (
	testSecret = "handler-secret"
	testTenant = "t1"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

type testEnv struct {
	router http.Handler
	store  *memstore.Store
	audit  *audit.MemoryLog
	tokens map[string]string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memstore.New()
	people := []struct {
		employeeID, userID string
		role               auth.Role
	}{
		{"e1", "u-e1", auth.RoleEmployee},
		{"m1", "u-m1", auth.RoleManager},
		{"d1", "u-d1", auth.RoleDirector},
		{"m2", "u-m2", auth.RoleManager},
	}
	env := &testEnv{store: store, audit: audit.NewMemoryLog(), tokens: map[string]string{}}
	for _, p := range people {
		store.AddParticipant(appraisal.Participant{
			EmployeeID: p.employeeID,
			TenantID:   testTenant,
			UserID:     p.userID,
			Name:       "Person " + p.employeeID,
			Email:      p.employeeID + "@example.com",
			Role:       p.role,
		})
		token, err := auth.GenerateToken(testSecret, auth.Claims{UserID: p.userID, TenantID: testTenant, EmployeeID: p.employeeID, Role: p.role}, time.Hour)
		if err != nil {
			t.Fatalf("token: %v", err)
		}
		env.tokens[p.employeeID] = token
	}
	store.AddTemplate(appraisal.TemplateWithHeader{
		Template: appraisal.GoalTemplate{ID: "tpl-1", TenantID: testTenant, Title: "Customer outcomes", Importance: appraisal.ImportanceHigh, Weightage: 30, CategoryIDs: []string{"customer"}},
		Header:   &appraisal.GoalTemplateHeader{ID: "h1", TenantID: testTenant, Name: "Core", Visibility: appraisal.VisibilityOrganization},
	})

	h := NewHandler(appraisal.NewService(store), auth.StaticPermissions{}, env.audit)
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Auth(testSecret))
	r.Route("/api/v1", h.RegisterRoutes)
	env.router = r
	return env
}

func (e *testEnv) do(t *testing.T, method, path, who string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if who != "" {
		req.Header.Set("Authorization", "Bearer "+e.tokens[who])
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
		}
	}
	return rec, env
}

func decodeView(t *testing.T, env envelope) appraisal.AppraisalView {
	t.Helper()
	var view appraisal.AppraisalView
	if err := json.Unmarshal(env.Data, &view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	return view
}

func (e *testEnv) createDraft(t *testing.T) appraisal.AppraisalView {
	t.Helper()
	rec, env := e.do(t, http.MethodPost, "/api/v1/appraisals", "m1", map[string]string{
		"appraiseeId": "e1",
		"appraiserId": "m1",
		"reviewerId":  "d1",
		"periodStart": "2026-01-01",
		"periodEnd":   "2026-12-31",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	return decodeView(t, env)
}

func goal(localID string, weightage int) map[string]any {
	return map[string]any{
		"localId": localID,
		"goal": map[string]any{
			"title":      "Goal " + localID,
			"importance": "medium",
			"weightage":  weightage,
			"categoryId": "delivery",
		},
	}
}

func TestCreateDraft(t *testing.T) {
	env := newTestEnv(t)
	view := env.createDraft(t)
	if view.Appraisal.Status != appraisal.StatusDraft || view.Appraisal.Version != 1 {
		t.Fatalf("unexpected draft %+v", view.Appraisal)
	}
	if view.Relationship != appraisal.RelationshipAppraiser {
		t.Fatalf("expected appraiser relationship, got %s", view.Relationship)
	}

	events, _ := env.audit.List(t.Context(), testTenant, audit.Filter{EntityID: view.Appraisal.ID}, 10, 0)
	if len(events) != 1 || events[0].Action != "appraisal.create" || events[0].ActorID != "u-m1" {
		t.Fatalf("unexpected audit events %+v", events)
	}
}

func TestCreateDraftValidation(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodPost, "/api/v1/appraisals", "m1", map[string]string{
		"appraiseeId": "e1",
		"periodStart": "2026-12-31",
		"periodEnd":   "2026-01-01",
	})
	if rec.Code != http.StatusBadRequest || body.Error.Code != "validation_error" {
		t.Fatalf("expected validation error, got %d %s", rec.Code, rec.Body.String())
	}

	rec, body = env.do(t, http.MethodPost, "/api/v1/appraisals", "m1", map[string]string{
		"appraiseeId": "e1",
		"appraiserId": "e1",
		"reviewerId":  "d1",
		"periodStart": "2026-01-01",
		"periodEnd":   "2026-12-31",
	})
	if rec.Code != http.StatusBadRequest || body.Error.Code != "participant_constraint_violation" {
		t.Fatalf("expected participant violation, got %d %s", rec.Code, rec.Body.String())
	}

	rec, _ = env.do(t, http.MethodPost, "/api/v1/appraisals", "e1", map[string]string{})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected employees to lack create permission, got %d", rec.Code)
	}

	rec, _ = env.do(t, http.MethodPost, "/api/v1/appraisals", "", map[string]string{})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestSubmitRequiresFullWeightage(t *testing.T) {
	env := newTestEnv(t)
	id := env.createDraft(t).Appraisal.ID

	rec, _ := env.do(t, http.MethodPut, "/api/v1/appraisals/"+id+"/goals", "m1", map[string]any{
		"added": []any{goal("g1", 70)},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("save goals: %d %s", rec.Code, rec.Body.String())
	}

	rec, body := env.do(t, http.MethodPost, "/api/v1/appraisals/"+id+"/submit", "m1", nil)
	if rec.Code != http.StatusUnprocessableEntity || body.Error.Code != "weightage_mismatch" {
		t.Fatalf("expected weightage mismatch, got %d %s", rec.Code, rec.Body.String())
	}
	if body.Error.Details["current"] != float64(70) || body.Error.Details["required"] != float64(100) {
		t.Fatalf("unexpected details %+v", body.Error.Details)
	}

	rec, body = env.do(t, http.MethodPut, "/api/v1/appraisals/"+id+"/goals", "m1", map[string]any{
		"added": []any{goal("g2", 40)},
	})
	if rec.Code != http.StatusUnprocessableEntity || body.Error.Code != "capacity_exceeded" {
		t.Fatalf("expected capacity exceeded, got %d %s", rec.Code, rec.Body.String())
	}
	if body.Error.Details["remaining"] != float64(30) {
		t.Fatalf("unexpected details %+v", body.Error.Details)
	}

	rec, body = env.do(t, http.MethodPut, "/api/v1/appraisals/"+id+"/goals", "m1", map[string]any{
		"added": []any{goal("g3", 0)},
	})
	if rec.Code != http.StatusBadRequest || body.Error.Code != "invalid_weightage" {
		t.Fatalf("expected invalid weightage, got %d %s", rec.Code, rec.Body.String())
	}

	rec, _ = env.do(t, http.MethodPost, "/api/v1/appraisals/"+id+"/goals/import", "m1", map[string]any{
		"templateIds": []string{"tpl-1"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("import: %d %s", rec.Code, rec.Body.String())
	}

	rec, body = env.do(t, http.MethodPost, "/api/v1/appraisals/"+id+"/submit", "m1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("submit: %d %s", rec.Code, rec.Body.String())
	}
	if view := decodeView(t, body); view.Appraisal.Status != appraisal.StatusSubmitted {
		t.Fatalf("expected submitted, got %s", view.Appraisal.Status)
	}

	rec, body = env.do(t, http.MethodPost, "/api/v1/appraisals/"+id+"/submit", "m1", nil)
	if rec.Code != http.StatusConflict || body.Error.Code != "invalid_transition" {
		t.Fatalf("expected invalid transition on resubmit, got %d %s", rec.Code, rec.Body.String())
	}

	rec, body = env.do(t, http.MethodPut, "/api/v1/appraisals/"+id+"/goals", "m1", map[string]any{
		"added": []any{goal("late", 5)},
	})
	if rec.Code != http.StatusConflict || body.Error.Code != "goals_locked" {
		t.Fatalf("expected goals locked, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestHistoryHidesDraftGoalsFromAppraisee(t *testing.T) {
	env := newTestEnv(t)
	id := env.createDraft(t).Appraisal.ID
	base := "/api/v1/appraisals/" + id

	rec, _ := env.do(t, http.MethodPut, base+"/goals", "m1", map[string]any{
		"added": []any{goal("g1", 70)},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("save goals: %d %s", rec.Code, rec.Body.String())
	}

	rec, _ = env.do(t, http.MethodGet, base+"/weightage", "e1", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected appraisee weightage 403, got %d", rec.Code)
	}

	rec, body := env.do(t, http.MethodGet, base+"/history", "e1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("history: %d %s", rec.Code, rec.Body.String())
	}
	var events []audit.Event
	if err := json.Unmarshal(body.Data, &events); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 audit events, got %d", len(events))
	}
	for _, ev := range events {
		for _, payload := range []json.RawMessage{ev.Before, ev.After} {
			for _, key := range goalAuditKeys {
				if strings.Contains(string(payload), `"`+key+`"`) {
					t.Fatalf("%s leaks %q to the appraisee: %s", ev.Action, key, payload)
				}
			}
		}
	}
	if string(events[0].After) != `{"status":"draft","version":2}` {
		t.Fatalf("unexpected redacted state %s", events[0].After)
	}

	_, body = env.do(t, http.MethodGet, base+"/history", "m1", nil)
	events = nil
	if err := json.Unmarshal(body.Data, &events); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if !strings.Contains(string(events[0].After), `"weightage":70`) {
		t.Fatalf("appraiser should see the running weightage, got %s", events[0].After)
	}
}

func TestWithoutGoalData(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", ``, ``},
		{"state", `{"status":"draft","version":2,"weightage":70}`, `{"status":"draft","version":2}`},
		{"counts only", `{"added":1,"removed":0,"updated":0}`, ``},
		{"not an object", `[1,2]`, ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := withoutGoalData(json.RawMessage(tt.in))
			if string(got) != tt.want {
				t.Fatalf("withoutGoalData(%s) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestStaleExpectedVersion(t *testing.T) {
	env := newTestEnv(t)
	id := env.createDraft(t).Appraisal.ID

	rec, body := env.do(t, http.MethodPut, "/api/v1/appraisals/"+id+"/goals", "m1", map[string]any{
		"expectedVersion": 1,
		"added":           []any{goal("g1", 100)},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("save goals: %d %s", rec.Code, rec.Body.String())
	}
	if view := decodeView(t, body); view.Appraisal.Version != 2 {
		t.Fatalf("expected version 2, got %d", view.Appraisal.Version)
	}

	rec, body = env.do(t, http.MethodPost, "/api/v1/appraisals/"+id+"/submit", "m1", map[string]any{"expectedVersion": 1})
	if rec.Code != http.StatusConflict || body.Error.Code != "stale_version" {
		t.Fatalf("expected stale version, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestAccessAndVisibility(t *testing.T) {
	env := newTestEnv(t)
	id := env.createDraft(t).Appraisal.ID

	rec, body := env.do(t, http.MethodGet, "/api/v1/appraisals/"+id+"/access", "e1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("access: %d %s", rec.Code, rec.Body.String())
	}
	var access appraisal.AccessView
	if err := json.Unmarshal(body.Data, &access); err != nil {
		t.Fatalf("decode access: %v", err)
	}
	if access.GoalList != appraisal.AccessHidden {
		t.Fatalf("appraisee should not see draft goals, got %s", access.GoalList)
	}

	rec, body = env.do(t, http.MethodGet, "/api/v1/appraisals/"+id+"/weightage", "e1", nil)
	if rec.Code != http.StatusForbidden || body.Error.Code != "forbidden" {
		t.Fatalf("expected forbidden weightage for appraisee on draft, got %d", rec.Code)
	}

	rec, body = env.do(t, http.MethodGet, "/api/v1/appraisals/"+id+"/weightage", "m1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("weightage: %d %s", rec.Code, rec.Body.String())
	}
	var summary appraisal.WeightageSummary
	_ = json.Unmarshal(body.Data, &summary)
	if summary.Total != 0 || summary.Remaining != 100 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	rec, _ = env.do(t, http.MethodGet, "/api/v1/appraisals/"+id, "m2", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected outsider to be forbidden, got %d", rec.Code)
	}

	rec, body = env.do(t, http.MethodGet, "/api/v1/appraisals/missing", "m1", nil)
	if rec.Code != http.StatusNotFound || body.Error.Code != "not_found" {
		t.Fatalf("expected not found, got %d", rec.Code)
	}
}

func TestListAndTemplates(t *testing.T) {
	env := newTestEnv(t)
	env.createDraft(t)

	rec, body := env.do(t, http.MethodGet, "/api/v1/appraisals?status=draft", "d1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: %d %s", rec.Code, rec.Body.String())
	}
	var items []appraisal.Appraisal
	_ = json.Unmarshal(body.Data, &items)
	if len(items) != 1 {
		t.Fatalf("expected reviewer to see one appraisal, got %d", len(items))
	}

	rec, _ = env.do(t, http.MethodGet, "/api/v1/appraisals?status=bogus", "d1", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected bad status filter to fail, got %d", rec.Code)
	}

	rec, body = env.do(t, http.MethodGet, "/api/v1/appraisals", "m2", nil)
	items = nil
	_ = json.Unmarshal(body.Data, &items)
	if rec.Code != http.StatusOK || len(items) != 0 {
		t.Fatalf("expected outsider to see nothing, got %d items", len(items))
	}

	rec, body = env.do(t, http.MethodGet, "/api/v1/goal-templates", "m1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("templates: %d %s", rec.Code, rec.Body.String())
	}
	var templates []map[string]any
	_ = json.Unmarshal(body.Data, &templates)
	if len(templates) != 1 || templates[0]["id"] != "tpl-1" {
		t.Fatalf("unexpected templates %+v", templates)
	}
	header, _ := templates[0]["header"].(map[string]any)
	if header["name"] != "Core" {
		t.Fatalf("expected header to be included, got %+v", templates[0])
	}
}

func TestFullLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	id := env.createDraft(t).Appraisal.ID
	base := "/api/v1/appraisals/" + id

	_, body := env.do(t, http.MethodPut, base+"/goals", "m1", map[string]any{
		"added": []any{goal("a", 60), goal("b", 40)},
	})
	goals := decodeView(t, body).Goals
	if len(goals) != 2 {
		t.Fatalf("expected two goals, got %d", len(goals))
	}

	steps := []struct {
		path string
		who  string
		body any
	}{
		{"/submit", "m1", nil},
		{"/acknowledge", "e1", nil},
		{"/self-assessment", "e1", map[string]any{"goals": map[string]any{
			goals[0].ID: map[string]any{"comment": "done", "rating": 4},
			goals[1].ID: map[string]any{"comment": "mostly", "rating": 3},
		}}},
		{"/appraiser-evaluation", "m1", map[string]any{
			"goals": map[string]any{
				goals[0].ID: map[string]any{"comment": "agree", "rating": 4},
				goals[1].ID: map[string]any{"comment": "fair", "rating": 4},
			},
			"overallRating":  4,
			"overallComment": "solid year",
		}},
	}
	for _, step := range steps {
		rec, _ := env.do(t, http.MethodPost, base+step.path, step.who, step.body)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: %d %s", step.path, rec.Code, rec.Body.String())
		}
	}

	rec, body := env.do(t, http.MethodPost, base+"/reviewer-evaluation", "d1", map[string]any{"overallRating": 4})
	if rec.Code != http.StatusUnprocessableEntity || body.Error.Code != "incomplete_evaluation" {
		t.Fatalf("expected incomplete evaluation, got %d %s", rec.Code, rec.Body.String())
	}
	missing, _ := body.Error.Details["missing"].([]any)
	if len(missing) != 1 || missing[0] != "reviewer overall comments" {
		t.Fatalf("unexpected missing fields %+v", body.Error.Details)
	}

	rec, body = env.do(t, http.MethodGet, base+"/report.pdf", "m1", nil)
	if rec.Code != http.StatusConflict || body.Error.Code != "not_complete" {
		t.Fatalf("expected report to need a complete appraisal, got %d", rec.Code)
	}

	rec, _ = env.do(t, http.MethodPost, base+"/reviewer-evaluation", "d1", map[string]any{"overallRating": 4, "overallComment": "agreed"})
	if rec.Code != http.StatusOK {
		t.Fatalf("reviewer evaluation: %d %s", rec.Code, rec.Body.String())
	}

	rec, body = env.do(t, http.MethodGet, base+"/scorecard", "e1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("scorecard: %d %s", rec.Code, rec.Body.String())
	}
	var card map[string]any
	_ = json.Unmarshal(body.Data, &card)
	if card["selfTotal"] != "3.6" || card["appraiserTotal"] != "4" {
		t.Fatalf("unexpected scorecard totals %v / %v", card["selfTotal"], card["appraiserTotal"])
	}

	rec, _ = env.do(t, http.MethodGet, base+"/report.pdf", "e1", nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "application/pdf" {
		t.Fatalf("report: %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")) {
		t.Fatal("expected a PDF body")
	}

	rec, body = env.do(t, http.MethodGet, base+"/history", "e1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("history: %d %s", rec.Code, rec.Body.String())
	}
	var events []audit.Event
	_ = json.Unmarshal(body.Data, &events)
	if len(events) != 7 {
		t.Fatalf("expected 7 audit events, got %d", len(events))
	}
	if events[0].Action != "appraisal.reviewer_evaluation" || string(events[0].Before) != `{"status":"reviewer_evaluation","version":6}` {
		t.Fatalf("unexpected latest event %s %s", events[0].Action, events[0].Before)
	}
}
