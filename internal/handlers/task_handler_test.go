package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/coinwork/backend/internal/middleware"
	"github.com/coinwork/backend/internal/models"
	"github.com/coinwork/backend/internal/services"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type mockTaskService struct {
	created   *services.CreateTaskInput
	createErr error
	deleteErr error
	updated   *services.UpdateTaskInput
	updateErr error
	refund    int
	open      []*models.Task
	streamErr error
	tasks     map[uuid.UUID]*models.Task
}

func (m *mockTaskService) CreateTask(_ context.Context, buyerID uuid.UUID, in services.CreateTaskInput) (*models.Task, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.created = &in
	return &models.Task{ID: uuid.New(), BuyerID: buyerID, Title: in.Title, RequiredWorkers: in.RequiredWorkers, PayableAmount: in.PayableAmount}, nil
}

func (m *mockTaskService) UpdateTask(_ context.Context, taskID, buyerID uuid.UUID, in services.UpdateTaskInput) (*models.Task, error) {
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	m.updated = &in
	task := &models.Task{ID: taskID, BuyerID: buyerID, RequiredWorkers: 3}
	if in.Title != nil {
		task.Title = *in.Title
	}
	return task, nil
}

func (m *mockTaskService) DeleteTask(context.Context, uuid.UUID, uuid.UUID) (int, error) {
	return m.refund, m.deleteErr
}

func (m *mockTaskService) ListOpenTasks(context.Context) iter.Seq2[*models.Task, error] {
	return func(yield func(*models.Task, error) bool) {
		for _, t := range m.open {
			if !yield(t, nil) {
				return
			}
		}
		if m.streamErr != nil {
			yield(nil, m.streamErr)
		}
	}
}

func (m *mockTaskService) GetTask(_ context.Context, id uuid.UUID) (*models.Task, error) {
	t, ok := m.tasks[id]
	if !ok {
		return nil, models.ErrTaskNotFound
	}
	return t, nil
}

func (m *mockTaskService) ListByBuyer(context.Context, uuid.UUID) ([]*models.Task, error) {
	return []*models.Task{}, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newTestValidator(t *testing.T) *services.Validator {
	t.Helper()
	v, err := services.NewValidator()
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	return v
}

func newTestTaskHandler(t *testing.T) (*TaskHandler, *mockTaskService) {
	t.Helper()
	svc := &mockTaskService{tasks: make(map[uuid.UUID]*models.Task)}
	return &TaskHandler{Tasks: svc, Validator: newTestValidator(t), Logger: slog.Default()}, svc
}

// asUser sets a session into the request context.
func asUser(r *http.Request, role models.Role) *http.Request {
	return r.WithContext(middleware.WithSession(r.Context(), &middleware.Session{UserID: uuid.New(), Role: role}))
}

// withID sets the chi {id} URL parameter.
func withID(r *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

const validTaskBody = `{
	"title": "Review our app",
	"detail": "Install and leave honest feedback",
	"required_workers": 3,
	"payable_amount": 5,
	"completion_date": "2026-12-01T00:00:00Z"
}`

// =====================================================================
// POST /api/v1/tasks
// =====================================================================

func TestCreateTask_ValidPayload(t *testing.T) {
	h, svc := newTestTaskHandler(t)

	req := asUser(httptest.NewRequest(http.MethodPost, "/api/v1/tasks", strings.NewReader(validTaskBody)), models.RoleBuyer)
	rec := httptest.NewRecorder()
	h.CreateTask(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var task models.Task
	if err := json.Unmarshal(rec.Body.Bytes(), &task); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if task.ID == uuid.Nil {
		t.Error("response missing id")
	}
	if svc.created == nil || svc.created.RequiredWorkers != 3 || svc.created.PayableAmount != 5 {
		t.Errorf("service received %+v", svc.created)
	}
}

func TestCreateTask_InvalidSchema(t *testing.T) {
	h, svc := newTestTaskHandler(t)

	body := `{"title":"x","required_workers":0,"payable_amount":5,"completion_date":"2026-12-01T00:00:00Z"}`
	req := asUser(httptest.NewRequest(http.MethodPost, "/api/v1/tasks", strings.NewReader(body)), models.RoleBuyer)
	rec := httptest.NewRecorder()
	h.CreateTask(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.created != nil {
		t.Error("service must not be called for a rejected body")
	}
}

func TestCreateTask_ErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{models.ErrInsufficientFunds, http.StatusPaymentRequired},
		{fmt.Errorf("%w: title", models.ErrInvalidInput), http.StatusBadRequest},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			h, svc := newTestTaskHandler(t)
			svc.createErr = tc.err
			req := asUser(httptest.NewRequest(http.MethodPost, "/api/v1/tasks", strings.NewReader(validTaskBody)), models.RoleBuyer)
			rec := httptest.NewRecorder()
			h.CreateTask(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rec.Code, rec.Body.String())
			}
			if tc.want == http.StatusInternalServerError && strings.Contains(rec.Body.String(), "connection reset") {
				t.Error("internal error detail leaked to client")
			}
		})
	}
}

func TestCreateTask_Unauthenticated(t *testing.T) {
	h, _ := newTestTaskHandler(t)
	rec := httptest.NewRecorder()
	h.CreateTask(rec, httptest.NewRequest(http.MethodPost, "/api/v1/tasks", strings.NewReader(validTaskBody)))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

// =====================================================================
// GET /api/v1/tasks
// =====================================================================

func TestListTasks_StreamsArray(t *testing.T) {
	h, svc := newTestTaskHandler(t)
	svc.open = []*models.Task{{ID: uuid.New(), Title: "a"}, {ID: uuid.New(), Title: "b"}}

	rec := httptest.NewRecorder()
	h.ListTasks(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tasks?status=open", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got []models.Task
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v: %s", err, rec.Body.String())
	}
	if len(got) != 2 || got[0].Title != "a" || got[1].Title != "b" {
		t.Errorf("unexpected tasks: %+v", got)
	}
}

func TestListTasks_Empty(t *testing.T) {
	h, _ := newTestTaskHandler(t)
	rec := httptest.NewRecorder()
	h.ListTasks(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil))
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("expected empty array, got %q", rec.Body.String())
	}
}

func TestListTasks_ErrorBeforeFirstTask(t *testing.T) {
	h, svc := newTestTaskHandler(t)
	svc.streamErr = errors.New("db down")
	rec := httptest.NewRecorder()
	h.ListTasks(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestListTasks_BadFilter(t *testing.T) {
	h, _ := newTestTaskHandler(t)
	rec := httptest.NewRecorder()
	h.ListTasks(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tasks?status=closed", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

// =====================================================================
// GET / DELETE /api/v1/tasks/{id}
// =====================================================================

func TestGetTask(t *testing.T) {
	h, svc := newTestTaskHandler(t)
	task := &models.Task{ID: uuid.New(), Title: "known"}
	svc.tasks[task.ID] = task

	rec := httptest.NewRecorder()
	h.GetTask(rec, withID(httptest.NewRequest(http.MethodGet, "/", nil), task.ID.String()))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.GetTask(rec, withID(httptest.NewRequest(http.MethodGet, "/", nil), uuid.NewString()))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.GetTask(rec, withID(httptest.NewRequest(http.MethodGet, "/", nil), "not-a-uuid"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestUpdateTask(t *testing.T) {
	h, svc := newTestTaskHandler(t)
	id := uuid.New()

	body := `{"title":"Sharper title","submission_info":"link to the review"}`
	req := withID(asUser(httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(body)), models.RoleBuyer), id.String())
	rec := httptest.NewRecorder()
	h.UpdateTask(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.updated == nil || svc.updated.Title == nil || *svc.updated.Title != "Sharper title" {
		t.Fatalf("service received %+v", svc.updated)
	}
	if svc.updated.Detail != nil {
		t.Error("absent detail must reach the service as nil")
	}
}

func TestUpdateTask_RejectsSlotAndPayChanges(t *testing.T) {
	h, svc := newTestTaskHandler(t)

	for _, body := range []string{`{"required_workers":10}`, `{"payable_amount":1}`, `{}`} {
		req := withID(asUser(httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(body)), models.RoleBuyer), uuid.NewString())
		rec := httptest.NewRecorder()
		h.UpdateTask(rec, req)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("%s: expected 422, got %d: %s", body, rec.Code, rec.Body.String())
		}
	}
	if svc.updated != nil {
		t.Error("service must not be called for a rejected body")
	}
}

func TestUpdateTask_ErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{models.ErrNotOwner, http.StatusForbidden},
		{models.ErrTaskNotFound, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			h, svc := newTestTaskHandler(t)
			svc.updateErr = tc.err
			req := withID(asUser(httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(`{"title":"x"}`)), models.RoleBuyer), uuid.NewString())
			rec := httptest.NewRecorder()
			h.UpdateTask(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestDeleteTask(t *testing.T) {
	h, svc := newTestTaskHandler(t)
	svc.refund = 10
	id := uuid.New()

	req := withID(asUser(httptest.NewRequest(http.MethodDelete, "/", nil), models.RoleBuyer), id.String())
	rec := httptest.NewRecorder()
	h.DeleteTask(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp deleteTaskResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Refund != 10 || resp.TaskID != id.String() {
		t.Errorf("unexpected response %+v", resp)
	}

	svc.deleteErr = models.ErrNotOwner
	rec = httptest.NewRecorder()
	h.DeleteTask(rec, withID(asUser(httptest.NewRequest(http.MethodDelete, "/", nil), models.RoleBuyer), id.String()))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}
