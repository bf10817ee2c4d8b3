package handlers

import (
	"context"
	"encoding/json"
	"iter"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/coinwork/backend/internal/models"
	"github.com/coinwork/backend/internal/services"
)

// TaskService is the task lifecycle surface the handler needs.
type TaskService interface {
	CreateTask(ctx context.Context, buyerID uuid.UUID, in services.CreateTaskInput) (*models.Task, error)
	UpdateTask(ctx context.Context, taskID, requesterID uuid.UUID, in services.UpdateTaskInput) (*models.Task, error)
	DeleteTask(ctx context.Context, taskID, requesterID uuid.UUID) (int, error)
	ListOpenTasks(ctx context.Context) iter.Seq2[*models.Task, error]
	GetTask(ctx context.Context, id uuid.UUID) (*models.Task, error)
	ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]*models.Task, error)
}

var _ TaskService = (*services.TaskService)(nil)

// TaskHandler serves /api/v1/tasks endpoints.
type TaskHandler struct {
	Tasks     TaskService
	Validator SchemaValidator
	Logger    *slog.Logger
}

// CreateTask handles POST /api/v1/tasks.
// Validate -> Debit buyer + insert task in one transaction -> 200.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(w, r)
	if !ok {
		return
	}
	var in services.CreateTaskInput
	if !decodeBody(w, r, h.Validator, services.SchemaCreateTask, &in) {
		return
	}
	task, err := h.Tasks.CreateTask(r.Context(), sess.UserID, in)
	if err != nil {
		writeServiceError(w, h.Logger, "create task", err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// UpdateTask handles PATCH /api/v1/tasks/{id}: title, detail and
// submission_info only.
func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in services.UpdateTaskInput
	if !decodeBody(w, r, h.Validator, services.SchemaUpdateTask, &in) {
		return
	}
	task, err := h.Tasks.UpdateTask(r.Context(), id, sess.UserID, in)
	if err != nil {
		writeServiceError(w, h.Logger, "update task", err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// ListTasks handles GET /api/v1/tasks?status=open. The open-task sequence is
// streamed as a JSON array; open is the only supported status.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	if status := r.URL.Query().Get("status"); status != "" && status != "open" {
		writeError(w, http.StatusBadRequest, "unsupported status filter")
		return
	}
	enc := json.NewEncoder(w)
	started := false
	for task, err := range h.Tasks.ListOpenTasks(r.Context()) {
		if err != nil {
			if !started {
				writeServiceError(w, h.Logger, "list open tasks", err)
				return
			}
			// Headers are already sent; the truncated array signals the failure.
			h.Logger.Error("stream open tasks", "error", err)
			return
		}
		if !started {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("["))
			started = true
		} else {
			w.Write([]byte(","))
		}
		if err := enc.Encode(task); err != nil {
			h.Logger.Warn("write open task", "error", err)
			return
		}
	}
	if !started {
		writeJSON(w, http.StatusOK, []*models.Task{})
		return
	}
	w.Write([]byte("]"))
}

// MyTasks handles GET /api/v1/tasks/mine.
func (h *TaskHandler) MyTasks(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(w, r)
	if !ok {
		return
	}
	tasks, err := h.Tasks.ListByBuyer(r.Context(), sess.UserID)
	if err != nil {
		writeServiceError(w, h.Logger, "list buyer tasks", err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

// GetTask handles GET /api/v1/tasks/{id}.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	task, err := h.Tasks.GetTask(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.Logger, "get task", err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

type deleteTaskResponse struct {
	TaskID string `json:"task_id"`
	Refund int    `json:"refund"`
}

// DeleteTask handles DELETE /api/v1/tasks/{id}: refunds the unfilled slots to the owner.
func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	refund, err := h.Tasks.DeleteTask(r.Context(), id, sess.UserID)
	if err != nil {
		writeServiceError(w, h.Logger, "delete task", err)
		return
	}
	writeJSON(w, http.StatusOK, deleteTaskResponse{TaskID: id.String(), Refund: refund})
}
