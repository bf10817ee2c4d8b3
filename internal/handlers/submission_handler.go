package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/coinwork/backend/internal/models"
	"github.com/coinwork/backend/internal/services"
)

type SubmissionService interface {
	Submit(ctx context.Context, taskID, workerID uuid.UUID, content string) (*models.Submission, error)
	Approve(ctx context.Context, submissionID, buyerID uuid.UUID) (*models.Submission, error)
	Reject(ctx context.Context, submissionID, buyerID uuid.UUID) (*models.Submission, error)
	ListForWorker(ctx context.Context, workerID uuid.UUID) ([]*models.Submission, error)
	ListPendingForBuyer(ctx context.Context, buyerID uuid.UUID) ([]*models.Submission, error)
}

var _ SubmissionService = (*services.SubmissionService)(nil)

// SubmissionHandler serves /api/v1/submissions endpoints.
type SubmissionHandler struct {
	Submissions SubmissionService
	Validator   SchemaValidator
	Logger      *slog.Logger
}

type createSubmissionRequest struct {
	TaskID  uuid.UUID `json:"task_id"`
	Content string    `json:"content"`
}

// Create handles POST /api/v1/submissions (worker).
func (h *SubmissionHandler) Create(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(w, r)
	if !ok {
		return
	}
	var req createSubmissionRequest
	if !decodeBody(w, r, h.Validator, services.SchemaCreateSubmission, &req) {
		return
	}
	sub, err := h.Submissions.Submit(r.Context(), req.TaskID, sess.UserID, req.Content)
	if err != nil {
		writeServiceError(w, h.Logger, "submit", err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// Mine handles GET /api/v1/submissions/mine (worker).
func (h *SubmissionHandler) Mine(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(w, r)
	if !ok {
		return
	}
	subs, err := h.Submissions.ListForWorker(r.Context(), sess.UserID)
	if err != nil {
		writeServiceError(w, h.Logger, "list worker submissions", err)
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

// ListForReview handles GET /api/v1/submissions?status=pending (buyer).
func (h *SubmissionHandler) ListForReview(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(w, r)
	if !ok {
		return
	}
	if status := r.URL.Query().Get("status"); status != "" && status != models.SubmissionPending {
		writeError(w, http.StatusBadRequest, "unsupported status filter")
		return
	}
	subs, err := h.Submissions.ListPendingForBuyer(r.Context(), sess.UserID)
	if err != nil {
		writeServiceError(w, h.Logger, "list pending submissions", err)
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

// Approve handles PATCH /api/v1/submissions/{id}/approve (buyer).
func (h *SubmissionHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.Submissions.Approve)
}

// Reject handles PATCH /api/v1/submissions/{id}/reject (buyer).
func (h *SubmissionHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.Submissions.Reject)
}

func (h *SubmissionHandler) decide(w http.ResponseWriter, r *http.Request, fn func(context.Context, uuid.UUID, uuid.UUID) (*models.Submission, error)) {
	sess, ok := session(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	sub, err := fn(r.Context(), id, sess.UserID)
	if err != nil {
		writeServiceError(w, h.Logger, "decide submission", err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}
