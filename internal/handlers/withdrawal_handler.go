package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/coinwork/backend/internal/models"
	"github.com/coinwork/backend/internal/services"
)

type WithdrawalService interface {
	RequestWithdrawal(ctx context.Context, workerID uuid.UUID, in services.WithdrawalInput) (*models.Withdrawal, error)
	ApproveWithdrawal(ctx context.Context, requestID, adminID uuid.UUID, info services.PaymentInfo) (*models.Withdrawal, error)
	RejectWithdrawal(ctx context.Context, requestID, adminID uuid.UUID, reason string) (*models.Withdrawal, error)
	ListForWorker(ctx context.Context, workerID uuid.UUID) ([]*models.Withdrawal, error)
	ListByStatus(ctx context.Context, status string) ([]*models.Withdrawal, error)
}

var _ WithdrawalService = (*services.WithdrawalService)(nil)

// WithdrawalHandler serves /api/v1/withdrawals and the admin withdrawal queue.
type WithdrawalHandler struct {
	Withdrawals WithdrawalService
	Validator   SchemaValidator
	Logger      *slog.Logger
}

// Create handles POST /api/v1/withdrawals (worker).
func (h *WithdrawalHandler) Create(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(w, r)
	if !ok {
		return
	}
	var in services.WithdrawalInput
	if !decodeBody(w, r, h.Validator, services.SchemaCreateWithdrawal, &in) {
		return
	}
	wd, err := h.Withdrawals.RequestWithdrawal(r.Context(), sess.UserID, in)
	if err != nil {
		writeServiceError(w, h.Logger, "request withdrawal", err)
		return
	}
	writeJSON(w, http.StatusCreated, wd)
}

// Mine handles GET /api/v1/withdrawals/mine (worker).
func (h *WithdrawalHandler) Mine(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(w, r)
	if !ok {
		return
	}
	list, err := h.Withdrawals.ListForWorker(r.Context(), sess.UserID)
	if err != nil {
		writeServiceError(w, h.Logger, "list worker withdrawals", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// List handles GET /api/v1/admin/withdrawals?status=pending (admin).
func (h *WithdrawalHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.Withdrawals.ListByStatus(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		writeServiceError(w, h.Logger, "list withdrawals", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Approve handles PATCH /api/v1/withdrawals/{id}/approve (admin).
func (h *WithdrawalHandler) Approve(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var info services.PaymentInfo
	if !decodeBody(w, r, h.Validator, services.SchemaApproveWithdrawal, &info) {
		return
	}
	wd, err := h.Withdrawals.ApproveWithdrawal(r.Context(), id, sess.UserID, info)
	if err != nil {
		writeServiceError(w, h.Logger, "approve withdrawal", err)
		return
	}
	writeJSON(w, http.StatusOK, wd)
}

type rejectWithdrawalRequest struct {
	Reason string `json:"reason"`
}

// Reject handles PATCH /api/v1/withdrawals/{id}/reject (admin): the coins go back to the worker.
func (h *WithdrawalHandler) Reject(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req rejectWithdrawalRequest
	if !decodeBody(w, r, h.Validator, services.SchemaRejectWithdrawal, &req) {
		return
	}
	wd, err := h.Withdrawals.RejectWithdrawal(r.Context(), id, sess.UserID, req.Reason)
	if err != nil {
		writeServiceError(w, h.Logger, "reject withdrawal", err)
		return
	}
	writeJSON(w, http.StatusOK, wd)
}
