// Package dashboard serves the per-user home screens (profile, coin history,
// stats) and the admin console.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/coinwork/backend/internal/middleware"
	"github.com/coinwork/backend/internal/models"
	"github.com/coinwork/backend/internal/repository"
)

type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	List(ctx context.Context) ([]*models.User, error)
	UpdateDisplayName(ctx context.Context, id uuid.UUID, displayName string) error
	UpdateRole(ctx context.Context, id uuid.UUID, role models.Role) error
	Delete(ctx context.Context, id uuid.UUID) error
	Stats(ctx context.Context) (repository.PlatformStats, error)
}

type LedgerReader interface {
	History(ctx context.Context, userID uuid.UUID) ([]*models.CoinLedgerEntry, error)
}

type SubmissionStats interface {
	WorkerStats(ctx context.Context, workerID uuid.UUID) (repository.WorkerSubmissionStats, error)
}

type TaskStats interface {
	BuyerStats(ctx context.Context, buyerID uuid.UUID) (repository.BuyerTaskStats, error)
}

type PaymentTotals interface {
	TotalPaidCents(ctx context.Context, userID uuid.UUID) (int64, error)
}

type WithdrawalTotals interface {
	TotalPaidOutCents(ctx context.Context) (int64, error)
}

// TaskAdmin is the slice of the task service the admin console uses.
type TaskAdmin interface {
	ListAll(ctx context.Context) ([]*models.Task, error)
	RemoveTask(ctx context.Context, taskID uuid.UUID) (int, error)
}

type Handler struct {
	users       UserStore
	ledger      LedgerReader
	submissions SubmissionStats
	taskStats   TaskStats
	payments    PaymentTotals
	withdrawals WithdrawalTotals
	tasks       TaskAdmin
	log         *slog.Logger
}

func NewHandler(
	users UserStore,
	ledger LedgerReader,
	submissions SubmissionStats,
	taskStats TaskStats,
	payments PaymentTotals,
	withdrawals WithdrawalTotals,
	tasks TaskAdmin,
	log *slog.Logger,
) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		users:       users,
		ledger:      ledger,
		submissions: submissions,
		taskStats:   taskStats,
		payments:    payments,
		withdrawals: withdrawals,
		tasks:       tasks,
		log:         log,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*middleware.Session, bool) {
	sess := middleware.SessionFromCtx(r.Context())
	if sess == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}
	return sess, true
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

// storeError writes 404 for missing rows and 500 (logged) for anything else.
func (h *Handler) storeError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, models.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	h.log.Error(op, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

// GET /api/v1/me
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	u, err := h.users.GetByID(r.Context(), sess.UserID)
	if err != nil {
		h.storeError(w, "get user", err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// PATCH /api/v1/me
func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var body struct {
		DisplayName *string `json:"display_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if body.DisplayName == nil {
		writeError(w, http.StatusBadRequest, "display_name is required")
		return
	}
	name := strings.TrimSpace(*body.DisplayName)
	if name == "" || len(name) > 100 {
		writeError(w, http.StatusBadRequest, "display_name must be 1-100 characters")
		return
	}
	if err := h.users.UpdateDisplayName(r.Context(), sess.UserID, name); err != nil {
		h.storeError(w, "update display name", err)
		return
	}
	u, err := h.users.GetByID(r.Context(), sess.UserID)
	if err != nil {
		h.storeError(w, "get user", err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// GET /api/v1/me/ledger
func (h *Handler) MyLedger(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	entries, err := h.ledger.History(r.Context(), sess.UserID)
	if err != nil {
		h.storeError(w, "ledger history", err)
		return
	}
	if entries == nil {
		entries = []*models.CoinLedgerEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

type buyerStats struct {
	repository.BuyerTaskStats
	TotalPaidCents int64 `json:"total_paid_cents"`
}

// GET /api/v1/me/stats
func (h *Handler) MyStats(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	switch sess.Role {
	case models.RoleWorker:
		s, err := h.submissions.WorkerStats(r.Context(), sess.UserID)
		if err != nil {
			h.storeError(w, "worker stats", err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	case models.RoleBuyer:
		ts, err := h.taskStats.BuyerStats(r.Context(), sess.UserID)
		if err != nil {
			h.storeError(w, "buyer stats", err)
			return
		}
		paid, err := h.payments.TotalPaidCents(r.Context(), sess.UserID)
		if err != nil {
			h.storeError(w, "buyer payments total", err)
			return
		}
		writeJSON(w, http.StatusOK, buyerStats{BuyerTaskStats: ts, TotalPaidCents: paid})
	default:
		h.AdminStats(w, r)
	}
}

type platformStats struct {
	repository.PlatformStats
	TotalPaidOutCents int64 `json:"total_paid_out_cents"`
}

// GET /api/v1/admin/stats
func (h *Handler) AdminStats(w http.ResponseWriter, r *http.Request) {
	us, err := h.users.Stats(r.Context())
	if err != nil {
		h.storeError(w, "platform stats", err)
		return
	}
	paidOut, err := h.withdrawals.TotalPaidOutCents(r.Context())
	if err != nil {
		h.storeError(w, "paid out total", err)
		return
	}
	writeJSON(w, http.StatusOK, platformStats{PlatformStats: us, TotalPaidOutCents: paidOut})
}

// GET /api/v1/admin/users
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		h.storeError(w, "list users", err)
		return
	}
	if users == nil {
		users = []*models.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

// PATCH /api/v1/admin/users/{id}/role
func (h *Handler) UpdateUserRole(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body struct {
		Role string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	role, err := models.ParseRole(body.Role)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if id == sess.UserID && role != models.RoleAdmin {
		writeError(w, http.StatusConflict, "cannot demote yourself")
		return
	}
	if err := h.users.UpdateRole(r.Context(), id, role); err != nil {
		h.storeError(w, "update role", err)
		return
	}
	h.log.Info("user role updated", "user_id", id, "role", role, "admin_id", sess.UserID)
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "role": role})
}

// DELETE /api/v1/admin/users/{id}
func (h *Handler) RemoveUser(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if id == sess.UserID {
		writeError(w, http.StatusConflict, "cannot remove yourself")
		return
	}
	if err := h.users.Delete(r.Context(), id); err != nil {
		h.storeError(w, "delete user", err)
		return
	}
	h.log.Info("user removed", "user_id", id, "admin_id", sess.UserID)
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/v1/admin/tasks
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.tasks.ListAll(r.Context())
	if err != nil {
		h.storeError(w, "list tasks", err)
		return
	}
	if tasks == nil {
		tasks = []*models.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

// DELETE /api/v1/admin/tasks/{id}
func (h *Handler) RemoveTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	refund, err := h.tasks.RemoveTask(r.Context(), id)
	if err != nil {
		h.storeError(w, "remove task", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"task_id": id, "refund": refund})
}
