package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/coinwork/backend/internal/middleware"
	"github.com/coinwork/backend/internal/models"
	"github.com/coinwork/backend/internal/services"
)

type PaymentService interface {
	Plans() []models.CoinPlan
	Purchase(ctx context.Context, userID uuid.UUID, planID, idempotencyKey string) (*models.Payment, error)
	History(ctx context.Context, userID uuid.UUID) ([]*models.Payment, error)
}

var _ PaymentService = (*services.PaymentService)(nil)

// PaymentHandler serves /api/v1/payments endpoints.
type PaymentHandler struct {
	Payments  PaymentService
	Validator SchemaValidator
	Logger    *slog.Logger
}

// Plans handles GET /api/v1/payments/plans.
func (h *PaymentHandler) Plans(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Payments.Plans())
}

type purchaseRequest struct {
	PlanID string `json:"plan_id"`
}

// Purchase handles POST /api/v1/payments (buyer).
func (h *PaymentHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(w, r)
	if !ok {
		return
	}
	var req purchaseRequest
	if !decodeBody(w, r, h.Validator, services.SchemaPurchase, &req) {
		return
	}
	p, err := h.Payments.Purchase(r.Context(), sess.UserID, req.PlanID, r.Header.Get(middleware.IdempotencyHeader))
	if err != nil {
		writeServiceError(w, h.Logger, "purchase", err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// History handles GET /api/v1/payments/mine.
func (h *PaymentHandler) History(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(w, r)
	if !ok {
		return
	}
	list, err := h.Payments.History(r.Context(), sess.UserID)
	if err != nil {
		writeServiceError(w, h.Logger, "payment history", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}
