package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/coinwork/backend/internal/db"
	"github.com/coinwork/backend/internal/ledger"
	"github.com/coinwork/backend/internal/models"
)

type PaymentStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, p *models.Payment) error
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.Payment, error)
}

// PaymentService sells coin plans: the charge happens first, then coins are credited.
type PaymentService struct {
	Pool     db.TxBeginner
	Payments PaymentStore
	Ledger   CoinLedger
	Charger  Charger
	Logger   *slog.Logger
}

func NewPaymentService(pool db.TxBeginner, payments PaymentStore, l CoinLedger, charger Charger, logger *slog.Logger) *PaymentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PaymentService{Pool: pool, Payments: payments, Ledger: l, Charger: charger, Logger: logger}
}

func (s *PaymentService) Plans() []models.CoinPlan {
	out := make([]models.CoinPlan, len(models.CoinPlans))
	copy(out, models.CoinPlans)
	return out
}

// Purchase charges the plan price and credits its coins. idempotencyKey is
// forwarded to the gateway so a retried request is not charged twice.
func (s *PaymentService) Purchase(ctx context.Context, userID uuid.UUID, planID, idempotencyKey string) (*models.Payment, error) {
	plan, ok := models.FindPlan(planID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownPlan, planID)
	}
	res, err := s.Charger.Charge(ctx, ChargeRequest{
		UserID:         userID,
		PlanID:         plan.ID,
		AmountCents:    plan.PriceCents,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		s.Logger.Warn("charge failed", "user_id", userID, "plan_id", plan.ID, "error", err)
		return nil, fmt.Errorf("%w: %v", models.ErrPaymentFailed, err)
	}

	p := &models.Payment{
		ID:            uuid.New(),
		UserID:        userID,
		PlanID:        plan.ID,
		Coins:         plan.Coins,
		PriceCents:    plan.PriceCents,
		TransactionID: res.TransactionID,
	}
	if err := s.credit(ctx, p); err != nil {
		s.Logger.Error("charge captured but coins not credited", "user_id", userID, "transaction_id", res.TransactionID, "error", err)
		return nil, err
	}
	s.Logger.Info("coins purchased", "user_id", userID, "plan_id", plan.ID, "coins", plan.Coins)
	return p, nil
}

func (s *PaymentService) credit(ctx context.Context, p *models.Payment) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := s.Ledger.Credit(ctx, tx, p.UserID, p.Coins, ledger.Ref{EntryType: models.LedgerCoinPurchase, RefID: p.ID}); err != nil {
		return err
	}
	if err := s.Payments.CreateTx(ctx, tx, p); err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *PaymentService) History(ctx context.Context, userID uuid.UUID) ([]*models.Payment, error) {
	list, err := s.Payments.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return list, nil
}
