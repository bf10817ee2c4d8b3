package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coinwork/backend/internal/models"
)

type PaymentRepo struct {
	pool *pgxpool.Pool
}

func NewPaymentRepo(pool *pgxpool.Pool) *PaymentRepo {
	return &PaymentRepo{pool: pool}
}

func (r *PaymentRepo) CreateTx(ctx context.Context, tx pgx.Tx, p *models.Payment) error {
	return tx.QueryRow(ctx, `
		INSERT INTO payments (id, user_id, plan_id, coins, price_cents, transaction_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, p.ID, p.UserID, p.PlanID, p.Coins, p.PriceCents, p.TransactionID).Scan(&p.CreatedAt)
}

func (r *PaymentRepo) ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.Payment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, plan_id, coins, price_cents, transaction_id, created_at
		FROM payments WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []*models.Payment{}
	for rows.Next() {
		var p models.Payment
		if err := rows.Scan(&p.ID, &p.UserID, &p.PlanID, &p.Coins, &p.PriceCents, &p.TransactionID, &p.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &p)
	}
	return list, rows.Err()
}

func (r *PaymentRepo) TotalPaidCents(ctx context.Context, userID uuid.UUID) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(price_cents), 0) FROM payments WHERE user_id = $1`, userID).Scan(&total)
	return total, err
}
