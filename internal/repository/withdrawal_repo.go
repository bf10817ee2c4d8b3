package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coinwork/backend/internal/models"
)

type WithdrawalRepo struct {
	pool *pgxpool.Pool
}

func NewWithdrawalRepo(pool *pgxpool.Pool) *WithdrawalRepo {
	return &WithdrawalRepo{pool: pool}
}

const withdrawalColumns = `id, worker_id, coin_amount, cash_cents, payment_system, account_number, status,
	transaction_id, payment_method, decided_by, decided_at, reject_reason, created_at`

func scanWithdrawal(row pgx.Row) (*models.Withdrawal, error) {
	var w models.Withdrawal
	err := row.Scan(&w.ID, &w.WorkerID, &w.CoinAmount, &w.CashCents, &w.PaymentSystem, &w.AccountNumber, &w.Status,
		&w.TransactionID, &w.PaymentMethod, &w.DecidedBy, &w.DecidedAt, &w.RejectReason, &w.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *WithdrawalRepo) CreateTx(ctx context.Context, tx pgx.Tx, w *models.Withdrawal) error {
	return tx.QueryRow(ctx, `
		INSERT INTO withdrawals (id, worker_id, coin_amount, cash_cents, payment_system, account_number, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, w.ID, w.WorkerID, w.CoinAmount, w.CashCents, w.PaymentSystem, w.AccountNumber, w.Status).Scan(&w.CreatedAt)
}

// GetByIDForUpdate locks the withdrawal row. Call within a transaction.
func (r *WithdrawalRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Withdrawal, error) {
	return scanWithdrawal(tx.QueryRow(ctx, `SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1 FOR UPDATE`, id))
}

// Decide records the admin decision on w. w carries the new status and payment or rejection details.
func (r *WithdrawalRepo) Decide(ctx context.Context, tx pgx.Tx, w *models.Withdrawal) error {
	return tx.QueryRow(ctx, `
		UPDATE withdrawals
		SET status = $2, transaction_id = $3, payment_method = $4, decided_by = $5, reject_reason = $6, decided_at = now()
		WHERE id = $1
		RETURNING decided_at
	`, w.ID, w.Status, w.TransactionID, w.PaymentMethod, w.DecidedBy, w.RejectReason).Scan(&w.DecidedAt)
}

func (r *WithdrawalRepo) ListByWorkerID(ctx context.Context, workerID uuid.UUID) ([]*models.Withdrawal, error) {
	return r.list(ctx, `SELECT `+withdrawalColumns+` FROM withdrawals WHERE worker_id = $1 ORDER BY created_at DESC`, workerID)
}

// ListByStatus returns withdrawals oldest first; an empty status returns all.
func (r *WithdrawalRepo) ListByStatus(ctx context.Context, status string) ([]*models.Withdrawal, error) {
	if status == "" {
		return r.list(ctx, `SELECT `+withdrawalColumns+` FROM withdrawals ORDER BY created_at ASC`)
	}
	return r.list(ctx, `SELECT `+withdrawalColumns+` FROM withdrawals WHERE status = $1 ORDER BY created_at ASC`, status)
}

func (r *WithdrawalRepo) list(ctx context.Context, sql string, args ...any) ([]*models.Withdrawal, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []*models.Withdrawal{}
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, w)
	}
	return list, rows.Err()
}

// TotalPaidOutCents sums approved withdrawals.
func (r *WithdrawalRepo) TotalPaidOutCents(ctx context.Context) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(cash_cents), 0) FROM withdrawals WHERE status = 'approved'
	`).Scan(&total)
	return total, err
}
