package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coinwork/backend/internal/models"
)

type LedgerRepo struct {
	pool *pgxpool.Pool
}

func NewLedgerRepo(pool *pgxpool.Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

// CreateTx inserts a ledger entry inside the given transaction.
func (r *LedgerRepo) CreateTx(ctx context.Context, tx pgx.Tx, e *models.CoinLedgerEntry) error {
	return tx.QueryRow(ctx, `
		INSERT INTO coin_ledger (id, user_id, entry_type, amount, balance_after, ref_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, e.ID, e.UserID, e.EntryType, e.Amount, e.BalanceAfter, e.RefID).Scan(&e.CreatedAt)
}

func (r *LedgerRepo) ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.CoinLedgerEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, entry_type, amount, balance_after, ref_id, created_at
		FROM coin_ledger WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []*models.CoinLedgerEntry{}
	for rows.Next() {
		var e models.CoinLedgerEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.EntryType, &e.Amount, &e.BalanceAfter, &e.RefID, &e.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &e)
	}
	return list, rows.Err()
}
