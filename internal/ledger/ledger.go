// Package ledger owns every mutation of a user's coin balance. Each debit or
// credit runs inside the caller's transaction so the balance change commits
// or rolls back together with the domain change that caused it.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/coinwork/backend/internal/models"
)

// AccountRepo is the minimal user repository interface for the ledger.
type AccountRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.User, error)
	DeductCoins(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int) (newBalance int, err error)
	AddCoins(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int) (newBalance int, err error)
}

// EntryRepo records ledger entries.
type EntryRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, e *models.CoinLedgerEntry) error
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.CoinLedgerEntry, error)
}

// Ref tags a ledger entry with its cause.
type Ref struct {
	EntryType string
	RefID     uuid.UUID
}

type Ledger struct {
	Accounts AccountRepo
	Entries  EntryRepo
}

func New(accounts AccountRepo, entries EntryRepo) *Ledger {
	return &Ledger{Accounts: accounts, Entries: entries}
}

// Debit locks the user row, checks the balance, deducts amount and records a
// negative entry. Returns the new balance.
func (l *Ledger) Debit(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int, ref Ref) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: debit of %d", models.ErrInvalidAmount, amount)
	}
	acc, err := l.lock(ctx, tx, userID)
	if err != nil {
		return 0, err
	}
	if acc.CoinBalance < amount {
		return 0, models.ErrInsufficientFunds
	}
	newBalance, err := l.Accounts.DeductCoins(ctx, tx, userID, amount)
	if err != nil {
		// The conditional UPDATE matched no row: a concurrent debit won.
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, models.ErrInsufficientFunds
		}
		return 0, fmt.Errorf("deduct coins: %w", err)
	}
	if err := l.record(ctx, tx, userID, -amount, newBalance, ref); err != nil {
		return 0, err
	}
	return newBalance, nil
}

// Credit locks the user row, adds amount and records a positive entry.
// Returns the new balance.
func (l *Ledger) Credit(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int, ref Ref) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: credit of %d", models.ErrInvalidAmount, amount)
	}
	if _, err := l.lock(ctx, tx, userID); err != nil {
		return 0, err
	}
	newBalance, err := l.Accounts.AddCoins(ctx, tx, userID, amount)
	if err != nil {
		return 0, fmt.Errorf("add coins: %w", err)
	}
	if err := l.record(ctx, tx, userID, amount, newBalance, ref); err != nil {
		return 0, err
	}
	return newBalance, nil
}

// Balance reads the current balance outside any transaction.
func (l *Ledger) Balance(ctx context.Context, userID uuid.UUID) (int, error) {
	u, err := l.Accounts.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, models.ErrUserNotFound
		}
		return 0, fmt.Errorf("get user: %w", err)
	}
	return u.CoinBalance, nil
}

// History returns the user's ledger entries, newest first.
func (l *Ledger) History(ctx context.Context, userID uuid.UUID) ([]*models.CoinLedgerEntry, error) {
	entries, err := l.Entries.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list ledger: %w", err)
	}
	return entries, nil
}

func (l *Ledger) lock(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*models.User, error) {
	acc, err := l.Accounts.GetByIDForUpdate(ctx, tx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrUserNotFound
		}
		return nil, fmt.Errorf("lock user: %w", err)
	}
	return acc, nil
}

func (l *Ledger) record(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount, balanceAfter int, ref Ref) error {
	entry := &models.CoinLedgerEntry{
		ID:           uuid.New(),
		UserID:       userID,
		EntryType:    ref.EntryType,
		Amount:       amount,
		BalanceAfter: balanceAfter,
	}
	if ref.RefID != uuid.Nil {
		id := ref.RefID
		entry.RefID = &id
	}
	if err := l.Entries.CreateTx(ctx, tx, entry); err != nil {
		return fmt.Errorf("record ledger entry: %w", err)
	}
	return nil
}
