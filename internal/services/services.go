package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/coinwork/backend/internal/ledger"
	"github.com/coinwork/backend/internal/models"
	"github.com/coinwork/backend/internal/notify"
)

var validate = models.NewValidate()

// validateInput runs struct validation and folds failures into ErrInvalidInput.
func validateInput(v any) error {
	if err := validate.Struct(v); err != nil {
		return models.InvalidInput(err)
	}
	return nil
}

// CoinLedger is the subset of the ledger used by the workflows.
type CoinLedger interface {
	Debit(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int, ref ledger.Ref) (int, error)
	Credit(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int, ref ledger.Ref) (int, error)
}

var _ CoinLedger = (*ledger.Ledger)(nil)

// notFound maps pgx.ErrNoRows to the given domain error and wraps everything else.
func notFound(err error, domainErr error, op string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domainErr
	}
	return fmt.Errorf("%s: %w", op, err)
}

// enqueue inserts an event job when a notifier is configured.
func enqueue(ctx context.Context, tx pgx.Tx, insert notify.InsertTxFunc, event string, userID, refID uuid.UUID, payload any) error {
	if insert == nil {
		return nil
	}
	args, err := notify.NewEvent(event, userID, refID, payload)
	if err != nil {
		return err
	}
	if err := insert(ctx, tx, args); err != nil {
		return fmt.Errorf("enqueue %s: %w", event, err)
	}
	return nil
}
