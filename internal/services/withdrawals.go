package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/coinwork/backend/internal/db"
	"github.com/coinwork/backend/internal/ledger"
	"github.com/coinwork/backend/internal/models"
	"github.com/coinwork/backend/internal/notify"
)

type WithdrawalStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, w *models.Withdrawal) error
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Withdrawal, error)
	Decide(ctx context.Context, tx pgx.Tx, w *models.Withdrawal) error
	ListByWorkerID(ctx context.Context, workerID uuid.UUID) ([]*models.Withdrawal, error)
	ListByStatus(ctx context.Context, status string) ([]*models.Withdrawal, error)
}

type WithdrawalInput struct {
	CoinAmount    int    `json:"coin_amount"`
	PaymentSystem string `json:"payment_system" validate:"required,max=50"`
	AccountNumber string `json:"account_number" validate:"required,max=64"`
}

// Validate checks the amount first so a bad amount reports ErrInvalidAmount
// even when the payout details are also missing.
func (in *WithdrawalInput) Validate() error {
	if in.CoinAmount <= 0 || in.CoinAmount%models.CoinsPerDollar != 0 {
		return fmt.Errorf("%w: withdrawals are whole multiples of %d coins", models.ErrInvalidAmount, models.CoinsPerDollar)
	}
	in.PaymentSystem = strings.TrimSpace(in.PaymentSystem)
	in.AccountNumber = strings.TrimSpace(in.AccountNumber)
	return validateInput(in)
}

// PaymentInfo is the payout metadata an admin records on approval.
type PaymentInfo struct {
	TransactionID string `json:"transaction_id" validate:"max=128"`
	Method        string `json:"payment_method" validate:"max=50"`
}

// WithdrawalService holds coins when a worker asks for a payout and settles the request on admin decision.
type WithdrawalService struct {
	Pool        db.TxBeginner
	Withdrawals WithdrawalStore
	Ledger      CoinLedger
	InsertTx    notify.InsertTxFunc
	Logger      *slog.Logger
}

func NewWithdrawalService(pool db.TxBeginner, withdrawals WithdrawalStore, l CoinLedger, insertTx notify.InsertTxFunc, logger *slog.Logger) *WithdrawalService {
	if logger == nil {
		logger = slog.Default()
	}
	return &WithdrawalService{Pool: pool, Withdrawals: withdrawals, Ledger: l, InsertTx: insertTx, Logger: logger}
}

// RequestWithdrawal debits the worker immediately and stores a pending request.
func (s *WithdrawalService) RequestWithdrawal(ctx context.Context, workerID uuid.UUID, in WithdrawalInput) (*models.Withdrawal, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	w := &models.Withdrawal{
		ID:            uuid.New(),
		WorkerID:      workerID,
		CoinAmount:    in.CoinAmount,
		CashCents:     models.CashCents(in.CoinAmount),
		PaymentSystem: in.PaymentSystem,
		AccountNumber: in.AccountNumber,
		Status:        models.WithdrawalPending,
	}

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := s.Ledger.Debit(ctx, tx, workerID, w.CoinAmount, ledger.Ref{EntryType: models.LedgerWithdrawalHold, RefID: w.ID}); err != nil {
		return nil, err
	}
	if err := s.Withdrawals.CreateTx(ctx, tx, w); err != nil {
		return nil, fmt.Errorf("create withdrawal: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	s.Logger.Info("withdrawal requested", "withdrawal_id", w.ID, "worker_id", workerID, "coins", w.CoinAmount)
	return w, nil
}

// ApproveWithdrawal records that the payout was made. The coins already left
// the worker's balance at request time.
func (s *WithdrawalService) ApproveWithdrawal(ctx context.Context, requestID, adminID uuid.UUID, info PaymentInfo) (*models.Withdrawal, error) {
	if err := validateInput(&info); err != nil {
		return nil, err
	}
	return s.decide(ctx, requestID, adminID, models.WithdrawalApproved, func(tx pgx.Tx, w *models.Withdrawal) error {
		method := strings.TrimSpace(info.Method)
		if method == "" {
			method = w.PaymentSystem
		}
		w.PaymentMethod = &method
		if txID := strings.TrimSpace(info.TransactionID); txID != "" {
			w.TransactionID = &txID
		}
		return nil
	})
}

// RejectWithdrawal returns the held coins to the worker.
func (s *WithdrawalService) RejectWithdrawal(ctx context.Context, requestID, adminID uuid.UUID, reason string) (*models.Withdrawal, error) {
	return s.decide(ctx, requestID, adminID, models.WithdrawalRejected, func(tx pgx.Tx, w *models.Withdrawal) error {
		if reason = strings.TrimSpace(reason); reason != "" {
			w.RejectReason = &reason
		}
		_, err := s.Ledger.Credit(ctx, tx, w.WorkerID, w.CoinAmount, ledger.Ref{EntryType: models.LedgerWithdrawalRelease, RefID: w.ID})
		return err
	})
}

func (s *WithdrawalService) decide(ctx context.Context, requestID, adminID uuid.UUID, status string, apply func(tx pgx.Tx, w *models.Withdrawal) error) (*models.Withdrawal, error) {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	w, err := s.Withdrawals.GetByIDForUpdate(ctx, tx, requestID)
	if err != nil {
		return nil, notFound(err, models.ErrWithdrawalNotFound, "lock withdrawal")
	}
	switch w.Status {
	case models.WithdrawalApproved:
		return nil, models.ErrAlreadyApproved
	case models.WithdrawalRejected:
		return nil, models.ErrAlreadyFinalized
	}

	w.Status = status
	w.DecidedBy = &adminID
	if err := apply(tx, w); err != nil {
		return nil, err
	}
	if err := s.Withdrawals.Decide(ctx, tx, w); err != nil {
		return nil, fmt.Errorf("decide withdrawal: %w", err)
	}
	event := notify.EventWithdrawalApproved
	if status == models.WithdrawalRejected {
		event = notify.EventWithdrawalRejected
	}
	payload := map[string]any{"coin_amount": w.CoinAmount, "cash_cents": w.CashCents}
	if err := enqueue(ctx, tx, s.InsertTx, event, w.WorkerID, w.ID, payload); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	s.Logger.Info("withdrawal decided", "withdrawal_id", w.ID, "status", status, "admin_id", adminID)
	return w, nil
}

func (s *WithdrawalService) ListForWorker(ctx context.Context, workerID uuid.UUID) ([]*models.Withdrawal, error) {
	list, err := s.Withdrawals.ListByWorkerID(ctx, workerID)
	if err != nil {
		return nil, fmt.Errorf("list withdrawals: %w", err)
	}
	return list, nil
}

// ListByStatus lists requests oldest first; an empty status lists all of them.
func (s *WithdrawalService) ListByStatus(ctx context.Context, status string) ([]*models.Withdrawal, error) {
	switch status {
	case "", models.WithdrawalPending, models.WithdrawalApproved, models.WithdrawalRejected:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", models.ErrInvalidInput, status)
	}
	list, err := s.Withdrawals.ListByStatus(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("list withdrawals: %w", err)
	}
	return list, nil
}

func (s *WithdrawalService) ListPending(ctx context.Context) ([]*models.Withdrawal, error) {
	return s.ListByStatus(ctx, models.WithdrawalPending)
}
