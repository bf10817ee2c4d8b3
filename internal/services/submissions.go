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

// SubmissionTaskStore is the task surface the submission workflow needs.
type SubmissionTaskStore interface {
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Task, error)
	DecrementRequiredWorkers(ctx context.Context, tx pgx.Tx, id uuid.UUID) (remaining int, err error)
}

type SubmissionStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, s *models.Submission) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Submission, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Submission, error)
	SetStatus(ctx context.Context, tx pgx.Tx, s *models.Submission, status string) error
	ListByWorkerID(ctx context.Context, workerID uuid.UUID) ([]*models.Submission, error)
	ListByBuyerID(ctx context.Context, buyerID uuid.UUID, status string) ([]*models.Submission, error)
}

// SubmissionService moves submissions from pending to a final state and pays workers on approval.
type SubmissionService struct {
	Pool        db.TxBeginner
	Tasks       SubmissionTaskStore
	Submissions SubmissionStore
	Ledger      CoinLedger
	InsertTx    notify.InsertTxFunc
	Logger      *slog.Logger
}

func NewSubmissionService(pool db.TxBeginner, tasks SubmissionTaskStore, submissions SubmissionStore, l CoinLedger, insertTx notify.InsertTxFunc, logger *slog.Logger) *SubmissionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubmissionService{Pool: pool, Tasks: tasks, Submissions: submissions, Ledger: l, InsertTx: insertTx, Logger: logger}
}

// Submit records a pending submission for an open task. No coins or slots move.
func (s *SubmissionService) Submit(ctx context.Context, taskID, workerID uuid.UUID, content string) (*models.Submission, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: empty submission", models.ErrInvalidInput)
	}

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	task, err := s.Tasks.GetByIDForUpdate(ctx, tx, taskID)
	if err != nil {
		return nil, notFound(err, models.ErrTaskNotFound, "lock task")
	}
	if !task.Open() {
		return nil, models.ErrNoSlotsAvailable
	}
	sub := &models.Submission{
		ID:            uuid.New(),
		TaskID:        task.ID,
		TaskTitle:     task.Title,
		WorkerID:      workerID,
		BuyerID:       task.BuyerID,
		Content:       content,
		Status:        models.SubmissionPending,
		PayableAmount: task.PayableAmount,
	}
	if err := s.Submissions.CreateTx(ctx, tx, sub); err != nil {
		return nil, fmt.Errorf("create submission: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	s.Logger.Info("submission created", "submission_id", sub.ID, "task_id", task.ID, "worker_id", workerID)
	return sub, nil
}

// Approve marks the submission approved, pays the worker and consumes one slot.
func (s *SubmissionService) Approve(ctx context.Context, submissionID, buyerID uuid.UUID) (*models.Submission, error) {
	return s.decide(ctx, submissionID, buyerID, models.SubmissionApproved)
}

// Reject marks the submission rejected. The slot stays available and no coins move.
func (s *SubmissionService) Reject(ctx context.Context, submissionID, buyerID uuid.UUID) (*models.Submission, error) {
	return s.decide(ctx, submissionID, buyerID, models.SubmissionRejected)
}

func (s *SubmissionService) decide(ctx context.Context, submissionID, buyerID uuid.UUID, status string) (*models.Submission, error) {
	// Unlocked read for the task id; the row is re-read under lock below.
	peek, err := s.Submissions.GetByID(ctx, submissionID)
	if err != nil {
		return nil, notFound(err, models.ErrSubmissionNotFound, "get submission")
	}
	if peek.BuyerID != buyerID {
		return nil, models.ErrNotOwner
	}

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock order task -> submission -> user matches task removal.
	var task *models.Task
	if status == models.SubmissionApproved {
		task, err = s.Tasks.GetByIDForUpdate(ctx, tx, peek.TaskID)
		if err != nil {
			return nil, notFound(err, models.ErrTaskNotFound, "lock task")
		}
	}
	sub, err := s.Submissions.GetByIDForUpdate(ctx, tx, submissionID)
	if err != nil {
		return nil, notFound(err, models.ErrSubmissionNotFound, "lock submission")
	}
	if sub.Status != models.SubmissionPending {
		return nil, models.ErrAlreadyFinalized
	}

	event := notify.EventSubmissionRejected
	if status == models.SubmissionApproved {
		if !task.Open() {
			return nil, models.ErrNoSlotsAvailable
		}
		if _, err := s.Ledger.Credit(ctx, tx, sub.WorkerID, sub.PayableAmount, ledger.Ref{EntryType: models.LedgerTaskEarning, RefID: sub.ID}); err != nil {
			return nil, err
		}
		if _, err := s.Tasks.DecrementRequiredWorkers(ctx, tx, task.ID); err != nil {
			return nil, fmt.Errorf("decrement slots: %w", err)
		}
		event = notify.EventSubmissionApproved
	}
	if err := s.Submissions.SetStatus(ctx, tx, sub, status); err != nil {
		return nil, fmt.Errorf("set submission status: %w", err)
	}
	payload := map[string]any{"task_id": sub.TaskID, "task_title": sub.TaskTitle, "payable_amount": sub.PayableAmount}
	if err := enqueue(ctx, tx, s.InsertTx, event, sub.WorkerID, sub.ID, payload); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	s.Logger.Info("submission decided", "submission_id", sub.ID, "status", status, "worker_id", sub.WorkerID)
	return sub, nil
}

func (s *SubmissionService) ListForWorker(ctx context.Context, workerID uuid.UUID) ([]*models.Submission, error) {
	subs, err := s.Submissions.ListByWorkerID(ctx, workerID)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return subs, nil
}

// ListPendingForBuyer returns the submissions awaiting the buyer's review.
func (s *SubmissionService) ListPendingForBuyer(ctx context.Context, buyerID uuid.UUID) ([]*models.Submission, error) {
	subs, err := s.Submissions.ListByBuyerID(ctx, buyerID, models.SubmissionPending)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return subs, nil
}
