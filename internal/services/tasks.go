package services

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/coinwork/backend/internal/db"
	"github.com/coinwork/backend/internal/ledger"
	"github.com/coinwork/backend/internal/models"
)

// TaskStore is the task repository surface used by TaskService.
type TaskStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, t *models.Task) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Task, error)
	UpdateDetails(ctx context.Context, tx pgx.Tx, t *models.Task) error
	DeleteTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
	List(ctx context.Context) ([]*models.Task, error)
	ListByBuyerID(ctx context.Context, buyerID uuid.UUID) ([]*models.Task, error)
	OpenTasks(ctx context.Context) iter.Seq2[*models.Task, error]
}

// PendingRejecter closes out the pending submissions of a task being removed.
type PendingRejecter interface {
	RejectPendingForTask(ctx context.Context, tx pgx.Tx, taskID uuid.UUID) (int64, error)
}

type CreateTaskInput struct {
	Title           string    `json:"title" validate:"required,max=200"`
	Detail          string    `json:"detail" validate:"max=5000"`
	RequiredWorkers int       `json:"required_workers" validate:"min=1,max=100000"`
	PayableAmount   int       `json:"payable_amount" validate:"min=1,max=100000"`
	CompletionDate  time.Time `json:"completion_date" validate:"required"`
	SubmissionInfo  string    `json:"submission_info" validate:"max=2000"`
	ImageURL        string    `json:"image_url" validate:"omitempty,url"`
}

func (in *CreateTaskInput) Validate() error {
	in.Title = strings.TrimSpace(in.Title)
	return validateInput(in)
}

// UpdateTaskInput carries the editable task fields. Nil fields keep their
// current value.
type UpdateTaskInput struct {
	Title          *string `json:"title" validate:"omitnil,min=1,max=200"`
	Detail         *string `json:"detail" validate:"omitnil,max=5000"`
	SubmissionInfo *string `json:"submission_info" validate:"omitnil,max=2000"`
}

func (in *UpdateTaskInput) Validate() error {
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		in.Title = &title
	}
	return validateInput(in)
}

// TaskService creates and removes tasks, moving the buyer's coins in the same transaction.
type TaskService struct {
	Pool        db.TxBeginner
	Tasks       TaskStore
	Submissions PendingRejecter
	Ledger      CoinLedger
	Logger      *slog.Logger
}

func NewTaskService(pool db.TxBeginner, tasks TaskStore, submissions PendingRejecter, l CoinLedger, logger *slog.Logger) *TaskService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskService{Pool: pool, Tasks: tasks, Submissions: submissions, Ledger: l, Logger: logger}
}

// CreateTask debits requiredWorkers * payableAmount from the buyer and stores the task.
// Nothing is written when the buyer cannot cover the cost.
func (s *TaskService) CreateTask(ctx context.Context, buyerID uuid.UUID, in CreateTaskInput) (*models.Task, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	task := &models.Task{
		ID:              uuid.New(),
		BuyerID:         buyerID,
		Title:           in.Title,
		Detail:          in.Detail,
		RequiredWorkers: in.RequiredWorkers,
		PayableAmount:   in.PayableAmount,
		CompletionDate:  in.CompletionDate.UTC(),
		SubmissionInfo:  in.SubmissionInfo,
		ImageURL:        in.ImageURL,
	}

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := s.Ledger.Debit(ctx, tx, buyerID, task.RemainingCost(), ledger.Ref{EntryType: models.LedgerTaskFunding, RefID: task.ID}); err != nil {
		return nil, err
	}
	if err := s.Tasks.CreateTx(ctx, tx, task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	s.Logger.Info("task created", "task_id", task.ID, "buyer_id", buyerID, "cost", task.RemainingCost())
	return task, nil
}

// UpdateTask edits the descriptive fields of the buyer's own task. Slots,
// pay and coins are left as they are.
func (s *TaskService) UpdateTask(ctx context.Context, taskID, requesterID uuid.UUID, in UpdateTaskInput) (*models.Task, error) {
	if err := in.Validate(); err != nil {
		return nil, err
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
	if task.BuyerID != requesterID {
		return nil, models.ErrNotOwner
	}
	if in.Title != nil {
		task.Title = *in.Title
	}
	if in.Detail != nil {
		task.Detail = *in.Detail
	}
	if in.SubmissionInfo != nil {
		task.SubmissionInfo = *in.SubmissionInfo
	}
	if err := s.Tasks.UpdateDetails(ctx, tx, task); err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	s.Logger.Info("task updated", "task_id", task.ID, "buyer_id", requesterID)
	return task, nil
}

// DeleteTask removes a buyer's own task and refunds the unfilled slots.
func (s *TaskService) DeleteTask(ctx context.Context, taskID, requesterID uuid.UUID) (int, error) {
	return s.remove(ctx, taskID, &requesterID)
}

// RemoveTask is the admin variant of DeleteTask: no ownership check, same refund.
func (s *TaskService) RemoveTask(ctx context.Context, taskID uuid.UUID) (int, error) {
	return s.remove(ctx, taskID, nil)
}

func (s *TaskService) remove(ctx context.Context, taskID uuid.UUID, requesterID *uuid.UUID) (int, error) {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	task, err := s.Tasks.GetByIDForUpdate(ctx, tx, taskID)
	if err != nil {
		return 0, notFound(err, models.ErrTaskNotFound, "lock task")
	}
	if requesterID != nil && *requesterID != task.BuyerID {
		return 0, models.ErrNotOwner
	}

	refund := task.RemainingCost()
	if refund > 0 {
		if _, err := s.Ledger.Credit(ctx, tx, task.BuyerID, refund, ledger.Ref{EntryType: models.LedgerTaskRefund, RefID: task.ID}); err != nil {
			return 0, err
		}
	}
	rejected, err := s.Submissions.RejectPendingForTask(ctx, tx, task.ID)
	if err != nil {
		return 0, fmt.Errorf("reject pending submissions: %w", err)
	}
	if err := s.Tasks.DeleteTx(ctx, tx, task.ID); err != nil {
		return 0, fmt.Errorf("delete task: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	s.Logger.Info("task removed", "task_id", task.ID, "buyer_id", task.BuyerID, "refund", refund, "rejected_submissions", rejected)
	return refund, nil
}

// ListOpenTasks yields tasks that still have slots, latest completion date first.
// Every range over the returned sequence queries the store again.
func (s *TaskService) ListOpenTasks(ctx context.Context) iter.Seq2[*models.Task, error] {
	return s.Tasks.OpenTasks(ctx)
}

func (s *TaskService) GetTask(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	t, err := s.Tasks.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, models.ErrTaskNotFound, "get task")
	}
	return t, nil
}

func (s *TaskService) ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]*models.Task, error) {
	tasks, err := s.Tasks.ListByBuyerID(ctx, buyerID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

func (s *TaskService) ListAll(ctx context.Context) ([]*models.Task, error) {
	tasks, err := s.Tasks.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}
