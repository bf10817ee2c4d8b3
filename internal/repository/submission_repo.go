package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coinwork/backend/internal/models"
)

type SubmissionRepo struct {
	pool *pgxpool.Pool
}

func NewSubmissionRepo(pool *pgxpool.Pool) *SubmissionRepo {
	return &SubmissionRepo{pool: pool}
}

const submissionColumns = `id, task_id, task_title, worker_id, buyer_id, content, status, payable_amount, created_at, decided_at`

func scanSubmission(row pgx.Row) (*models.Submission, error) {
	var s models.Submission
	err := row.Scan(&s.ID, &s.TaskID, &s.TaskTitle, &s.WorkerID, &s.BuyerID, &s.Content, &s.Status, &s.PayableAmount, &s.CreatedAt, &s.DecidedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SubmissionRepo) CreateTx(ctx context.Context, tx pgx.Tx, s *models.Submission) error {
	return tx.QueryRow(ctx, `
		INSERT INTO submissions (id, task_id, task_title, worker_id, buyer_id, content, status, payable_amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, s.ID, s.TaskID, s.TaskTitle, s.WorkerID, s.BuyerID, s.Content, s.Status, s.PayableAmount).Scan(&s.CreatedAt)
}

// GetByIDForUpdate locks the submission row. Call within a transaction.
func (r *SubmissionRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Submission, error) {
	return scanSubmission(tx.QueryRow(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id = $1 FOR UPDATE`, id))
}

// SetStatus moves the submission to a terminal status and stamps decided_at.
func (r *SubmissionRepo) SetStatus(ctx context.Context, tx pgx.Tx, s *models.Submission, status string) error {
	return tx.QueryRow(ctx, `
		UPDATE submissions SET status = $2, decided_at = now() WHERE id = $1
		RETURNING status, decided_at
	`, s.ID, status).Scan(&s.Status, &s.DecidedAt)
}

// RejectPendingForTask rejects every pending submission of the task.
func (r *SubmissionRepo) RejectPendingForTask(ctx context.Context, tx pgx.Tx, taskID uuid.UUID) (int64, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE submissions SET status = 'rejected', decided_at = now()
		WHERE task_id = $1 AND status = 'pending'
	`, taskID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *SubmissionRepo) ListByWorkerID(ctx context.Context, workerID uuid.UUID) ([]*models.Submission, error) {
	return r.list(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE worker_id = $1 ORDER BY created_at DESC`, workerID)
}

// ListByBuyerID returns submissions against the buyer's tasks; an empty status returns all.
func (r *SubmissionRepo) ListByBuyerID(ctx context.Context, buyerID uuid.UUID, status string) ([]*models.Submission, error) {
	if status == "" {
		return r.list(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE buyer_id = $1 ORDER BY created_at DESC`, buyerID)
	}
	return r.list(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE buyer_id = $1 AND status = $2 ORDER BY created_at DESC`, buyerID, status)
}

func (r *SubmissionRepo) list(ctx context.Context, sql string, args ...any) ([]*models.Submission, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []*models.Submission{}
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// WorkerSubmissionStats summarises a worker's submissions.
type WorkerSubmissionStats struct {
	SubmissionCount int `json:"submission_count"`
	PendingCount    int `json:"pending_count"`
	TotalEarnings   int `json:"total_earnings"`
}

func (r *SubmissionRepo) WorkerStats(ctx context.Context, workerID uuid.UUID) (WorkerSubmissionStats, error) {
	var s WorkerSubmissionStats
	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'pending'),
			COALESCE(SUM(payable_amount) FILTER (WHERE status = 'approved'), 0)
		FROM submissions WHERE worker_id = $1
	`, workerID).Scan(&s.SubmissionCount, &s.PendingCount, &s.TotalEarnings)
	return s, err
}

func (r *SubmissionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Submission, error) {
	return scanSubmission(r.pool.QueryRow(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id = $1`, id))
}
