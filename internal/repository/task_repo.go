package repository

import (
	"context"
	"iter"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coinwork/backend/internal/models"
)

type TaskRepo struct {
	pool *pgxpool.Pool
}

func NewTaskRepo(pool *pgxpool.Pool) *TaskRepo {
	return &TaskRepo{pool: pool}
}

const taskColumns = `id, seq, buyer_id, title, detail, required_workers, payable_amount, completion_date, submission_info, image_url, created_at, updated_at`

func scanTask(row pgx.Row) (*models.Task, error) {
	var t models.Task
	err := row.Scan(&t.ID, &t.Seq, &t.BuyerID, &t.Title, &t.Detail, &t.RequiredWorkers, &t.PayableAmount,
		&t.CompletionDate, &t.SubmissionInfo, &t.ImageURL, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTx inserts the task inside the given transaction.
func (r *TaskRepo) CreateTx(ctx context.Context, tx pgx.Tx, t *models.Task) error {
	return tx.QueryRow(ctx, `
		INSERT INTO tasks (id, buyer_id, title, detail, required_workers, payable_amount, completion_date, submission_info, image_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING seq, created_at, updated_at
	`, t.ID, t.BuyerID, t.Title, t.Detail, t.RequiredWorkers, t.PayableAmount, t.CompletionDate, t.SubmissionInfo, t.ImageURL).
		Scan(&t.Seq, &t.CreatedAt, &t.UpdatedAt)
}

func (r *TaskRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	return scanTask(r.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
}

// GetByIDForUpdate locks the task row. Call within a transaction.
func (r *TaskRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Task, error) {
	return scanTask(tx.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1 FOR UPDATE`, id))
}

// DecrementRequiredWorkers consumes one slot (floor 0) and returns the remaining count.
func (r *TaskRepo) DecrementRequiredWorkers(ctx context.Context, tx pgx.Tx, id uuid.UUID) (remaining int, err error) {
	err = tx.QueryRow(ctx, `
		UPDATE tasks SET required_workers = GREATEST(required_workers - 1, 0), updated_at = now()
		WHERE id = $1
		RETURNING required_workers
	`, id).Scan(&remaining)
	return remaining, err
}

// UpdateDetails rewrites the descriptive fields only; slots and pay are never touched.
func (r *TaskRepo) UpdateDetails(ctx context.Context, tx pgx.Tx, t *models.Task) error {
	return tx.QueryRow(ctx, `
		UPDATE tasks SET title = $2, detail = $3, submission_info = $4, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, t.ID, t.Title, t.Detail, t.SubmissionInfo).Scan(&t.UpdatedAt)
}

func (r *TaskRepo) DeleteTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	_, err := tx.Exec(ctx, "DELETE FROM tasks WHERE id = $1", id)
	return err
}

func (r *TaskRepo) List(ctx context.Context) ([]*models.Task, error) {
	return r.list(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY created_at DESC`)
}

func (r *TaskRepo) ListByBuyerID(ctx context.Context, buyerID uuid.UUID) ([]*models.Task, error) {
	return r.list(ctx, `SELECT `+taskColumns+` FROM tasks WHERE buyer_id = $1 ORDER BY completion_date DESC, seq ASC`, buyerID)
}

func (r *TaskRepo) list(ctx context.Context, sql string, args ...any) ([]*models.Task, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []*models.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

// OpenTasks streams tasks with free slots, most recently due first and in
// insertion order on ties. Rows are read as the caller ranges; every range
// runs a fresh query.
func (r *TaskRepo) OpenTasks(ctx context.Context) iter.Seq2[*models.Task, error] {
	return func(yield func(*models.Task, error) bool) {
		rows, err := r.pool.Query(ctx, `
			SELECT `+taskColumns+` FROM tasks
			WHERE required_workers > 0
			ORDER BY completion_date DESC, seq ASC
		`)
		if err != nil {
			yield(nil, err)
			return
		}
		defer rows.Close()
		for rows.Next() {
			t, err := scanTask(rows)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(t, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, err)
		}
	}
}

// BuyerTaskStats summarises a buyer's tasks.
type BuyerTaskStats struct {
	TaskCount    int `json:"task_count"`
	PendingSlots int `json:"pending_slots"`
}

func (r *TaskRepo) BuyerStats(ctx context.Context, buyerID uuid.UUID) (BuyerTaskStats, error) {
	var s BuyerTaskStats
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(required_workers), 0) FROM tasks WHERE buyer_id = $1
	`, buyerID).Scan(&s.TaskCount, &s.PendingSlots)
	return s, err
}
