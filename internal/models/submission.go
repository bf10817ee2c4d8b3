package models

import (
	"time"

	"github.com/google/uuid"
)

// Submission status enums.
const (
	SubmissionPending  = "pending"
	SubmissionApproved = "approved"
	SubmissionRejected = "rejected"
)

type Submission struct {
	ID            uuid.UUID  `json:"id"`
	TaskID        uuid.UUID  `json:"task_id"`
	TaskTitle     string     `json:"task_title"`
	WorkerID      uuid.UUID  `json:"worker_id"`
	BuyerID       uuid.UUID  `json:"buyer_id"`
	Content       string     `json:"content"`
	Status        string     `json:"status"`
	PayableAmount int        `json:"payable_amount"`
	CreatedAt     time.Time  `json:"created_at"`
	DecidedAt     *time.Time `json:"decided_at,omitempty"`
}
