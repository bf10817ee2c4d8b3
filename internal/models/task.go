package models

import (
	"time"

	"github.com/google/uuid"
)

type Task struct {
	ID              uuid.UUID `json:"id"`
	Seq             int64     `json:"-"`
	BuyerID         uuid.UUID `json:"buyer_id"`
	Title           string    `json:"title"`
	Detail          string    `json:"detail"`
	RequiredWorkers int       `json:"required_workers"`
	PayableAmount   int       `json:"payable_amount"`
	CompletionDate  time.Time `json:"completion_date"`
	SubmissionInfo  string    `json:"submission_info"`
	ImageURL        string    `json:"image_url,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Open reports whether the task still has unfilled slots.
func (t *Task) Open() bool { return t.RequiredWorkers > 0 }

// RemainingCost is the value of the slots not yet consumed.
func (t *Task) RemainingCost() int { return t.RequiredWorkers * t.PayableAmount }
