package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
)

// Events emitted when a workflow decision affects another user.
const (
	EventSubmissionApproved = "submission.approved"
	EventSubmissionRejected = "submission.rejected"
	EventWithdrawalApproved = "withdrawal.approved"
	EventWithdrawalRejected = "withdrawal.rejected"
)

type EventArgs struct {
	Event   string          `json:"event"`
	UserID  uuid.UUID       `json:"user_id"`
	RefID   uuid.UUID       `json:"ref_id"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (EventArgs) Kind() string { return "marketplace_event" }

// InsertTxFunc enqueues an event within the given transaction. Provided by main using river.Client.InsertTx.
type InsertTxFunc func(ctx context.Context, tx pgx.Tx, args EventArgs) error

// NewEvent builds EventArgs, marshalling payload when non-nil.
func NewEvent(event string, userID, refID uuid.UUID, payload any) (EventArgs, error) {
	args := EventArgs{Event: event, UserID: userID, RefID: refID}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return EventArgs{}, fmt.Errorf("marshal %s payload: %w", event, err)
		}
		args.Payload = b
	}
	return args, nil
}

// EventWorker delivers events to a webhook. Without a webhook URL events are only logged.
type EventWorker struct {
	river.WorkerDefaults[EventArgs]
	webhookURL string
	httpClient *http.Client
	log        *slog.Logger
}

func NewEventWorker(webhookURL string, log *slog.Logger) *EventWorker {
	if log == nil {
		log = slog.Default()
	}
	return &EventWorker{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        log,
	}
}

func (w *EventWorker) Work(ctx context.Context, job *river.Job[EventArgs]) error {
	args := job.Args
	if w.webhookURL == "" {
		w.log.Info("marketplace event", "event", args.Event, "user_id", args.UserID, "ref_id", args.RefID)
		return nil
	}

	body, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("network error calling event webhook: %w", err)
	}
	defer resp.Body.Close()

	// Non-2xx is returned as an error so River retries with backoff.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("event webhook returned status %d", resp.StatusCode)
	}
	return nil
}
