package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Charger takes money for a coin plan. Only success or failure matters to the caller.
type Charger interface {
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
}

type ChargeRequest struct {
	UserID         uuid.UUID `json:"user_id"`
	PlanID         string    `json:"plan_id"`
	AmountCents    int64     `json:"amount_cents"`
	IdempotencyKey string    `json:"-"`
}

type ChargeResult struct {
	TransactionID string `json:"transaction_id"`
}

// SandboxCharger approves every charge. Used when no gateway is configured.
type SandboxCharger struct{}

func (SandboxCharger) Charge(_ context.Context, _ ChargeRequest) (ChargeResult, error) {
	return ChargeResult{TransactionID: "sandbox_" + uuid.NewString()}, nil
}

// WebhookCharger posts charges to a payment gateway and treats any 2xx as success.
type WebhookCharger struct {
	URL        string
	HTTPClient *http.Client
}

func NewWebhookCharger(url string) *WebhookCharger {
	return &WebhookCharger{URL: url, HTTPClient: &http.Client{Timeout: 15 * time.Second}}
}

func (c *WebhookCharger) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return ChargeResult{}, fmt.Errorf("marshal charge: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return ChargeResult{}, fmt.Errorf("build charge request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return ChargeResult{}, fmt.Errorf("charge: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		return ChargeResult{}, fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	var res ChargeResult
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&res); err != nil && err != io.EOF {
		return ChargeResult{}, fmt.Errorf("decode charge response: %w", err)
	}
	if res.TransactionID == "" {
		res.TransactionID = "gw_" + uuid.NewString()
	}
	return res, nil
}
