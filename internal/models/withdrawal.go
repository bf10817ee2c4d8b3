package models

import (
	"time"

	"github.com/google/uuid"
)

// Withdrawal status enums.
const (
	WithdrawalPending  = "pending"
	WithdrawalApproved = "approved"
	WithdrawalRejected = "rejected"
)

// CoinsPerDollar is the fixed exchange rate; withdrawals move in whole dollars.
const CoinsPerDollar = 20

// CashCents converts a coin amount to cents at the fixed exchange rate.
func CashCents(coins int) int64 { return int64(coins) * 100 / CoinsPerDollar }

type Withdrawal struct {
	ID            uuid.UUID  `json:"id"`
	WorkerID      uuid.UUID  `json:"worker_id"`
	CoinAmount    int        `json:"coin_amount"`
	CashCents     int64      `json:"cash_cents"`
	PaymentSystem string     `json:"payment_system"`
	AccountNumber string     `json:"account_number"`
	Status        string     `json:"status"`
	TransactionID *string    `json:"transaction_id,omitempty"`
	PaymentMethod *string    `json:"payment_method,omitempty"`
	DecidedBy     *uuid.UUID `json:"decided_by,omitempty"`
	DecidedAt     *time.Time `json:"decided_at,omitempty"`
	RejectReason  *string    `json:"reject_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
