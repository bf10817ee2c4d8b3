package models

import (
	"time"

	"github.com/google/uuid"
)

// Coin ledger entry_type enums.
const (
	LedgerTaskFunding       = "task_funding"
	LedgerTaskRefund        = "task_refund"
	LedgerTaskEarning       = "task_earning"
	LedgerWithdrawalHold    = "withdrawal_hold"
	LedgerWithdrawalRelease = "withdrawal_release"
	LedgerCoinPurchase      = "coin_purchase"
)

// CoinLedgerEntry is one append-only balance mutation. Amount is signed:
// debits are negative.
type CoinLedgerEntry struct {
	ID           uuid.UUID  `json:"id"`
	UserID       uuid.UUID  `json:"user_id"`
	EntryType    string     `json:"entry_type"`
	Amount       int        `json:"amount"`
	BalanceAfter int        `json:"balance_after"`
	RefID        *uuid.UUID `json:"ref_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}
