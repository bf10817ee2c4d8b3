package models

import (
	"time"

	"github.com/google/uuid"
)

// CoinPlan is a purchasable coin bundle.
type CoinPlan struct {
	ID         string `json:"plan_id"`
	Coins      int    `json:"coins"`
	PriceCents int64  `json:"price_cents"`
}

// CoinPlans are the bundles offered to buyers.
var CoinPlans = []CoinPlan{
	{ID: "plan_10coins", Coins: 10, PriceCents: 100},
	{ID: "plan_150coins", Coins: 150, PriceCents: 1000},
	{ID: "plan_500coins", Coins: 500, PriceCents: 2000},
	{ID: "plan_1000coins", Coins: 1000, PriceCents: 3500},
}

// FindPlan returns the plan with the given id.
func FindPlan(id string) (CoinPlan, bool) {
	for _, p := range CoinPlans {
		if p.ID == id {
			return p, true
		}
	}
	return CoinPlan{}, false
}

type Payment struct {
	ID            uuid.UUID `json:"id"`
	UserID        uuid.UUID `json:"user_id"`
	PlanID        string    `json:"plan_id"`
	Coins         int       `json:"coins"`
	PriceCents    int64     `json:"price_cents"`
	TransactionID string    `json:"transaction_id"`
	CreatedAt     time.Time `json:"created_at"`
}
