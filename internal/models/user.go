package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role is the closed set of marketplace roles.
type Role string

const (
	RoleWorker Role = "worker"
	RoleBuyer  Role = "buyer"
	RoleAdmin  Role = "admin"
)

// Starting coin balances granted at registration.
const (
	BuyerStartingCoins  = 50
	WorkerStartingCoins = 10
)

// ParseRole normalizes a role string ("Buyer", " worker ") to a Role.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleWorker:
		return RoleWorker, nil
	case RoleBuyer:
		return RoleBuyer, nil
	case RoleAdmin:
		return RoleAdmin, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
}

// StartingBalance returns the coins credited when an account with this role is created.
func (r Role) StartingBalance() int {
	switch r {
	case RoleBuyer:
		return BuyerStartingCoins
	case RoleWorker:
		return WorkerStartingCoins
	default:
		return 0
	}
}

type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CoinBalance  int       `json:"coin_balance"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
