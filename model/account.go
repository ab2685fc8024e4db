package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a balance holder. Version is bumped on every persisted mutation
// and is what the optimistic strategy compares against.
type Account struct {
	ID        string          `json:"id"`
	Balance   decimal.Decimal `json:"balance"`
	Currency  string          `json:"currency"`
	Version   int64           `json:"version"`
	CreatedAt time.Time       `json:"created_at"`
}

// Clone returns a copy that can be mutated without touching the original.
func (a *Account) Clone() *Account {
	c := *a
	return &c
}
