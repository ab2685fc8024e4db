package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// TransferRequest is the payload of a transfer submission. RequestID doubles
// as the id of the resulting Transaction.
type TransferRequest struct {
	RequestID       string          `json:"request_id" validate:"required,max=128"`
	SourceAccountID string          `json:"source_account_id" validate:"required,max=64"`
	TargetAccountID string          `json:"target_account_id" validate:"required,max=64"`
	Amount          decimal.Decimal `json:"amount" swaggertype:"string" example:"30.00"`
	Mode            FetchMode       `json:"mode,omitempty" validate:"omitempty,oneof=OPTIMISTIC PESSIMISTIC SERIALIZABLE"`
}

// Fingerprint returns the idempotency key of the request payload.
func (r TransferRequest) Fingerprint() string {
	return Fingerprint(r.SourceAccountID, r.TargetAccountID, r.Amount)
}

// Fingerprint hashes the normalized transfer payload. decimal's String drops
// trailing zeros, so 30, 30.0 and 30.00 produce the same key.
func Fingerprint(sourceID, targetID string, amount decimal.Decimal) string {
	payload := fmt.Sprintf("%s|%s|%s",
		strings.TrimSpace(sourceID),
		strings.TrimSpace(targetID),
		amount.String(),
	)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// AmountScale is the number of decimal places money columns store.
const AmountScale = 4

// HasValidScale reports whether amount fits in AmountScale decimal places
// without rounding.
func HasValidScale(amount decimal.Decimal) bool {
	return amount.Equal(amount.Truncate(AmountScale))
}

// CreateAccountRequest defines the payload for opening an account.
type CreateAccountRequest struct {
	Currency       string          `json:"currency" validate:"required,len=3,alpha"`
	InitialBalance decimal.Decimal `json:"initial_balance" swaggertype:"string" example:"100.00"`
}

// DepositRequest defines the payload for crediting an account from outside the system.
type DepositRequest struct {
	Amount decimal.Decimal `json:"amount" swaggertype:"string" example:"50.00"`
}
