package service

import (
	"go-bank-transfers/common"
	"go-bank-transfers/model"

	"github.com/shopspring/decimal"
)

// ValidateTransfer checks the business preconditions of moving amount from
// source to target. The first failing rule wins.
func ValidateTransfer(source, target *model.Account, amount decimal.Decimal) error {
	if source.ID == target.ID {
		return common.ErrSameAccount
	}
	if source.Balance.LessThan(amount) {
		return common.ErrInsufficientBalance
	}
	return nil
}
