package wallet

import (
	"errors"
	"fmt"
)

var ErrWalletNotFound = errors.New("wallet not found")

// InsufficientBalanceError is returned by the guarded debit when the wallet
// cannot cover the requested amount. No state is mutated in that case.
type InsufficientBalanceError struct {
	RequiredCents  int64
	AvailableCents int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: required %d, available %d", e.RequiredCents, e.AvailableCents)
}

func IsInsufficientBalance(err error) bool {
	var ibe *InsufficientBalanceError
	return errors.As(err, &ibe)
}
