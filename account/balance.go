package account

import (
	"errors"
	"fmt"

	"github.com/mzansipass/transit/types"
)

// MinTripBalance is the floor a passenger must hold to start a trip.
// It is an affordability gate, independent of the eventual fare.
var MinTripBalance = types.ZAR(500) // R5.00

// Sentinel errors for balance operations.
var (
	ErrInvalidAmount       = errors.New("account: amount must be positive")
	ErrInsufficientBalance = errors.New("account: insufficient balance")
)

// ValidateAmount rejects non-positive monetary amounts.
func ValidateAmount(amount types.Money) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	return nil
}

// Debit reduces the user's balance by amount. It fails without mutating
// anything if amount is not positive or the debit would drive the balance
// negative. Callers must hold the user inside an atomic unit so the check
// and the mutation see the same balance.
func (u *User) Debit(amount types.Money) error {
	if err := ValidateAmount(amount); err != nil {
		return err
	}
	if u.Balance.LessThan(amount) {
		return fmt.Errorf("%w: balance %s, debit %s", ErrInsufficientBalance, u.Balance, amount)
	}

	u.Balance = u.Balance.Subtract(amount)
	u.Touch()
	return nil
}

// Credit increases the user's balance by amount. Fails if amount is not
// positive.
func (u *User) Credit(amount types.Money) error {
	if err := ValidateAmount(amount); err != nil {
		return err
	}

	u.Balance = u.Balance.Add(amount)
	u.Touch()
	return nil
}

// CanStartTrip reports whether the balance meets the tap-in floor.
func (u *User) CanStartTrip() bool {
	return !u.Balance.LessThan(MinTripBalance)
}
