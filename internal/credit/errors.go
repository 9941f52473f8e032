package credit

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Sentinel errors returned by the coordinator. All are recoverable and
// reported to the caller as typed failures; none are retried internally.
// ErrBusy is the only condition a caller should retry, with backoff.
var (
	ErrAccountNotFound      = errors.New("credit account not found")
	ErrAccountBlocked       = errors.New("credit account is blocked")
	ErrAccountInactive      = errors.New("credit account is inactive")
	ErrInvalidAmount        = errors.New("amount must be positive")
	ErrInsufficientCredit   = errors.New("insufficient credit")
	ErrDuplicateReservation = errors.New("active reservation already exists for order")
	ErrReservationNotFound  = errors.New("reservation not found")
	ErrInvalidState         = errors.New("reservation is in a terminal state")
	ErrAmountMismatch       = errors.New("amount does not match reservation")
	ErrBusy                 = errors.New("credit account is busy")

	// ErrDuplicateAccount is returned by the administrative surface when a
	// pair already has a configured account.
	ErrDuplicateAccount = errors.New("credit account already exists for pair")
)

// InsufficientCreditError carries the shortfall detail so callers can report
// a precise reason ("need 500, have 320") instead of a generic failure.
type InsufficientCreditError struct {
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientCreditError) Error() string {
	return fmt.Sprintf("insufficient credit: need %s, have %s", e.Requested, e.Available)
}

func (e *InsufficientCreditError) Unwrap() error {
	return ErrInsufficientCredit
}

// AmountMismatchError reports drift between an order total and its hold.
type AmountMismatchError struct {
	Reserved decimal.Decimal
	Supplied decimal.Decimal
}

func (e *AmountMismatchError) Error() string {
	return fmt.Sprintf("amount mismatch: reservation holds %s, got %s", e.Reserved, e.Supplied)
}

func (e *AmountMismatchError) Unwrap() error {
	return ErrAmountMismatch
}

// IsRetryable returns true if the error indicates transient contention
// rather than a business-rule rejection.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrBusy)
}
