package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Pair identifies the retailer-wholesaler relationship all credit state is
// keyed by. Every reservation, ledger entry and serialization boundary is
// scoped to exactly one pair.
type Pair struct {
	RetailerID   uuid.UUID
	WholesalerID uuid.UUID
}

// NewPair creates a pair key.
func NewPair(retailerID, wholesalerID uuid.UUID) Pair {
	return Pair{RetailerID: retailerID, WholesalerID: wholesalerID}
}

// String returns a stable representation, usable as a lock or cache key.
func (p Pair) String() string {
	return fmt.Sprintf("%s:%s", p.RetailerID, p.WholesalerID)
}

// CreditAccount represents the configured credit line a wholesaler extends
// to a retailer. At most one account exists per pair.
type CreditAccount struct {
	ID           uuid.UUID
	RetailerID   uuid.UUID
	WholesalerID uuid.UUID
	CreditLimit  decimal.Decimal
	IsActive     bool
	IsBlocked    bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Pair returns the account's pair key.
func (a *CreditAccount) Pair() Pair {
	return Pair{RetailerID: a.RetailerID, WholesalerID: a.WholesalerID}
}

// CanTransact returns true if the account accepts new reservations.
func (a *CreditAccount) CanTransact() bool {
	return a.IsActive && !a.IsBlocked
}

// CreateAccountParams contains parameters for creating a credit account.
type CreateAccountParams struct {
	RetailerID   uuid.UUID
	WholesalerID uuid.UUID
	CreditLimit  decimal.Decimal
}

// UpdateAccountParams contains parameters for administrative account changes.
// Nil fields are left untouched.
type UpdateAccountParams struct {
	CreditLimit *decimal.Decimal
	IsActive    *bool
	IsBlocked   *bool
}
