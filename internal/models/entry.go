package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerEntry is an immutable posted financial movement. Once appended no
// field is ever mutated or removed; BalanceAfter carries the running debt
// position of the pair at the time of posting.
type LedgerEntry struct {
	ID           uuid.UUID
	RetailerID   uuid.UUID
	WholesalerID uuid.UUID
	EntryType    EntryType
	Amount       decimal.Decimal
	BalanceAfter decimal.Decimal
	OrderID      *uuid.UUID
	Metadata     map[string]string
	CreatedAt    time.Time
}

// Pair returns the entry's pair key.
func (e *LedgerEntry) Pair() Pair {
	return Pair{RetailerID: e.RetailerID, WholesalerID: e.WholesalerID}
}

// Signed returns the entry amount with its accounting sign: debits increase
// the pair's debt position, credits decrease it.
func (e *LedgerEntry) Signed() decimal.Decimal {
	if e.EntryType == EntryTypeCredit {
		return e.Amount.Neg()
	}
	return e.Amount
}

// AppendEntryParams contains parameters for posting a new ledger entry.
// BalanceAfter is computed by the store from the preceding entry for the
// pair, never supplied by the caller.
type AppendEntryParams struct {
	RetailerID   uuid.UUID
	WholesalerID uuid.UUID
	EntryType    EntryType
	Amount       decimal.Decimal
	OrderID      *uuid.UUID
	Metadata     map[string]string
}
