package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestReservationStatusIsTerminal(t *testing.T) {
	assert.False(t, ReservationStatusActive.IsTerminal())
	assert.True(t, ReservationStatusReleased.IsTerminal())
	assert.True(t, ReservationStatusConverted.IsTerminal())
}

func TestLedgerEntrySigned(t *testing.T) {
	amount := decimal.RequireFromString("120.50")

	debit := LedgerEntry{EntryType: EntryTypeDebit, Amount: amount}
	assert.True(t, debit.Signed().Equal(amount))

	payment := LedgerEntry{EntryType: EntryTypeCredit, Amount: amount}
	assert.True(t, payment.Signed().Equal(amount.Neg()))
}

func TestPairString(t *testing.T) {
	retailerID := uuid.MustParse("019471a0-0000-7000-8000-000000000001")
	wholesalerID := uuid.MustParse("019471a0-0000-7000-8000-000000000002")

	pair := NewPair(retailerID, wholesalerID)
	assert.Equal(t,
		"019471a0-0000-7000-8000-000000000001:019471a0-0000-7000-8000-000000000002",
		pair.String())
}

func TestAccountCanTransact(t *testing.T) {
	account := CreditAccount{IsActive: true}
	assert.True(t, account.CanTransact())

	account.IsBlocked = true
	assert.False(t, account.CanTransact())

	account = CreditAccount{IsActive: false}
	assert.False(t, account.CanTransact())
}
