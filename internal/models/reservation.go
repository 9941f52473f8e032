package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreditReservation represents a hold against available credit for one order.
// Reservations are never deleted; lifecycle outcomes are recorded as status
// transitions so the audit trail survives the order.
type CreditReservation struct {
	ID            uuid.UUID
	RetailerID    uuid.UUID
	WholesalerID  uuid.UUID
	OrderID       uuid.UUID
	Amount        decimal.Decimal
	Status        ReservationStatus
	ReleaseReason *ReleaseReason
	CreatedAt     time.Time
	ReleasedAt    *time.Time
	ConvertedAt   *time.Time
}

// Pair returns the reservation's pair key.
func (r *CreditReservation) Pair() Pair {
	return Pair{RetailerID: r.RetailerID, WholesalerID: r.WholesalerID}
}

// IsActive returns true if the reservation still holds credit.
func (r *CreditReservation) IsActive() bool {
	return r.Status == ReservationStatusActive
}

// CreateReservationParams contains parameters for placing a new hold.
type CreateReservationParams struct {
	RetailerID   uuid.UUID
	WholesalerID uuid.UUID
	OrderID      uuid.UUID
	Amount       decimal.Decimal
}
