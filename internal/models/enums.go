package models

// ReservationStatus represents the state machine status of a credit reservation.
type ReservationStatus string

const (
	ReservationStatusActive    ReservationStatus = "ACTIVE"
	ReservationStatusReleased  ReservationStatus = "RELEASED"
	ReservationStatusConverted ReservationStatus = "CONVERTED_TO_DEBIT"
)

// IsTerminal returns true if the status is a terminal state.
// No transition is permitted out of a terminal state.
func (s ReservationStatus) IsTerminal() bool {
	switch s {
	case ReservationStatusReleased, ReservationStatusConverted:
		return true
	default:
		return false
	}
}

// EntryType represents the accounting side of a ledger entry.
type EntryType string

const (
	EntryTypeDebit  EntryType = "DEBIT"
	EntryTypeCredit EntryType = "CREDIT"
)

// ReleaseReason records why a reservation was released.
type ReleaseReason string

const (
	ReleaseReasonCancelled ReleaseReason = "order_cancelled"
	ReleaseReasonFailed    ReleaseReason = "order_failed"
	ReleaseReasonExpired   ReleaseReason = "order_expired"
	ReleaseReasonManual    ReleaseReason = "manual"
)
