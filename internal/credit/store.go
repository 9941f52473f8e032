package credit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fiado/internal/models"
)

// Reader provides read access to credit state. Reads obtained through a Tx
// see the transaction's isolated view; reads obtained directly from a Store
// are point-in-time snapshots suitable for display only.
type Reader interface {
	// Account returns the credit account for the pair, or nil if none exists.
	Account(ctx context.Context, pair models.Pair) (*models.CreditAccount, error)

	// ReservationByOrder returns the most recent reservation for the order,
	// regardless of status, or nil if the order was never reserved.
	ReservationByOrder(ctx context.Context, orderID uuid.UUID) (*models.CreditReservation, error)

	// ActiveReservationTotal returns the sum of ACTIVE reservation amounts
	// for the pair.
	ActiveReservationTotal(ctx context.Context, pair models.Pair) (decimal.Decimal, error)

	// PostedDebitTotal returns posted DEBIT totals netted against CREDIT
	// entries for the pair.
	PostedDebitTotal(ctx context.Context, pair models.Pair) (decimal.Decimal, error)

	// LastEntry returns the most recent ledger entry for the pair, or nil.
	LastEntry(ctx context.Context, pair models.Pair) (*models.LedgerEntry, error)

	// EntriesByPair returns ledger entries for the pair in creation order.
	EntriesByPair(ctx context.Context, pair models.Pair) ([]*models.LedgerEntry, error)

	// ReservationsByPair returns reservations for the pair, newest first.
	ReservationsByPair(ctx context.Context, pair models.Pair) ([]*models.CreditReservation, error)

	// StaleActiveReservations returns reservations that have sat ACTIVE for
	// longer than olderThan, across all pairs. Monitoring query only; the
	// engine never releases holds on its own.
	StaleActiveReservations(ctx context.Context, olderThan time.Duration) ([]*models.CreditReservation, error)
}

// Tx is the store view handed to a serializable scope. Writes are staged and
// applied atomically when the scope returns nil, or discarded entirely when
// it returns an error. The ledger is append-only as a hard contract: Tx has
// no operation that updates or removes a LedgerEntry.
type Tx interface {
	Reader

	// InsertReservation inserts a new ACTIVE reservation.
	InsertReservation(ctx context.Context, params models.CreateReservationParams) (*models.CreditReservation, error)

	// MarkReleased transitions ACTIVE -> RELEASED and stamps releasedAt.
	MarkReleased(ctx context.Context, id uuid.UUID, reason models.ReleaseReason, at time.Time) error

	// MarkConverted transitions ACTIVE -> CONVERTED_TO_DEBIT and stamps convertedAt.
	MarkConverted(ctx context.Context, id uuid.UUID, at time.Time) error

	// AppendEntry posts a ledger entry with BalanceAfter computed from the
	// preceding entry for the pair.
	AppendEntry(ctx context.Context, params models.AppendEntryParams) (*models.LedgerEntry, error)
}

// Store is the seam between the coordinator and the durable backend.
//
// RunSerializable executes fn against a view where all reads and writes are
// isolated from any concurrent RunSerializable call touching the same pair,
// and either all of fn's effects are applied or none are. Acquiring the
// boundary is bounded; when the bound is exceeded the call fails with
// ErrBusy instead of waiting indefinitely.
//
// The embedded Reader serves snapshot reads outside any boundary.
type Store interface {
	Reader

	RunSerializable(ctx context.Context, pair models.Pair, fn func(tx Tx) error) error
}
