// Package credit implements the credit reservation and ledger engine: the
// component that guarantees a retailer can never commit more credit-funded
// spend against a wholesaler than their configured limit allows, even under
// concurrent order placement, cancellation and fulfillment.
package credit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"fiado/internal/metrics"
	"fiado/internal/models"
)

// Decision is the answer to a non-mutating availability check. It is
// advisory only: Reserve re-validates under the serialization boundary, so
// a positive Decision is never a commitment.
type Decision struct {
	CanReserve bool            `json:"can_reserve"`
	Reason     string          `json:"reason,omitempty"`
	Available  decimal.Decimal `json:"available"`
}

// Decision reason codes.
const (
	ReasonAccountNotFound    = "account_not_found"
	ReasonAccountBlocked     = "account_blocked"
	ReasonAccountInactive    = "account_inactive"
	ReasonInvalidAmount      = "invalid_amount"
	ReasonInsufficientCredit = "insufficient_credit"
)

// ConvertOptions carries optional attributes for the debit posted on
// conversion.
type ConvertOptions struct {
	DueDate  *time.Time
	Metadata map[string]string
}

// Mirror receives posted ledger entries after commit, e.g. to replicate them
// into a double-entry accounting backend. Mirror calls happen outside the
// serialization boundary and must not affect the committed outcome.
type Mirror interface {
	PostEntry(ctx context.Context, entry *models.LedgerEntry) error
}

// AvailabilityCache caches display snapshots of the availability figure.
type AvailabilityCache interface {
	GetAvailability(ctx context.Context, pair models.Pair) (*Availability, bool)
	SetAvailability(ctx context.Context, pair models.Pair, av *Availability)
	InvalidateAvailability(ctx context.Context, pair models.Pair)
}

// Config holds service dependencies. Store and Logger are required; Mirror
// and Cache are optional.
type Config struct {
	Store  Store
	Logger *zap.Logger
	Mirror Mirror
	Cache  AvailabilityCache
}

// Service coordinates the reservation state machine. Every mutating
// operation runs entirely inside one serializable scope keyed by the
// retailer-wholesaler pair: fresh read, precondition re-check, write.
type Service struct {
	store  Store
	logger *zap.Logger
	mirror Mirror
	cache  AvailabilityCache
}

// NewService creates a new credit service.
func NewService(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:  cfg.Store,
		logger: logger,
		mirror: cfg.Mirror,
		cache:  cfg.Cache,
	}
}

// CanReserve reports whether a hold of amount would currently fit. It fails
// closed: a missing, blocked, or inactive account, or a shortfall, yields a
// negative decision rather than an error. Non-mutating; callers must not treat a
// positive answer as a commitment.
func (s *Service) CanReserve(ctx context.Context, retailerID, wholesalerID uuid.UUID, amount decimal.Decimal) (*Decision, error) {
	if !amount.IsPositive() {
		return &Decision{CanReserve: false, Reason: ReasonInvalidAmount}, nil
	}

	pair := models.NewPair(retailerID, wholesalerID)

	av, account, err := computeAvailability(ctx, s.store, pair)
	if errors.Is(err, ErrAccountNotFound) {
		return &Decision{CanReserve: false, Reason: ReasonAccountNotFound}, nil
	}
	if err != nil {
		return nil, err
	}
	if !account.CanTransact() {
		reason := ReasonAccountBlocked
		if !account.IsActive {
			reason = ReasonAccountInactive
		}
		return &Decision{CanReserve: false, Reason: reason, Available: av.Available}, nil
	}
	if amount.GreaterThan(av.Available) {
		return &Decision{CanReserve: false, Reason: ReasonInsufficientCredit, Available: av.Available}, nil
	}

	return &Decision{CanReserve: true, Available: av.Available}, nil
}

// Reserve places an ACTIVE hold for orderID. Availability is re-validated
// inside the same serializable scope as the insert, which closes the
// check-then-act race a separate CanReserve call would otherwise admit.
// A hold equal to the exact remaining availability is permitted.
func (s *Service) Reserve(ctx context.Context, retailerID, wholesalerID, orderID uuid.UUID, amount decimal.Decimal) (*models.CreditReservation, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	pair := models.NewPair(retailerID, wholesalerID)
	start := time.Now()

	var reservation *models.CreditReservation
	err := s.store.RunSerializable(ctx, pair, func(tx Tx) error {
		existing, err := tx.ReservationByOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if existing != nil && existing.IsActive() {
			return ErrDuplicateReservation
		}

		av, account, err := computeAvailability(ctx, tx, pair)
		if err != nil {
			return err
		}
		if !account.CanTransact() {
			if account.IsBlocked {
				return ErrAccountBlocked
			}
			return ErrAccountInactive
		}
		if amount.GreaterThan(av.Available) {
			return &InsufficientCreditError{Requested: amount, Available: av.Available}
		}

		reservation, err = tx.InsertReservation(ctx, models.CreateReservationParams{
			RetailerID:   retailerID,
			WholesalerID: wholesalerID,
			OrderID:      orderID,
			Amount:       amount,
		})
		return err
	})

	metrics.ObserveSerializable("reserve", time.Since(start))
	metrics.CountReservation(outcomeLabel(err))
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, pair)
	s.logger.Info("credit reserved",
		zap.String("pair", pair.String()),
		zap.String("order_id", orderID.String()),
		zap.String("amount", amount.String()),
	)
	return reservation, nil
}

// Release transitions the order's hold to RELEASED and restores its amount
// to availability. It is the cancellation primitive for every lifecycle
// outcome, and tolerates at-least-once delivery: releasing an already
// released reservation is a no-op success. Releasing a converted
// reservation fails with ErrInvalidState.
func (s *Service) Release(ctx context.Context, orderID uuid.UUID, reason models.ReleaseReason) error {
	// Snapshot lookup to learn the pair; the authoritative re-read happens
	// under the pair's serialization boundary below.
	found, err := s.store.ReservationByOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if found == nil {
		return ErrReservationNotFound
	}

	pair := found.Pair()
	start := time.Now()

	err = s.store.RunSerializable(ctx, pair, func(tx Tx) error {
		res, err := tx.ReservationByOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if res == nil {
			return ErrReservationNotFound
		}
		switch res.Status {
		case models.ReservationStatusReleased:
			return nil // idempotent no-op
		case models.ReservationStatusConverted:
			return ErrInvalidState
		}
		return tx.MarkReleased(ctx, res.ID, reason, time.Now().UTC())
	})

	metrics.ObserveSerializable("release", time.Since(start))
	metrics.CountRelease(outcomeLabel(err))
	if err != nil {
		return err
	}

	s.invalidate(ctx, pair)
	s.logger.Info("reservation released",
		zap.String("pair", pair.String()),
		zap.String("order_id", orderID.String()),
		zap.String("reason", string(reason)),
	)
	return nil
}

// Convert turns the order's ACTIVE hold into a permanent DEBIT. The status
// transition and the ledger append commit in the same transaction, so a
// failed conversion never leaves a reservation half-transitioned or an
// entry partially written. This is the only path that creates a DEBIT from
// a reservation, which makes the exactly-once-debit property structural.
func (s *Service) Convert(ctx context.Context, orderID, retailerID, wholesalerID uuid.UUID, amount decimal.Decimal, opts ConvertOptions) (*models.LedgerEntry, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	pair := models.NewPair(retailerID, wholesalerID)
	start := time.Now()

	var entry *models.LedgerEntry
	err := s.store.RunSerializable(ctx, pair, func(tx Tx) error {
		res, err := tx.ReservationByOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if res == nil || res.Pair() != pair {
			return ErrReservationNotFound
		}
		if res.Status.IsTerminal() {
			return ErrInvalidState
		}
		if !res.Amount.Equal(amount) {
			return &AmountMismatchError{Reserved: res.Amount, Supplied: amount}
		}

		if err := tx.MarkConverted(ctx, res.ID, time.Now().UTC()); err != nil {
			return err
		}

		entry, err = tx.AppendEntry(ctx, models.AppendEntryParams{
			RetailerID:   retailerID,
			WholesalerID: wholesalerID,
			EntryType:    models.EntryTypeDebit,
			Amount:       amount,
			OrderID:      &orderID,
			Metadata:     convertMetadata(opts),
		})
		return err
	})

	metrics.ObserveSerializable("convert", time.Since(start))
	metrics.CountConversion(outcomeLabel(err))
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, pair)
	s.postMirror(ctx, entry)
	s.logger.Info("reservation converted to debit",
		zap.String("pair", pair.String()),
		zap.String("order_id", orderID.String()),
		zap.String("amount", amount.String()),
		zap.String("balance_after", entry.BalanceAfter.String()),
	)
	return entry, nil
}

// RecordPayment posts a CREDIT entry reducing the pair's debt position,
// e.g. when the retailer repays the wholesaler. Blocked accounts still
// accept payments.
func (s *Service) RecordPayment(ctx context.Context, retailerID, wholesalerID uuid.UUID, amount decimal.Decimal, metadata map[string]string) (*models.LedgerEntry, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	pair := models.NewPair(retailerID, wholesalerID)
	start := time.Now()

	var entry *models.LedgerEntry
	err := s.store.RunSerializable(ctx, pair, func(tx Tx) error {
		account, err := tx.Account(ctx, pair)
		if err != nil {
			return err
		}
		if account == nil {
			return ErrAccountNotFound
		}

		entry, err = tx.AppendEntry(ctx, models.AppendEntryParams{
			RetailerID:   retailerID,
			WholesalerID: wholesalerID,
			EntryType:    models.EntryTypeCredit,
			Amount:       amount,
			Metadata:     metadata,
		})
		return err
	})

	metrics.ObserveSerializable("payment", time.Since(start))
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, pair)
	s.postMirror(ctx, entry)
	s.logger.Info("payment recorded",
		zap.String("pair", pair.String()),
		zap.String("amount", amount.String()),
		zap.String("balance_after", entry.BalanceAfter.String()),
	)
	return entry, nil
}

// AvailableCredit returns a display snapshot of the pair's credit position.
// The read happens outside any serialization boundary and may be served
// from cache; callers must not use it to decide whether to reserve.
func (s *Service) AvailableCredit(ctx context.Context, retailerID, wholesalerID uuid.UUID) (*Availability, error) {
	pair := models.NewPair(retailerID, wholesalerID)

	if s.cache != nil {
		if av, ok := s.cache.GetAvailability(ctx, pair); ok {
			return av, nil
		}
	}

	av, _, err := computeAvailability(ctx, s.store, pair)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.SetAvailability(ctx, pair, av)
	}
	return av, nil
}

// Statement returns the pair's ledger entries in creation order.
func (s *Service) Statement(ctx context.Context, retailerID, wholesalerID uuid.UUID) ([]*models.LedgerEntry, error) {
	return s.store.EntriesByPair(ctx, models.NewPair(retailerID, wholesalerID))
}

// Reservations returns the pair's reservation history, newest first.
func (s *Service) Reservations(ctx context.Context, retailerID, wholesalerID uuid.UUID) ([]*models.CreditReservation, error) {
	return s.store.ReservationsByPair(ctx, models.NewPair(retailerID, wholesalerID))
}

// StaleReservations returns holds that have sat ACTIVE longer than olderThan.
// Exposed for operational monitoring; no automatic reconciliation runs.
func (s *Service) StaleReservations(ctx context.Context, olderThan time.Duration) ([]*models.CreditReservation, error) {
	return s.store.StaleActiveReservations(ctx, olderThan)
}

func (s *Service) invalidate(ctx context.Context, pair models.Pair) {
	if s.cache != nil {
		s.cache.InvalidateAvailability(ctx, pair)
	}
}

// postMirror replicates a committed entry, best effort. The entry is already
// durable; a mirror failure is logged, never surfaced.
func (s *Service) postMirror(ctx context.Context, entry *models.LedgerEntry) {
	if s.mirror == nil || entry == nil {
		return
	}
	if err := s.mirror.PostEntry(ctx, entry); err != nil {
		s.logger.Warn("ledger mirror post failed",
			zap.String("entry_id", entry.ID.String()),
			zap.Error(err),
		)
	}
}

// outcomeLabel maps an operation error to a low-cardinality metric label.
func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInsufficientCredit):
		return "insufficient_credit"
	case errors.Is(err, ErrDuplicateReservation):
		return "duplicate"
	case errors.Is(err, ErrAccountBlocked):
		return "blocked"
	case errors.Is(err, ErrAccountInactive):
		return "inactive"
	case errors.Is(err, ErrAccountNotFound):
		return "account_not_found"
	case errors.Is(err, ErrReservationNotFound):
		return "reservation_not_found"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrAmountMismatch):
		return "amount_mismatch"
	case errors.Is(err, ErrBusy):
		return "busy"
	default:
		return "error"
	}
}

func convertMetadata(opts ConvertOptions) map[string]string {
	if opts.DueDate == nil && len(opts.Metadata) == 0 {
		return nil
	}
	md := make(map[string]string, len(opts.Metadata)+1)
	for k, v := range opts.Metadata {
		md[k] = v
	}
	if opts.DueDate != nil {
		md["due_date"] = opts.DueDate.UTC().Format(time.RFC3339)
	}
	return md
}
