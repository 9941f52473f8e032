// Package repository implements the credit store on PostgreSQL.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"fiado/internal/credit"
	"fiado/internal/db"
	"fiado/internal/models"
)

// queryer abstracts pgxpool.Pool and pgx.Tx so the same queries serve both
// the snapshot reader and the transactional view.
type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type scanner interface {
	Scan(dest ...any) error
}

// CreditStore implements credit.Store on PostgreSQL. Serialization per pair
// comes from two layers: a SERIALIZABLE transaction, plus a FOR UPDATE lock
// on the pair's credit_accounts row so concurrent writers queue instead of
// aborting each other.
type CreditStore struct {
	db       *db.DB
	lockWait time.Duration
}

// NewCreditStore creates a credit store. A non-positive lockWait disables
// the lock_timeout bound.
func NewCreditStore(database *db.DB, lockWait time.Duration) *CreditStore {
	return &CreditStore{db: database, lockWait: lockWait}
}

// RunSerializable executes fn inside one SERIALIZABLE transaction holding
// the pair's account row lock. Serialization failures, deadlocks and lock
// timeouts surface as credit.ErrBusy for the caller to retry with backoff.
func (s *CreditStore) RunSerializable(ctx context.Context, pair models.Pair, fn func(tx credit.Tx) error) error {
	err := s.db.WithSerializableTx(ctx, s.lockWait, func(tx pgx.Tx) error {
		// Lock the account row for the pair. A pair without an account has
		// nothing to lock; fn will reject it against the same snapshot.
		var locked uuid.UUID
		err := tx.QueryRow(ctx,
			`SELECT id FROM credit_accounts WHERE retailer_id = $1 AND wholesaler_id = $2 FOR UPDATE`,
			pair.RetailerID, pair.WholesalerID,
		).Scan(&locked)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("lock account row: %w", err)
		}

		return fn(&pgTx{q: tx})
	})
	return mapPgError(err)
}

// mapPgError translates transient contention errors into credit.ErrBusy.
func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected, pgerrcode.LockNotAvailable:
			return fmt.Errorf("%w: %s", credit.ErrBusy, pgErr.Code)
		}
	}
	return err
}

// --- Reader (snapshot view over the pool) ---

func (s *CreditStore) Account(ctx context.Context, pair models.Pair) (*models.CreditAccount, error) {
	return getAccount(ctx, s.db.Pool(), pair)
}

func (s *CreditStore) ReservationByOrder(ctx context.Context, orderID uuid.UUID) (*models.CreditReservation, error) {
	return getReservationByOrder(ctx, s.db.Pool(), orderID)
}

func (s *CreditStore) ActiveReservationTotal(ctx context.Context, pair models.Pair) (decimal.Decimal, error) {
	return sumActiveReservations(ctx, s.db.Pool(), pair)
}

func (s *CreditStore) PostedDebitTotal(ctx context.Context, pair models.Pair) (decimal.Decimal, error) {
	return sumPostedDebits(ctx, s.db.Pool(), pair)
}

func (s *CreditStore) LastEntry(ctx context.Context, pair models.Pair) (*models.LedgerEntry, error) {
	return getLastEntry(ctx, s.db.Pool(), pair)
}

func (s *CreditStore) EntriesByPair(ctx context.Context, pair models.Pair) ([]*models.LedgerEntry, error) {
	return listEntries(ctx, s.db.Pool(), pair)
}

func (s *CreditStore) ReservationsByPair(ctx context.Context, pair models.Pair) ([]*models.CreditReservation, error) {
	return listReservations(ctx, s.db.Pool(), pair)
}

func (s *CreditStore) StaleActiveReservations(ctx context.Context, olderThan time.Duration) ([]*models.CreditReservation, error) {
	return listStaleReservations(ctx, s.db.Pool(), olderThan)
}

// --- transactional view ---

type pgTx struct {
	q pgx.Tx
}

func (t *pgTx) Account(ctx context.Context, pair models.Pair) (*models.CreditAccount, error) {
	return getAccount(ctx, t.q, pair)
}

func (t *pgTx) ReservationByOrder(ctx context.Context, orderID uuid.UUID) (*models.CreditReservation, error) {
	return getReservationByOrder(ctx, t.q, orderID)
}

func (t *pgTx) ActiveReservationTotal(ctx context.Context, pair models.Pair) (decimal.Decimal, error) {
	return sumActiveReservations(ctx, t.q, pair)
}

func (t *pgTx) PostedDebitTotal(ctx context.Context, pair models.Pair) (decimal.Decimal, error) {
	return sumPostedDebits(ctx, t.q, pair)
}

func (t *pgTx) LastEntry(ctx context.Context, pair models.Pair) (*models.LedgerEntry, error) {
	return getLastEntry(ctx, t.q, pair)
}

func (t *pgTx) EntriesByPair(ctx context.Context, pair models.Pair) ([]*models.LedgerEntry, error) {
	return listEntries(ctx, t.q, pair)
}

func (t *pgTx) ReservationsByPair(ctx context.Context, pair models.Pair) ([]*models.CreditReservation, error) {
	return listReservations(ctx, t.q, pair)
}

func (t *pgTx) StaleActiveReservations(ctx context.Context, olderThan time.Duration) ([]*models.CreditReservation, error) {
	return listStaleReservations(ctx, t.q, olderThan)
}

func (t *pgTx) InsertReservation(ctx context.Context, params models.CreateReservationParams) (*models.CreditReservation, error) {
	row := t.q.QueryRow(ctx, `
		INSERT INTO credit_reservations (retailer_id, wholesaler_id, order_id, amount, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+reservationColumns,
		params.RetailerID, params.WholesalerID, params.OrderID, params.Amount,
		models.ReservationStatusActive,
	)

	res, err := scanReservation(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, credit.ErrDuplicateReservation
		}
		return nil, fmt.Errorf("insert reservation: %w", err)
	}
	return res, nil
}

func (t *pgTx) MarkReleased(ctx context.Context, id uuid.UUID, reason models.ReleaseReason, at time.Time) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE credit_reservations
		SET status = $2, release_reason = $3, released_at = $4
		WHERE id = $1 AND status = $5`,
		id, models.ReservationStatusReleased, string(reason), at,
		models.ReservationStatusActive,
	)
	if err != nil {
		return fmt.Errorf("release reservation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return credit.ErrInvalidState
	}
	return nil
}

func (t *pgTx) MarkConverted(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE credit_reservations
		SET status = $2, converted_at = $3
		WHERE id = $1 AND status = $4`,
		id, models.ReservationStatusConverted, at,
		models.ReservationStatusActive,
	)
	if err != nil {
		return fmt.Errorf("convert reservation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return credit.ErrInvalidState
	}
	return nil
}

func (t *pgTx) AppendEntry(ctx context.Context, params models.AppendEntryParams) (*models.LedgerEntry, error) {
	pair := models.NewPair(params.RetailerID, params.WholesalerID)

	balance := decimal.Zero
	last, err := getLastEntry(ctx, t.q, pair)
	if err != nil {
		return nil, err
	}
	if last != nil {
		balance = last.BalanceAfter
	}
	if params.EntryType == models.EntryTypeCredit {
		balance = balance.Sub(params.Amount)
	} else {
		balance = balance.Add(params.Amount)
	}

	var metadata []byte
	if len(params.Metadata) > 0 {
		metadata, err = json.Marshal(params.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal entry metadata: %w", err)
		}
	}

	row := t.q.QueryRow(ctx, `
		INSERT INTO ledger_entries (retailer_id, wholesaler_id, entry_type, amount, balance_after, order_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+entryColumns,
		params.RetailerID, params.WholesalerID, params.EntryType, params.Amount,
		balance, params.OrderID, metadata,
	)

	entry, err := scanEntry(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			// The per-order debit index: the order was already debited.
			return nil, credit.ErrInvalidState
		}
		return nil, fmt.Errorf("append ledger entry: %w", err)
	}
	return entry, nil
}

// --- shared queries ---

const accountColumns = `id, retailer_id, wholesaler_id, credit_limit, is_active, is_blocked, created_at, updated_at`

const reservationColumns = `id, retailer_id, wholesaler_id, order_id, amount, status, release_reason, created_at, released_at, converted_at`

const entryColumns = `id, retailer_id, wholesaler_id, entry_type, amount, balance_after, order_id, metadata, created_at`

func getAccount(ctx context.Context, q queryer, pair models.Pair) (*models.CreditAccount, error) {
	row := q.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM credit_accounts
		WHERE retailer_id = $1 AND wholesaler_id = $2`,
		pair.RetailerID, pair.WholesalerID,
	)

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return account, nil
}

func getReservationByOrder(ctx context.Context, q queryer, orderID uuid.UUID) (*models.CreditReservation, error) {
	row := q.QueryRow(ctx, `
		SELECT `+reservationColumns+`
		FROM credit_reservations
		WHERE order_id = $1
		ORDER BY seq DESC
		LIMIT 1`,
		orderID,
	)

	res, err := scanReservation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reservation by order: %w", err)
	}
	return res, nil
}

func sumActiveReservations(ctx context.Context, q queryer, pair models.Pair) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := q.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM credit_reservations
		WHERE retailer_id = $1 AND wholesaler_id = $2 AND status = $3`,
		pair.RetailerID, pair.WholesalerID, models.ReservationStatusActive,
	).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum active reservations: %w", err)
	}
	return total, nil
}

func sumPostedDebits(ctx context.Context, q queryer, pair models.Pair) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := q.QueryRow(ctx, `
		SELECT COALESCE(SUM(CASE WHEN entry_type = $3 THEN amount ELSE -amount END), 0)
		FROM ledger_entries
		WHERE retailer_id = $1 AND wholesaler_id = $2`,
		pair.RetailerID, pair.WholesalerID, models.EntryTypeDebit,
	).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum posted debits: %w", err)
	}
	return total, nil
}

func getLastEntry(ctx context.Context, q queryer, pair models.Pair) (*models.LedgerEntry, error) {
	row := q.QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM ledger_entries
		WHERE retailer_id = $1 AND wholesaler_id = $2
		ORDER BY seq DESC
		LIMIT 1`,
		pair.RetailerID, pair.WholesalerID,
	)

	entry, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get last entry: %w", err)
	}
	return entry, nil
}

func listEntries(ctx context.Context, q queryer, pair models.Pair) ([]*models.LedgerEntry, error) {
	rows, err := q.Query(ctx, `
		SELECT `+entryColumns+`
		FROM ledger_entries
		WHERE retailer_id = $1 AND wholesaler_id = $2
		ORDER BY seq`,
		pair.RetailerID, pair.WholesalerID,
	)
	if err != nil {
		return nil, fmt.Errorf("query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.LedgerEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func listReservations(ctx context.Context, q queryer, pair models.Pair) ([]*models.CreditReservation, error) {
	rows, err := q.Query(ctx, `
		SELECT `+reservationColumns+`
		FROM credit_reservations
		WHERE retailer_id = $1 AND wholesaler_id = $2
		ORDER BY seq DESC`,
		pair.RetailerID, pair.WholesalerID,
	)
	if err != nil {
		return nil, fmt.Errorf("query reservations: %w", err)
	}
	defer rows.Close()

	return collectReservations(rows)
}

func listStaleReservations(ctx context.Context, q queryer, olderThan time.Duration) ([]*models.CreditReservation, error) {
	rows, err := q.Query(ctx, `
		SELECT `+reservationColumns+`
		FROM credit_reservations
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at`,
		models.ReservationStatusActive, time.Now().UTC().Add(-olderThan),
	)
	if err != nil {
		return nil, fmt.Errorf("query stale reservations: %w", err)
	}
	defer rows.Close()

	return collectReservations(rows)
}

func collectReservations(rows pgx.Rows) ([]*models.CreditReservation, error) {
	var reservations []*models.CreditReservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		reservations = append(reservations, res)
	}
	return reservations, rows.Err()
}

func scanAccount(s scanner) (*models.CreditAccount, error) {
	var a models.CreditAccount
	err := s.Scan(
		&a.ID,
		&a.RetailerID,
		&a.WholesalerID,
		&a.CreditLimit,
		&a.IsActive,
		&a.IsBlocked,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func scanReservation(s scanner) (*models.CreditReservation, error) {
	var r models.CreditReservation
	var reason *string

	err := s.Scan(
		&r.ID,
		&r.RetailerID,
		&r.WholesalerID,
		&r.OrderID,
		&r.Amount,
		&r.Status,
		&reason,
		&r.CreatedAt,
		&r.ReleasedAt,
		&r.ConvertedAt,
	)
	if err != nil {
		return nil, err
	}
	if reason != nil {
		rr := models.ReleaseReason(*reason)
		r.ReleaseReason = &rr
	}
	return &r, nil
}

func scanEntry(s scanner) (*models.LedgerEntry, error) {
	var e models.LedgerEntry
	var metadata []byte

	err := s.Scan(
		&e.ID,
		&e.RetailerID,
		&e.WholesalerID,
		&e.EntryType,
		&e.Amount,
		&e.BalanceAfter,
		&e.OrderID,
		&metadata,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal entry metadata: %w", err)
		}
	}
	return &e, nil
}
