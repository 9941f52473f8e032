package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fiado/internal/credit"
	"fiado/internal/models"
)

func newPair(t *testing.T, store *Store, limit string) models.Pair {
	t.Helper()

	retailerID, wholesalerID := uuid.New(), uuid.New()
	_, err := store.CreateAccount(context.Background(), models.CreateAccountParams{
		RetailerID:   retailerID,
		WholesalerID: wholesalerID,
		CreditLimit:  decimal.RequireFromString(limit),
	})
	require.NoError(t, err)
	return models.NewPair(retailerID, wholesalerID)
}

func TestCreateAccountDuplicate(t *testing.T) {
	ctx := context.Background()
	store := New(0)
	pair := newPair(t, store, "1000")

	_, err := store.CreateAccount(ctx, models.CreateAccountParams{
		RetailerID:   pair.RetailerID,
		WholesalerID: pair.WholesalerID,
		CreditLimit:  decimal.NewFromInt(500),
	})
	require.ErrorIs(t, err, credit.ErrDuplicateAccount)
}

func TestUpdateAccountPartial(t *testing.T) {
	ctx := context.Background()
	store := New(0)
	pair := newPair(t, store, "1000")

	blocked := true
	account, err := store.UpdateAccount(ctx, pair, models.UpdateAccountParams{IsBlocked: &blocked})
	require.NoError(t, err)
	assert.True(t, account.IsBlocked)
	assert.True(t, account.CreditLimit.Equal(decimal.NewFromInt(1000)), "untouched field must survive")

	_, err = store.UpdateAccount(ctx, models.NewPair(uuid.New(), uuid.New()), models.UpdateAccountParams{})
	require.ErrorIs(t, err, credit.ErrAccountNotFound)
}

// A scope that returns an error must leave no trace of its staged writes.
func TestRunSerializableRollback(t *testing.T) {
	ctx := context.Background()
	store := New(0)
	pair := newPair(t, store, "1000")
	boom := errors.New("boom")

	err := store.RunSerializable(ctx, pair, func(tx credit.Tx) error {
		_, err := tx.InsertReservation(ctx, models.CreateReservationParams{
			RetailerID:   pair.RetailerID,
			WholesalerID: pair.WholesalerID,
			OrderID:      uuid.New(),
			Amount:       decimal.NewFromInt(100),
		})
		require.NoError(t, err)

		_, err = tx.AppendEntry(ctx, models.AppendEntryParams{
			RetailerID:   pair.RetailerID,
			WholesalerID: pair.WholesalerID,
			EntryType:    models.EntryTypeDebit,
			Amount:       decimal.NewFromInt(100),
		})
		require.NoError(t, err)

		return boom
	})
	require.ErrorIs(t, err, boom)

	total, err := store.ActiveReservationTotal(ctx, pair)
	require.NoError(t, err)
	assert.True(t, total.IsZero())

	entries, err := store.EntriesByPair(ctx, pair)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// A scope must observe its own staged writes before commit.
func TestTxReadsOverlayStagedWrites(t *testing.T) {
	ctx := context.Background()
	store := New(0)
	pair := newPair(t, store, "1000")
	orderID := uuid.New()

	err := store.RunSerializable(ctx, pair, func(tx credit.Tx) error {
		res, err := tx.InsertReservation(ctx, models.CreateReservationParams{
			RetailerID:   pair.RetailerID,
			WholesalerID: pair.WholesalerID,
			OrderID:      orderID,
			Amount:       decimal.NewFromInt(250),
		})
		require.NoError(t, err)

		seen, err := tx.ReservationByOrder(ctx, orderID)
		require.NoError(t, err)
		require.NotNil(t, seen)
		assert.Equal(t, res.ID, seen.ID)

		total, err := tx.ActiveReservationTotal(ctx, pair)
		require.NoError(t, err)
		assert.True(t, total.Equal(decimal.NewFromInt(250)))

		// Two appends in one scope chain the running balance.
		first, err := tx.AppendEntry(ctx, models.AppendEntryParams{
			RetailerID:   pair.RetailerID,
			WholesalerID: pair.WholesalerID,
			EntryType:    models.EntryTypeDebit,
			Amount:       decimal.NewFromInt(250),
		})
		require.NoError(t, err)
		assert.True(t, first.BalanceAfter.Equal(decimal.NewFromInt(250)))

		second, err := tx.AppendEntry(ctx, models.AppendEntryParams{
			RetailerID:   pair.RetailerID,
			WholesalerID: pair.WholesalerID,
			EntryType:    models.EntryTypeCredit,
			Amount:       decimal.NewFromInt(100),
		})
		require.NoError(t, err)
		assert.True(t, second.BalanceAfter.Equal(decimal.NewFromInt(150)))

		return nil
	})
	require.NoError(t, err)

	last, err := store.LastEntry(ctx, pair)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.True(t, last.BalanceAfter.Equal(decimal.NewFromInt(150)))
}

func TestStatusTransitionsGuarded(t *testing.T) {
	ctx := context.Background()
	store := New(0)
	pair := newPair(t, store, "1000")
	orderID := uuid.New()

	var resID uuid.UUID
	err := store.RunSerializable(ctx, pair, func(tx credit.Tx) error {
		res, err := tx.InsertReservation(ctx, models.CreateReservationParams{
			RetailerID:   pair.RetailerID,
			WholesalerID: pair.WholesalerID,
			OrderID:      orderID,
			Amount:       decimal.NewFromInt(100),
		})
		resID = res.ID
		return err
	})
	require.NoError(t, err)

	err = store.RunSerializable(ctx, pair, func(tx credit.Tx) error {
		return tx.MarkConverted(ctx, resID, time.Now().UTC())
	})
	require.NoError(t, err)

	err = store.RunSerializable(ctx, pair, func(tx credit.Tx) error {
		return tx.MarkReleased(ctx, resID, models.ReleaseReasonManual, time.Now().UTC())
	})
	require.ErrorIs(t, err, credit.ErrInvalidState)

	err = store.RunSerializable(ctx, pair, func(tx credit.Tx) error {
		return tx.MarkConverted(ctx, uuid.New(), time.Now().UTC())
	})
	require.ErrorIs(t, err, credit.ErrReservationNotFound)

	err = store.RunSerializable(ctx, pair, func(tx credit.Tx) error {
		res, err := tx.ReservationByOrder(ctx, orderID)
		require.NoError(t, err)
		assert.Equal(t, models.ReservationStatusConverted, res.Status)
		return nil
	})
	require.NoError(t, err)
}

func TestBoundaryTimeoutAndIndependence(t *testing.T) {
	ctx := context.Background()
	store := New(30 * time.Millisecond)
	pairA := newPair(t, store, "1000")
	pairB := newPair(t, store, "1000")

	hold := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- store.RunSerializable(ctx, pairA, func(tx credit.Tx) error {
			close(hold)
			<-release
			return nil
		})
	}()
	<-hold

	err := store.RunSerializable(ctx, pairA, func(tx credit.Tx) error { return nil })
	require.ErrorIs(t, err, credit.ErrBusy)

	err = store.RunSerializable(ctx, pairB, func(tx credit.Tx) error { return nil })
	require.NoError(t, err)

	close(release)
	require.NoError(t, <-done)

	// Boundary is free again after the holder commits.
	err = store.RunSerializable(ctx, pairA, func(tx credit.Tx) error { return nil })
	require.NoError(t, err)
}

func TestBoundaryRespectsContext(t *testing.T) {
	store := New(time.Minute)
	pair := newPair(t, store, "1000")

	hold := make(chan struct{})
	release := make(chan struct{})
	go func() {
		store.RunSerializable(context.Background(), pair, func(tx credit.Tx) error {
			close(hold)
			<-release
			return nil
		})
	}()
	<-hold
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := store.RunSerializable(ctx, pair, func(tx credit.Tx) error { return nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

// Commit refuses a second ACTIVE hold for an order even when the duplicate
// was staged by a scope that read before the first one committed.
func TestCommitRejectsDuplicateActiveOrder(t *testing.T) {
	ctx := context.Background()
	store := New(0)
	pair := newPair(t, store, "1000")
	orderID := uuid.New()

	insert := func(tx credit.Tx) error {
		_, err := tx.InsertReservation(ctx, models.CreateReservationParams{
			RetailerID:   pair.RetailerID,
			WholesalerID: pair.WholesalerID,
			OrderID:      orderID,
			Amount:       decimal.NewFromInt(100),
		})
		return err
	}

	require.NoError(t, store.RunSerializable(ctx, pair, insert))

	err := store.RunSerializable(ctx, pair, insert)
	require.ErrorIs(t, err, credit.ErrDuplicateReservation)

	total, err := store.ActiveReservationTotal(ctx, pair)
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.NewFromInt(100)))
}
