// Package memstore provides an in-memory credit.Store. It implements the
// full serializable contract of the durable backend, so the coordinator can
// be exercised in tests and local development without a database.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fiado/internal/credit"
	"fiado/internal/models"
)

// DefaultLockWait bounds how long RunSerializable waits for a pair's
// boundary before failing with ErrBusy.
const DefaultLockWait = 2 * time.Second

// Store is an in-memory credit.Store. Each Store owns its state outright;
// construct one per process or per test and pass it by handle.
type Store struct {
	lockWait time.Duration

	mu           sync.RWMutex
	locks        map[models.Pair]chan struct{}
	accounts     map[models.Pair]*models.CreditAccount
	reservations map[uuid.UUID]*models.CreditReservation
	byOrder      map[uuid.UUID][]uuid.UUID
	byPair       map[models.Pair][]uuid.UUID
	entries      map[models.Pair][]*models.LedgerEntry
}

// New creates an empty store. A non-positive lockWait selects DefaultLockWait.
func New(lockWait time.Duration) *Store {
	if lockWait <= 0 {
		lockWait = DefaultLockWait
	}
	return &Store{
		lockWait:     lockWait,
		locks:        make(map[models.Pair]chan struct{}),
		accounts:     make(map[models.Pair]*models.CreditAccount),
		reservations: make(map[uuid.UUID]*models.CreditReservation),
		byOrder:      make(map[uuid.UUID][]uuid.UUID),
		byPair:       make(map[models.Pair][]uuid.UUID),
		entries:      make(map[models.Pair][]*models.LedgerEntry),
	}
}

// CreateAccount registers a credit account for the pair.
func (s *Store) CreateAccount(_ context.Context, params models.CreateAccountParams) (*models.CreditAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pair := models.NewPair(params.RetailerID, params.WholesalerID)
	if _, exists := s.accounts[pair]; exists {
		return nil, credit.ErrDuplicateAccount
	}

	now := time.Now().UTC()
	account := &models.CreditAccount{
		ID:           uuid.New(),
		RetailerID:   params.RetailerID,
		WholesalerID: params.WholesalerID,
		CreditLimit:  params.CreditLimit,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.accounts[pair] = account

	out := *account
	return &out, nil
}

// UpdateAccount applies administrative changes to the pair's account.
func (s *Store) UpdateAccount(_ context.Context, pair models.Pair, params models.UpdateAccountParams) (*models.CreditAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[pair]
	if !ok {
		return nil, credit.ErrAccountNotFound
	}
	if params.CreditLimit != nil {
		account.CreditLimit = *params.CreditLimit
	}
	if params.IsActive != nil {
		account.IsActive = *params.IsActive
	}
	if params.IsBlocked != nil {
		account.IsBlocked = *params.IsBlocked
	}
	account.UpdatedAt = time.Now().UTC()

	out := *account
	return &out, nil
}

// RunSerializable executes fn under the pair's boundary. Writes staged by fn
// are applied only when fn returns nil; any error discards them all.
func (s *Store) RunSerializable(ctx context.Context, pair models.Pair, fn func(tx credit.Tx) error) error {
	lock := s.pairLock(pair)

	select {
	case lock <- struct{}{}:
	case <-time.After(s.lockWait):
		return credit.ErrBusy
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-lock }()

	tx := &memTx{store: s, statuses: make(map[uuid.UUID]statusChange)}
	if err := fn(tx); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *Store) pairLock(pair models.Pair) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[pair]
	if !ok {
		lock = make(chan struct{}, 1)
		s.locks[pair] = lock
	}
	return lock
}

func (s *Store) commit(tx *memTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// The partial-unique guard: no order may end up with two ACTIVE holds,
	// matching the durable backend's index on (order_id) WHERE ACTIVE.
	for _, res := range tx.inserted {
		for _, id := range s.byOrder[res.OrderID] {
			if existing := s.reservations[id]; existing.IsActive() {
				if _, changed := tx.statuses[id]; !changed {
					return credit.ErrDuplicateReservation
				}
			}
		}
	}

	for id, change := range tx.statuses {
		res := s.reservations[id]
		res.Status = change.status
		switch change.status {
		case models.ReservationStatusReleased:
			at := change.at
			res.ReleasedAt = &at
			res.ReleaseReason = change.reason
		case models.ReservationStatusConverted:
			at := change.at
			res.ConvertedAt = &at
		}
	}

	for _, res := range tx.inserted {
		stored := *res
		s.reservations[res.ID] = &stored
		s.byOrder[res.OrderID] = append(s.byOrder[res.OrderID], res.ID)
		s.byPair[res.Pair()] = append(s.byPair[res.Pair()], res.ID)
	}

	for _, entry := range tx.appended {
		stored := *entry
		s.entries[entry.Pair()] = append(s.entries[entry.Pair()], &stored)
	}

	return nil
}

// --- Reader (snapshot view, outside any boundary) ---

func (s *Store) Account(_ context.Context, pair models.Pair) (*models.CreditAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accountLocked(pair), nil
}

func (s *Store) ReservationByOrder(_ context.Context, orderID uuid.UUID) (*models.CreditReservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reservationByOrderLocked(orderID), nil
}

func (s *Store) ActiveReservationTotal(_ context.Context, pair models.Pair) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeTotalLocked(pair), nil
}

func (s *Store) PostedDebitTotal(_ context.Context, pair models.Pair) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.debitTotalLocked(pair), nil
}

func (s *Store) LastEntry(_ context.Context, pair models.Pair) (*models.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastEntryLocked(pair), nil
}

func (s *Store) EntriesByPair(_ context.Context, pair models.Pair) ([]*models.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.entries[pair]
	out := make([]*models.LedgerEntry, 0, len(entries))
	for _, e := range entries {
		copied := *e
		out = append(out, &copied)
	}
	return out, nil
}

func (s *Store) ReservationsByPair(_ context.Context, pair models.Pair) ([]*models.CreditReservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byPair[pair]
	out := make([]*models.CreditReservation, 0, len(ids))
	for _, id := range ids {
		copied := *s.reservations[id]
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) StaleActiveReservations(_ context.Context, olderThan time.Duration) ([]*models.CreditReservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Now().UTC().Add(-olderThan)
	var out []*models.CreditReservation
	for _, res := range s.reservations {
		if res.IsActive() && res.CreatedAt.Before(cutoff) {
			copied := *res
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// --- locked helpers shared by snapshot and tx views ---

func (s *Store) accountLocked(pair models.Pair) *models.CreditAccount {
	account, ok := s.accounts[pair]
	if !ok {
		return nil
	}
	out := *account
	return &out
}

func (s *Store) reservationByOrderLocked(orderID uuid.UUID) *models.CreditReservation {
	ids := s.byOrder[orderID]
	if len(ids) == 0 {
		return nil
	}
	out := *s.reservations[ids[len(ids)-1]]
	return &out
}

func (s *Store) activeTotalLocked(pair models.Pair) decimal.Decimal {
	total := decimal.Zero
	for _, id := range s.byPair[pair] {
		if res := s.reservations[id]; res.IsActive() {
			total = total.Add(res.Amount)
		}
	}
	return total
}

func (s *Store) debitTotalLocked(pair models.Pair) decimal.Decimal {
	total := decimal.Zero
	for _, e := range s.entries[pair] {
		total = total.Add(e.Signed())
	}
	return total
}

func (s *Store) lastEntryLocked(pair models.Pair) *models.LedgerEntry {
	entries := s.entries[pair]
	if len(entries) == 0 {
		return nil
	}
	out := *entries[len(entries)-1]
	return &out
}

// --- transaction view ---

type statusChange struct {
	status models.ReservationStatus
	reason *models.ReleaseReason
	at     time.Time
}

// memTx stages writes against the store. Reads overlay staged state so a
// scope observes its own effects, e.g. an appended entry shifts the running
// balance for the next append.
type memTx struct {
	store    *Store
	inserted []*models.CreditReservation
	statuses map[uuid.UUID]statusChange
	appended []*models.LedgerEntry
}

func (t *memTx) Account(ctx context.Context, pair models.Pair) (*models.CreditAccount, error) {
	return t.store.Account(ctx, pair)
}

func (t *memTx) ReservationByOrder(_ context.Context, orderID uuid.UUID) (*models.CreditReservation, error) {
	for i := len(t.inserted) - 1; i >= 0; i-- {
		if t.inserted[i].OrderID == orderID {
			out := *t.inserted[i]
			return &out, nil
		}
	}

	t.store.mu.RLock()
	res := t.store.reservationByOrderLocked(orderID)
	t.store.mu.RUnlock()

	if res != nil {
		t.overlayStatus(res)
	}
	return res, nil
}

func (t *memTx) ActiveReservationTotal(_ context.Context, pair models.Pair) (decimal.Decimal, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	total := decimal.Zero
	for _, id := range t.store.byPair[pair] {
		res := *t.store.reservations[id]
		t.overlayStatus(&res)
		if res.IsActive() {
			total = total.Add(res.Amount)
		}
	}
	for _, res := range t.inserted {
		if res.Pair() == pair {
			total = total.Add(res.Amount)
		}
	}
	return total, nil
}

func (t *memTx) PostedDebitTotal(_ context.Context, pair models.Pair) (decimal.Decimal, error) {
	t.store.mu.RLock()
	total := t.store.debitTotalLocked(pair)
	t.store.mu.RUnlock()

	for _, e := range t.appended {
		if e.Pair() == pair {
			total = total.Add(e.Signed())
		}
	}
	return total, nil
}

func (t *memTx) LastEntry(_ context.Context, pair models.Pair) (*models.LedgerEntry, error) {
	for i := len(t.appended) - 1; i >= 0; i-- {
		if t.appended[i].Pair() == pair {
			out := *t.appended[i]
			return &out, nil
		}
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	return t.store.lastEntryLocked(pair), nil
}

func (t *memTx) EntriesByPair(ctx context.Context, pair models.Pair) ([]*models.LedgerEntry, error) {
	entries, err := t.store.EntriesByPair(ctx, pair)
	if err != nil {
		return nil, err
	}
	for _, e := range t.appended {
		if e.Pair() == pair {
			copied := *e
			entries = append(entries, &copied)
		}
	}
	return entries, nil
}

func (t *memTx) ReservationsByPair(ctx context.Context, pair models.Pair) ([]*models.CreditReservation, error) {
	out, err := t.store.ReservationsByPair(ctx, pair)
	if err != nil {
		return nil, err
	}
	for i := range out {
		t.overlayStatus(out[i])
	}
	for _, res := range t.inserted {
		if res.Pair() == pair {
			copied := *res
			out = append([]*models.CreditReservation{&copied}, out...)
		}
	}
	return out, nil
}

func (t *memTx) StaleActiveReservations(ctx context.Context, olderThan time.Duration) ([]*models.CreditReservation, error) {
	return t.store.StaleActiveReservations(ctx, olderThan)
}

func (t *memTx) InsertReservation(_ context.Context, params models.CreateReservationParams) (*models.CreditReservation, error) {
	res := &models.CreditReservation{
		ID:           uuid.New(),
		RetailerID:   params.RetailerID,
		WholesalerID: params.WholesalerID,
		OrderID:      params.OrderID,
		Amount:       params.Amount,
		Status:       models.ReservationStatusActive,
		CreatedAt:    time.Now().UTC(),
	}
	t.inserted = append(t.inserted, res)

	out := *res
	return &out, nil
}

func (t *memTx) MarkReleased(ctx context.Context, id uuid.UUID, reason models.ReleaseReason, at time.Time) error {
	if err := t.checkActive(id); err != nil {
		return err
	}
	r := reason
	t.statuses[id] = statusChange{status: models.ReservationStatusReleased, reason: &r, at: at}
	return nil
}

func (t *memTx) MarkConverted(ctx context.Context, id uuid.UUID, at time.Time) error {
	if err := t.checkActive(id); err != nil {
		return err
	}
	t.statuses[id] = statusChange{status: models.ReservationStatusConverted, at: at}
	return nil
}

func (t *memTx) AppendEntry(ctx context.Context, params models.AppendEntryParams) (*models.LedgerEntry, error) {
	pair := models.NewPair(params.RetailerID, params.WholesalerID)

	balance := decimal.Zero
	if last, _ := t.LastEntry(ctx, pair); last != nil {
		balance = last.BalanceAfter
	}

	entry := &models.LedgerEntry{
		ID:           uuid.New(),
		RetailerID:   params.RetailerID,
		WholesalerID: params.WholesalerID,
		EntryType:    params.EntryType,
		Amount:       params.Amount,
		OrderID:      params.OrderID,
		Metadata:     params.Metadata,
		CreatedAt:    time.Now().UTC(),
	}
	entry.BalanceAfter = balance.Add(entry.Signed())
	t.appended = append(t.appended, entry)

	out := *entry
	return &out, nil
}

func (t *memTx) checkActive(id uuid.UUID) error {
	if change, ok := t.statuses[id]; ok && change.status.IsTerminal() {
		return credit.ErrInvalidState
	}

	t.store.mu.RLock()
	res, ok := t.store.reservations[id]
	t.store.mu.RUnlock()
	if !ok {
		return credit.ErrReservationNotFound
	}
	if res.Status.IsTerminal() {
		return credit.ErrInvalidState
	}
	return nil
}

func (t *memTx) overlayStatus(res *models.CreditReservation) {
	change, ok := t.statuses[res.ID]
	if !ok {
		return
	}
	res.Status = change.status
	switch change.status {
	case models.ReservationStatusReleased:
		at := change.at
		res.ReleasedAt = &at
		res.ReleaseReason = change.reason
	case models.ReservationStatusConverted:
		at := change.at
		res.ConvertedAt = &at
	}
}
